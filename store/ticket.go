package store

// TicketStatus is the lifecycle state of a human hand-off ticket.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Ticket is a hand-off request for a human agent.
type Ticket struct {
	ID         string
	SessionID  string
	CustomerID string
	Status     TicketStatus
	Priority   string
	Category   string
	Summary    string
	TurnSeq    int32
	CreatedTs  int64
}

type FindTicket struct {
	ID        *string
	SessionID *string
	Status    *TicketStatus
}
