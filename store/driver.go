package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	Close() error

	// Migrate creates or upgrades the schema to version.SchemaVersion.
	Migrate(ctx context.Context) error
	// SchemaVersion reports the schema version recorded by the last migration.
	SchemaVersion(ctx context.Context) (string, error)

	// Conversation model related methods.
	SaveConversation(ctx context.Context, conversation *Conversation, turns []*Turn) error
	GetConversation(ctx context.Context, sessionID string) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	AppendTurn(ctx context.Context, turn *Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]*Turn, error)

	// Customer model related methods.
	UpsertCustomer(ctx context.Context, customer *Customer) error
	GetCustomer(ctx context.Context, find *FindCustomer) (*Customer, error)

	// Order model related methods.
	UpsertOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, find *FindOrder) ([]*Order, error)

	// Ticket model related methods.
	CreateTicket(ctx context.Context, ticket *Ticket) (*Ticket, error)
	ListTickets(ctx context.Context, find *FindTicket) ([]*Ticket, error)
}
