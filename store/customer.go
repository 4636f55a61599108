package store

// Customer is a known account that conversations can be bound to.
type Customer struct {
	ID         string
	Name       string
	Email      string
	Tier       string
	TotalSpent float64
}

type FindCustomer struct {
	ID    *string
	Email *string
}

// Order is a customer purchase.
type Order struct {
	ID                string
	CustomerID        string
	Status            string
	Items             string
	EstimatedDelivery string
	CreatedTs         int64
}

// FindOrder filters orders. Results are newest first.
type FindOrder struct {
	ID         *string
	CustomerID *string
	Limit      int
}
