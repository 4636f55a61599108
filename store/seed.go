package store

import (
	"context"

	"github.com/pkg/errors"
)

var seedCustomers = []*Customer{
	{ID: "C1", Name: "Alice Johnson", Email: "alice@example.com", Tier: "premium", TotalSpent: 1250.50},
	{ID: "C2", Name: "Bob Smith", Email: "bob@example.com", Tier: "standard", TotalSpent: 45.00},
}

var seedOrders = []*Order{
	{ID: "ORD-123", CustomerID: "C1", Status: "Shipped", Items: "Wireless Headphones, USB-C Cable", EstimatedDelivery: "2026-01-30", CreatedTs: 1767225600},
	{ID: "ORD-456", CustomerID: "C1", Status: "Processing", Items: "Smart Watch", EstimatedDelivery: "2026-02-05", CreatedTs: 1767830400},
}

// Seed inserts the demo customers and orders. It is idempotent.
func (s *Store) Seed(ctx context.Context) error {
	for _, c := range seedCustomers {
		cp := *c
		if err := s.driver.UpsertCustomer(ctx, &cp); err != nil {
			return errors.Wrapf(err, "failed to seed customer %s", c.ID)
		}
	}
	for _, o := range seedOrders {
		cp := *o
		if err := s.driver.UpsertOrder(ctx, &cp); err != nil {
			return errors.Wrapf(err, "failed to seed order %s", o.ID)
		}
	}
	return nil
}
