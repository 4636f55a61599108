package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

func (d *DB) UpsertCustomer(ctx context.Context, c *store.Customer) error {
	stmt := `INSERT INTO customer (id, name, email, tier, total_spent) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, tier = excluded.tier, total_spent = excluded.total_spent`
	if _, err := d.db.ExecContext(ctx, stmt, c.ID, c.Name, strings.ToLower(c.Email), c.Tier, c.TotalSpent); err != nil {
		return errors.Wrap(err, "failed to upsert customer")
	}
	return nil
}

func (d *DB) GetCustomer(ctx context.Context, find *store.FindCustomer) (*store.Customer, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Email != nil {
		where, args = append(where, "email = ?"), append(args, strings.ToLower(*find.Email))
	}

	c := &store.Customer{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, email, tier, total_spent FROM customer WHERE `+strings.Join(where, " AND ")+` LIMIT 1`, args...,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Tier, &c.TotalSpent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get customer")
	}
	return c, nil
}

func (d *DB) UpsertOrder(ctx context.Context, o *store.Order) error {
	stmt := `INSERT INTO customer_order (id, customer_id, status, items, estimated_delivery, created_ts) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET customer_id = excluded.customer_id, status = excluded.status, items = excluded.items,
			estimated_delivery = excluded.estimated_delivery, created_ts = excluded.created_ts`
	if _, err := d.db.ExecContext(ctx, stmt, o.ID, o.CustomerID, o.Status, o.Items, o.EstimatedDelivery, o.CreatedTs); err != nil {
		return errors.Wrap(err, "failed to upsert order")
	}
	return nil
}

func (d *DB) ListOrders(ctx context.Context, find *store.FindOrder) ([]*store.Order, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.CustomerID != nil {
		where, args = append(where, "customer_id = ?"), append(args, *find.CustomerID)
	}
	query := `SELECT id, customer_id, status, items, estimated_delivery, created_ts FROM customer_order
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	defer rows.Close()

	list := make([]*store.Order, 0)
	for rows.Next() {
		o := &store.Order{}
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Items, &o.EstimatedDelivery, &o.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate orders")
	}
	return list, nil
}
