package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

func (d *DB) CreateTicket(ctx context.Context, create *store.Ticket) (*store.Ticket, error) {
	fields := []string{"id", "session_id", "customer_id", "status", "priority", "category", "summary", "turn_seq", "created_ts"}
	args := []any{create.ID, create.SessionID, create.CustomerID, create.Status, create.Priority, create.Category, create.Summary, create.TurnSeq, create.CreatedTs}
	stmt := `INSERT INTO ticket (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create ticket")
	}
	return create, nil
}

func (d *DB) ListTickets(ctx context.Context, find *store.FindTicket) ([]*store.Ticket, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id, session_id, customer_id, status, priority, category, summary, turn_seq, created_ts
		FROM ticket WHERE `+strings.Join(where, " AND ")+` ORDER BY created_ts DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tickets")
	}
	defer rows.Close()

	list := make([]*store.Ticket, 0)
	for rows.Next() {
		t := &store.Ticket{}
		if err := rows.Scan(&t.ID, &t.SessionID, &t.CustomerID, &t.Status, &t.Priority, &t.Category, &t.Summary, &t.TurnSeq, &t.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan ticket")
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tickets")
	}
	return list, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
