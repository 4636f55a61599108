package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

const conversationColumns = `session_id, customer_id, customer_tier, active_specialist, escalation_state, ticket_id,
	prompt_tokens, completion_tokens, total_tokens, cost_estimate, low_confidence_streak,
	is_human_takeover, inconsistent, created_ts, updated_ts`

func (d *DB) SaveConversation(ctx context.Context, c *store.Conversation, turns []*store.Turn) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin save")
	}
	defer tx.Rollback()

	args := []any{
		c.SessionID, c.CustomerID, c.CustomerTier, c.ActiveSpecialist, c.EscalationState, c.TicketID,
		c.PromptTokens, c.CompletionTokens, c.TotalTokens, c.CostEstimate, c.LowConfidenceStreak,
		c.IsHumanTakeover, c.Inconsistent, c.CreatedTs, c.UpdatedTs,
	}
	stmt := `INSERT INTO conversation (` + conversationColumns + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (session_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			customer_tier = EXCLUDED.customer_tier,
			active_specialist = EXCLUDED.active_specialist,
			escalation_state = EXCLUDED.escalation_state,
			ticket_id = EXCLUDED.ticket_id,
			prompt_tokens = EXCLUDED.prompt_tokens,
			completion_tokens = EXCLUDED.completion_tokens,
			total_tokens = EXCLUDED.total_tokens,
			cost_estimate = EXCLUDED.cost_estimate,
			low_confidence_streak = EXCLUDED.low_confidence_streak,
			is_human_takeover = conversation.is_human_takeover OR EXCLUDED.is_human_takeover,
			inconsistent = EXCLUDED.inconsistent,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to upsert conversation")
	}

	for _, t := range turns {
		if err := insertTurn(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit conversation")
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTurn(ctx context.Context, db execer, t *store.Turn) error {
	stmt := `INSERT INTO conversation_turn (session_id, seq, role, content, specialist, escalation, created_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (session_id, seq) DO NOTHING`
	if _, err := db.ExecContext(ctx, stmt, t.SessionID, t.Seq, t.Role, t.Content, t.Specialist, t.Escalation, t.CreatedTs); err != nil {
		return errors.Wrapf(err, "failed to insert turn %s/%d", t.SessionID, t.Seq)
	}
	return nil
}

func (d *DB) AppendTurn(ctx context.Context, t *store.Turn) error {
	return insertTurn(ctx, d.db, t)
}

func (d *DB) GetConversation(ctx context.Context, sessionID string) (*store.Conversation, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversation WHERE session_id = $1`, sessionID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return c, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.CustomerID != nil {
		where, args = append(where, "customer_id = "+placeholder(len(args)+1)), append(args, *find.CustomerID)
	}
	if find.IsHumanTakeover != nil {
		where, args = append(where, "is_human_takeover = "+placeholder(len(args)+1)), append(args, *find.IsHumanTakeover)
	}
	query := `SELECT ` + conversationColumns + ` FROM conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) ListTurns(ctx context.Context, sessionID string) ([]*store.Turn, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, seq, role, content, specialist, escalation, created_ts
		FROM conversation_turn WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list turns")
	}
	defer rows.Close()

	list := make([]*store.Turn, 0)
	for rows.Next() {
		t := &store.Turn{}
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Content, &t.Specialist, &t.Escalation, &t.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan turn")
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate turns")
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*store.Conversation, error) {
	c := &store.Conversation{}
	err := s.Scan(
		&c.SessionID, &c.CustomerID, &c.CustomerTier, &c.ActiveSpecialist, &c.EscalationState, &c.TicketID,
		&c.PromptTokens, &c.CompletionTokens, &c.TotalTokens, &c.CostEstimate, &c.LowConfidenceStreak,
		&c.IsHumanTakeover, &c.Inconsistent, &c.CreatedTs, &c.UpdatedTs,
	)
	return c, err
}
