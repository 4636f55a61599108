package badger

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

// ErrTicketExists is returned when a ticket id is reused.
var ErrTicketExists = errors.New("ticket already exists")

func (d *DB) CreateTicket(ctx context.Context, create *store.Ticket) (*store.Ticket, error) {
	err := d.update(ctx, func(txn *badger.Txn) error {
		key := prefixTicket + create.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrTicketExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, create)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ticket")
	}
	return create, nil
}

func (d *DB) ListTickets(ctx context.Context, find *store.FindTicket) ([]*store.Ticket, error) {
	list := make([]*store.Ticket, 0)
	err := d.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixTicket, func(val []byte) error {
			t := &store.Ticket{}
			if err := json.Unmarshal(val, t); err != nil {
				return err
			}
			if find.ID != nil && t.ID != *find.ID {
				return nil
			}
			if find.SessionID != nil && t.SessionID != *find.SessionID {
				return nil
			}
			if find.Status != nil && t.Status != *find.Status {
				return nil
			}
			list = append(list, t)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tickets")
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedTs > list[j].CreatedTs })
	return list, nil
}
