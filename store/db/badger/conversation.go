package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

func turnKey(sessionID string, seq int32) string {
	return fmt.Sprintf("%s%s/%010d", prefixTurn, sessionID, seq)
}

func (d *DB) SaveConversation(ctx context.Context, c *store.Conversation, turns []*store.Turn) error {
	err := d.update(ctx, func(txn *badger.Txn) error {
		key := prefixConversation + c.SessionID
		var existing store.Conversation
		err := getJSON(txn, key, &existing)
		switch {
		case err == nil:
			c.IsHumanTakeover = c.IsHumanTakeover || existing.IsHumanTakeover
			c.CreatedTs = existing.CreatedTs
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := setJSON(txn, key, c); err != nil {
			return err
		}
		for _, t := range turns {
			if err := putTurn(txn, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save conversation")
	}
	return nil
}

func putTurn(txn *badger.Txn, t *store.Turn) error {
	key := turnKey(t.SessionID, t.Seq)
	if _, err := txn.Get([]byte(key)); err == nil {
		return nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return setJSON(txn, key, t)
}

func (d *DB) AppendTurn(ctx context.Context, t *store.Turn) error {
	if err := d.update(ctx, func(txn *badger.Txn) error { return putTurn(txn, t) }); err != nil {
		return errors.Wrapf(err, "failed to insert turn %s/%d", t.SessionID, t.Seq)
	}
	return nil
}

func (d *DB) GetConversation(ctx context.Context, sessionID string) (*store.Conversation, error) {
	c := &store.Conversation{}
	err := d.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixConversation+sessionID, c)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return c, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	list := make([]*store.Conversation, 0)
	err := d.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixConversation, func(val []byte) error {
			c := &store.Conversation{}
			if err := json.Unmarshal(val, c); err != nil {
				return err
			}
			if find.CustomerID != nil && c.CustomerID != *find.CustomerID {
				return nil
			}
			if find.IsHumanTakeover != nil && c.IsHumanTakeover != *find.IsHumanTakeover {
				return nil
			}
			list = append(list, c)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedTs > list[j].UpdatedTs })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *DB) ListTurns(ctx context.Context, sessionID string) ([]*store.Turn, error) {
	list := make([]*store.Turn, 0)
	err := d.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixTurn+sessionID+"/", func(val []byte) error {
			t := &store.Turn{}
			if err := json.Unmarshal(val, t); err != nil {
				return err
			}
			list = append(list, t)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list turns")
	}
	return list, nil
}
