package badger

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/store"
)

func (d *DB) UpsertCustomer(ctx context.Context, c *store.Customer) error {
	cp := *c
	cp.Email = strings.ToLower(cp.Email)
	err := d.update(ctx, func(txn *badger.Txn) error {
		var old store.Customer
		if err := getJSON(txn, prefixCustomer+cp.ID, &old); err == nil && old.Email != cp.Email {
			if err := txn.Delete([]byte(prefixCustomerEmail + old.Email)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, prefixCustomer+cp.ID, &cp); err != nil {
			return err
		}
		return txn.Set([]byte(prefixCustomerEmail+cp.Email), []byte(cp.ID))
	})
	if err != nil {
		return errors.Wrap(err, "failed to upsert customer")
	}
	return nil
}

func (d *DB) GetCustomer(ctx context.Context, find *store.FindCustomer) (*store.Customer, error) {
	c := &store.Customer{}
	err := d.view(ctx, func(txn *badger.Txn) error {
		id := ""
		if find.ID != nil {
			id = *find.ID
		}
		if find.Email != nil {
			item, err := txn.Get([]byte(prefixCustomerEmail + strings.ToLower(*find.Email)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return store.ErrNotFound
			}
			if err != nil {
				return err
			}
			b, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if id != "" && id != string(b) {
				return store.ErrNotFound
			}
			id = string(b)
		}
		if id == "" {
			return store.ErrNotFound
		}
		return getJSON(txn, prefixCustomer+id, c)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get customer")
	}
	return c, nil
}

func (d *DB) UpsertOrder(ctx context.Context, o *store.Order) error {
	if err := d.update(ctx, func(txn *badger.Txn) error { return setJSON(txn, prefixOrder+o.ID, o) }); err != nil {
		return errors.Wrap(err, "failed to upsert order")
	}
	return nil
}

func (d *DB) ListOrders(ctx context.Context, find *store.FindOrder) ([]*store.Order, error) {
	list := make([]*store.Order, 0)
	err := d.view(ctx, func(txn *badger.Txn) error {
		if find.ID != nil {
			o := &store.Order{}
			err := getJSON(txn, prefixOrder+*find.ID, o)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if find.CustomerID == nil || o.CustomerID == *find.CustomerID {
				list = append(list, o)
			}
			return nil
		}
		return scanPrefix(txn, prefixOrder, func(val []byte) error {
			o := &store.Order{}
			if err := json.Unmarshal(val, o); err != nil {
				return err
			}
			if find.CustomerID != nil && o.CustomerID != *find.CustomerID {
				return nil
			}
			list = append(list, o)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs > list[j].CreatedTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}
