// Package badger implements the store driver on an embedded BadgerDB
// key-value store. Records are JSON encoded under typed key prefixes.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/internal/version"
	"github.com/hrygo/supportdesk/store"
)

// InMemoryDSN selects a non-persistent database.
const InMemoryDSN = ":memory:"

const (
	prefixSetting       = "setting/"
	prefixConversation  = "conv/"
	prefixTurn          = "turn/"
	prefixCustomer      = "cust/"
	prefixCustomerEmail = "cust_email/"
	prefixOrder         = "order/"
	prefixTicket        = "ticket/"
)

// Config holds BadgerDB options.
type Config struct {
	Path           string
	InMemory       bool
	SyncWrites     bool
	Logger         *slog.Logger
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns a durable configuration with periodic value log GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type DB struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// NewDB opens the database at profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	cfg := DefaultConfig()
	if profile.DSN == InMemoryDSN {
		cfg = InMemoryConfig()
	} else {
		cfg.Path = profile.DSN
	}
	cfg.Logger = slog.Default().With("component", "badger")
	return Open(cfg)
}

// Open opens a BadgerDB with cfg and starts the GC loop for persistent stores.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, pkgerrors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, pkgerrors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open badger database")
	}

	d := &DB{db: bdb}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.stopGC = make(chan struct{})
		d.doneGC = make(chan struct{})
		go d.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return d, nil
}

func (d *DB) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(d.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			if err := d.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.doneGC
	}
	return d.db.Close()
}

func (d *DB) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

func (d *DB) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// scanPrefix decodes every value under prefix with decode, in key order.
func scanPrefix(txn *badger.Txn, prefix string, decode func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(decode); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Migrate(ctx context.Context) error {
	return d.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixSetting+"schema_version"), []byte(version.SchemaVersion))
	})
}

func (d *DB) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := d.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSetting + "schema_version"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		b, err := item.ValueCopy(nil)
		v = string(b)
		return err
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

var _ store.Driver = (*DB)(nil)
