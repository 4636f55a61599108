package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/internal/version"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate brings the schema up to date and seeds demo data in demo mode.
func (s *Store) Migrate(ctx context.Context) error {
	current, err := s.driver.SchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if current != "" && version.IsVersionGreaterThan(current, version.SchemaVersion) {
		return errors.Wrapf(ErrSchemaTooNew, "database at %s, binary expects %s", current, version.SchemaVersion)
	}
	if current == "" || !version.IsVersionGreaterOrEqualThan(current, version.SchemaVersion) {
		slog.Info("migrating store schema", "from", current, "to", version.SchemaVersion)
		if err := s.driver.Migrate(ctx); err != nil {
			return errors.Wrap(err, "failed to migrate")
		}
	}
	if s.profile != nil && s.profile.IsDemo() {
		if err := s.Seed(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks that the driver answers by reading the schema version.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.driver.SchemaVersion(ctx); err != nil {
		return errors.Wrap(err, "store unreachable")
	}
	return nil
}

func (s *Store) SaveConversation(ctx context.Context, conversation *Conversation, turns []*Turn) error {
	return s.driver.SaveConversation(ctx, conversation, turns)
}

func (s *Store) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	return s.driver.GetConversation(ctx, sessionID)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

func (s *Store) AppendTurn(ctx context.Context, turn *Turn) error {
	return s.driver.AppendTurn(ctx, turn)
}

func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]*Turn, error) {
	return s.driver.ListTurns(ctx, sessionID)
}

func (s *Store) UpsertCustomer(ctx context.Context, customer *Customer) error {
	return s.driver.UpsertCustomer(ctx, customer)
}

func (s *Store) GetCustomer(ctx context.Context, find *FindCustomer) (*Customer, error) {
	return s.driver.GetCustomer(ctx, find)
}

func (s *Store) UpsertOrder(ctx context.Context, order *Order) error {
	return s.driver.UpsertOrder(ctx, order)
}

func (s *Store) ListOrders(ctx context.Context, find *FindOrder) ([]*Order, error) {
	return s.driver.ListOrders(ctx, find)
}

// GetOrder returns a single order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*Order, error) {
	list, err := s.driver.ListOrders(ctx, &FindOrder{ID: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (s *Store) CreateTicket(ctx context.Context, ticket *Ticket) (*Ticket, error) {
	return s.driver.CreateTicket(ctx, ticket)
}

func (s *Store) ListTickets(ctx context.Context, find *FindTicket) ([]*Ticket, error) {
	return s.driver.ListTickets(ctx, find)
}
