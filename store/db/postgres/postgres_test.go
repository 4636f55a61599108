package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/store/storetest"
)

// TestDriver runs against a disposable database named by SUPPORTDESK_TEST_POSTGRES_DSN.
func TestDriver(t *testing.T) {
	dsn := os.Getenv("SUPPORTDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUPPORTDESK_TEST_POSTGRES_DSN not set")
	}
	driver, err := NewDB(&profile.Profile{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	_, err = driver.(*DB).db.ExecContext(context.Background(),
		`DROP TABLE IF EXISTS system_setting, customer, customer_order, ticket, conversation, conversation_turn`)
	require.NoError(t, err)

	storetest.RunDriverSuite(t, driver)
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t, "$1, $2, $3", placeholders(3))
	require.Equal(t, "$4", placeholder(4))
}

func TestNewDB_RequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	require.Error(t, err)
}
