package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/sim?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "sim"}))
	assert.Equal(t, "postgres://u:p@db:6543/sim?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "sim", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p%40ss%2Fw@db:5432/sim?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p@ss/w", Host: "db", Database: "sim"}))
}

func TestPendingMigrations(t *testing.T) {
	names := []string{"001_init.sql", "002_audit.sql", "003_more.sql"}
	assert.Equal(t, []string{"002_audit.sql", "003_more.sql"}, pending(names, []string{"001_init.sql"}))
	assert.Empty(t, pending(names, names))
	assert.Equal(t, names, pending(names, nil))
}

func TestAppendListOpts(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := appendListOpts("SELECT * FROM executions WHERE session_id = $1", []any{"s"}, 2,
		"executed_at", "ASC", domain.ListOpts{Since: &since, Limit: 10, Offset: 5})

	assert.Equal(t,
		"SELECT * FROM executions WHERE session_id = $1 AND executed_at >= $2 ORDER BY executed_at ASC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"s", since, 10, 5}, args)

	q, args = appendListOpts("SELECT 1 WHERE 1=1", nil, 1, "created_at", "DESC", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])

	data, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"sessions", "orders", "executions", "audit_log"} {
		assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
