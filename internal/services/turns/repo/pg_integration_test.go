//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"turnstile/internal/platform/store"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, port.Port())
}

func TestPG_Contract_Integration(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		AppName: "turnstile-repo-it",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	require.NoError(t, Migrate(ctx, st.PG))

	runContract(t, func(t *testing.T) Repo {
		_, err := st.PG.Exec(ctx, `TRUNCATE turn_keys, buffered_messages, message_receipts,
			ended_conversations, assembled_turns`)
		require.NoError(t, err)
		return NewPG(st.PG)
	})
}
