package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/kvstore/kvtest"
)

// startPostgres returns a DSN from RIGHTSGUARD_POSTGRES_DSN, or starts a
// throwaway container. The test is skipped when neither is possible.
func startPostgres(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("RIGHTSGUARD_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("short mode; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "rg",
			"POSTGRES_PASSWORD": "rg",
			"POSTGRES_DB":       "rightsguard",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://rg:rg@%s:%s/rightsguard?sslmode=disable", host, port.Port())
}

func TestPostgresBackend_Compliance(t *testing.T) {
	dsn := startPostgres(t)
	kvtest.Run(t, func(t *testing.T) kvstore.Backend {
		db, err := Open(dsn)
		if err != nil {
			t.Fatalf("postgres open: %v", err)
		}
		b, err := NewWithDB(context.Background(), db)
		if err != nil {
			t.Fatalf("postgres backend: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}
