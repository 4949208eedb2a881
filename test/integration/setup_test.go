//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/migrations"
)

var (
	pool     *pgxpool.Pool
	redisURL string
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	cleanup, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setup(ctx context.Context) (func(), error) {
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "hms_test",
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "testpass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	rd, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("start redis: %w", err)
	}

	terminate := func() {
		_ = rd.Terminate(context.Background())
		_ = pg.Terminate(context.Background())
	}

	dsn, err := endpoint(ctx, pg, "5432", "postgres://test:testpass@%s:%s/hms_test?sslmode=disable")
	if err != nil {
		terminate()
		return nil, err
	}
	if redisURL, err = endpoint(ctx, rd, "6379", "redis://%s:%s/0"); err != nil {
		terminate()
		return nil, err
	}

	if pool, err = db.NewPool(ctx, dsn, 5, 1); err != nil {
		terminate()
		return nil, err
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		terminate()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return func() {
		pool.Close()
		terminate()
	}, nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port, format string) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port+"/tcp")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	return fmt.Sprintf(format, host, mapped.Port()), nil
}

// resetTables empties every table so tests do not see each other's rows.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE discharge_details, appointments, group_members, groups,
			admin_approvals, patient_profiles, doctor_profiles, accounts CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
