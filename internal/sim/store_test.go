package sim

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDatabaseURL string

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "aviator_sim"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testDatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPwd, dbHost, dbPort.Port(), dbName)

	return dbContainer.Terminate, err
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() (available bool) {
	// testcontainers panics instead of returning an error when no Docker
	// host can be found; treat that as "not available" so TestMain skips.
	defer func() {
		if recover() != nil {
			available = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func migratedStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("pgx", testDatabaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, "../../migrations"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	store, err := NewStore(context.Background(), testDatabaseURL)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_RecordRound(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()

	seed := NewSeed()
	if err := store.RecordRound(ctx, 1, 2.47, seed, Commitment(seed), 1); err != nil {
		t.Fatalf("RecordRound() error: %v", err)
	}

	// Replays of the same round are ignored, not duplicated.
	if err := store.RecordRound(ctx, 1, 2.47, seed, Commitment(seed), 1); err != nil {
		t.Fatalf("RecordRound() replay error: %v", err)
	}
}

func TestStore_TopWinners(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()

	if err := store.RecordWin(ctx, 101, "player-101", 50.0); err != nil {
		t.Fatalf("RecordWin() error: %v", err)
	}
	if err := store.RecordWin(ctx, 102, "player-102", 200.0); err != nil {
		t.Fatalf("RecordWin() error: %v", err)
	}
	if err := store.RecordWin(ctx, 101, "player-101", 25.0); err != nil {
		t.Fatalf("RecordWin() second error: %v", err)
	}

	winners, err := store.TopWinners(ctx, 10)
	if err != nil {
		t.Fatalf("TopWinners() error: %v", err)
	}
	if len(winners) < 2 {
		t.Fatalf("TopWinners() returned %d rows, want >= 2", len(winners))
	}

	if winners[0].Username != "player-102" {
		t.Errorf("top winner = %s, want player-102", winners[0].Username)
	}
	for _, w := range winners {
		if w.UserID == 101 && w.TotalWin != 75.0 {
			t.Errorf("player-101 total = %v, want 75.0 (wins accumulate)", w.TotalWin)
		}
	}
}
