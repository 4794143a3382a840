package sim

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists settled rounds and aggregate winnings in postgres. Hot
// state (balances, active bets, crash history) stays in redis; postgres is
// the durable tail that feeds the winners snapshot.
type Store struct {
	pool *pgxpool.Pool
}

type WinnerRow struct {
	UserID   int64
	Username string
	TotalWin float64
}

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("sim: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sim: ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// RecordRound stores one settled round with its revealed seed so players
// can verify fairness after the fact.
func (s *Store) RecordRound(ctx context.Context, roundID int64, crash float64, serverSeed, commitment string, nonce int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settled_rounds (round_id, crash_multiplier, server_seed, commitment, nonce)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id) DO NOTHING`,
		roundID, crash, serverSeed, commitment, nonce)
	if err != nil {
		return fmt.Errorf("sim: record round %d: %w", roundID, err)
	}
	return nil
}

// RecordWin accumulates a cashout into the winners leaderboard.
func (s *Store) RecordWin(ctx context.Context, userID int64, username string, winAmount float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO winners (user_id, username, total_win)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET total_win = winners.total_win + EXCLUDED.total_win`,
		userID, username, winAmount)
	if err != nil {
		return fmt.Errorf("sim: record win for user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) TopWinners(ctx context.Context, limit int) ([]WinnerRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, username, total_win
		FROM winners
		ORDER BY total_win DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("sim: query winners: %w", err)
	}
	defer rows.Close()

	var winners []WinnerRow
	for rows.Next() {
		var w WinnerRow
		if err := rows.Scan(&w.UserID, &w.Username, &w.TotalWin); err != nil {
			return nil, fmt.Errorf("sim: scan winner: %w", err)
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sim: migrate up: %w", err)
	}
	return nil
}

// RollbackMigration rolls back the most recent migration.
func RollbackMigration(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("sim: migrate down: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version and dirty flag.
func MigrationVersion(db *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("sim: migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("sim: migrator: %w", err)
	}
	return m, nil
}
