package store

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"

	"meetscribe/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresBackend stores artifacts in a (job_id, kind) keyed table. A row
// upsert inside one statement gives atomic-visible writes.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects, pings, and applies migrations.
func NewPostgresBackend(databaseURL string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Postgres artifact store initialized")

	return &PostgresBackend{pool: pool}, nil
}

// Executing database migrations
func runMigrations(databaseURL string) error {
	migrationsPath, err := filepath.Abs("migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	var migrationsURL string
	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(migrationsPath),
		}
		migrationsURL = u.String()
	} else {
		migrationsURL = fmt.Sprintf("file://%s", migrationsPath)
	}

	logger.Info("Running migrations", zap.String("path", migrationsURL))

	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*connCfg)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply")
	} else {
		logger.Info("Migrations applied successfully")
	}

	return nil
}

func (b *PostgresBackend) Init(ctx context.Context, jobID string) error {
	var populated bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_artifacts WHERE job_id = $1)`,
		jobID,
	).Scan(&populated)
	if err != nil {
		return fmt.Errorf("failed to probe job namespace: %w", err)
	}
	if populated {
		return ErrAlreadyExists
	}
	return nil
}

func (b *PostgresBackend) Write(ctx context.Context, jobID string, kind Kind, payload []byte) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO job_artifacts (job_id, kind, payload, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (job_id, kind)
		 DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		jobID, string(kind), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Read(ctx context.Context, jobID string, kind Kind) ([]byte, error) {
	var payload []byte
	err := b.pool.QueryRow(ctx,
		`SELECT payload FROM job_artifacts WHERE job_id = $1 AND kind = $2`,
		jobID, string(kind),
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select artifact: %w", err)
	}
	return payload, nil
}

func (b *PostgresBackend) Exists(ctx context.Context, jobID string, kind Kind) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_artifacts WHERE job_id = $1 AND kind = $2)`,
		jobID, string(kind),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe artifact: %w", err)
	}
	return exists, nil
}

func (b *PostgresBackend) Remove(ctx context.Context, jobID string) error {
	tag, err := b.pool.Exec(ctx,
		`DELETE FROM job_artifacts WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) Jobs(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT DISTINCT job_id FROM job_artifacts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return ids, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
