package memory

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the durable episodic backend, selected by setting a DSN.
// Relevance uses Postgres full-text ranking over the stored body.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgresStore connects, applies pending migrations and returns the
// store.
func OpenPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect memory database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping memory database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("apply memory migrations: %w", err)
	}
	if err := db.Close(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("close migration connection: %w", err)
	}

	logger.Info("memory database ready")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Add(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, role, body, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body`,
		e.ID, e.Role, e.Text, e.Type, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, k int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, body, kind, created_at
		 FROM memories
		 WHERE body_tsv @@ plainto_tsquery('english', $1)
		 ORDER BY ts_rank(body_tsv, plainto_tsquery('english', $1)) DESC,
		          created_at DESC
		 LIMIT $2`,
		query, k)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts time.Time
		if err := rows.Scan(&e.ID, &e.Role, &e.Text, &e.Type, &ts); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		e.Timestamp = ts
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
