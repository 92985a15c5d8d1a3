package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the segment_journal table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS segment_journal (
    id              BIGSERIAL PRIMARY KEY,
    seq             BIGINT NOT NULL,
    part            INTEGER NOT NULL DEFAULT 1,
    parts           INTEGER NOT NULL DEFAULT 1,
    samples         INTEGER NOT NULL,
    lookback_frames INTEGER NOT NULL DEFAULT 0,
    start_us        BIGINT NOT NULL,
    duration_us     BIGINT NOT NULL,
    truncated       BOOLEAN NOT NULL DEFAULT false,
    reason          TEXT NOT NULL DEFAULT 'silence',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_segment_journal_created ON segment_journal(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on db. The caller runs
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPool parses dsn, opens a pgx connection pool and verifies it with a
// ping.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	return pool, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, r Record) (Record, error) {
	const query = `
		INSERT INTO segment_journal (
			seq, part, parts, samples, lookback_frames,
			start_us, duration_us, truncated, reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		int64(r.Seq), r.Part, r.Parts, r.Samples, r.LookbackFrames,
		r.Start.Microseconds(), r.Duration.Microseconds(), r.Truncated, r.Reason,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("journal: append: %w", err)
	}
	return r, nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	const query = `
		SELECT id, seq, part, parts, samples, lookback_frames,
		       start_us, duration_us, truncated, reason, created_at
		FROM segment_journal
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                   Record
			seq, startUS, durUS int64
		)
		if err := rows.Scan(
			&r.ID, &seq, &r.Part, &r.Parts, &r.Samples, &r.LookbackFrames,
			&startUS, &durUS, &r.Truncated, &r.Reason, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Seq = uint64(seq)
		r.Start = time.Duration(startUS) * time.Microsecond
		r.Duration = time.Duration(durUS) * time.Microsecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}
