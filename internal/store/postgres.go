// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// maxRowsPerInsert keeps one INSERT under the driver's parameter limit.
const maxRowsPerInsert = 500

// PostgresStore persists readings into one table keyed by (device, system_time).
// Re-inserting a known reading is a no-op.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return NewPostgresStore(db, table), nil
}

// NewPostgresStore wraps an open handle. table must be a plain identifier.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, tableName: table}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the readings table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	q := "CREATE TABLE IF NOT EXISTS " + s.tableName + ` (
	device        TEXT        NOT NULL,
	system_time   BIGINT      NOT NULL,
	display_time  BIGINT      NOT NULL,
	glucose       INTEGER     NOT NULL,
	trend         SMALLINT    NOT NULL,
	downloaded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (device, system_time)
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// NewestRecordTimestamp returns the system time of the newest stored reading
// for device, or an empty cursor when there is none.
func (s *PostgresStore) NewestRecordTimestamp(ctx context.Context, device download.DeviceType) (download.Since, error) {
	q := "SELECT system_time FROM " + s.tableName + " WHERE device = $1 ORDER BY system_time DESC LIMIT 1"

	var ts int64
	err := s.db.QueryRowContext(ctx, q, string(device)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return download.Since{}, nil
	}
	if err != nil {
		return download.Since{}, fmt.Errorf("store: newest record: %w", err)
	}
	return download.SinceTime(uint32(ts)), nil
}

// Persist writes every reading of a successful download.
func (s *PostgresStore) Persist(ctx context.Context, d download.Download) error {
	if d.Status != download.StatusSuccess || d.Payload == nil {
		return nil
	}
	rs := d.Payload.Readings

	for start := 0; start < len(rs); start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > len(rs) {
			end = len(rs)
		}
		if err := s.insertBatch(ctx, d, rs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertBatch(ctx context.Context, d download.Download, rs []download.Reading) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.tableName)
	b.WriteString(" (device, system_time, display_time, glucose, trend, downloaded_at) VALUES ")

	args := make([]any, 0, len(rs)*6)
	for i, r := range rs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6))

		args = append(args,
			string(d.Device),
			int64(r.SystemTime),
			int64(r.DisplayTime),
			int64(r.Glucose),
			int64(r.Trend),
			d.At,
		)
	}

	b.WriteString(" ON CONFLICT (device, system_time) DO NOTHING")

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("store: insert %d readings: %w", len(rs), err)
	}
	return nil
}
