package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	telemetry "scalesync/internal/telemetry/domain"
)

const (
	defaultHourlyTable = "telemetry_hourly"
	defaultDailyTable  = "telemetry_daily"
)

// DBTX is the subset of *sql.DB the store needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Store is a Postgres implementation of telemetry.Store with one table per resolution.
type Store struct {
	db     DBTX
	tables map[telemetry.Resolution]string
}

var _ telemetry.Store = (*Store)(nil)

// NewStore constructs a store with default table names.
func NewStore(db DBTX, opts ...Option) *Store {
	store := &Store{
		db: db,
		tables: map[telemetry.Resolution]string{
			telemetry.ResolutionHourly: defaultHourlyTable,
			telemetry.ResolutionDaily:  defaultDailyTable,
		},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Option configures the store.
type Option func(*Store)

// WithTables overrides the default table names.
func WithTables(hourly, daily string) Option {
	return func(store *Store) {
		if hourly != "" {
			store.tables[telemetry.ResolutionHourly] = hourly
		}
		if daily != "" {
			store.tables[telemetry.ResolutionDaily] = daily
		}
	}
}

func (s *Store) table(res telemetry.Resolution) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("telemetry store: nil db")
	}
	table, ok := s.tables[res]
	if !ok {
		return "", fmt.Errorf("telemetry store: %w: %q", telemetry.ErrUnknownResolution, res)
	}
	return table, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("telemetry store: %s: %w: %w", op, telemetry.ErrStore, err)
}

// DeleteAll removes every record of entityID in the resolution partition.
func (s *Store) DeleteAll(ctx context.Context, res telemetry.Resolution, entityID string) (int64, error) {
	table, err := s.table(res)
	if err != nil {
		return 0, err
	}
	if entityID == "" {
		return 0, errors.New("telemetry store: empty entity id")
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, table), entityID)
	if err != nil {
		return 0, storeErr("delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return affected, nil
}

// InsertMany appends records in one transaction. It never updates existing rows.
func (s *Store) InsertMany(ctx context.Context, res telemetry.Resolution, records []telemetry.Record) (int, error) {
	table, err := s.table(res)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	%s
)`, table, strings.Join(insertColumns, ",\n\t"), placeholders(len(insertColumns)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin", err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return 0, storeErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.EntityID == "" || r.Time.IsZero() {
			_ = tx.Rollback()
			return 0, errors.New("telemetry store: invalid record")
		}
		args, err := insertArgs(r)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return 0, storeErr("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit", err)
	}
	return len(records), nil
}

var insertColumns = func() []string {
	cols := []string{"entity_id", "ts"}
	for _, f := range telemetry.Fields() {
		cols = append(cols, string(f))
	}
	return append(cols, "extra")
}()

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func insertArgs(r telemetry.Record) ([]any, error) {
	args := make([]any, 0, len(insertColumns))
	args = append(args, r.EntityID, r.Time.UTC())
	for _, f := range telemetry.Fields() {
		value := sql.NullFloat64{}
		if v, ok := r.Values[f]; ok {
			value = sql.NullFloat64{Float64: v, Valid: true}
		}
		args = append(args, value)
	}
	if len(r.Extra) == 0 {
		return append(args, nil), nil
	}
	extra, err := json.Marshal(r.Extra)
	if err != nil {
		return nil, fmt.Errorf("telemetry store: encode extra: %w", err)
	}
	return append(args, extra), nil
}
