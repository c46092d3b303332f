package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "scalesync/internal/masterdata/domain"
)

const defaultScalesTable = "scales"

// DBTX is the subset of *sql.DB the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ScaleRepository is a Postgres implementation for the scale catalog.
type ScaleRepository struct {
	db    DBTX
	table string
}

var _ masterdata.ScaleRepository = (*ScaleRepository)(nil)

// NewScaleRepository constructs a repository.
func NewScaleRepository(db DBTX, opts ...ScaleOption) *ScaleRepository {
	repo := &ScaleRepository{db: db, table: defaultScalesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ScaleOption configures the repository.
type ScaleOption func(*ScaleRepository)

// WithScaleTable overrides the default table name.
func WithScaleTable(table string) ScaleOption {
	return func(repo *ScaleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const scaleColumns = `id, serial_number, hardware_key, name, latitude, longitude, last_transmission, created_at, updated_at`

// ReplaceAll deletes the catalog and inserts scales in one transaction.
func (r *ScaleRepository) ReplaceAll(ctx context.Context, scales []masterdata.Scale) error {
	if r == nil || r.db == nil {
		return errors.New("scale repo: nil db")
	}
	for _, s := range scales {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, r.table)); err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id,
	serial_number,
	hardware_key,
	name,
	latitude,
	longitude,
	last_transmission
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, r.table))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range scales {
		if _, err := stmt.ExecContext(
			ctx,
			s.ID,
			s.SerialNumber,
			s.HardwareKey,
			s.Name,
			nullFloat(s.Latitude),
			nullFloat(s.Longitude),
			s.LastTransmission,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// List returns the catalog ordered by id.
func (r *ScaleRepository) List(ctx context.Context) ([]masterdata.Scale, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("scale repo: nil db")
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY id ASC`, scaleColumns, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Scale
	for rows.Next() {
		scale, err := scanScale(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, scale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get loads a scale by id.
func (r *ScaleRepository) Get(ctx context.Context, id string) (*masterdata.Scale, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("scale repo: nil db")
	}
	if id == "" {
		return nil, errors.New("scale repo: empty id")
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, scaleColumns, r.table), id)
	scale, err := scanScale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, masterdata.ErrScaleNotFound
		}
		return nil, err
	}
	return &scale, nil
}

// Rename sets the display name of a scale.
func (r *ScaleRepository) Rename(ctx context.Context, id, name string) (*masterdata.Scale, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("scale repo: nil db")
	}
	if id == "" {
		return nil, errors.New("scale repo: empty id")
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
UPDATE %s
SET name = $2, updated_at = NOW()
WHERE id = $1
RETURNING %s`, r.table, scaleColumns), id, name)
	scale, err := scanScale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, masterdata.ErrScaleNotFound
		}
		return nil, err
	}
	return &scale, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScale(row scanner) (masterdata.Scale, error) {
	var (
		scale     masterdata.Scale
		lat, lon  sql.NullFloat64
		lastTrans sql.NullTime
	)
	if err := row.Scan(
		&scale.ID,
		&scale.SerialNumber,
		&scale.HardwareKey,
		&scale.Name,
		&lat,
		&lon,
		&lastTrans,
		&scale.CreatedAt,
		&scale.UpdatedAt,
	); err != nil {
		return masterdata.Scale{}, err
	}
	if lat.Valid {
		scale.Latitude = &lat.Float64
	}
	if lon.Valid {
		scale.Longitude = &lon.Float64
	}
	if lastTrans.Valid {
		ts := lastTrans.Time.UTC()
		scale.LastTransmission = &ts
	}
	scale.CreatedAt = scale.CreatedAt.UTC()
	scale.UpdatedAt = scale.UpdatedAt.UTC()
	return scale, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
