package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	telemetry "scalesync/internal/telemetry/domain"
)

var selectColumns = strings.Join(insertColumns, ", ")

// FindRange returns records ordered by time ascending.
func (s *Store) FindRange(ctx context.Context, q telemetry.RangeQuery) ([]telemetry.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := s.table(q.Resolution)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if len(q.EntityIDs) > 0 {
		args = append(args, pq.StringArray(q.EntityIDs))
		where = append(where, fmt.Sprintf("entity_id = ANY($%d)", len(args)))
	}
	if q.Start != nil {
		args = append(args, q.Start.UTC())
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if q.End != nil {
		args = append(args, q.End.UTC())
		where = append(where, fmt.Sprintf("ts < $%d", len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s", selectColumns, table)
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, "\n\tAND "))
	}
	b.WriteString("\nORDER BY ts ASC, entity_id ASC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}

	return s.queryRecords(ctx, q.Resolution, b.String(), args...)
}

// FindExistingTimes returns which candidate times are already stored for entityID.
func (s *Store) FindExistingTimes(ctx context.Context, res telemetry.Resolution, entityID string, candidates []time.Time) (telemetry.TimeSet, error) {
	table, err := s.table(res)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return telemetry.TimeSet{}, nil
	}

	wanted := telemetry.NewTimeSet(candidates...)
	lo, hi := candidates[0], candidates[0]
	for _, t := range candidates[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT ts
FROM %s
WHERE entity_id = $1
	AND ts >= $2
	AND ts <= $3`, table), entityID, lo.UTC(), hi.UTC())
	if err != nil {
		return nil, storeErr("existing times", err)
	}
	defer rows.Close()

	existing := make(telemetry.TimeSet)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, storeErr("existing times", err)
		}
		if wanted.Has(ts) {
			existing.Add(ts)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("existing times", err)
	}
	return existing, nil
}

// LatestTime returns the newest stored time for entityID.
func (s *Store) LatestTime(ctx context.Context, res telemetry.Resolution, entityID string) (time.Time, bool, error) {
	table, err := s.table(res)
	if err != nil {
		return time.Time{}, false, err
	}

	var latest sql.NullTime
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT MAX(ts)
FROM %s
WHERE entity_id = $1`, table), entityID).Scan(&latest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, storeErr("latest time", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// LatestPerEntity returns the newest record of each entity, sorted by entity id.
func (s *Store) LatestPerEntity(ctx context.Context, res telemetry.Resolution, entityIDs []string) ([]telemetry.Record, error) {
	table, err := s.table(res)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT DISTINCT ON (entity_id) %s\nFROM %s", selectColumns, table)
	var args []any
	if len(entityIDs) > 0 {
		args = append(args, pq.StringArray(entityIDs))
		query += "\nWHERE entity_id = ANY($1)"
	}
	query += "\nORDER BY entity_id ASC, ts DESC"

	records, err := s.queryRecords(ctx, res, query, args...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].EntityID < records[j].EntityID })
	return records, nil
}

// LatestN returns the n newest records of entityID, oldest first.
func (s *Store) LatestN(ctx context.Context, res telemetry.Resolution, entityID string, n int) ([]telemetry.Record, error) {
	table, err := s.table(res)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("telemetry store: %w: n must be positive", telemetry.ErrValidation)
	}

	records, err := s.queryRecords(ctx, res, fmt.Sprintf(`SELECT %s
FROM %s
WHERE entity_id = $1
ORDER BY ts DESC
LIMIT $2`, selectColumns, table), entityID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Count returns the number of rows in the resolution partition.
func (s *Store) Count(ctx context.Context, res telemetry.Resolution) (int64, error) {
	table, err := s.table(res)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

func (s *Store) queryRecords(ctx context.Context, res telemetry.Resolution, query string, args ...any) ([]telemetry.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	var result []telemetry.Record
	for rows.Next() {
		record, err := scanRecord(rows, res)
		if err != nil {
			return nil, storeErr("scan", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return result, nil
}

func scanRecord(rows *sql.Rows, res telemetry.Resolution) (telemetry.Record, error) {
	fields := telemetry.Fields()
	values := make([]sql.NullFloat64, len(fields))
	var (
		record telemetry.Record
		extra  []byte
	)
	dest := make([]any, 0, len(insertColumns))
	dest = append(dest, &record.EntityID, &record.Time)
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &extra)
	if err := rows.Scan(dest...); err != nil {
		return telemetry.Record{}, err
	}

	record.Resolution = res
	record.Time = record.Time.UTC()
	record.Values = make(map[telemetry.Field]float64, len(fields))
	for i, f := range fields {
		if values[i].Valid {
			record.Values[f] = values[i].Float64
		}
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &record.Extra); err != nil {
			return telemetry.Record{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	return record, nil
}
