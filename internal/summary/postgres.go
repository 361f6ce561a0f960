package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps one grade_summaries row per key with the unit buckets
// in a JSONB column. Rows with version 0 are create placeholders that only
// exist inside an open transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*GradeSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT class_id, student_id, class_name, units, version, updated_at
		FROM grade_summaries
		WHERE key = $1 AND version > 0
	`, key)
	out, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query grade summary: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin summary tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO grade_summaries (key, units, version, updated_at)
		VALUES ($1, '{}'::jsonb, 0, now())
		ON CONFLICT (key) DO NOTHING
	`, key); err != nil {
		return nil, fmt.Errorf("reserve grade summary: %w", err)
	}

	cur, err := s.loadForUpdate(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	var version int64
	var input *GradeSummary
	if cur.Version > 0 {
		version = cur.Version
		input = cur
	}

	next, err := mutate(input)
	if err != nil {
		return nil, err
	}

	units, err := json.Marshal(next.Units)
	if err != nil {
		return nil, fmt.Errorf("encode summary units: %w", err)
	}

	var updatedAt time.Time
	if err := tx.QueryRowContext(ctx, `
		UPDATE grade_summaries
		SET class_id = $2,
			student_id = $3,
			class_name = $4,
			units = $5::jsonb,
			version = $6,
			updated_at = now()
		WHERE key = $1
		RETURNING updated_at
	`, key, next.ClassID, next.StudentID, next.ClassName, units, version+1).Scan(&updatedAt); err != nil {
		return nil, fmt.Errorf("write grade summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit summary tx: %w", err)
	}

	next.Version = version + 1
	next.UpdatedAt = updatedAt.UTC()
	return next, nil
}

func (s *PostgresStore) loadForUpdate(ctx context.Context, tx *sql.Tx, key string) (*GradeSummary, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT class_id, student_id, class_name, units, version, updated_at
		FROM grade_summaries
		WHERE key = $1
		FOR UPDATE
	`, key)
	out, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("lock grade summary: %w", err)
	}
	return out, nil
}

func scanSummary(row *sql.Row) (*GradeSummary, error) {
	var (
		out   GradeSummary
		units []byte
	)
	if err := row.Scan(&out.ClassID, &out.StudentID, &out.ClassName, &units, &out.Version, &out.UpdatedAt); err != nil {
		return nil, err
	}
	if len(units) > 0 {
		if err := json.Unmarshal(units, &out.Units); err != nil {
			return nil, fmt.Errorf("decode summary units: %w", err)
		}
	}
	if out.Units == nil {
		out.Units = map[string]UnitBucket{}
	}
	out.UpdatedAt = out.UpdatedAt.UTC()
	return &out, nil
}
