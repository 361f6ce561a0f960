package grading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresSubmissionStore struct {
	db *sql.DB
}

func NewPostgresSubmissionStore(db *sql.DB) *PostgresSubmissionStore {
	return &PostgresSubmissionStore{db: db}
}

func (s *PostgresSubmissionStore) Get(ctx context.Context, activityID, studentID string) (*Submission, error) {
	var (
		sub      Submission
		status   string
		content  []byte
		grade    sql.NullFloat64
		feedback sql.NullString
		scores   []byte
		gradedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT activity_id, student_id, class_id, status, content, grade, feedback, scores, submitted_at, graded_at
		FROM submissions
		WHERE activity_id = $1 AND student_id = $2
	`, activityID, studentID).Scan(
		&sub.ActivityID, &sub.StudentID, &sub.ClassID, &status, &content,
		&grade, &feedback, &scores, &sub.SubmittedAt, &gradedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query submission: %w", err)
	}

	sub.Status = Status(status)
	if err := json.Unmarshal(content, &sub.Content); err != nil {
		return nil, fmt.Errorf("decode submission content: %w", err)
	}
	if grade.Valid {
		g := grade.Float64
		sub.Grade = &g
	}
	sub.Feedback = feedback.String
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &sub.Scores); err != nil {
			return nil, fmt.Errorf("decode submission scores: %w", err)
		}
	}
	if gradedAt.Valid {
		t := gradedAt.Time.UTC()
		sub.GradedAt = &t
	}
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	return &sub, nil
}

func (s *PostgresSubmissionStore) Submit(ctx context.Context, sub Submission) (*Submission, bool, error) {
	content, err := json.Marshal(sub.Content)
	if err != nil {
		return nil, false, fmt.Errorf("encode submission content: %w", err)
	}

	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO submissions (
			activity_id,
			student_id,
			class_id,
			status,
			content,
			submitted_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, now())
		ON CONFLICT (activity_id, student_id)
		DO UPDATE SET
			class_id = EXCLUDED.class_id,
			content = EXCLUDED.content,
			submitted_at = now()
		WHERE submissions.status = $4
		RETURNING (xmax = 0), submitted_at
	`, sub.ActivityID, sub.StudentID, sub.ClassID, string(StatusAwaitingReview), content).Scan(&inserted, &sub.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrSubmissionAlreadyGraded
		}
		return nil, false, fmt.Errorf("upsert submission: %w", err)
	}

	sub.Status = StatusAwaitingReview
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	return &sub, inserted, nil
}

func (s *PostgresSubmissionStore) MarkGraded(ctx context.Context, activityID, studentID string, rec GradeRecord) (*Submission, Status, error) {
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return nil, "", fmt.Errorf("encode submission scores: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin grade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	if err := tx.QueryRowContext(ctx, `
		SELECT status
		FROM submissions
		WHERE activity_id = $1 AND student_id = $2
		FOR UPDATE
	`, activityID, studentID).Scan(&previous); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrSubmissionNotFound
		}
		return nil, "", fmt.Errorf("lock submission: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET status = $3,
			grade = $4,
			feedback = $5,
			scores = $6::jsonb,
			graded_at = $7
		WHERE activity_id = $1 AND student_id = $2
	`, activityID, studentID, string(StatusGraded), rec.Grade, rec.Feedback, scores, rec.GradedAt); err != nil {
		return nil, "", fmt.Errorf("grade submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit grade tx: %w", err)
	}

	updated, err := s.Get(ctx, activityID, studentID)
	if err != nil {
		return nil, "", err
	}
	if updated == nil {
		return nil, "", ErrSubmissionNotFound
	}
	return updated, Status(previous), nil
}

type PostgresCounterStore struct {
	db *sql.DB
}

func NewPostgresCounterStore(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

func (s *PostgresCounterStore) RecordSubmitted(ctx context.Context, activityID string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_counters (activity_id, pending_count, submitted_count, graded_count, updated_at)
		VALUES ($1, 1, 1, 0, now())
		ON CONFLICT (activity_id)
		DO UPDATE SET
			pending_count = activity_counters.pending_count + 1,
			submitted_count = activity_counters.submitted_count + 1,
			updated_at = now()
	`, activityID); err != nil {
		return fmt.Errorf("increment activity counters: %w", err)
	}
	return nil
}

func (s *PostgresCounterStore) RecordGraded(ctx context.Context, activityID string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_counters (activity_id, pending_count, submitted_count, graded_count, updated_at)
		VALUES ($1, 0, 0, 1, now())
		ON CONFLICT (activity_id)
		DO UPDATE SET
			pending_count = GREATEST(activity_counters.pending_count - 1, 0),
			graded_count = activity_counters.graded_count + 1,
			updated_at = now()
	`, activityID); err != nil {
		return fmt.Errorf("decrement pending counter: %w", err)
	}
	return nil
}

func (s *PostgresCounterStore) Counters(ctx context.Context, activityID string) (ActivityCounters, error) {
	out := ActivityCounters{ActivityID: activityID}
	err := s.db.QueryRowContext(ctx, `
		SELECT pending_count, submitted_count, graded_count
		FROM activity_counters
		WHERE activity_id = $1
	`, activityID).Scan(&out.Pending, &out.Submitted, &out.Graded)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ActivityCounters{}, fmt.Errorf("query activity counters: %w", err)
	}
	return out, nil
}
