package grading

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrSubmissionAlreadyGraded = errors.New("submission already graded")
)

// SubmissionStore keeps one submission per (activity, student).
type SubmissionStore interface {
	Get(ctx context.Context, activityID, studentID string) (*Submission, error)
	// Submit inserts or replaces a pending submission and reports whether it
	// was the first one for the pair.
	Submit(ctx context.Context, sub Submission) (stored *Submission, first bool, err error)
	// MarkGraded writes the grade and returns the updated submission together
	// with the status it had before the write.
	MarkGraded(ctx context.Context, activityID, studentID string, rec GradeRecord) (updated *Submission, previous Status, err error)
}

type ActivityCounterStore interface {
	RecordSubmitted(ctx context.Context, activityID string) error
	// RecordGraded moves one submission from pending to graded. Pending
	// never drops below zero.
	RecordGraded(ctx context.Context, activityID string) error
	Counters(ctx context.Context, activityID string) (ActivityCounters, error)
}

type MemorySubmissionStore struct {
	mu    sync.Mutex
	items map[string]Submission
	now   func() time.Time
}

func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{items: make(map[string]Submission), now: time.Now}
}

func (m *MemorySubmissionStore) Get(ctx context.Context, activityID, studentID string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.items[submissionKey(activityID, studentID)]
	if !ok {
		return nil, nil
	}
	return cloneSubmission(sub), nil
}

func (m *MemorySubmissionStore) Submit(ctx context.Context, sub Submission) (*Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := submissionKey(sub.ActivityID, sub.StudentID)
	existing, ok := m.items[key]
	if ok && existing.Status == StatusGraded {
		return nil, false, ErrSubmissionAlreadyGraded
	}
	sub.Status = StatusAwaitingReview
	sub.SubmittedAt = m.now().UTC()
	m.items[key] = *cloneSubmission(sub)
	return cloneSubmission(sub), !ok, nil
}

func (m *MemorySubmissionStore) MarkGraded(ctx context.Context, activityID, studentID string, rec GradeRecord) (*Submission, Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := submissionKey(activityID, studentID)
	sub, ok := m.items[key]
	if !ok {
		return nil, "", ErrSubmissionNotFound
	}
	previous := sub.Status
	rec.apply(&sub)
	m.items[key] = *cloneSubmission(sub)
	return cloneSubmission(sub), previous, nil
}

// cloneSubmission copies sub including its maps and pointers.
func cloneSubmission(sub Submission) *Submission {
	out := sub
	if sub.Content.Answers != nil {
		out.Content.Answers = make(map[string]string, len(sub.Content.Answers))
		for k, v := range sub.Content.Answers {
			out.Content.Answers[k] = v
		}
	}
	if sub.Scores != nil {
		out.Scores = make(map[string]float64, len(sub.Scores))
		for k, v := range sub.Scores {
			out.Scores[k] = v
		}
	}
	if sub.Grade != nil {
		g := *sub.Grade
		out.Grade = &g
	}
	if sub.GradedAt != nil {
		at := *sub.GradedAt
		out.GradedAt = &at
	}
	return &out
}

type MemoryCounterStore struct {
	mu    sync.Mutex
	items map[string]ActivityCounters
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{items: make(map[string]ActivityCounters)}
}

func (m *MemoryCounterStore) RecordSubmitted(ctx context.Context, activityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.items[activityID]
	c.ActivityID = activityID
	c.Pending++
	c.Submitted++
	m.items[activityID] = c
	return nil
}

func (m *MemoryCounterStore) RecordGraded(ctx context.Context, activityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.items[activityID]
	c.ActivityID = activityID
	if c.Pending > 0 {
		c.Pending--
	}
	c.Graded++
	m.items[activityID] = c
	return nil
}

func (m *MemoryCounterStore) Counters(ctx context.Context, activityID string) (ActivityCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.items[activityID]
	c.ActivityID = activityID
	return c, nil
}
