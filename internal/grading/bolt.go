package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	submissionBucket = []byte("Submissions")
	counterBucket    = []byte("ActivityCounters")
)

func createBucket(db *bbolt.DB, name []byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

type BoltSubmissionStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltSubmissionStore(db *bbolt.DB) (*BoltSubmissionStore, error) {
	if err := createBucket(db, submissionBucket); err != nil {
		return nil, fmt.Errorf("create submission bucket: %w", err)
	}
	return &BoltSubmissionStore{db: db, now: time.Now}, nil
}

func (s *BoltSubmissionStore) Get(ctx context.Context, activityID, studentID string) (*Submission, error) {
	var out *Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = decodeSubmission(tx.Bucket(submissionBucket).Get([]byte(submissionKey(activityID, studentID))))
		return err
	})
	return out, err
}

func (s *BoltSubmissionStore) Submit(ctx context.Context, sub Submission) (*Submission, bool, error) {
	var first bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(submissionBucket)
		key := []byte(submissionKey(sub.ActivityID, sub.StudentID))
		existing, err := decodeSubmission(b.Get(key))
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == StatusGraded {
			return ErrSubmissionAlreadyGraded
		}
		first = existing == nil

		sub.Status = StatusAwaitingReview
		sub.SubmittedAt = s.now().UTC()
		sub.Grade = nil
		sub.GradedAt = nil
		return putJSON(b, key, sub)
	})
	if err != nil {
		return nil, false, err
	}
	return &sub, first, nil
}

func (s *BoltSubmissionStore) MarkGraded(ctx context.Context, activityID, studentID string, rec GradeRecord) (*Submission, Status, error) {
	var (
		updated  *Submission
		previous Status
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(submissionBucket)
		key := []byte(submissionKey(activityID, studentID))
		sub, err := decodeSubmission(b.Get(key))
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubmissionNotFound
		}
		previous = sub.Status
		rec.apply(sub)
		updated = sub
		return putJSON(b, key, sub)
	})
	if err != nil {
		return nil, "", err
	}
	return updated, previous, nil
}

func decodeSubmission(v []byte) (*Submission, error) {
	if v == nil {
		return nil, nil
	}
	var sub Submission
	if err := json.Unmarshal(v, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}

type BoltCounterStore struct {
	db *bbolt.DB
}

func NewBoltCounterStore(db *bbolt.DB) (*BoltCounterStore, error) {
	if err := createBucket(db, counterBucket); err != nil {
		return nil, fmt.Errorf("create counter bucket: %w", err)
	}
	return &BoltCounterStore{db: db}, nil
}

func (s *BoltCounterStore) RecordSubmitted(ctx context.Context, activityID string) error {
	return s.update(activityID, func(c *ActivityCounters) {
		c.Pending++
		c.Submitted++
	})
}

func (s *BoltCounterStore) RecordGraded(ctx context.Context, activityID string) error {
	return s.update(activityID, func(c *ActivityCounters) {
		if c.Pending > 0 {
			c.Pending--
		}
		c.Graded++
	})
}

func (s *BoltCounterStore) Counters(ctx context.Context, activityID string) (ActivityCounters, error) {
	out := ActivityCounters{ActivityID: activityID}
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(counterBucket).Get([]byte(activityID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return ActivityCounters{}, fmt.Errorf("read activity counters: %w", err)
	}
	return out, nil
}

func (s *BoltCounterStore) update(activityID string, fn func(c *ActivityCounters)) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(counterBucket)
		c := ActivityCounters{ActivityID: activityID}
		if v := b.Get([]byte(activityID)); v != nil {
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
		}
		fn(&c)
		return putJSON(b, []byte(activityID), c)
	})
	if err != nil {
		return fmt.Errorf("update activity counters: %w", err)
	}
	return nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
