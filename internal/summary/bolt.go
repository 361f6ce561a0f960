package summary

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var summaryBucket = []byte("GradeSummaries")

// BoltStore keeps summaries as JSON in a single bucket. bbolt runs one
// writable transaction at a time, so Update is serialized across keys.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(summaryBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("create summary bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) (*GradeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *GradeSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = decodeBoltSummary(tx.Bucket(summaryBucket).Get([]byte(key)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var next *GradeSummary
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(summaryBucket)
		cur, err := decodeBoltSummary(b.Get([]byte(key)))
		if err != nil {
			return err
		}
		var version int64
		if cur != nil {
			version = cur.Version
		}

		next, err = mutate(cur)
		if err != nil {
			return err
		}
		next.Version = version + 1

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode grade summary: %w", err)
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func decodeBoltSummary(v []byte) (*GradeSummary, error) {
	if v == nil {
		return nil, nil
	}
	var s GradeSummary
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("decode grade summary: %w", err)
	}
	if s.Units == nil {
		s.Units = map[string]UnitBucket{}
	}
	return &s, nil
}
