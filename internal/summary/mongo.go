package summary

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = "grade_summaries"

const (
	defaultMongoAttempts = 5
	defaultMongoBackoff  = 10 * time.Millisecond
)

// MongoStore keeps one document per key in grade_summaries. Update is an
// optimistic compare-and-swap on the version field, retried with a jittered
// backoff.
type MongoStore struct {
	col         *mongo.Collection
	maxAttempts int
	backoff     time.Duration

	find func(ctx context.Context, key string) (*GradeSummary, error)
	// insert reports false when another writer created the key first.
	insert func(ctx context.Context, doc mongoSummary) (bool, error)
	// replace reports false when the stored version no longer matches.
	replace func(ctx context.Context, version int64, doc mongoSummary) (bool, error)
}

type mongoSummary struct {
	Key          string `bson:"_id"`
	GradeSummary `bson:",inline"`
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	s := &MongoStore{
		col:         db.Collection(CollectionName),
		maxAttempts: defaultMongoAttempts,
		backoff:     defaultMongoBackoff,
	}
	s.find = s.findOne
	s.insert = s.insertOne
	s.replace = s.replaceVersion
	return s
}

func (s *MongoStore) Get(ctx context.Context, key string) (*GradeSummary, error) {
	return s.find(ctx, key)
}

func (s *MongoStore) Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		cur, err := s.find(ctx, key)
		if err != nil {
			return nil, err
		}

		var version int64
		if cur != nil {
			version = cur.Version
		}

		next, err := mutate(cur)
		if err != nil {
			return nil, err
		}
		next.Version = version + 1
		doc := mongoSummary{Key: key, GradeSummary: *next}

		var ok bool
		if cur == nil {
			ok, err = s.insert(ctx, doc)
		} else {
			ok, err = s.replace(ctx, version, doc)
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, ErrConflict
}

// wait sleeps attempt*backoff plus up to one backoff of jitter.
func (s *MongoStore) wait(ctx context.Context, attempt int) error {
	if s.backoff <= 0 {
		return ctx.Err()
	}
	d := time.Duration(attempt)*s.backoff + time.Duration(rand.Int63n(int64(s.backoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *MongoStore) findOne(ctx context.Context, key string) (*GradeSummary, error) {
	var doc mongoSummary
	err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find grade summary: %w", err)
	}
	out := doc.GradeSummary
	out.UpdatedAt = out.UpdatedAt.UTC()
	if out.Units == nil {
		out.Units = map[string]UnitBucket{}
	}
	return &out, nil
}

func (s *MongoStore) insertOne(ctx context.Context, doc mongoSummary) (bool, error) {
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert grade summary: %w", err)
	}
	return true, nil
}

func (s *MongoStore) replaceVersion(ctx context.Context, version int64, doc mongoSummary) (bool, error) {
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": doc.Key, "version": version}, doc)
	if err != nil {
		return false, fmt.Errorf("replace grade summary: %w", err)
	}
	return res.MatchedCount > 0, nil
}
