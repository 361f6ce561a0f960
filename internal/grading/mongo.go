package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoSubmissionStore struct {
	col *mongo.Collection
	now func() time.Time
}

type mongoSubmission struct {
	Key        string `bson:"_id"`
	Submission `bson:",inline"`
}

func NewMongoSubmissionStore(db *mongo.Database) *MongoSubmissionStore {
	return &MongoSubmissionStore{col: db.Collection("submissions"), now: time.Now}
}

func (s *MongoSubmissionStore) Get(ctx context.Context, activityID, studentID string) (*Submission, error) {
	var doc mongoSubmission
	err := s.col.FindOne(ctx, bson.M{"_id": submissionKey(activityID, studentID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return normalizeSubmission(doc.Submission), nil
}

func (s *MongoSubmissionStore) Submit(ctx context.Context, sub Submission) (*Submission, bool, error) {
	sub.Status = StatusAwaitingReview
	sub.SubmittedAt = s.now().UTC()
	sub.Grade = nil
	sub.GradedAt = nil
	key := submissionKey(sub.ActivityID, sub.StudentID)

	_, err := s.col.InsertOne(ctx, mongoSubmission{Key: key, Submission: sub})
	if err == nil {
		return &sub, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("insert submission: %w", err)
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": key, "status": StatusAwaitingReview},
		bson.M{"$set": bson.M{
			"classId":     sub.ClassID,
			"content":     sub.Content,
			"submittedAt": sub.SubmittedAt,
		}},
	)
	if err != nil {
		return nil, false, fmt.Errorf("update submission: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, false, ErrSubmissionAlreadyGraded
	}
	return &sub, false, nil
}

func (s *MongoSubmissionStore) MarkGraded(ctx context.Context, activityID, studentID string, rec GradeRecord) (*Submission, Status, error) {
	var before mongoSubmission
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": submissionKey(activityID, studentID)},
		bson.M{"$set": bson.M{
			"status":   StatusGraded,
			"grade":    rec.Grade,
			"feedback": rec.Feedback,
			"scores":   rec.Scores,
			"gradedAt": rec.GradedAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, "", ErrSubmissionNotFound
		}
		return nil, "", fmt.Errorf("grade submission: %w", err)
	}

	updated := normalizeSubmission(before.Submission)
	previous := updated.Status
	rec.apply(updated)
	return updated, previous, nil
}

func normalizeSubmission(sub Submission) *Submission {
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	if sub.GradedAt != nil {
		t := sub.GradedAt.UTC()
		sub.GradedAt = &t
	}
	return &sub
}

type MongoCounterStore struct {
	col *mongo.Collection
}

type mongoCounters struct {
	Pending   int64 `bson:"pendingCount"`
	Submitted int64 `bson:"submittedCount"`
	Graded    int64 `bson:"gradedCount"`
}

func NewMongoCounterStore(db *mongo.Database) *MongoCounterStore {
	return &MongoCounterStore{col: db.Collection("activity_counters")}
}

func (s *MongoCounterStore) RecordSubmitted(ctx context.Context, activityID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{"$inc": bson.M{"pendingCount": 1, "submittedCount": 1, "gradedCount": 0}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("increment activity counters: %w", err)
	}
	return nil
}

func (s *MongoCounterStore) RecordGraded(ctx context.Context, activityID string) error {
	pending := bson.D{{Key: "$ifNull", Value: bson.A{"$pendingCount", 0}}}
	graded := bson.D{{Key: "$ifNull", Value: bson.A{"$gradedCount", 0}}}
	submitted := bson.D{{Key: "$ifNull", Value: bson.A{"$submittedCount", 0}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "pendingCount", Value: bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$subtract", Value: bson.A{pending, 1}}}}}}},
			{Key: "gradedCount", Value: bson.D{{Key: "$add", Value: bson.A{graded, 1}}}},
			{Key: "submittedCount", Value: submitted},
		}}},
	}
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": activityID}, pipeline, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("decrement pending counter: %w", err)
	}
	return nil
}

func (s *MongoCounterStore) Counters(ctx context.Context, activityID string) (ActivityCounters, error) {
	out := ActivityCounters{ActivityID: activityID}
	var doc mongoCounters
	err := s.col.FindOne(ctx, bson.M{"_id": activityID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return out, nil
		}
		return ActivityCounters{}, fmt.Errorf("find activity counters: %w", err)
	}
	out.Pending = doc.Pending
	out.Submitted = doc.Submitted
	out.Graded = doc.Graded
	return out, nil
}
