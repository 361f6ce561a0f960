package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type PostgresRecipients struct {
	db *sql.DB
}

func NewPostgresRecipients(db *sql.DB) *PostgresRecipients {
	return &PostgresRecipients{db: db}
}

func (p *PostgresRecipients) StudentEmail(ctx context.Context, studentID string) (string, error) {
	var email sql.NullString
	if err := p.db.QueryRowContext(ctx, `
		SELECT email
		FROM students
		WHERE id = $1
	`, studentID).Scan(&email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRecipientNotFound
		}
		return "", fmt.Errorf("query student email: %w", err)
	}
	if strings.TrimSpace(email.String) == "" {
		return "", ErrRecipientNotFound
	}
	return strings.TrimSpace(email.String), nil
}

type MongoRecipients struct {
	col *mongo.Collection
}

func NewMongoRecipients(db *mongo.Database) *MongoRecipients {
	return &MongoRecipients{col: db.Collection("students")}
}

func (m *MongoRecipients) StudentEmail(ctx context.Context, studentID string) (string, error) {
	var doc struct {
		Email string `bson:"email"`
	}
	if err := m.col.FindOne(ctx, bson.M{"_id": studentID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrRecipientNotFound
		}
		return "", fmt.Errorf("find student email: %w", err)
	}
	if strings.TrimSpace(doc.Email) == "" {
		return "", ErrRecipientNotFound
	}
	return strings.TrimSpace(doc.Email), nil
}

type StaticRecipients map[string]string

func (s StaticRecipients) StudentEmail(ctx context.Context, studentID string) (string, error) {
	email, ok := s[studentID]
	if !ok || strings.TrimSpace(email) == "" {
		return "", ErrRecipientNotFound
	}
	return email, nil
}

var studentBucket = []byte("Students")

// BoltRecipients reads student emails from the Students bucket, keyed by
// student id.
type BoltRecipients struct {
	db *bbolt.DB
}

func NewBoltRecipients(db *bbolt.DB) (*BoltRecipients, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(studentBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("create student bucket: %w", err)
	}
	return &BoltRecipients{db: db}, nil
}

func (b *BoltRecipients) StudentEmail(ctx context.Context, studentID string) (string, error) {
	var email string
	if err := b.db.View(func(tx *bbolt.Tx) error {
		email = strings.TrimSpace(string(tx.Bucket(studentBucket).Get([]byte(studentID))))
		return nil
	}); err != nil {
		return "", fmt.Errorf("read student email: %w", err)
	}
	if email == "" {
		return "", ErrRecipientNotFound
	}
	return email, nil
}
