package grading

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusAwaitingReview Status = "Aguardando correção"
	StatusGraded         Status = "Corrigido"
)

type ContentKind string

const (
	ContentPlainText  ContentKind = "plain_text"
	ContentStructured ContentKind = "structured"
)

var ErrInvalidContent = errors.New("submission content is invalid")

// SubmissionContent is either free text or answers keyed by question id.
// The kind is fixed when the submission is written.
type SubmissionContent struct {
	Kind    ContentKind       `json:"kind" bson:"kind"`
	Text    string            `json:"text,omitempty" bson:"text,omitempty"`
	Answers map[string]string `json:"answers,omitempty" bson:"answers,omitempty"`
}

func PlainText(text string) SubmissionContent {
	return SubmissionContent{Kind: ContentPlainText, Text: text}
}

func Structured(answers map[string]string) SubmissionContent {
	return SubmissionContent{Kind: ContentStructured, Answers: answers}
}

func (c SubmissionContent) Validate() error {
	switch c.Kind {
	case ContentPlainText:
		if strings.TrimSpace(c.Text) == "" || len(c.Answers) > 0 {
			return ErrInvalidContent
		}
	case ContentStructured:
		if len(c.Answers) == 0 || c.Text != "" {
			return ErrInvalidContent
		}
		for q := range c.Answers {
			if strings.TrimSpace(q) == "" {
				return ErrInvalidContent
			}
		}
	default:
		return ErrInvalidContent
	}
	return nil
}

type Submission struct {
	ActivityID  string             `json:"activity_id" bson:"activityId"`
	StudentID   string             `json:"student_id" bson:"studentId"`
	ClassID     string             `json:"class_id" bson:"classId"`
	Status      Status             `json:"status" bson:"status"`
	Content     SubmissionContent  `json:"content" bson:"content"`
	Grade       *float64           `json:"grade,omitempty" bson:"grade,omitempty"`
	Feedback    string             `json:"feedback,omitempty" bson:"feedback,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty" bson:"scores,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at" bson:"submittedAt"`
	GradedAt    *time.Time         `json:"graded_at,omitempty" bson:"gradedAt,omitempty"`
}

// GradeRecord is the grading write applied to a submission.
type GradeRecord struct {
	Grade    float64
	Feedback string
	Scores   map[string]float64
	GradedAt time.Time
}

func (r GradeRecord) apply(sub *Submission) {
	g := r.Grade
	at := r.GradedAt
	sub.Status = StatusGraded
	sub.Grade = &g
	sub.Feedback = r.Feedback
	sub.Scores = r.Scores
	sub.GradedAt = &at
}

type ActivityCounters struct {
	ActivityID string `json:"activity_id"`
	Pending    int64  `json:"pending"`
	Submitted  int64  `json:"submitted"`
	Graded     int64  `json:"graded"`
}

func submissionKey(activityID, studentID string) string {
	return activityID + "_" + studentID
}
