package grading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"gradebook/internal/notify"
	"gradebook/internal/summary"
)

var (
	ErrIDsRequired  = errors.New("activity_id and student_id are required")
	ErrInvalidGrade = errors.New("grade must be a finite number")
)

type summaryRecorder interface {
	RecordGrade(ctx context.Context, classID, studentID string, in summary.GradeInput, fallbackClassName string) (*summary.GradeSummary, error)
}

type gradedNotifier interface {
	Dispatch(ev notify.GradedEvent)
}

type Service struct {
	submissions SubmissionStore
	counters    ActivityCounterStore
	summaries   summaryRecorder
	notifier    gradedNotifier
	now         func() time.Time
}

// ActivityInfo describes the graded activity as the grader submits it.
type ActivityInfo struct {
	ClassID   string
	ClassName string
	Title     string
	MaxPoints float64
	Unit      string
	Subject   string
}

type GradeSubmissionInput struct {
	ActivityID string
	StudentID  string
	Grade      float64
	Feedback   string
	Scores     map[string]float64
	Activity   ActivityInfo
}

type GradeResult struct {
	Submission     Submission `json:"submission"`
	Regraded       bool       `json:"regraded"`
	SummaryUpdated bool       `json:"summary_updated"`
}

type SubmitInput struct {
	ActivityID string
	StudentID  string
	ClassID    string
	Content    SubmissionContent
}

func NewService(submissions SubmissionStore, counters ActivityCounterStore, summaries summaryRecorder, notifier gradedNotifier) *Service {
	return &Service{
		submissions: submissions,
		counters:    counters,
		summaries:   summaries,
		notifier:    notifier,
		now:         time.Now,
	}
}

// SubmitSubmission stores a student's submission as awaiting review. The
// first submission for a pair counts toward the activity's pending total.
func (s *Service) SubmitSubmission(ctx context.Context, in SubmitInput) (*Submission, error) {
	in.ActivityID = strings.TrimSpace(in.ActivityID)
	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.ActivityID == "" || in.StudentID == "" {
		return nil, ErrIDsRequired
	}
	if err := in.Content.Validate(); err != nil {
		return nil, err
	}

	stored, first, err := s.submissions.Submit(ctx, Submission{
		ActivityID: in.ActivityID,
		StudentID:  in.StudentID,
		ClassID:    strings.TrimSpace(in.ClassID),
		Content:    in.Content,
	})
	if err != nil {
		return nil, err
	}

	if first {
		if err := s.counters.RecordSubmitted(ctx, in.ActivityID); err != nil {
			log.Printf("activity counter update failed activity_id=%s student_id=%s: %v", in.ActivityID, in.StudentID, err)
		}
	}
	return stored, nil
}

// GradeSubmission persists the grade on the submission and then updates the
// denormalized views. Only the submission write can fail the call: counter,
// summary and notification failures are logged and left to diverge.
func (s *Service) GradeSubmission(ctx context.Context, in GradeSubmissionInput) (*GradeResult, error) {
	in.ActivityID = strings.TrimSpace(in.ActivityID)
	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.ActivityID == "" || in.StudentID == "" {
		return nil, ErrIDsRequired
	}
	if math.IsNaN(in.Grade) || math.IsInf(in.Grade, 0) {
		return nil, ErrInvalidGrade
	}

	gradedAt := s.now().UTC()
	sub, previous, err := s.submissions.MarkGraded(ctx, in.ActivityID, in.StudentID, GradeRecord{
		Grade:    in.Grade,
		Feedback: in.Feedback,
		Scores:   in.Scores,
		GradedAt: gradedAt,
	})
	if err != nil {
		return nil, err
	}

	res := &GradeResult{Submission: *sub, Regraded: previous == StatusGraded}

	if !res.Regraded {
		if err := s.counters.RecordGraded(ctx, in.ActivityID); err != nil {
			log.Printf("pending counter decrement failed activity_id=%s student_id=%s: %v", in.ActivityID, in.StudentID, err)
		}
	}

	classID := strings.TrimSpace(in.Activity.ClassID)
	if classID == "" {
		classID = sub.ClassID
	}
	if classID == "" {
		log.Printf("grade summary skipped activity_id=%s student_id=%s: no class id", in.ActivityID, in.StudentID)
	} else if _, err := s.summaries.RecordGrade(ctx, classID, in.StudentID, summary.GradeInput{
		ActivityID: in.ActivityID,
		Title:      in.Activity.Title,
		Grade:      in.Grade,
		MaxPoints:  in.Activity.MaxPoints,
		Unit:       in.Activity.Unit,
		Subject:    in.Activity.Subject,
	}, in.Activity.ClassName); err != nil {
		log.Printf("grade summary update failed class_id=%s student_id=%s activity_id=%s: %v", classID, in.StudentID, in.ActivityID, err)
	} else {
		res.SummaryUpdated = true
	}

	if s.notifier != nil {
		s.notifier.Dispatch(notify.GradedEvent{
			ActivityID:    in.ActivityID,
			ActivityTitle: in.Activity.Title,
			ClassID:       classID,
			StudentID:     in.StudentID,
			Grade:         in.Grade,
			MaxPoints:     in.Activity.MaxPoints,
			Feedback:      in.Feedback,
			GradedAt:      gradedAt,
		})
	}

	return res, nil
}

func (s *Service) GetSubmission(ctx context.Context, activityID, studentID string) (*Submission, error) {
	activityID = strings.TrimSpace(activityID)
	studentID = strings.TrimSpace(studentID)
	if activityID == "" || studentID == "" {
		return nil, ErrIDsRequired
	}
	sub, err := s.submissions.Get(ctx, activityID, studentID)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *Service) ActivityCounters(ctx context.Context, activityID string) (ActivityCounters, error) {
	activityID = strings.TrimSpace(activityID)
	if activityID == "" {
		return ActivityCounters{}, ErrIDsRequired
	}
	return s.counters.Counters(ctx, activityID)
}
