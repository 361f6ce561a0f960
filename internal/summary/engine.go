package summary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
)

const (
	DefaultUnit          = "1ª Unidade"
	DefaultSubject       = "Geral"
	PlaceholderClassName = "Turma"
)

var (
	ErrSummaryKeyRequired = errors.New("class_id and student_id are required")
	ErrActivityIDRequired = errors.New("activity_id is required")
	ErrInvalidGrade       = errors.New("grade must be a finite number")
	ErrConflict           = errors.New("grade summary modified concurrently")
)

// MutateFunc receives the stored summary (nil when absent) and returns the
// document to persist. It may be called more than once by optimistic stores.
type MutateFunc func(current *GradeSummary) (*GradeSummary, error)

// Store persists grade summaries. Update must apply mutate as a single
// read-modify-write per key.
type Store interface {
	Get(ctx context.Context, key string) (*GradeSummary, error)
	Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error)
}

type ClassDirectory interface {
	ClassName(ctx context.Context, classID string) (string, error)
}

type Engine struct {
	store   Store
	classes ClassDirectory
	now     func() time.Time
}

func NewEngine(store Store, classes ClassDirectory) *Engine {
	return &Engine{store: store, classes: classes, now: time.Now}
}

// RecordGrade upserts one activity grade into the unit/subject bucket of the
// class/student summary and recomputes the bucket total.
func (e *Engine) RecordGrade(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error) {
	classID = strings.TrimSpace(classID)
	studentID = strings.TrimSpace(studentID)
	if classID == "" || studentID == "" {
		return nil, ErrSummaryKeyRequired
	}
	if strings.TrimSpace(in.ActivityID) == "" {
		return nil, ErrActivityIDRequired
	}
	if math.IsNaN(in.Grade) || math.IsInf(in.Grade, 0) {
		return nil, ErrInvalidGrade
	}

	key := Key(classID, studentID)
	existing, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load grade summary: %w", err)
	}

	candidate := ""
	if existing == nil || !meaningfulClassName(existing.ClassName) {
		candidate = e.resolveClassName(ctx, classID, fallbackClassName)
	}

	updated, err := e.store.Update(ctx, key, func(cur *GradeSummary) (*GradeSummary, error) {
		s := cur
		if s == nil {
			s = &GradeSummary{
				ClassID:   classID,
				StudentID: studentID,
				Units:     map[string]UnitBucket{},
			}
		}
		if !meaningfulClassName(s.ClassName) {
			s.ClassName = candidate
			if !meaningfulClassName(s.ClassName) {
				s.ClassName = PlaceholderClassName
			}
		}
		applyGrade(s, in)
		s.UpdatedAt = e.now().UTC()
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update grade summary: %w", err)
	}
	return updated, nil
}

// ReadSummary returns nil without error when no summary exists.
func (e *Engine) ReadSummary(ctx context.Context, classID, studentID string) (*GradeSummary, error) {
	classID = strings.TrimSpace(classID)
	studentID = strings.TrimSpace(studentID)
	if classID == "" || studentID == "" {
		return nil, ErrSummaryKeyRequired
	}
	s, err := e.store.Get(ctx, Key(classID, studentID))
	if err != nil {
		return nil, fmt.Errorf("read grade summary: %w", err)
	}
	return s, nil
}

func (e *Engine) resolveClassName(ctx context.Context, classID, fallback string) string {
	if meaningfulClassName(fallback) {
		return strings.TrimSpace(fallback)
	}
	if e.classes == nil {
		return PlaceholderClassName
	}
	name, err := e.classes.ClassName(ctx, classID)
	if err != nil {
		log.Printf("class name lookup failed class_id=%s: %v", classID, err)
		return PlaceholderClassName
	}
	if !meaningfulClassName(name) {
		return PlaceholderClassName
	}
	return strings.TrimSpace(name)
}

func meaningfulClassName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.EqualFold(name, PlaceholderClassName)
}

// applyGrade folds in into s. A known activity id keeps its title and
// maxPoints and only takes the new grade.
func applyGrade(s *GradeSummary, in GradeInput) {
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = DefaultUnit
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = DefaultSubject
	}

	if s.Units == nil {
		s.Units = map[string]UnitBucket{}
	}
	u := s.Units[unit]
	if u.Subjects == nil {
		u.Subjects = map[string]SubjectBucket{}
	}
	b := u.Subjects[subject]

	found := false
	for i := range b.Activities {
		if b.Activities[i].ID == in.ActivityID {
			b.Activities[i].Grade = in.Grade
			found = true
			break
		}
	}
	if !found {
		b.Activities = append(b.Activities, ActivityGradeEntry{
			ID:        in.ActivityID,
			Title:     in.Title,
			Grade:     in.Grade,
			MaxPoints: in.MaxPoints,
			Materia:   subject,
		})
	}
	b.TotalPoints = sumGrades(b.Activities)

	u.Subjects[subject] = b
	s.Units[unit] = u
}

func sumGrades(acts []ActivityGradeEntry) float64 {
	total := 0.0
	for _, a := range acts {
		total += a.Grade
	}
	return total
}
