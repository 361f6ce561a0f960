package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

var ErrRecipientNotFound = errors.New("recipient not found")

// GradedEvent tells a student that one of their submissions was graded.
type GradedEvent struct {
	ID            string    `json:"id"`
	ActivityID    string    `json:"activity_id"`
	ActivityTitle string    `json:"activity_title"`
	ClassID       string    `json:"class_id"`
	StudentID     string    `json:"student_id"`
	Grade         float64   `json:"grade"`
	MaxPoints     float64   `json:"max_points"`
	Feedback      string    `json:"feedback,omitempty"`
	GradedAt      time.Time `json:"graded_at"`
}

type Sink interface {
	NotifyGraded(ctx context.Context, ev GradedEvent) error
}

type RecipientResolver interface {
	StudentEmail(ctx context.Context, studentID string) (string, error)
}

// LogSink writes events to the process log. It is the default when no mail
// transport is configured.
type LogSink struct{}

func (LogSink) NotifyGraded(ctx context.Context, ev GradedEvent) error {
	log.Printf("graded notification id=%s student_id=%s activity_id=%s grade=%s",
		ev.ID, ev.StudentID, ev.ActivityID, formatPoints(ev.Grade, ev.MaxPoints))
	return nil
}

func gradedSubject(ev GradedEvent) string {
	title := strings.TrimSpace(ev.ActivityTitle)
	if title == "" {
		title = ev.ActivityID
	}
	return "Atividade corrigida: " + title
}

func gradedBody(ev GradedEvent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sua atividade \"%s\" foi corrigida.\n", strings.TrimSpace(ev.ActivityTitle)))
	sb.WriteString("Nota: " + formatPoints(ev.Grade, ev.MaxPoints) + "\n")
	if fb := strings.TrimSpace(ev.Feedback); fb != "" {
		sb.WriteString("\nComentário do professor:\n" + fb + "\n")
	}
	return sb.String()
}

func formatPoints(grade, maxPoints float64) string {
	if maxPoints > 0 {
		return fmt.Sprintf("%g/%g", grade, maxPoints)
	}
	return fmt.Sprintf("%g", grade)
}
