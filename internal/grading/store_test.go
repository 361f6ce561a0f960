package grading

import (
	"context"
	"testing"
	"time"
)

func TestMemorySubmissionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySubmissionStore()

	answers := map[string]string{"q1": "a"}
	if _, _, err := m.Submit(ctx, Submission{ActivityID: "act1", StudentID: "stu1", Content: Structured(answers)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	answers["q1"] = "changed by caller"

	scores := map[string]float64{"q1": 2}
	graded, _, err := m.MarkGraded(ctx, "act1", "stu1", GradeRecord{Grade: 8, Scores: scores, GradedAt: time.Now()})
	if err != nil {
		t.Fatalf("mark graded: %v", err)
	}
	scores["q1"] = 99
	graded.Scores["q1"] = 50
	*graded.Grade = 1

	got, err := m.Get(ctx, "act1", "stu1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Content.Answers["q2"] = "injected"

	again, _ := m.Get(ctx, "act1", "stu1")
	if again.Content.Answers["q1"] != "a" || len(again.Content.Answers) != 1 {
		t.Fatalf("stored answers mutated: %v", again.Content.Answers)
	}
	if again.Scores["q1"] != 2 {
		t.Fatalf("stored scores mutated: %v", again.Scores)
	}
	if again.Grade == nil || *again.Grade != 8 {
		t.Fatalf("stored grade mutated: %v", again.Grade)
	}
}
