package summary

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

type stubDirectory struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls int
}

func (d *stubDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.names[classID], nil
}

type failingStore struct {
	getErr    error
	updateErr error
}

func (f failingStore) Get(ctx context.Context, key string) (*GradeSummary, error) {
	return nil, f.getErr
}

func (f failingStore) Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error) {
	return nil, f.updateErr
}

func newTestEngine(dir ClassDirectory) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	e := NewEngine(store, dir)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return e, store
}

func historia(id, title string, grade float64) GradeInput {
	return GradeInput{ActivityID: id, Title: title, Grade: grade, MaxPoints: 10, Unit: "1ª Unidade", Subject: "História"}
}

func mustRecord(t *testing.T, e *Engine, classID, studentID string, in GradeInput) *GradeSummary {
	t.Helper()
	s, err := e.RecordGrade(context.Background(), classID, studentID, in, "")
	if err != nil {
		t.Fatalf("record grade %s: %v", in.ActivityID, err)
	}
	return s
}

func assertBucketConsistent(t *testing.T, b SubjectBucket) {
	t.Helper()
	if got := sumGrades(b.Activities); got != b.TotalPoints {
		t.Fatalf("totalPoints=%v, sum of grades=%v", b.TotalPoints, got)
	}
}

func TestRecordGradeTwoActivitiesScenario(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova 1", 8))
	s := mustRecord(t, e, "classA", "stu1", historia("act2", "Prova 2", 6))

	b, ok := s.Bucket("1ª Unidade", "História")
	if !ok {
		t.Fatalf("bucket missing: %+v", s.Units)
	}
	if b.TotalPoints != 14 {
		t.Fatalf("expected totalPoints 14, got %v", b.TotalPoints)
	}
	if len(b.Activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(b.Activities))
	}
	if b.Activities[0].ID != "act1" || b.Activities[1].ID != "act2" {
		t.Fatalf("expected insertion order act1, act2, got %+v", b.Activities)
	}
	if b.Activities[1].Materia != "História" || b.Activities[1].MaxPoints != 10 {
		t.Fatalf("unexpected entry: %+v", b.Activities[1])
	}
}

func TestRecordGradeIdempotentRegrade(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova 1", 8))
	s := mustRecord(t, e, "classA", "stu1", historia("act1", "Prova 1", 8))

	b, _ := s.Bucket("1ª Unidade", "História")
	if len(b.Activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(b.Activities))
	}
	if b.TotalPoints != 8 {
		t.Fatalf("expected totalPoints 8, got %v", b.TotalPoints)
	}
}

func TestRecordGradeRegradeDelta(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", historia("act0", "Trabalho", 5))
	before := mustRecord(t, e, "classA", "stu1", historia("act1", "Prova 1", 7))
	after := mustRecord(t, e, "classA", "stu1", GradeInput{
		ActivityID: "act1",
		Title:      "Renamed",
		Grade:      9,
		MaxPoints:  20,
		Unit:       "1ª Unidade",
		Subject:    "História",
	})

	b0, _ := before.Bucket("1ª Unidade", "História")
	b1, _ := after.Bucket("1ª Unidade", "História")
	if delta := b1.TotalPoints - b0.TotalPoints; delta != 2 {
		t.Fatalf("expected delta +2, got %v", delta)
	}
	entry := b1.Activities[1]
	if entry.Grade != 9 || entry.Title != "Prova 1" || entry.MaxPoints != 10 {
		t.Fatalf("regrade should only replace grade, got %+v", entry)
	}
}

func TestRecordGradeAdditivity(t *testing.T) {
	e, _ := newTestEngine(nil)
	grades := []float64{3.5, 0, 10, -1, 12, 7.25}
	var s *GradeSummary
	want := 0.0
	for i, g := range grades {
		s = mustRecord(t, e, "classA", "stu1", historia(fmt.Sprintf("act%d", i), "Atividade", g))
		want += g
	}
	b, _ := s.Bucket("1ª Unidade", "História")
	if len(b.Activities) != len(grades) {
		t.Fatalf("expected %d activities, got %d", len(grades), len(b.Activities))
	}
	if b.TotalPoints != want {
		t.Fatalf("expected %v, got %v", want, b.TotalPoints)
	}
	assertBucketConsistent(t, b)
}

func TestRecordGradeBucketIsolation(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", GradeInput{ActivityID: "m1", Grade: 4, Unit: "1ª Unidade", Subject: "Matemática"})
	mustRecord(t, e, "classA", "stu1", GradeInput{ActivityID: "h2", Grade: 6, Unit: "2ª Unidade", Subject: "História"})
	before, _ := e.ReadSummary(context.Background(), "classA", "stu1")

	after := mustRecord(t, e, "classA", "stu1", historia("h1", "Prova", 9))

	for _, tc := range []struct{ unit, subject string }{
		{"1ª Unidade", "Matemática"},
		{"2ª Unidade", "História"},
	} {
		b0, _ := before.Bucket(tc.unit, tc.subject)
		b1, ok := after.Bucket(tc.unit, tc.subject)
		if !ok {
			t.Fatalf("bucket %s/%s disappeared", tc.unit, tc.subject)
		}
		if b0.TotalPoints != b1.TotalPoints || len(b0.Activities) != len(b1.Activities) {
			t.Fatalf("bucket %s/%s changed: before=%+v after=%+v", tc.unit, tc.subject, b0, b1)
		}
	}
	if b, _ := after.Bucket("1ª Unidade", "História"); b.TotalPoints != 9 {
		t.Fatalf("expected new bucket total 9, got %v", b.TotalPoints)
	}
}

func TestRecordGradeLazyCreation(t *testing.T) {
	e, store := newTestEngine(nil)
	if s, _ := e.ReadSummary(context.Background(), "classB", "stu9"); s != nil {
		t.Fatalf("expected no summary before first grade")
	}

	s := mustRecord(t, e, "classB", "stu9", historia("act1", "Prova 1", 7.5))
	if len(s.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(s.Units))
	}
	u := s.Units["1ª Unidade"]
	if len(u.Subjects) != 1 {
		t.Fatalf("expected 1 subject, got %d", len(u.Subjects))
	}
	b := u.Subjects["História"]
	if len(b.Activities) != 1 || b.TotalPoints != 7.5 {
		t.Fatalf("unexpected bucket %+v", b)
	}
	if s.ClassID != "classB" || s.StudentID != "stu9" {
		t.Fatalf("unexpected ids %s/%s", s.ClassID, s.StudentID)
	}
	if !s.UpdatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected updatedAt %v", s.UpdatedAt)
	}

	stored, _ := store.Get(context.Background(), "classB_stu9")
	if stored == nil || stored.Version != 1 {
		t.Fatalf("expected stored version 1 under key classB_stu9, got %+v", stored)
	}
}

func TestRecordGradeDefaultLabels(t *testing.T) {
	e, _ := newTestEngine(nil)
	s := mustRecord(t, e, "classA", "stu1", GradeInput{ActivityID: "act1", Grade: 3, Unit: "  ", Subject: ""})
	b, ok := s.Bucket(DefaultUnit, DefaultSubject)
	if !ok || b.TotalPoints != 3 {
		t.Fatalf("expected default bucket with 3 points, got %+v", s.Units)
	}
	if b.Activities[0].Materia != DefaultSubject {
		t.Fatalf("expected materia %q, got %q", DefaultSubject, b.Activities[0].Materia)
	}
}

func TestRecordGradeClassNameResolution(t *testing.T) {
	tests := []struct {
		name      string
		fallback  string
		dir       *stubDirectory
		want      string
		wantCalls int
	}{
		{name: "fallback wins over directory", fallback: "7º Ano B", dir: &stubDirectory{names: map[string]string{"classA": "Directory Name"}}, want: "7º Ano B", wantCalls: 0},
		{name: "placeholder fallback ignored", fallback: PlaceholderClassName, dir: &stubDirectory{names: map[string]string{"classA": "8º Ano A"}}, want: "8º Ano A", wantCalls: 1},
		{name: "directory used without fallback", dir: &stubDirectory{names: map[string]string{"classA": "8º Ano A"}}, want: "8º Ano A", wantCalls: 1},
		{name: "directory error gives placeholder", dir: &stubDirectory{err: errors.New("unreachable")}, want: PlaceholderClassName, wantCalls: 1},
		{name: "directory miss gives placeholder", dir: &stubDirectory{names: map[string]string{}}, want: PlaceholderClassName, wantCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(tc.dir)
			s, err := e.RecordGrade(context.Background(), "classA", "stu1", historia("act1", "Prova", 5), tc.fallback)
			if err != nil {
				t.Fatalf("record grade: %v", err)
			}
			if s.ClassName != tc.want {
				t.Fatalf("expected class name %q, got %q", tc.want, s.ClassName)
			}
			if tc.dir.calls != tc.wantCalls {
				t.Fatalf("expected %d directory calls, got %d", tc.wantCalls, tc.dir.calls)
			}
		})
	}
}

func TestRecordGradeKeepsExistingClassName(t *testing.T) {
	dir := &stubDirectory{names: map[string]string{"classA": "9º Ano"}}
	e, _ := newTestEngine(dir)
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova", 5))

	s, err := e.RecordGrade(context.Background(), "classA", "stu1", historia("act2", "Prova 2", 5), "Outro Nome")
	if err != nil {
		t.Fatalf("record grade: %v", err)
	}
	if s.ClassName != "9º Ano" {
		t.Fatalf("expected existing name kept, got %q", s.ClassName)
	}
	if dir.calls != 1 {
		t.Fatalf("expected directory consulted once, got %d", dir.calls)
	}
}

func TestRecordGradeBackfillsPlaceholderName(t *testing.T) {
	e, _ := newTestEngine(&stubDirectory{err: errors.New("down")})
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova", 5))

	s, err := e.RecordGrade(context.Background(), "classA", "stu1", historia("act2", "Prova 2", 5), "6º Ano C")
	if err != nil {
		t.Fatalf("record grade: %v", err)
	}
	if s.ClassName != "6º Ano C" {
		t.Fatalf("expected placeholder backfilled, got %q", s.ClassName)
	}
}

func TestRecordGradeValidation(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()

	if _, err := e.RecordGrade(ctx, "", "stu1", historia("a", "t", 1), ""); !errors.Is(err, ErrSummaryKeyRequired) {
		t.Fatalf("expected ErrSummaryKeyRequired, got %v", err)
	}
	if _, err := e.RecordGrade(ctx, "classA", " ", historia("a", "t", 1), ""); !errors.Is(err, ErrSummaryKeyRequired) {
		t.Fatalf("expected ErrSummaryKeyRequired, got %v", err)
	}
	if _, err := e.RecordGrade(ctx, "classA", "stu1", historia("", "t", 1), ""); !errors.Is(err, ErrActivityIDRequired) {
		t.Fatalf("expected ErrActivityIDRequired, got %v", err)
	}
	if _, err := e.RecordGrade(ctx, "classA", "stu1", historia("a", "t", math.NaN()), ""); !errors.Is(err, ErrInvalidGrade) {
		t.Fatalf("expected ErrInvalidGrade, got %v", err)
	}
	if _, err := e.RecordGrade(ctx, "classA", "stu1", historia("a", "t", math.Inf(1)), ""); !errors.Is(err, ErrInvalidGrade) {
		t.Fatalf("expected ErrInvalidGrade, got %v", err)
	}
	if _, err := e.ReadSummary(ctx, "classA", ""); !errors.Is(err, ErrSummaryKeyRequired) {
		t.Fatalf("expected ErrSummaryKeyRequired, got %v", err)
	}
}

func TestRecordGradeAcceptsOutOfRangeGrades(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova", 15))
	s := mustRecord(t, e, "classA", "stu1", historia("act2", "Prova", -2))
	b, _ := s.Bucket("1ª Unidade", "História")
	if b.TotalPoints != 13 {
		t.Fatalf("expected 13, got %v", b.TotalPoints)
	}
}

func TestRecordGradePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("store unreachable")

	e := NewEngine(failingStore{getErr: boom}, nil)
	if _, err := e.RecordGrade(context.Background(), "c", "s", historia("a", "t", 1), ""); !errors.Is(err, boom) {
		t.Fatalf("expected get error, got %v", err)
	}

	e = NewEngine(failingStore{updateErr: boom}, nil)
	if _, err := e.RecordGrade(context.Background(), "c", "s", historia("a", "t", 1), ""); !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}

	e = NewEngine(failingStore{getErr: boom}, nil)
	if _, err := e.ReadSummary(context.Background(), "c", "s"); !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRecordGradeConcurrentWritersSameDocument(t *testing.T) {
	e, _ := newTestEngine(nil)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.RecordGrade(context.Background(), "classA", "stu1", historia(fmt.Sprintf("act%d", i), "Atividade", 1), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record grade: %v", err)
		}
	}

	s, _ := e.ReadSummary(context.Background(), "classA", "stu1")
	b, _ := s.Bucket("1ª Unidade", "História")
	if len(b.Activities) != n || b.TotalPoints != n {
		t.Fatalf("expected %d activities totalling %d, got %d totalling %v", n, n, len(b.Activities), b.TotalPoints)
	}
}

func TestReadSummaryReturnsCopy(t *testing.T) {
	e, _ := newTestEngine(nil)
	mustRecord(t, e, "classA", "stu1", historia("act1", "Prova", 5))

	s, _ := e.ReadSummary(context.Background(), "classA", "stu1")
	b := s.Units["1ª Unidade"].Subjects["História"]
	b.Activities[0].Grade = 100

	again, _ := e.ReadSummary(context.Background(), "classA", "stu1")
	if g := again.Units["1ª Unidade"].Subjects["História"].Activities[0].Grade; g != 5 {
		t.Fatalf("stored summary mutated through read copy: grade=%v", g)
	}
}
