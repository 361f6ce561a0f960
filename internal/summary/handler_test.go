package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockSummaryService struct {
	recordGradeFn func(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error)
	readSummaryFn func(ctx context.Context, classID, studentID string) (*GradeSummary, error)
}

func (m *mockSummaryService) RecordGrade(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error) {
	if m.recordGradeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.recordGradeFn(ctx, classID, studentID, in, fallbackClassName)
}

func (m *mockSummaryService) ReadSummary(ctx context.Context, classID, studentID string) (*GradeSummary, error) {
	if m.readSummaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.readSummaryFn(ctx, classID, studentID)
}

func newSummaryRouter(svc summaryService) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Get("/classes/{classID}/students/{studentID}/summary", h.Get)
	r.Post("/classes/{classID}/students/{studentID}/grades", h.RecordGrade)
	return r
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Fields  []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v body=%s", err, w.Body.String())
	}
	return env
}

func TestHandlerGetSummary(t *testing.T) {
	svc := &mockSummaryService{
		readSummaryFn: func(ctx context.Context, classID, studentID string) (*GradeSummary, error) {
			if classID != "classA" || studentID != "stu1" {
				t.Fatalf("unexpected ids %s/%s", classID, studentID)
			}
			return &GradeSummary{ClassID: classID, StudentID: studentID, ClassName: "7º Ano"}, nil
		},
	}
	w := httptest.NewRecorder()
	newSummaryRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/classA/students/stu1/summary", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var s GradeSummary
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if s.ClassName != "7º Ano" {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestHandlerGetSummaryNotFound(t *testing.T) {
	svc := &mockSummaryService{
		readSummaryFn: func(ctx context.Context, classID, studentID string) (*GradeSummary, error) {
			return nil, nil
		},
	}
	w := httptest.NewRecorder()
	newSummaryRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/classA/students/stu1/summary", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlerRecordGrade(t *testing.T) {
	var got GradeInput
	var gotFallback string
	svc := &mockSummaryService{
		recordGradeFn: func(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error) {
			got = in
			gotFallback = fallbackClassName
			s := &GradeSummary{ClassID: classID, StudentID: studentID, Units: map[string]UnitBucket{}}
			applyGrade(s, in)
			return s, nil
		},
	}
	body := `{"activity_id":"act1","title":"Prova 1","grade":0,"max_points":10,"unit":"1ª Unidade","subject":"História","class_name":"7º Ano"}`
	w := httptest.NewRecorder()
	newSummaryRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/classes/classA/students/stu1/grades", bytes.NewBufferString(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if got.ActivityID != "act1" || got.Grade != 0 || got.MaxPoints != 10 || got.Subject != "História" {
		t.Fatalf("unexpected input %+v", got)
	}
	if gotFallback != "7º Ano" {
		t.Fatalf("expected fallback class name, got %q", gotFallback)
	}
}

func TestHandlerRecordGradeValidation(t *testing.T) {
	svc := &mockSummaryService{}
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing grade", body: `{"activity_id":"act1"}`, wantField: "grade"},
		{name: "missing activity", body: `{"grade":5}`, wantField: "activity_id"},
		{name: "negative max points", body: `{"activity_id":"a","grade":5,"max_points":-1}`, wantField: "max_points"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newSummaryRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/classes/classA/students/stu1/grades", bytes.NewBufferString(tc.body)))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Error == nil || len(env.Error.Fields) != 1 || env.Error.Fields[0].Field != tc.wantField {
				t.Fatalf("unexpected error payload %s", w.Body.String())
			}
		})
	}
}

func TestHandlerRecordGradeServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid grade", err: ErrInvalidGrade, want: http.StatusBadRequest},
		{name: "conflict", err: ErrConflict, want: http.StatusConflict},
		{name: "store down", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockSummaryService{
				recordGradeFn: func(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error) {
					return nil, tc.err
				},
			}
			w := httptest.NewRecorder()
			newSummaryRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/classes/classA/students/stu1/grades", bytes.NewBufferString(`{"activity_id":"a","grade":1}`)))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
