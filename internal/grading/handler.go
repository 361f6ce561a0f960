package grading

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gradebook/internal/app/apiresp"
	"gradebook/internal/summary"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	svc      gradingService
	validate *validator.Validate
}

type gradingService interface {
	SubmitSubmission(ctx context.Context, in SubmitInput) (*Submission, error)
	GradeSubmission(ctx context.Context, in GradeSubmissionInput) (*GradeResult, error)
	GetSubmission(ctx context.Context, activityID, studentID string) (*Submission, error)
	ActivityCounters(ctx context.Context, activityID string) (ActivityCounters, error)
}

type submitRequest struct {
	StudentID string            `json:"student_id" validate:"required"`
	ClassID   string            `json:"class_id"`
	Kind      ContentKind       `json:"kind" validate:"required,oneof=plain_text structured"`
	Text      string            `json:"text" validate:"required_if=Kind plain_text"`
	Answers   map[string]string `json:"answers" validate:"required_if=Kind structured"`
}

type activityRequest struct {
	ClassID   string  `json:"class_id"`
	ClassName string  `json:"class_name"`
	Title     string  `json:"title"`
	MaxPoints float64 `json:"max_points" validate:"gte=0"`
	Unit      string  `json:"unit"`
	Subject   string  `json:"subject"`
}

type gradeRequest struct {
	Grade    *float64           `json:"grade" validate:"required"`
	Feedback string             `json:"feedback" validate:"max=4000"`
	Scores   map[string]float64 `json:"scores"`
	Activity activityRequest    `json:"activity"`
}

func NewHandler(svc gradingService) *Handler {
	return &Handler{svc: svc, validate: apiresp.NewValidator()}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}

	content := PlainText(req.Text)
	if req.Kind == ContentStructured {
		content = Structured(req.Answers)
	}
	sub, err := h.svc.SubmitSubmission(r.Context(), SubmitInput{
		ActivityID: chi.URLParam(r, "activityID"),
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		Content:    content,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, sub)
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}

	res, err := h.svc.GradeSubmission(r.Context(), GradeSubmissionInput{
		ActivityID: chi.URLParam(r, "activityID"),
		StudentID:  chi.URLParam(r, "studentID"),
		Grade:      *req.Grade,
		Feedback:   req.Feedback,
		Scores:     req.Scores,
		Activity: ActivityInfo{
			ClassID:   req.Activity.ClassID,
			ClassName: req.Activity.ClassName,
			Title:     req.Activity.Title,
			MaxPoints: req.Activity.MaxPoints,
			Unit:      req.Activity.Unit,
			Subject:   req.Activity.Subject,
		},
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.GetSubmission(r.Context(), chi.URLParam(r, "activityID"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, sub)
}

func (h *Handler) Counters(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.ActivityCounters(r.Context(), chi.URLParam(r, "activityID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, c)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrIDsRequired), errors.Is(err, ErrInvalidGrade), errors.Is(err, ErrInvalidContent):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSubmissionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSubmissionAlreadyGraded), errors.Is(err, summary.ErrConflict):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		log.Printf("grading request failed path=%s: %v", r.URL.Path, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
