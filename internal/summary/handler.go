package summary

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gradebook/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	svc      summaryService
	validate *validator.Validate
}

type summaryService interface {
	RecordGrade(ctx context.Context, classID, studentID string, in GradeInput, fallbackClassName string) (*GradeSummary, error)
	ReadSummary(ctx context.Context, classID, studentID string) (*GradeSummary, error)
}

type recordGradeRequest struct {
	ActivityID string   `json:"activity_id" validate:"required"`
	Title      string   `json:"title"`
	Grade      *float64 `json:"grade" validate:"required"`
	MaxPoints  float64  `json:"max_points" validate:"gte=0"`
	Unit       string   `json:"unit"`
	Subject    string   `json:"subject"`
	ClassName  string   `json:"class_name"`
}

func NewHandler(svc summaryService) *Handler {
	return &Handler{svc: svc, validate: apiresp.NewValidator()}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	studentID := chi.URLParam(r, "studentID")

	s, err := h.svc.ReadSummary(r.Context(), classID, studentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if s == nil {
		apiresp.WriteError(w, r, http.StatusNotFound, "grade summary not found")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, s)
}

func (h *Handler) RecordGrade(w http.ResponseWriter, r *http.Request) {
	var req recordGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}

	s, err := h.svc.RecordGrade(r.Context(), chi.URLParam(r, "classID"), chi.URLParam(r, "studentID"), GradeInput{
		ActivityID: req.ActivityID,
		Title:      req.Title,
		Grade:      *req.Grade,
		MaxPoints:  req.MaxPoints,
		Unit:       req.Unit,
		Subject:    req.Subject,
	}, req.ClassName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, s)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSummaryKeyRequired), errors.Is(err, ErrActivityIDRequired), errors.Is(err, ErrInvalidGrade):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		log.Printf("grade summary request failed path=%s: %v", r.URL.Path, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
