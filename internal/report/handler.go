package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"gradebook/internal/app/apiresp"
	"gradebook/internal/summary"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc exporter
}

type exporter interface {
	ExportSummaryExcel(ctx context.Context, classID, studentID string) ([]byte, error)
}

func NewHandler(svc exporter) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) SummaryExcel(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	studentID := chi.URLParam(r, "studentID")

	data, err := h.svc.ExportSummaryExcel(r.Context(), classID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, summary.ErrSummaryKeyRequired):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrSummaryNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			log.Printf("summary export failed class_id=%s student_id=%s: %v", classID, studentID, err)
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "boletim_"+classID+"_"+studentID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
