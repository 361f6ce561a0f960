package classes

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gradebook/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	dir      Directory
	validate *validator.Validate
}

type classResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type setClassNameRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type importResponse struct {
	Filename string        `json:"filename"`
	Report   *ImportReport `json:"report"`
}

func NewHandler(dir Directory) *Handler {
	return &Handler{dir: dir, validate: apiresp.NewValidator()}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	name, err := h.dir.ClassName(r.Context(), classID)
	if err != nil {
		if errors.Is(err, ErrClassNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("class lookup failed class_id=%s: %v", classID, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, classResponse{ID: classID, Name: name})
}

func (h *Handler) SetName(w http.ResponseWriter, r *http.Request) {
	var req setClassNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}

	classID := chi.URLParam(r, "classID")
	if err := h.dir.SetClassName(r.Context(), classID, req.Name); err != nil {
		if errors.Is(err, ErrClassNameRequired) {
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("class rename failed class_id=%s: %v", classID, err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, classResponse{ID: classID, Name: req.Name})
}

func (h *Handler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	report, err := ImportExcel(r.Context(), h.dir, file)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, importResponse{Filename: hdr.Filename, Report: report})
}
