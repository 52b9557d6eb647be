package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/label"
	"github.com/mailhaven/mailstore/internal/repository"
)

// LabelHandler serves label CRUD.
type LabelHandler struct {
	labels   *label.Service
	validate *validator.Validate
}

// NewLabelHandler creates a label handler.
func NewLabelHandler(labels *label.Service, validate *validator.Validate) *LabelHandler {
	return &LabelHandler{labels: labels, validate: validate}
}

type labelResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Position int       `json:"position"`
}

func toLabelResponse(l *repository.Label) labelResponse {
	return labelResponse{ID: l.ID, Name: l.Name, Color: l.Color, Position: l.Position}
}

// List returns the account's labels in manual order.
func (h *LabelHandler) List(w http.ResponseWriter, r *http.Request) {
	labels, err := h.labels.List(r.Context(), accountFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]labelResponse, len(labels))
	for i := range labels {
		out[i] = toLabelResponse(&labels[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type createLabelRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// Create adds a label.
func (h *LabelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLabelRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	l, err := h.labels.Create(r.Context(), accountFrom(r), req.Name, req.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLabelResponse(l))
}

// Get returns one label.
func (h *LabelHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := labelID(w, r)
	if !ok {
		return
	}
	l, err := h.labels.Get(r.Context(), accountFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelResponse(l))
}

type updateLabelRequest struct {
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
	Position *int    `json:"position" validate:"omitempty,min=0"`
}

// Update changes a label's color and/or position.
func (h *LabelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := labelID(w, r)
	if !ok {
		return
	}
	var req updateLabelRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	l, err := h.labels.Update(r.Context(), accountFrom(r), id, req.Color, req.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabelResponse(l))
}

// Delete removes the label and strips it from every message.
func (h *LabelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := labelID(w, r)
	if !ok {
		return
	}
	if err := h.labels.Delete(r.Context(), accountFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func labelID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "labelID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid label id"})
		return uuid.Nil, false
	}
	return id, true
}
