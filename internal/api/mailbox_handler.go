package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailbox"
	"github.com/mailhaven/mailstore/internal/repository"
)

// MailboxHandler serves mailbox CRUD.
type MailboxHandler struct {
	mailboxes *mailbox.Service
	validate  *validator.Validate
}

// NewMailboxHandler creates a mailbox handler.
func NewMailboxHandler(mailboxes *mailbox.Service, validate *validator.Validate) *MailboxHandler {
	return &MailboxHandler{mailboxes: mailboxes, validate: validate}
}

type mailboxResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	SpecialUse     *string   `json:"special_use,omitempty"`
	TotalMessages  int64     `json:"total_messages"`
	UnseenMessages int64     `json:"unseen_messages"`
	SizeBytes      int64     `json:"size_bytes"`
	RetentionDays  *int      `json:"retention_days,omitempty"`
}

func toMailboxResponse(m *repository.Mailbox) mailboxResponse {
	return mailboxResponse{
		ID:             m.ID,
		Name:           m.Name,
		Path:           m.Path,
		SpecialUse:     m.SpecialUse,
		TotalMessages:  m.TotalMessages,
		UnseenMessages: m.UnseenMessages,
		SizeBytes:      m.SizeBytes,
		RetentionDays:  m.RetentionDays,
	}
}

// List returns the account's mailboxes, provisioning the default set on
// first touch.
func (h *MailboxHandler) List(w http.ResponseWriter, r *http.Request) {
	mailboxes, err := h.mailboxes.List(r.Context(), accountFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]mailboxResponse, len(mailboxes))
	for i := range mailboxes {
		out[i] = toMailboxResponse(&mailboxes[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type createMailboxRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=255"`
	ParentPath string `json:"parent_path" validate:"omitempty,max=255"`
}

// Create adds a user folder, optionally nested under an existing one.
func (h *MailboxHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMailboxRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	m, err := h.mailboxes.Create(r.Context(), accountFrom(r), req.Name, req.ParentPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMailboxResponse(m))
}

// Get returns one mailbox.
func (h *MailboxHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "mailboxID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mailbox id"})
		return
	}
	m, err := h.mailboxes.Get(r.Context(), accountFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMailboxResponse(m))
}

// Delete removes a user folder and its contents.
func (h *MailboxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "mailboxID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mailbox id"})
		return
	}
	if err := h.mailboxes.Delete(r.Context(), accountFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
