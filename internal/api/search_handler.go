package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/repository"
	"github.com/mailhaven/mailstore/internal/search"
)

// SearchHandler serves message search.
type SearchHandler struct {
	search *search.Service
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(s *search.Service) *SearchHandler {
	return &SearchHandler{search: s}
}

// Search runs a free-text and structured-filter query.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.SearchParams{
		Query:  q.Get("q"),
		Label:  q.Get("label"),
		From:   q.Get("from"),
		Limit:  intQuery(q.Get("limit"), 20),
		Offset: intQuery(q.Get("offset"), 0),
	}
	if raw := q.Get("mailbox_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mailbox id"})
			return
		}
		params.MailboxID = &id
	}
	if raw := q.Get("seen"); raw != "" {
		seen := raw == "true"
		params.Seen = &seen
	}
	if raw := q.Get("starred"); raw != "" {
		starred := raw == "true"
		params.Starred = &starred
	}
	if raw := q.Get("has_attachments"); raw != "" {
		has := raw == "true"
		params.HasAttachments = &has
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid since timestamp"})
			return
		}
		params.Since = &t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid until timestamp"})
			return
		}
		params.Until = &t
	}

	summaries, total, err := h.search.Search(r.Context(), accountFrom(r), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Messages: toSummaryResponses(summaries),
		Total:    total,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
}
