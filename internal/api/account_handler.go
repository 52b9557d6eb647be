package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/account"
)

// AccountHandler serves the internal account purge endpoint, called by the
// account system when an account closes.
type AccountHandler struct {
	purger *account.Purger
}

// NewAccountHandler creates an account handler.
func NewAccountHandler(purger *account.Purger) *AccountHandler {
	return &AccountHandler{purger: purger}
}

// Purge deletes all stored data of an account.
func (h *AccountHandler) Purge(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id"})
		return
	}
	result, err := h.purger.Purge(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
