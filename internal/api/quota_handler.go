package api

import (
	"errors"
	"net/http"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/quota"
)

// QuotaHandler serves quota introspection.
type QuotaHandler struct {
	ledger *quota.Ledger
}

// NewQuotaHandler creates a quota handler.
func NewQuotaHandler(ledger *quota.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

type quotaResponse struct {
	Usage     *quota.Usage `json:"usage"`
	Tier      quota.Tier   `json:"tier"`
	SentToday int          `json:"sent_today"`
}

// Get returns storage usage, the resolved tier and today's send count.
func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	usage, err := h.ledger.Usage(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tier, err := h.ledger.Tier(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sent, err := h.ledger.DailySendCount(r.Context(), accountID)
	if err != nil {
		// Accounts that have never been touched have no Sent mailbox yet.
		if !errors.Is(err, mailerr.ErrConfiguration) {
			writeError(w, r, err)
			return
		}
		sent = 0
	}
	writeJSON(w, http.StatusOK, quotaResponse{Usage: usage, Tier: tier, SentToday: sent})
}
