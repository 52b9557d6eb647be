package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/ingest"
	"github.com/mailhaven/mailstore/internal/repository"
)

// IngestHandler serves the internal delivery endpoint called by the MTA
// edge after it has parsed and spam-scored an inbound message. It sits on
// the internal router, not behind the account middleware: the edge speaks
// for any recipient.
type IngestHandler struct {
	pipeline *ingest.Pipeline
	validate *validator.Validate
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(pipeline *ingest.Pipeline, validate *validator.Validate) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, validate: validate}
}

type deliverRequest struct {
	Recipient  string               `json:"recipient" validate:"required,email"`
	MessageID  string               `json:"message_id"`
	InReplyTo  *string              `json:"in_reply_to,omitempty"`
	References []string             `json:"references,omitempty"`
	From       []repository.Address `json:"from" validate:"required,min=1,dive"`
	To         []repository.Address `json:"to" validate:"omitempty,dive"`
	Cc         []repository.Address `json:"cc" validate:"omitempty,dive"`
	Subject    *string              `json:"subject,omitempty"`
	BodyText   *string              `json:"body_text,omitempty"`
	BodyHTML   *string              `json:"body_html,omitempty"`
	Headers    map[string]string    `json:"headers,omitempty"`
	SpamScore  float64              `json:"spam_score"`
	Encrypted  bool                 `json:"encrypted"`
	Date       *time.Time           `json:"date,omitempty"`
	Files      []composeAttachment  `json:"attachments" validate:"omitempty,dive"`
}

type deliverResponse struct {
	MessageID uuid.UUID `json:"id"`
	MailboxID uuid.UUID `json:"mailbox_id"`
	Mailbox   string    `json:"mailbox"`
}

// Deliver accepts one inbound message for one recipient.
func (h *IngestHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}

	in := ingest.InboundMessage{
		MessageID:  req.MessageID,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		From:       req.From,
		To:         req.To,
		Cc:         req.Cc,
		Subject:    req.Subject,
		BodyText:   req.BodyText,
		BodyHTML:   req.BodyHTML,
		Headers:    req.Headers,
		SpamScore:  req.SpamScore,
		Encrypted:  req.Encrypted,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	for _, f := range req.Files {
		in.Files = append(in.Files, blob.File{
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Data:        f.Data,
			ContentID:   f.ContentID,
			Inline:      f.Inline,
		})
	}

	m, box, err := h.pipeline.Deliver(r.Context(), req.Recipient, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, deliverResponse{
		MessageID: m.ID,
		MailboxID: box.ID,
		Mailbox:   box.Path,
	})
}
