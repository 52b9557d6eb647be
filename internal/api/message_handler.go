package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/message"
	"github.com/mailhaven/mailstore/internal/repository"
	"github.com/mailhaven/mailstore/internal/thread"
)

// MessageHandler serves message lifecycle operations.
type MessageHandler struct {
	messages *message.Service
	threads  *thread.Resolver
	validate *validator.Validate
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(messages *message.Service, threads *thread.Resolver, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{messages: messages, threads: threads, validate: validate}
}

type attachmentResponse struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	ContentID   *string   `json:"content_id,omitempty"`
	Inline      bool      `json:"inline"`
}

type messageResponse struct {
	ID          uuid.UUID            `json:"id"`
	MailboxID   uuid.UUID            `json:"mailbox_id"`
	MessageID   string               `json:"message_id"`
	InReplyTo   *string              `json:"in_reply_to,omitempty"`
	References  []string             `json:"references,omitempty"`
	From        []repository.Address `json:"from"`
	To          []repository.Address `json:"to"`
	Cc          []repository.Address `json:"cc,omitempty"`
	Bcc         []repository.Address `json:"bcc,omitempty"`
	Subject     *string              `json:"subject,omitempty"`
	BodyText    *string              `json:"body_text,omitempty"`
	BodyHTML    *string              `json:"body_html,omitempty"`
	Headers     map[string]string    `json:"headers,omitempty"`
	Flags       repository.Flags     `json:"flags"`
	Labels      []string             `json:"labels,omitempty"`
	Encrypted   bool                 `json:"encrypted"`
	SpamScore   float64              `json:"spam_score"`
	SizeBytes   int64                `json:"size_bytes"`
	AliasTag    *string              `json:"alias_tag,omitempty"`
	MessageDate time.Time            `json:"message_date"`
	ReceivedAt  time.Time            `json:"received_at"`
	Attachments []attachmentResponse `json:"attachments,omitempty"`
}

func toMessageResponse(m *repository.Message) messageResponse {
	resp := messageResponse{
		ID:          m.ID,
		MailboxID:   m.MailboxID,
		MessageID:   m.MessageID,
		InReplyTo:   m.InReplyTo,
		References:  m.References,
		From:        m.From,
		To:          m.To,
		Cc:          m.Cc,
		Bcc:         m.Bcc,
		Subject:     m.Subject,
		BodyText:    m.BodyText,
		BodyHTML:    m.BodyHTML,
		Headers:     m.Headers,
		Flags:       m.Flags,
		Labels:      m.Labels,
		Encrypted:   m.Encrypted,
		SpamScore:   m.SpamScore,
		SizeBytes:   m.SizeBytes,
		AliasTag:    m.AliasTag,
		MessageDate: m.MessageDate,
		ReceivedAt:  m.ReceivedAt,
	}
	for _, a := range m.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentResponse{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			Checksum:    a.Checksum,
			ContentID:   a.ContentID,
			Inline:      a.Inline,
		})
	}
	return resp
}

type summaryResponse struct {
	ID             uuid.UUID            `json:"id"`
	MailboxID      uuid.UUID            `json:"mailbox_id"`
	From           []repository.Address `json:"from"`
	Subject        *string              `json:"subject,omitempty"`
	Flags          repository.Flags     `json:"flags"`
	Labels         []string             `json:"labels,omitempty"`
	SizeBytes      int64                `json:"size_bytes"`
	HasAttachments bool                 `json:"has_attachments"`
	MessageDate    time.Time            `json:"message_date"`
	ReceivedAt     time.Time            `json:"received_at"`
}

func toSummaryResponses(summaries []repository.MessageSummary) []summaryResponse {
	out := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = summaryResponse{
			ID:             s.ID,
			MailboxID:      s.MailboxID,
			From:           s.From,
			Subject:        s.Subject,
			Flags:          s.Flags,
			Labels:         s.Labels,
			SizeBytes:      s.SizeBytes,
			HasAttachments: s.HasAttachments,
			MessageDate:    s.MessageDate,
			ReceivedAt:     s.ReceivedAt,
		}
	}
	return out
}

type pageResponse struct {
	Messages []summaryResponse `json:"messages"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// List returns a page of message summaries, filterable by mailbox, flags
// and label.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListMessageParams{
		Limit:      intQuery(q.Get("limit"), 20),
		Offset:     intQuery(q.Get("offset"), 0),
		UnseenOnly: q.Get("unseen") == "true",
		Starred:    q.Get("starred") == "true",
		Label:      q.Get("label"),
	}
	if raw := q.Get("mailbox_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mailbox id"})
			return
		}
		params.MailboxID = &id
	}

	summaries, total, err := h.messages.List(r.Context(), accountFrom(r), params)
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

// Get returns the full message.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	m, err := h.messages.Get(r.Context(), accountFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

// UpdateFlags applies a partial flag update.
func (h *MessageHandler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	var req repository.FlagUpdate
	if !decodeJSON(w, r, &req, nil) {
		return
	}
	m, err := h.messages.UpdateFlags(r.Context(), accountFrom(r), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

type moveRequest struct {
	MailboxID uuid.UUID `json:"mailbox_id" validate:"required"`
}

// Move reassigns the message to another mailbox.
func (h *MessageHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	m, err := h.messages.Move(r.Context(), accountFrom(r), id, req.MailboxID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

// Delete moves the message to Trash, or removes it permanently when
// ?permanent=true.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	permanent := r.URL.Query().Get("permanent") == "true"
	if err := h.messages.Delete(r.Context(), accountFrom(r), id, permanent); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modifyLabelsRequest struct {
	Add    []string `json:"add" validate:"omitempty,dive,min=1,max=100"`
	Remove []string `json:"remove" validate:"omitempty,dive,min=1,max=100"`
}

// ModifyLabels adds and removes labels on the message.
func (h *MessageHandler) ModifyLabels(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	var req modifyLabelsRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	m, err := h.messages.ModifyLabels(r.Context(), accountFrom(r), id, req.Add, req.Remove)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(m))
}

// Thread returns the conversation around the message.
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	summaries, err := h.threads.Resolve(r.Context(), accountFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponses(summaries))
}

type downloadResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// Download returns a presigned URL for an attachment.
func (h *MessageHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid attachment id"})
		return
	}
	url, expiry, err := h.messages.AttachmentURL(r.Context(), accountFrom(r), id, attachmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{URL: url, ExpiresIn: int64(expiry.Seconds())})
}

type composeAttachment struct {
	Filename    string  `json:"filename" validate:"required"`
	ContentType string  `json:"content_type"`
	Data        []byte  `json:"data" validate:"required"`
	ContentID   *string `json:"content_id,omitempty"`
	Inline      bool    `json:"inline"`
}

type composeRequest struct {
	InReplyTo   *string              `json:"in_reply_to,omitempty"`
	References  []string             `json:"references,omitempty"`
	From        []repository.Address `json:"from" validate:"required,min=1,dive"`
	To          []repository.Address `json:"to" validate:"omitempty,dive"`
	Cc          []repository.Address `json:"cc" validate:"omitempty,dive"`
	Bcc         []repository.Address `json:"bcc" validate:"omitempty,dive"`
	Subject     *string              `json:"subject,omitempty"`
	BodyText    *string              `json:"body_text,omitempty"`
	BodyHTML    *string              `json:"body_html,omitempty"`
	Headers     map[string]string    `json:"headers,omitempty"`
	Attachments []composeAttachment  `json:"attachments" validate:"omitempty,dive"`
}

func (req *composeRequest) toParams() message.ComposeParams {
	params := message.ComposeParams{
		InReplyTo:  req.InReplyTo,
		References: req.References,
		From:       req.From,
		To:         req.To,
		Cc:         req.Cc,
		Bcc:        req.Bcc,
		Subject:    req.Subject,
		BodyText:   req.BodyText,
		BodyHTML:   req.BodyHTML,
		Headers:    req.Headers,
	}
	for _, a := range req.Attachments {
		params.Attachments = append(params.Attachments, blob.File{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Data:        a.Data,
			ContentID:   a.ContentID,
			Inline:      a.Inline,
		})
	}
	return params
}

// SaveDraft stores a draft in the Drafts mailbox.
func (h *MessageHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	m, err := h.messages.SaveDraft(r.Context(), accountFrom(r), req.toParams())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

// RecordSent stores a sent record after enforcing the daily send cap.
func (h *MessageHandler) RecordSent(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if !decodeJSON(w, r, &req, h.validate) {
		return
	}
	m, err := h.messages.RecordSent(r.Context(), accountFrom(r), req.toParams())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

func messageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid message id"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
