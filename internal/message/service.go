// Package message implements the message lifecycle: listing, flag and
// label changes, moves, deletion with Trash routing, drafts, and sent
// record keeping.
package message

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
	"github.com/mailhaven/mailstore/internal/sanitize"
)

// Store is the message persistence surface the service needs.
type Store interface {
	CreateWithCounters(ctx context.Context, m *repository.Message) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*repository.Message, error)
	List(ctx context.Context, accountID uuid.UUID, params repository.ListMessageParams) ([]repository.MessageSummary, int, error)
	UpdateFlags(ctx context.Context, accountID, id uuid.UUID, upd repository.FlagUpdate) (*repository.Message, error)
	Move(ctx context.Context, accountID, id, targetMailboxID uuid.UUID) (*repository.Message, error)
	DeleteWithCounters(ctx context.Context, accountID, id uuid.UUID) ([]string, error)
	UpdateLabels(ctx context.Context, accountID, id uuid.UUID, labels []string) (*repository.Message, error)
}

// MailboxStore resolves mailboxes for ownership checks and Trash routing.
type MailboxStore interface {
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*repository.Mailbox, error)
	GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error)
}

// LabelStore validates label names against the account's label set.
type LabelStore interface {
	GetByName(ctx context.Context, accountID uuid.UUID, name string) (*repository.Label, error)
}

// BlobStore uploads attachment bytes and removes blobs after deletion.
type BlobStore interface {
	Upload(ctx context.Context, accountID uuid.UUID, file blob.File) (*repository.Attachment, error)
	PresignDownload(ctx context.Context, key string) (string, time.Duration, error)
	DeleteBatch(ctx context.Context, keys []string)
}

// QuotaLedger enforces storage and send limits.
type QuotaLedger interface {
	Enforce(ctx context.Context, accountID uuid.UUID, additionalBytes int64) error
	EnforceSendLimit(ctx context.Context, accountID uuid.UUID) error
}

// Service implements message operations.
type Service struct {
	messages  Store
	mailboxes MailboxStore
	labels    LabelStore
	blobs     BlobStore
	quota     QuotaLedger
	domain    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a message service. domain is the mail domain used
// when minting Message-IDs for drafts and sent records.
func NewService(messages Store, mailboxes MailboxStore, labels LabelStore, blobs BlobStore, quota QuotaLedger, domain string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		messages:  messages,
		mailboxes: mailboxes,
		labels:    labels,
		blobs:     blobs,
		quota:     quota,
		domain:    domain,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns a page of message summaries. When a mailbox filter is set,
// the mailbox must belong to the account.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, params repository.ListMessageParams) ([]repository.MessageSummary, int, error) {
	if params.MailboxID != nil {
		if _, err := s.mailboxes.GetByID(ctx, accountID, *params.MailboxID); err != nil {
			return nil, 0, err
		}
	}
	return s.messages.List(ctx, accountID, params)
}

// Get returns the full message including attachment metadata.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*repository.Message, error) {
	return s.messages.GetByID(ctx, accountID, id)
}

// UpdateFlags applies a partial flag update.
func (s *Service) UpdateFlags(ctx context.Context, accountID, id uuid.UUID, upd repository.FlagUpdate) (*repository.Message, error) {
	return s.messages.UpdateFlags(ctx, accountID, id, upd)
}

// Move reassigns the message to the target mailbox.
func (s *Service) Move(ctx context.Context, accountID, id, targetMailboxID uuid.UUID) (*repository.Message, error) {
	return s.messages.Move(ctx, accountID, id, targetMailboxID)
}

// Delete removes a message. A non-permanent delete moves the message to
// the account's Trash mailbox regardless of where it currently lives; a
// permanent delete removes the record and its attachment blobs.
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID, permanent bool) error {
	if permanent {
		keys, err := s.messages.DeleteWithCounters(ctx, accountID, id)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			s.blobs.DeleteBatch(ctx, keys)
		}
		return nil
	}

	trash, err := s.mailboxes.GetBySpecialUse(ctx, accountID, repository.SpecialTrash)
	if err != nil {
		return err
	}
	_, err = s.messages.Move(ctx, accountID, id, trash.ID)
	return err
}

// ModifyLabels adds and removes labels on a message in one operation.
// A name present in both sets is removed. Added labels must exist in the
// account's label set.
func (s *Service) ModifyLabels(ctx context.Context, accountID, id uuid.UUID, add, remove []string) (*repository.Message, error) {
	removeSet := make(map[string]bool, len(remove))
	for _, name := range remove {
		removeSet[name] = true
	}
	for _, name := range add {
		if removeSet[name] {
			continue
		}
		if _, err := s.labels.GetByName(ctx, accountID, name); err != nil {
			return nil, fmt.Errorf("label %q: %w", name, err)
		}
	}

	m, err := s.messages.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	next := make(map[string]bool, len(m.Labels)+len(add))
	for _, name := range m.Labels {
		next[name] = true
	}
	for _, name := range add {
		next[name] = true
	}
	for name := range removeSet {
		delete(next, name)
	}

	labels := make([]string, 0, len(next))
	for name := range next {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	return s.messages.UpdateLabels(ctx, accountID, id, labels)
}

// AttachmentURL returns a time-bounded download URL for an attachment of a
// message the account owns.
func (s *Service) AttachmentURL(ctx context.Context, accountID, messageID, attachmentID uuid.UUID) (string, time.Duration, error) {
	m, err := s.messages.GetByID(ctx, accountID, messageID)
	if err != nil {
		return "", 0, err
	}
	for _, a := range m.Attachments {
		if a.ID == attachmentID {
			return s.blobs.PresignDownload(ctx, a.StorageKey)
		}
	}
	return "", 0, mailerr.ErrNotFound
}

// ComposeParams carries the user-authored content of a draft or a sent
// record.
type ComposeParams struct {
	InReplyTo   *string
	References  []string
	From        []repository.Address
	To          []repository.Address
	Cc          []repository.Address
	Bcc         []repository.Address
	Subject     *string
	BodyText    *string
	BodyHTML    *string
	Headers     map[string]string
	Attachments []blob.File
}

func (p *ComposeParams) size() int64 {
	var n int64
	if p.BodyText != nil {
		n += int64(len(*p.BodyText))
	}
	if p.BodyHTML != nil {
		n += int64(len(*p.BodyHTML))
	}
	for _, f := range p.Attachments {
		n += int64(len(f.Data))
	}
	return n
}

// SaveDraft stores a draft in the Drafts mailbox. Drafts count against the
// storage quota like any other message.
func (s *Service) SaveDraft(ctx context.Context, accountID uuid.UUID, params ComposeParams) (*repository.Message, error) {
	drafts, err := s.mailboxes.GetBySpecialUse(ctx, accountID, repository.SpecialDrafts)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Enforce(ctx, accountID, params.size()); err != nil {
		return nil, err
	}
	m, err := s.compose(ctx, accountID, drafts.ID, params)
	if err != nil {
		return nil, err
	}
	m.Flags.Draft = true
	if err := s.messages.CreateWithCounters(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordSent stores a copy of an outgoing message in the Sent mailbox
// after checking the account's daily send cap and storage quota. Actual
// delivery is the transport's job; this is the record of it.
func (s *Service) RecordSent(ctx context.Context, accountID uuid.UUID, params ComposeParams) (*repository.Message, error) {
	if len(params.To)+len(params.Cc)+len(params.Bcc) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient required", mailerr.ErrValidation)
	}
	if err := s.quota.EnforceSendLimit(ctx, accountID); err != nil {
		return nil, err
	}
	sent, err := s.mailboxes.GetBySpecialUse(ctx, accountID, repository.SpecialSent)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Enforce(ctx, accountID, params.size()); err != nil {
		return nil, err
	}
	m, err := s.compose(ctx, accountID, sent.ID, params)
	if err != nil {
		return nil, err
	}
	if err := s.messages.CreateWithCounters(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("sent message recorded",
		slog.String("account_id", accountID.String()),
		slog.String("message_id", m.MessageID))
	return m, nil
}

func (s *Service) compose(ctx context.Context, accountID, mailboxID uuid.UUID, params ComposeParams) (*repository.Message, error) {
	now := s.now().UTC()
	m := &repository.Message{
		ID:          uuid.New(),
		AccountID:   accountID,
		MailboxID:   mailboxID,
		MessageID:   s.mintMessageID(),
		InReplyTo:   params.InReplyTo,
		References:  params.References,
		From:        params.From,
		To:          params.To,
		Cc:          params.Cc,
		Bcc:         params.Bcc,
		Subject:     params.Subject,
		BodyText:    params.BodyText,
		BodyHTML:    sanitize.HTMLPtr(params.BodyHTML),
		Headers:     params.Headers,
		Flags:       repository.Flags{Seen: true},
		MessageDate: now,
		ReceivedAt:  now,
		CreatedAt:   now,
	}
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}

	var size int64
	if m.BodyText != nil {
		size += int64(len(*m.BodyText))
	}
	if m.BodyHTML != nil {
		size += int64(len(*m.BodyHTML))
	}
	for _, f := range params.Attachments {
		a, err := s.blobs.Upload(ctx, accountID, f)
		if err != nil {
			return nil, err
		}
		m.Attachments = append(m.Attachments, *a)
		size += a.SizeBytes
	}
	m.SizeBytes = size
	return m, nil
}

func (s *Service) mintMessageID() string {
	domain := s.domain
	if domain == "" {
		domain = "localhost"
	}
	return "<" + strings.ReplaceAll(uuid.New().String(), "-", "") + "@" + domain + ">"
}
