package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/metrics"
	"github.com/mailhaven/mailstore/internal/repository"
	"github.com/mailhaven/mailstore/internal/sanitize"
)

// Spam dispositions recorded on delivered messages.
const (
	SpamActionNone = "none"
	SpamActionSpam = "spam"
)

// Provisioner guarantees the recipient's mailbox set exists.
type Provisioner interface {
	Ensure(ctx context.Context, accountID uuid.UUID) error
	GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error)
}

// MessageCreator stores the delivered message with its counter update.
type MessageCreator interface {
	CreateWithCounters(ctx context.Context, m *repository.Message) error
}

// Uploader offloads attachment bytes to the blob backend.
type Uploader interface {
	Upload(ctx context.Context, accountID uuid.UUID, file blob.File) (*repository.Attachment, error)
}

// QuotaEnforcer admits or rejects the message against the storage quota.
type QuotaEnforcer interface {
	Enforce(ctx context.Context, accountID uuid.UUID, additionalBytes int64) error
}

// InboundMessage is a parsed inbound message as handed over by the edge.
type InboundMessage struct {
	MessageID  string
	InReplyTo  *string
	References []string
	From       []repository.Address
	To         []repository.Address
	Cc         []repository.Address
	Subject    *string
	BodyText   *string
	BodyHTML   *string
	Headers    map[string]string
	SpamScore  float64
	Encrypted  bool
	Date       time.Time
	Files      []blob.File
}

func (in *InboundMessage) size() int64 {
	var n int64
	if in.BodyText != nil {
		n += int64(len(*in.BodyText))
	}
	if in.BodyHTML != nil {
		n += int64(len(*in.BodyHTML))
	}
	for _, f := range in.Files {
		n += int64(len(f.Data))
	}
	return n
}

// Pipeline drives inbound delivery.
type Pipeline struct {
	resolver      *Resolver
	mailboxes     Provisioner
	messages      MessageCreator
	blobs         Uploader
	quota         QuotaEnforcer
	spamThreshold float64
	domain        string
	logger        *slog.Logger
	now           func() time.Time
}

// NewPipeline creates the delivery pipeline. Messages scoring at or above
// spamThreshold route to Spam instead of Inbox.
func NewPipeline(resolver *Resolver, mailboxes Provisioner, messages MessageCreator, blobs Uploader, quota QuotaEnforcer, spamThreshold float64, domain string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver:      resolver,
		mailboxes:     mailboxes,
		messages:      messages,
		blobs:         blobs,
		quota:         quota,
		spamThreshold: spamThreshold,
		domain:        domain,
		logger:        logger,
		now:           time.Now,
	}
}

// Deliver accepts one inbound message for one recipient address. It
// resolves the recipient, provisions mailboxes on first touch, enforces
// the storage quota, classifies spam, uploads attachments, and stores the
// message. The returned mailbox is the destination folder.
//
// Attachments are uploaded before the message record commits; a crash in
// between leaves orphaned blobs which the cleanup sweep reclaims.
func (p *Pipeline) Deliver(ctx context.Context, rcpt string, in InboundMessage) (*repository.Message, *repository.Mailbox, error) {
	start := p.now()
	m, box, err := p.deliver(ctx, rcpt, in)
	metrics.IngestDuration.Observe(p.now().Sub(start).Seconds())
	switch {
	case err == nil:
		if box.SpecialUse != nil && *box.SpecialUse == repository.SpecialSpam {
			metrics.IngestTotal.WithLabelValues("spam").Inc()
		} else {
			metrics.IngestTotal.WithLabelValues("delivered").Inc()
		}
		metrics.IngestBytes.Add(float64(m.SizeBytes))
	case errors.Is(err, mailerr.ErrUnknownRecipient), errors.Is(err, mailerr.ErrQuotaExceeded):
		metrics.IngestTotal.WithLabelValues("bounced").Inc()
	default:
		metrics.IngestTotal.WithLabelValues("error").Inc()
	}
	return m, box, err
}

func (p *Pipeline) deliver(ctx context.Context, rcpt string, in InboundMessage) (*repository.Message, *repository.Mailbox, error) {
	recipient, err := p.resolver.Resolve(ctx, rcpt)
	if err != nil {
		return nil, nil, err
	}
	if err := p.mailboxes.Ensure(ctx, recipient.AccountID); err != nil {
		return nil, nil, fmt.Errorf("ensure mailboxes: %w", err)
	}
	if err := p.quota.Enforce(ctx, recipient.AccountID, in.size()); err != nil {
		return nil, nil, err
	}

	role := repository.SpecialInbox
	spamAction := SpamActionNone
	if in.SpamScore >= p.spamThreshold {
		role = repository.SpecialSpam
		spamAction = SpamActionSpam
	}
	box, err := p.mailboxes.GetBySpecialUse(ctx, recipient.AccountID, role)
	if err != nil {
		return nil, nil, err
	}

	now := p.now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	m := &repository.Message{
		ID:          uuid.New(),
		AccountID:   recipient.AccountID,
		MailboxID:   box.ID,
		MessageID:   in.MessageID,
		InReplyTo:   in.InReplyTo,
		References:  in.References,
		From:        in.From,
		To:          in.To,
		Cc:          in.Cc,
		Subject:     in.Subject,
		BodyText:    in.BodyText,
		BodyHTML:    sanitize.HTMLPtr(in.BodyHTML),
		Headers:     in.Headers,
		Encrypted:   in.Encrypted,
		SpamScore:   in.SpamScore,
		SpamAction:  &spamAction,
		MessageDate: date,
		ReceivedAt:  now,
		CreatedAt:   now,
	}
	if m.MessageID == "" {
		m.MessageID = "<" + strings.ReplaceAll(uuid.New().String(), "-", "") + "@" + p.domain + ">"
	}
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	if recipient.AliasTag != "" {
		tag := recipient.AliasTag
		m.AliasTag = &tag
	}

	var size int64
	if m.BodyText != nil {
		size += int64(len(*m.BodyText))
	}
	if m.BodyHTML != nil {
		size += int64(len(*m.BodyHTML))
	}
	for _, f := range in.Files {
		a, err := p.blobs.Upload(ctx, recipient.AccountID, f)
		if err != nil {
			return nil, nil, err
		}
		m.Attachments = append(m.Attachments, *a)
		size += a.SizeBytes
	}
	m.SizeBytes = size

	if err := p.messages.CreateWithCounters(ctx, m); err != nil {
		return nil, nil, err
	}

	p.logger.Info("message delivered",
		slog.String("account_id", recipient.AccountID.String()),
		slog.String("mailbox", box.Path),
		slog.String("message_id", m.MessageID),
		slog.Int64("size_bytes", m.SizeBytes),
		slog.Float64("spam_score", m.SpamScore))
	return m, box, nil
}
