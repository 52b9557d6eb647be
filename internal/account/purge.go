// Package account implements account-level bulk operations, currently the
// full data purge run when an account closes.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/repository"
)

// purgeBatchSize bounds how many messages one purge transaction touches.
const purgeBatchSize = 500

// MailboxStore is the mailbox persistence surface purge needs.
type MailboxStore interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]repository.Mailbox, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageStore empties mailboxes in bounded batches.
type MessageStore interface {
	DeleteMailboxBatch(ctx context.Context, mailboxID uuid.UUID, batchSize int) (int, []string, error)
}

// LabelStore removes the account's label definitions.
type LabelStore interface {
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error
}

// BlobDeleter removes attachment blobs after their metadata is gone.
type BlobDeleter interface {
	DeleteBatch(ctx context.Context, keys []string)
}

// Purger removes every trace of an account from the store.
type Purger struct {
	mailboxes MailboxStore
	messages  MessageStore
	labels    LabelStore
	blobs     BlobDeleter
	logger    *slog.Logger
}

// NewPurger creates an account purger.
func NewPurger(mailboxes MailboxStore, messages MessageStore, labels LabelStore, blobs BlobDeleter, logger *slog.Logger) *Purger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{mailboxes: mailboxes, messages: messages, labels: labels, blobs: blobs, logger: logger}
}

// Result reports what a purge removed.
type Result struct {
	Mailboxes int   `json:"mailboxes"`
	Messages  int   `json:"messages"`
	Labels    bool  `json:"labels"`
	Duration  int64 `json:"duration_ms"`
}

// Purge deletes all mailboxes, messages, attachments and labels of the
// account. Messages go in bounded batches per mailbox so a large account
// never pins one giant transaction; the purge is resumable, rerunning it
// picks up where a failed attempt stopped. Special-use protection does not
// apply here since the whole account is going away.
func (p *Purger) Purge(ctx context.Context, accountID uuid.UUID) (*Result, error) {
	start := time.Now()
	result := &Result{}

	mailboxes, err := p.mailboxes.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	for i := range mailboxes {
		box := &mailboxes[i]
		for {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			n, keys, err := p.messages.DeleteMailboxBatch(ctx, box.ID, purgeBatchSize)
			if err != nil {
				return result, fmt.Errorf("purge mailbox %q: %w", box.Path, err)
			}
			if n == 0 {
				break
			}
			result.Messages += n
			if len(keys) > 0 {
				p.blobs.DeleteBatch(ctx, keys)
			}
		}
		if err := p.mailboxes.Delete(ctx, box.ID); err != nil {
			return result, fmt.Errorf("delete mailbox %q: %w", box.Path, err)
		}
		result.Mailboxes++
	}

	if err := p.labels.DeleteByAccount(ctx, accountID); err != nil {
		return result, err
	}
	result.Labels = true
	result.Duration = time.Since(start).Milliseconds()

	p.logger.Info("account purged",
		slog.String("account_id", accountID.String()),
		slog.Int("mailboxes", result.Mailboxes),
		slog.Int("messages", result.Messages),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}
