// Package quota computes and enforces per-account storage and send limits
// from aggregate mailbox sizes and daily send counts.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

// UsageStore provides the live aggregate size over an account's mailboxes.
// Mailbox counters are the source of truth; usage is recomputed per call.
type UsageStore interface {
	SumSizeByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error)
}

// SendCountStore counts messages received into a mailbox since an instant.
type SendCountStore interface {
	CountReceivedSince(ctx context.Context, mailboxID uuid.UUID, since time.Time) (int, error)
}

// Usage reports an account's storage consumption against its tier ceiling.
type Usage struct {
	UsedBytes  int64   `json:"used_bytes"`
	LimitBytes int64   `json:"limit_bytes"`
	Percentage float64 `json:"percentage"`
}

// Ledger enforces storage and send limits.
type Ledger struct {
	mailboxes UsageStore
	messages  SendCountStore
	tiers     TierLookup
	now       func() time.Time
}

// NewLedger creates a quota ledger. tiers may be nil, in which case every
// account resolves to the free tier.
func NewLedger(mailboxes UsageStore, messages SendCountStore, tiers TierLookup) *Ledger {
	if tiers == nil {
		tiers = NewStaticTierLookup()
	}
	return &Ledger{mailboxes: mailboxes, messages: messages, tiers: tiers, now: time.Now}
}

// Usage returns the account's current storage usage, recomputed from
// mailbox counters on every call.
func (l *Ledger) Usage(ctx context.Context, accountID uuid.UUID) (*Usage, error) {
	tier, err := l.tiers.TierOf(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}
	used, err := l.mailboxes.SumSizeByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	u := &Usage{UsedBytes: used, LimitBytes: tier.StorageBytes}
	if tier.StorageBytes > 0 {
		u.Percentage = float64(used) / float64(tier.StorageBytes) * 100
	}
	return u, nil
}

// Enforce fails with mailerr.ErrQuotaExceeded if storing additionalBytes
// would push the account past its tier ceiling. This is a check-then-act
// admission test; under concurrent ingestion it is a soft bound.
func (l *Ledger) Enforce(ctx context.Context, accountID uuid.UUID, additionalBytes int64) error {
	u, err := l.Usage(ctx, accountID)
	if err != nil {
		return err
	}
	if u.UsedBytes+additionalBytes > u.LimitBytes {
		return mailerr.ErrQuotaExceeded
	}
	return nil
}

// Tier returns the account's resolved tier.
func (l *Ledger) Tier(ctx context.Context, accountID uuid.UUID) (Tier, error) {
	return l.tiers.TierOf(ctx, accountID)
}

// DailySendCount counts Sent-mailbox messages recorded since local
// midnight.
func (l *Ledger) DailySendCount(ctx context.Context, accountID uuid.UUID) (int, error) {
	sent, err := l.mailboxes.GetBySpecialUse(ctx, accountID, repository.SpecialSent)
	if err != nil {
		return 0, err
	}
	now := l.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return l.messages.CountReceivedSince(ctx, sent.ID, midnight)
}

// EnforceSendLimit fails with mailerr.ErrSendLimitExceeded when the account
// is at or above its tier's daily send cap.
func (l *Ledger) EnforceSendLimit(ctx context.Context, accountID uuid.UUID) error {
	tier, err := l.tiers.TierOf(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve tier: %w", err)
	}
	count, err := l.DailySendCount(ctx, accountID)
	if err != nil {
		return err
	}
	if count >= tier.DailySendLimit {
		return mailerr.ErrSendLimitExceeded
	}
	return nil
}
