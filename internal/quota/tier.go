package quota

import (
	"context"

	"github.com/google/uuid"
)

// Tier describes the limits of a subscription level.
type Tier struct {
	Name               string `json:"name"`
	StorageBytes       int64  `json:"storage_bytes"`
	MaxAttachmentBytes int64  `json:"max_attachment_bytes"`
	DailySendLimit     int    `json:"daily_send_limit"`
	MaxRecipients      int    `json:"max_recipients"`
}

// FreeTier is the default tier applied when no subscription lookup is
// wired in.
var FreeTier = Tier{
	Name:               "free",
	StorageBytes:       5 << 30,  // 5 GiB
	MaxAttachmentBytes: 25 << 20, // 25 MiB
	DailySendLimit:     200,
	MaxRecipients:      100,
}

// TierLookup resolves an account's subscription tier. The production
// implementation lives in the billing system; this store only consumes the
// interface.
type TierLookup interface {
	TierOf(ctx context.Context, accountID uuid.UUID) (Tier, error)
}

// StaticTierLookup returns the same tier for every account.
type StaticTierLookup struct {
	Tier Tier
}

// NewStaticTierLookup returns a lookup pinned to the free tier.
func NewStaticTierLookup() *StaticTierLookup {
	return &StaticTierLookup{Tier: FreeTier}
}

// TierOf implements TierLookup.
func (l *StaticTierLookup) TierOf(_ context.Context, _ uuid.UUID) (Tier, error) {
	return l.Tier, nil
}
