package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CounterDelta is a signed adjustment to a mailbox's aggregate counters.
type CounterDelta struct {
	Messages  int64
	Unseen    int64
	SizeBytes int64
}

// Neg returns the negated delta.
func (d CounterDelta) Neg() CounterDelta {
	return CounterDelta{Messages: -d.Messages, Unseen: -d.Unseen, SizeBytes: -d.SizeBytes}
}

// IsZero reports whether the delta adjusts nothing.
func (d CounterDelta) IsZero() bool {
	return d.Messages == 0 && d.Unseen == 0 && d.SizeBytes == 0
}

// Counters is the aggregate counter triple of a mailbox.
type Counters struct {
	TotalMessages  int64 `db:"total_messages"`
	UnseenMessages int64 `db:"unseen_messages"`
	SizeBytes      int64 `db:"size_bytes"`
}

// ApplyDelta applies d to c, clamping each counter at zero. The returned
// bool reports whether any counter was clamped, which indicates an
// invariant violation the caller should log for offline investigation.
func ApplyDelta(c Counters, d CounterDelta) (Counters, bool) {
	clamped := false
	clamp := func(v int64) int64 {
		if v < 0 {
			clamped = true
			return 0
		}
		return v
	}
	return Counters{
		TotalMessages:  clamp(c.TotalMessages + d.Messages),
		UnseenMessages: clamp(c.UnseenMessages + d.Unseen),
		SizeBytes:      clamp(c.SizeBytes + d.SizeBytes),
	}, clamped
}

// applyMailboxDelta is the single code path through which mailbox counters
// change. It locks the mailbox row so concurrent message mutations against
// the same mailbox serialize instead of losing updates, applies the delta
// with the clamp rule, and writes the result back. Must run inside the same
// transaction as the message mutation the delta reflects.
func applyMailboxDelta(ctx context.Context, tx *sqlx.Tx, mailboxID uuid.UUID, d CounterDelta) (bool, error) {
	if d.IsZero() {
		return false, nil
	}

	var cur Counters
	err := tx.GetContext(ctx, &cur, `
		SELECT total_messages, unseen_messages, size_bytes
		FROM mailboxes WHERE id = $1 FOR UPDATE
	`, mailboxID)
	if err != nil {
		return false, fmt.Errorf("lock mailbox counters: %w", err)
	}

	next, clamped := ApplyDelta(cur, d)

	_, err = tx.ExecContext(ctx, `
		UPDATE mailboxes
		SET total_messages = $2, unseen_messages = $3, size_bytes = $4, updated_at = now()
		WHERE id = $1
	`, mailboxID, next.TotalMessages, next.UnseenMessages, next.SizeBytes)
	if err != nil {
		return false, fmt.Errorf("update mailbox counters: %w", err)
	}

	return clamped, nil
}
