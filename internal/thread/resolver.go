// Package thread reconstructs conversations from RFC 5322 reference
// headers.
package thread

import (
	"context"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/repository"
)

// Store is the message persistence surface the resolver needs.
type Store interface {
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*repository.Message, error)
	ListThread(ctx context.Context, accountID uuid.UUID, candidateIDs []string) ([]repository.MessageSummary, error)
}

// Resolver reconstructs the thread around an anchor message.
type Resolver struct {
	messages Store
}

// NewResolver creates a thread resolver.
func NewResolver(messages Store) *Resolver {
	return &Resolver{messages: messages}
}

// Resolve returns the thread containing the anchor message: every message
// of the account whose Message-ID, In-Reply-To or References intersects
// the anchor's reference set, sorted by message date ascending. The anchor
// itself always appears exactly once, even when its headers reference
// nothing.
func (r *Resolver) Resolve(ctx context.Context, accountID, anchorID uuid.UUID) ([]repository.MessageSummary, error) {
	anchor, err := r.messages.GetByID(ctx, accountID, anchorID)
	if err != nil {
		return nil, err
	}

	candidates := candidateIDs(anchor)
	summaries, err := r.messages.ListThread(ctx, accountID, candidates)
	if err != nil {
		return nil, err
	}

	// Deduplicate and make sure the anchor made it in: a message whose
	// headers reference nothing matches no candidate but still forms a
	// thread of one.
	seen := make(map[uuid.UUID]bool, len(summaries))
	out := summaries[:0]
	anchorSeen := false
	for _, s := range summaries {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if s.ID == anchor.ID {
			anchorSeen = true
		}
		out = append(out, s)
	}
	if !anchorSeen {
		out = insertByDate(out, summarize(anchor))
	}
	return out, nil
}

// candidateIDs collects the anchor's own Message-ID plus everything it
// references, deduplicated with order preserved.
func candidateIDs(anchor *repository.Message) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(anchor.MessageID)
	if anchor.InReplyTo != nil {
		add(*anchor.InReplyTo)
	}
	for _, ref := range anchor.References {
		add(ref)
	}
	return ids
}

func summarize(m *repository.Message) repository.MessageSummary {
	return repository.MessageSummary{
		ID:             m.ID,
		MailboxID:      m.MailboxID,
		From:           m.From,
		Subject:        m.Subject,
		Flags:          m.Flags,
		Labels:         m.Labels,
		SizeBytes:      m.SizeBytes,
		HasAttachments: len(m.Attachments) > 0,
		MessageDate:    m.MessageDate,
		ReceivedAt:     m.ReceivedAt,
	}
}

func insertByDate(sorted []repository.MessageSummary, s repository.MessageSummary) []repository.MessageSummary {
	i := 0
	for i < len(sorted) && !sorted[i].MessageDate.After(s.MessageDate) {
		i++
	}
	sorted = append(sorted, repository.MessageSummary{})
	copy(sorted[i+1:], sorted[i:])
	sorted[i] = s
	return sorted
}
