// Package search exposes free-text and structured message search.
package search

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/repository"
)

// Store is the message persistence surface search runs on.
type Store interface {
	Search(ctx context.Context, accountID uuid.UUID, params repository.SearchParams) ([]repository.MessageSummary, int, error)
}

// Service executes message searches.
type Service struct {
	messages Store
}

// NewService creates a search service.
func NewService(messages Store) *Service {
	return &Service{messages: messages}
}

// Search runs the query scoped to the account. Free text matches subject,
// plain body and sender; structured filters narrow further. Results are
// newest first.
func (s *Service) Search(ctx context.Context, accountID uuid.UUID, params repository.SearchParams) ([]repository.MessageSummary, int, error) {
	params.Query = strings.TrimSpace(params.Query)
	params.From = strings.TrimSpace(params.From)
	return s.messages.Search(ctx, accountID, params)
}
