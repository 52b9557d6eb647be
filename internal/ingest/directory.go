package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

// UUIDDirectory resolves local parts that are literal account UUIDs. It
// stands in for the account system's directory in development and test
// environments; production wires the real directory client instead.
type UUIDDirectory struct{}

// ResolveLocalPart implements Directory.
func (UUIDDirectory) ResolveLocalPart(_ context.Context, localPart string) (uuid.UUID, error) {
	id, err := uuid.Parse(localPart)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", mailerr.ErrUnknownRecipient, localPart)
	}
	return id, nil
}
