// Package ingest accepts inbound messages from the MTA edge: it resolves
// recipients, enforces the storage quota, classifies spam, offloads
// attachments and stores the message in the right mailbox.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

// Directory resolves a local part to the owning account. The production
// implementation lives in the account system; this store only consumes the
// interface. A local part with no account resolves to
// mailerr.ErrUnknownRecipient.
type Directory interface {
	ResolveLocalPart(ctx context.Context, localPart string) (uuid.UUID, error)
}

// Recipient is a resolved inbound address.
type Recipient struct {
	AccountID uuid.UUID
	LocalPart string
	AliasTag  string
}

// Resolver maps inbound addresses on the hosted domain to accounts.
type Resolver struct {
	directory Directory
	domain    string
}

// NewResolver creates a recipient resolver for the hosted domain.
func NewResolver(directory Directory, domain string) *Resolver {
	return &Resolver{directory: directory, domain: strings.ToLower(domain)}
}

// SplitAddress splits an address into local part and domain, lowercased.
func SplitAddress(addr string) (local, domain string, err error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", "", fmt.Errorf("%w: malformed address %q", mailerr.ErrValidation, addr)
	}
	return addr[:at], addr[at+1:], nil
}

// SplitTag splits a plus-tagged local part into its base and tag. Only the
// first plus delimits; "user+a+b" yields tag "a+b".
func SplitTag(localPart string) (base, tag string) {
	if i := strings.Index(localPart, "+"); i >= 0 {
		return localPart[:i], localPart[i+1:]
	}
	return localPart, ""
}

// Resolve maps an inbound RCPT address to its account. Addresses outside
// the hosted domain and local parts with no account both fail with
// mailerr.ErrUnknownRecipient so the edge bounces rather than retries.
func (r *Resolver) Resolve(ctx context.Context, addr string) (*Recipient, error) {
	local, domain, err := SplitAddress(addr)
	if err != nil {
		return nil, err
	}
	if domain != r.domain {
		return nil, fmt.Errorf("%w: domain %q not hosted here", mailerr.ErrUnknownRecipient, domain)
	}
	base, tag := SplitTag(local)
	accountID, err := r.directory.ResolveLocalPart(ctx, base)
	if err != nil {
		return nil, err
	}
	return &Recipient{AccountID: accountID, LocalPart: base, AliasTag: tag}, nil
}
