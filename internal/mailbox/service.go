// Package mailbox manages the mailbox set of an account: first-touch
// provisioning of the special-use folders, user folder creation, and
// cascaded deletion.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

// deleteBatchSize bounds how many messages a single cascade transaction
// touches when emptying a mailbox.
const deleteBatchSize = 500

// trashRetentionDays is the default retention applied to Trash and Spam.
const trashRetentionDays = 30

// Store is the mailbox persistence surface the service needs.
type Store interface {
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error)
	CreateBatch(ctx context.Context, mailboxes []*repository.Mailbox) error
	Create(ctx context.Context, m *repository.Mailbox) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]repository.Mailbox, error)
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*repository.Mailbox, error)
	GetByPath(ctx context.Context, accountID uuid.UUID, path string) (*repository.Mailbox, error)
	GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageStore is the message persistence surface used for cascade deletes.
type MessageStore interface {
	DeleteMailboxBatch(ctx context.Context, mailboxID uuid.UUID, batchSize int) (int, []string, error)
}

// BlobDeleter removes attachment blobs after their metadata is gone.
type BlobDeleter interface {
	DeleteBatch(ctx context.Context, keys []string)
}

// Service implements mailbox operations.
type Service struct {
	mailboxes Store
	messages  MessageStore
	blobs     BlobDeleter
	logger    *slog.Logger
}

// NewService creates a mailbox service.
func NewService(mailboxes Store, messages MessageStore, blobs BlobDeleter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{mailboxes: mailboxes, messages: messages, blobs: blobs, logger: logger}
}

type defaultMailbox struct {
	name          string
	path          string
	specialUse    string
	retentionDays int
}

// defaultSet is the special-use folder set every account gets. Trash and
// Spam carry a retention period; the rest keep messages indefinitely.
var defaultSet = []defaultMailbox{
	{name: "Inbox", path: "inbox", specialUse: repository.SpecialInbox},
	{name: "Sent", path: "sent", specialUse: repository.SpecialSent},
	{name: "Drafts", path: "drafts", specialUse: repository.SpecialDrafts},
	{name: "Trash", path: "trash", specialUse: repository.SpecialTrash, retentionDays: trashRetentionDays},
	{name: "Spam", path: "spam", specialUse: repository.SpecialSpam, retentionDays: trashRetentionDays},
	{name: "Archive", path: "archive", specialUse: repository.SpecialArchive},
}

// ProvisionDefaults creates the special-use folder set for the account.
// It is idempotent: folders that already exist are left untouched, so
// concurrent first-touch callers converge on the same set.
func (s *Service) ProvisionDefaults(ctx context.Context, accountID uuid.UUID) ([]repository.Mailbox, error) {
	batch := make([]*repository.Mailbox, len(defaultSet))
	for i, d := range defaultSet {
		role := d.specialUse
		m := &repository.Mailbox{
			ID:         uuid.New(),
			AccountID:  accountID,
			Name:       d.name,
			Path:       d.path,
			SpecialUse: &role,
		}
		if d.retentionDays > 0 {
			retention := d.retentionDays
			m.RetentionDays = &retention
		}
		batch[i] = m
	}
	if err := s.mailboxes.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("provision default mailboxes: %w", err)
	}
	s.logger.Info("default mailboxes provisioned", slog.String("account_id", accountID.String()))
	return s.mailboxes.ListByAccount(ctx, accountID)
}

// Ensure provisions the default set if the account has no mailboxes yet.
func (s *Service) Ensure(ctx context.Context, accountID uuid.UUID) error {
	n, err := s.mailboxes.CountByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.ProvisionDefaults(ctx, accountID)
	return err
}

// List returns the account's mailboxes ordered by path.
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]repository.Mailbox, error) {
	if err := s.Ensure(ctx, accountID); err != nil {
		return nil, err
	}
	return s.mailboxes.ListByAccount(ctx, accountID)
}

// Get returns a single mailbox owned by the account.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*repository.Mailbox, error) {
	return s.mailboxes.GetByID(ctx, accountID, id)
}

// GetBySpecialUse returns the account's mailbox with the given role.
func (s *Service) GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error) {
	return s.mailboxes.GetBySpecialUse(ctx, accountID, role)
}

// Create adds a user folder. The path is derived from the name, nested
// under parentPath when one is given; the parent must already exist for
// the account. A path that collides with an existing mailbox fails with
// mailerr.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, name, parentPath string) (*repository.Mailbox, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: mailbox name must not be empty", mailerr.ErrValidation)
	}
	path := PathFromName(name)
	if parentPath = strings.TrimSpace(parentPath); parentPath != "" {
		parent, err := s.mailboxes.GetByPath(ctx, accountID, parentPath)
		if err != nil {
			return nil, fmt.Errorf("parent mailbox %q: %w", parentPath, err)
		}
		path = parent.Path + "/" + path
	}
	m := &repository.Mailbox{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      name,
		Path:      path,
	}
	if err := s.mailboxes.Create(ctx, m); err != nil {
		return nil, err
	}
	return s.mailboxes.GetByID(ctx, accountID, m.ID)
}

// PathFromName derives the canonical path segment of a user folder from
// its display name. Slashes are treated as separators so a display name
// cannot fake hierarchy; nesting comes only from the parent path.
func PathFromName(name string) string {
	path := strings.ToLower(strings.TrimSpace(name))
	path = strings.ReplaceAll(path, "/", " ")
	return strings.Join(strings.Fields(path), "-")
}

// Delete removes a user folder and everything in it. Special-use folders
// cannot be deleted. Messages are removed in bounded batches so arbitrarily
// large folders do not blow up a single transaction; attachment blobs are
// cleaned up after each batch commits.
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	m, err := s.mailboxes.GetByID(ctx, accountID, id)
	if err != nil {
		return err
	}
	if m.IsSpecial() {
		return fmt.Errorf("%w: special-use mailboxes cannot be deleted", mailerr.ErrForbidden)
	}

	var deleted int
	for {
		n, keys, err := s.messages.DeleteMailboxBatch(ctx, m.ID, deleteBatchSize)
		if err != nil {
			return fmt.Errorf("empty mailbox: %w", err)
		}
		if n == 0 {
			break
		}
		deleted += n
		if len(keys) > 0 {
			s.blobs.DeleteBatch(ctx, keys)
		}
	}

	if err := s.mailboxes.Delete(ctx, m.ID); err != nil {
		return err
	}
	s.logger.Info("mailbox deleted",
		slog.String("account_id", accountID.String()),
		slog.String("mailbox_id", m.ID.String()),
		slog.String("path", m.Path),
		slog.Int("messages_removed", deleted))
	return nil
}
