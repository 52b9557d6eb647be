package mailbox

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

type memStore struct {
	mailboxes map[uuid.UUID]*repository.Mailbox
}

func newMemStore() *memStore {
	return &memStore{mailboxes: make(map[uuid.UUID]*repository.Mailbox)}
}

func (s *memStore) CountByAccount(_ context.Context, accountID uuid.UUID) (int, error) {
	n := 0
	for _, m := range s.mailboxes {
		if m.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) conflicts(candidate *repository.Mailbox) bool {
	for _, m := range s.mailboxes {
		if m.AccountID != candidate.AccountID {
			continue
		}
		if m.Path == candidate.Path {
			return true
		}
		if m.SpecialUse != nil && candidate.SpecialUse != nil && *m.SpecialUse == *candidate.SpecialUse {
			return true
		}
	}
	return false
}

func (s *memStore) CreateBatch(_ context.Context, mailboxes []*repository.Mailbox) error {
	for _, m := range mailboxes {
		if s.conflicts(m) {
			continue
		}
		cp := *m
		s.mailboxes[m.ID] = &cp
	}
	return nil
}

func (s *memStore) Create(_ context.Context, m *repository.Mailbox) error {
	if s.conflicts(m) {
		return mailerr.ErrAlreadyExists
	}
	cp := *m
	s.mailboxes[m.ID] = &cp
	return nil
}

func (s *memStore) ListByAccount(_ context.Context, accountID uuid.UUID) ([]repository.Mailbox, error) {
	var out []repository.Mailbox
	for _, m := range s.mailboxes {
		if m.AccountID == accountID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, accountID, id uuid.UUID) (*repository.Mailbox, error) {
	m, ok := s.mailboxes[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) GetByPath(_ context.Context, accountID uuid.UUID, path string) (*repository.Mailbox, error) {
	for _, m := range s.mailboxes {
		if m.AccountID == accountID && m.Path == path {
			cp := *m
			return &cp, nil
		}
	}
	return nil, mailerr.ErrNotFound
}

func (s *memStore) GetBySpecialUse(_ context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error) {
	for _, m := range s.mailboxes {
		if m.AccountID == accountID && m.SpecialUse != nil && *m.SpecialUse == role {
			cp := *m
			return &cp, nil
		}
	}
	return nil, mailerr.ErrConfiguration
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.mailboxes[id]; !ok {
		return mailerr.ErrNotFound
	}
	delete(s.mailboxes, id)
	return nil
}

type memMessages struct {
	byMailbox map[uuid.UUID][]string // attachment keys per pending message
}

func (s *memMessages) DeleteMailboxBatch(_ context.Context, mailboxID uuid.UUID, batchSize int) (int, []string, error) {
	pending := s.byMailbox[mailboxID]
	if len(pending) == 0 {
		return 0, nil, nil
	}
	n := min(batchSize, len(pending))
	keys := pending[:n]
	s.byMailbox[mailboxID] = pending[n:]
	return n, keys, nil
}

type memBlobs struct {
	deleted []string
}

func (b *memBlobs) DeleteBatch(_ context.Context, keys []string) {
	b.deleted = append(b.deleted, keys...)
}

func newTestService() (*Service, *memStore, *memMessages, *memBlobs) {
	store := newMemStore()
	messages := &memMessages{byMailbox: make(map[uuid.UUID][]string)}
	blobs := &memBlobs{}
	svc := NewService(store, messages, blobs, slog.Default())
	return svc, store, messages, blobs
}

func TestProvisionDefaults(t *testing.T) {
	svc, _, _, _ := newTestService()
	accountID := uuid.New()

	mailboxes, err := svc.ProvisionDefaults(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ProvisionDefaults() error = %v", err)
	}
	if len(mailboxes) != 6 {
		t.Fatalf("got %d mailboxes, want 6", len(mailboxes))
	}

	roles := make(map[string]repository.Mailbox)
	for _, m := range mailboxes {
		if m.SpecialUse == nil {
			t.Errorf("mailbox %q has no role", m.Path)
			continue
		}
		roles[*m.SpecialUse] = m
	}
	for _, role := range []string{
		repository.SpecialInbox, repository.SpecialSent, repository.SpecialDrafts,
		repository.SpecialTrash, repository.SpecialSpam, repository.SpecialArchive,
	} {
		if _, ok := roles[role]; !ok {
			t.Errorf("role %q not provisioned", role)
		}
	}

	for _, role := range []string{repository.SpecialTrash, repository.SpecialSpam} {
		m := roles[role]
		if m.RetentionDays == nil || *m.RetentionDays != trashRetentionDays {
			t.Errorf("%s retention = %v, want %d", role, m.RetentionDays, trashRetentionDays)
		}
	}
	if roles[repository.SpecialInbox].RetentionDays != nil {
		t.Error("inbox should have no retention")
	}
}

func TestProvisionDefaultsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	first, err := svc.ProvisionDefaults(ctx, accountID)
	if err != nil {
		t.Fatalf("first provision: %v", err)
	}
	second, err := svc.ProvisionDefaults(ctx, accountID)
	if err != nil {
		t.Fatalf("second provision: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("second provision changed mailbox count: %d != %d", len(second), len(first))
	}
	// Existing mailboxes keep their identity across reprovisioning.
	firstIDs := make(map[uuid.UUID]bool)
	for _, m := range first {
		firstIDs[m.ID] = true
	}
	for _, m := range second {
		if !firstIDs[m.ID] {
			t.Errorf("mailbox %q was recreated with a new ID", m.Path)
		}
	}
}

func TestEnsure(t *testing.T) {
	svc, store, _, _ := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	if err := svc.Ensure(ctx, accountID); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	n, _ := store.CountByAccount(ctx, accountID)
	if n != 6 {
		t.Fatalf("got %d mailboxes after Ensure, want 6", n)
	}
	if err := svc.Ensure(ctx, accountID); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	n, _ = store.CountByAccount(ctx, accountID)
	if n != 6 {
		t.Fatalf("second Ensure changed mailbox count to %d", n)
	}
}

func TestCreateUserMailbox(t *testing.T) {
	svc, _, _, _ := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	m, err := svc.Create(ctx, accountID, "Project X", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if m.Path != "project-x" {
		t.Errorf("path = %q, want %q", m.Path, "project-x")
	}
	if m.IsSpecial() {
		t.Error("user mailbox should not be special")
	}

	if _, err := svc.Create(ctx, accountID, "project  x", ""); !errors.Is(err, mailerr.ErrAlreadyExists) {
		t.Errorf("duplicate path error = %v, want ErrAlreadyExists", err)
	}
	if _, err := svc.Create(ctx, accountID, "  ", ""); !errors.Is(err, mailerr.ErrValidation) {
		t.Errorf("blank name error = %v, want ErrValidation", err)
	}
}

func TestCreateNestedMailbox(t *testing.T) {
	svc, _, _, _ := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Create(ctx, accountID, "Projects", ""); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.Create(ctx, accountID, "Alpha", "projects")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.Path != "projects/alpha" {
		t.Errorf("child path = %q, want %q", child.Path, "projects/alpha")
	}

	grandchild, err := svc.Create(ctx, accountID, "Specs", "projects/alpha")
	if err != nil {
		t.Fatalf("create grandchild: %v", err)
	}
	if grandchild.Path != "projects/alpha/specs" {
		t.Errorf("grandchild path = %q, want %q", grandchild.Path, "projects/alpha/specs")
	}

	if _, err := svc.Create(ctx, accountID, "Alpha", "projects"); !errors.Is(err, mailerr.ErrAlreadyExists) {
		t.Errorf("duplicate nested path error = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateUnknownParent(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, uuid.New(), "Alpha", "no-such-folder"); !errors.Is(err, mailerr.ErrNotFound) {
		t.Errorf("unknown parent error = %v, want ErrNotFound", err)
	}
}

func TestDeleteSpecialMailboxForbidden(t *testing.T) {
	svc, _, _, _ := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	mailboxes, err := svc.ProvisionDefaults(ctx, accountID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	for _, m := range mailboxes {
		if err := svc.Delete(ctx, accountID, m.ID); !errors.Is(err, mailerr.ErrForbidden) {
			t.Errorf("delete %q error = %v, want ErrForbidden", m.Path, err)
		}
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, store, messages, blobs := newTestService()
	accountID := uuid.New()
	ctx := context.Background()

	m, err := svc.Create(ctx, accountID, "bulk", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Three batches worth of messages, some with attachments.
	var keys []string
	for i := 0; i < deleteBatchSize*2+10; i++ {
		keys = append(keys, uuid.New().String())
	}
	messages.byMailbox[m.ID] = append([]string(nil), keys...)

	if err := svc.Delete(ctx, accountID, m.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByID(ctx, accountID, m.ID); !errors.Is(err, mailerr.ErrNotFound) {
		t.Error("mailbox record should be gone")
	}
	if len(blobs.deleted) != len(keys) {
		t.Errorf("deleted %d blobs, want %d", len(blobs.deleted), len(keys))
	}
}

func TestDeleteOtherAccountsMailbox(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	owner := uuid.New()
	m, err := svc.Create(ctx, owner, "private", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, uuid.New(), m.ID); !errors.Is(err, mailerr.ErrNotFound) {
		t.Errorf("cross-account delete error = %v, want ErrNotFound", err)
	}
}

func TestPathFromName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Inbox", "inbox"},
		{"Project X", "project-x"},
		{"  Spaced   Out  ", "spaced-out"},
		{"already-kebab", "already-kebab"},
		{"fake/nested", "fake-nested"},
	}
	for _, tt := range tests {
		if got := PathFromName(tt.in); got != tt.want {
			t.Errorf("PathFromName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
