package message

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

type memMessages struct {
	messages map[uuid.UUID]*repository.Message
}

func (s *memMessages) CreateWithCounters(_ context.Context, m *repository.Message) error {
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *memMessages) GetByID(_ context.Context, accountID, id uuid.UUID) (*repository.Message, error) {
	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMessages) List(_ context.Context, accountID uuid.UUID, _ repository.ListMessageParams) ([]repository.MessageSummary, int, error) {
	var out []repository.MessageSummary
	for _, m := range s.messages {
		if m.AccountID == accountID {
			out = append(out, repository.MessageSummary{ID: m.ID, MailboxID: m.MailboxID})
		}
	}
	return out, len(out), nil
}

func (s *memMessages) UpdateFlags(ctx context.Context, accountID, id uuid.UUID, upd repository.FlagUpdate) (*repository.Message, error) {
	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	m.Flags, _ = upd.Apply(m.Flags)
	cp := *m
	return &cp, nil
}

func (s *memMessages) Move(_ context.Context, accountID, id, targetMailboxID uuid.UUID) (*repository.Message, error) {
	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	m.MailboxID = targetMailboxID
	cp := *m
	return &cp, nil
}

func (s *memMessages) DeleteWithCounters(_ context.Context, accountID, id uuid.UUID) ([]string, error) {
	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	var keys []string
	for _, a := range m.Attachments {
		keys = append(keys, a.StorageKey)
	}
	delete(s.messages, id)
	return keys, nil
}

func (s *memMessages) UpdateLabels(_ context.Context, accountID, id uuid.UUID, labels []string) (*repository.Message, error) {
	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	m.Labels = labels
	cp := *m
	return &cp, nil
}

type memMailboxes struct {
	boxes map[uuid.UUID]*repository.Mailbox
}

func (s *memMailboxes) GetByID(_ context.Context, accountID, id uuid.UUID) (*repository.Mailbox, error) {
	m, ok := s.boxes[id]
	if !ok || m.AccountID != accountID {
		return nil, mailerr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMailboxes) GetBySpecialUse(_ context.Context, accountID uuid.UUID, role string) (*repository.Mailbox, error) {
	for _, m := range s.boxes {
		if m.AccountID == accountID && m.SpecialUse != nil && *m.SpecialUse == role {
			cp := *m
			return &cp, nil
		}
	}
	return nil, mailerr.ErrConfiguration
}

type memLabels struct {
	names map[string]bool
}

func (s *memLabels) GetByName(_ context.Context, _ uuid.UUID, name string) (*repository.Label, error) {
	if !s.names[name] {
		return nil, mailerr.ErrNotFound
	}
	return &repository.Label{ID: uuid.New(), Name: name}, nil
}

type memBlobs struct {
	uploaded []string
	deleted  []string
}

func (b *memBlobs) Upload(_ context.Context, accountID uuid.UUID, file blob.File) (*repository.Attachment, error) {
	key := "attachments/" + accountID.String() + "/" + file.Filename
	b.uploaded = append(b.uploaded, key)
	return &repository.Attachment{
		ID:          uuid.New(),
		Filename:    file.Filename,
		ContentType: file.ContentType,
		SizeBytes:   int64(len(file.Data)),
		StorageKey:  key,
		CreatedAt:   time.Now(),
	}, nil
}

func (b *memBlobs) PresignDownload(_ context.Context, key string) (string, time.Duration, error) {
	return "https://blobs.test/" + key, time.Hour, nil
}

func (b *memBlobs) DeleteBatch(_ context.Context, keys []string) {
	b.deleted = append(b.deleted, keys...)
}

type memQuota struct {
	enforceErr error
	sendErr    error
}

func (q *memQuota) Enforce(_ context.Context, _ uuid.UUID, _ int64) error { return q.enforceErr }
func (q *memQuota) EnforceSendLimit(_ context.Context, _ uuid.UUID) error { return q.sendErr }

type fixture struct {
	svc       *Service
	messages  *memMessages
	mailboxes *memMailboxes
	labels    *memLabels
	blobs     *memBlobs
	quota     *memQuota
	accountID uuid.UUID
	inbox     uuid.UUID
	trash     uuid.UUID
	spam      uuid.UUID
	drafts    uuid.UUID
	sent      uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		messages:  &memMessages{messages: make(map[uuid.UUID]*repository.Message)},
		mailboxes: &memMailboxes{boxes: make(map[uuid.UUID]*repository.Mailbox)},
		labels:    &memLabels{names: make(map[string]bool)},
		blobs:     &memBlobs{},
		quota:     &memQuota{},
		accountID: uuid.New(),
	}
	add := func(role string) uuid.UUID {
		id := uuid.New()
		r := role
		f.mailboxes.boxes[id] = &repository.Mailbox{
			ID: id, AccountID: f.accountID, Name: role, Path: role, SpecialUse: &r,
		}
		return id
	}
	f.inbox = add(repository.SpecialInbox)
	f.trash = add(repository.SpecialTrash)
	f.spam = add(repository.SpecialSpam)
	f.drafts = add(repository.SpecialDrafts)
	f.sent = add(repository.SpecialSent)
	f.svc = NewService(f.messages, f.mailboxes, f.labels, f.blobs, f.quota, "mailhaven.io", slog.Default())
	return f
}

func (f *fixture) store(mailboxID uuid.UUID, attachmentKeys ...string) *repository.Message {
	m := &repository.Message{
		ID:        uuid.New(),
		AccountID: f.accountID,
		MailboxID: mailboxID,
		MessageID: "<" + uuid.New().String() + "@example.org>",
		SizeBytes: 100,
	}
	for _, key := range attachmentKeys {
		m.Attachments = append(m.Attachments, repository.Attachment{ID: uuid.New(), StorageKey: key})
	}
	f.messages.messages[m.ID] = m
	return m
}

func TestDeleteRoutesToTrash(t *testing.T) {
	f := newFixture()
	m := f.store(f.inbox, "attachments/a/one")

	if err := f.svc.Delete(context.Background(), f.accountID, m.ID, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := f.messages.GetByID(context.Background(), f.accountID, m.ID)
	if err != nil {
		t.Fatalf("message should still exist after soft delete: %v", err)
	}
	if got.MailboxID != f.trash {
		t.Errorf("message in mailbox %s, want trash %s", got.MailboxID, f.trash)
	}
	if len(f.blobs.deleted) != 0 {
		t.Errorf("soft delete removed blobs: %v", f.blobs.deleted)
	}
}

func TestDeleteFromSpamRoutesToTrash(t *testing.T) {
	f := newFixture()
	m := f.store(f.spam, "attachments/a/one")

	if err := f.svc.Delete(context.Background(), f.accountID, m.ID, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := f.messages.GetByID(context.Background(), f.accountID, m.ID)
	if err != nil {
		t.Fatalf("soft delete from Spam destroyed the message: %v", err)
	}
	if got.MailboxID != f.trash {
		t.Errorf("message in mailbox %s, want trash %s", got.MailboxID, f.trash)
	}
	if len(f.blobs.deleted) != 0 {
		t.Errorf("soft delete removed blobs: %v", f.blobs.deleted)
	}
}

func TestDeletePermanent(t *testing.T) {
	f := newFixture()
	for _, mailboxID := range []uuid.UUID{f.inbox, f.trash, f.spam} {
		m := f.store(mailboxID, "attachments/a/one", "attachments/a/two")

		before := len(f.blobs.deleted)
		if err := f.svc.Delete(context.Background(), f.accountID, m.ID, true); err != nil {
			t.Fatalf("Delete(permanent) error = %v", err)
		}
		if _, err := f.messages.GetByID(context.Background(), f.accountID, m.ID); !errors.Is(err, mailerr.ErrNotFound) {
			t.Error("message should be gone after permanent delete")
		}
		if got := len(f.blobs.deleted) - before; got != 2 {
			t.Errorf("deleted %d blobs, want 2", got)
		}
	}
}

func TestDeleteCrossAccount(t *testing.T) {
	f := newFixture()
	m := f.store(f.inbox)

	if err := f.svc.Delete(context.Background(), uuid.New(), m.ID, true); !errors.Is(err, mailerr.ErrNotFound) {
		t.Errorf("cross-account delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteWithoutTrashIsConfigError(t *testing.T) {
	f := newFixture()
	m := f.store(f.inbox)
	delete(f.mailboxes.boxes, f.trash)

	if err := f.svc.Delete(context.Background(), f.accountID, m.ID, false); !errors.Is(err, mailerr.ErrConfiguration) {
		t.Errorf("soft delete without Trash error = %v, want ErrConfiguration", err)
	}
}

func TestModifyLabels(t *testing.T) {
	f := newFixture()
	f.labels.names["work"] = true
	f.labels.names["urgent"] = true
	m := f.store(f.inbox)
	m.Labels = []string{"urgent"}

	got, err := f.svc.ModifyLabels(context.Background(), f.accountID, m.ID, []string{"work"}, nil)
	if err != nil {
		t.Fatalf("ModifyLabels() error = %v", err)
	}
	if want := []string{"urgent", "work"}; !reflect.DeepEqual(got.Labels, want) {
		t.Errorf("labels = %v, want %v", got.Labels, want)
	}

	got, err = f.svc.ModifyLabels(context.Background(), f.accountID, m.ID, nil, []string{"urgent"})
	if err != nil {
		t.Fatalf("ModifyLabels() remove error = %v", err)
	}
	if want := []string{"work"}; !reflect.DeepEqual(got.Labels, want) {
		t.Errorf("labels after remove = %v, want %v", got.Labels, want)
	}
}

func TestModifyLabelsRemoveWins(t *testing.T) {
	f := newFixture()
	f.labels.names["work"] = true
	m := f.store(f.inbox)

	got, err := f.svc.ModifyLabels(context.Background(), f.accountID, m.ID, []string{"work"}, []string{"work"})
	if err != nil {
		t.Fatalf("ModifyLabels() error = %v", err)
	}
	if len(got.Labels) != 0 {
		t.Errorf("labels = %v, want empty: remove wins over add", got.Labels)
	}
}

func TestModifyLabelsUnknownLabel(t *testing.T) {
	f := newFixture()
	m := f.store(f.inbox)

	if _, err := f.svc.ModifyLabels(context.Background(), f.accountID, m.ID, []string{"ghost"}, nil); !errors.Is(err, mailerr.ErrNotFound) {
		t.Errorf("unknown label error = %v, want ErrNotFound", err)
	}
}

func TestSaveDraft(t *testing.T) {
	f := newFixture()
	body := "work in progress"
	m, err := f.svc.SaveDraft(context.Background(), f.accountID, ComposeParams{
		From:     []repository.Address{{Email: "me@mailhaven.io"}},
		BodyText: &body,
		Attachments: []blob.File{
			{Filename: "notes.txt", Data: []byte("hello")},
		},
	})
	if err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if m.MailboxID != f.drafts {
		t.Errorf("draft stored in %s, want drafts %s", m.MailboxID, f.drafts)
	}
	if !m.Flags.Draft || !m.Flags.Seen {
		t.Errorf("draft flags = %+v, want draft and seen", m.Flags)
	}
	if m.SizeBytes != int64(len(body)+len("hello")) {
		t.Errorf("size = %d, want %d", m.SizeBytes, len(body)+len("hello"))
	}
	if m.MessageID == "" {
		t.Error("draft should get a minted message id")
	}
	if len(f.blobs.uploaded) != 1 {
		t.Errorf("uploaded %d blobs, want 1", len(f.blobs.uploaded))
	}
}

func TestSaveDraftQuotaExceeded(t *testing.T) {
	f := newFixture()
	f.quota.enforceErr = mailerr.ErrQuotaExceeded

	_, err := f.svc.SaveDraft(context.Background(), f.accountID, ComposeParams{
		From:        []repository.Address{{Email: "me@mailhaven.io"}},
		Attachments: []blob.File{{Filename: "big.bin", Data: make([]byte, 1024)}},
	})
	if !errors.Is(err, mailerr.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	if len(f.blobs.uploaded) != 0 {
		t.Error("quota rejection should happen before any upload")
	}
	if len(f.messages.messages) != 0 {
		t.Error("quota rejection should leave no message behind")
	}
}

func TestRecordSent(t *testing.T) {
	f := newFixture()
	m, err := f.svc.RecordSent(context.Background(), f.accountID, ComposeParams{
		From: []repository.Address{{Email: "me@mailhaven.io"}},
		To:   []repository.Address{{Email: "you@example.org"}},
	})
	if err != nil {
		t.Fatalf("RecordSent() error = %v", err)
	}
	if m.MailboxID != f.sent {
		t.Errorf("sent record in %s, want sent %s", m.MailboxID, f.sent)
	}
	if !m.Flags.Seen || m.Flags.Draft {
		t.Errorf("sent flags = %+v, want seen and not draft", m.Flags)
	}
}

func TestRecordSentNoRecipients(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RecordSent(context.Background(), f.accountID, ComposeParams{
		From: []repository.Address{{Email: "me@mailhaven.io"}},
	})
	if !errors.Is(err, mailerr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestRecordSentLimitExceeded(t *testing.T) {
	f := newFixture()
	f.quota.sendErr = mailerr.ErrSendLimitExceeded

	_, err := f.svc.RecordSent(context.Background(), f.accountID, ComposeParams{
		From: []repository.Address{{Email: "me@mailhaven.io"}},
		To:   []repository.Address{{Email: "you@example.org"}},
	})
	if !errors.Is(err, mailerr.ErrSendLimitExceeded) {
		t.Fatalf("error = %v, want ErrSendLimitExceeded", err)
	}
	if len(f.messages.messages) != 0 {
		t.Error("rejected send should leave no record behind")
	}
}

func TestAttachmentURL(t *testing.T) {
	f := newFixture()
	m := f.store(f.inbox, "attachments/a/file.pdf")

	url, expiry, err := f.svc.AttachmentURL(context.Background(), f.accountID, m.ID, m.Attachments[0].ID)
	if err != nil {
		t.Fatalf("AttachmentURL() error = %v", err)
	}
	if url == "" || expiry <= 0 {
		t.Errorf("url = %q expiry = %v", url, expiry)
	}

	if _, _, err := f.svc.AttachmentURL(context.Background(), f.accountID, m.ID, uuid.New()); !errors.Is(err, mailerr.ErrNotFound) {
		t.Errorf("unknown attachment error = %v, want ErrNotFound", err)
	}
}
