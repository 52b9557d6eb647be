package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

type memMailboxes struct {
	boxes    map[uuid.UUID]*repository.Mailbox
	ensured  map[uuid.UUID]int
	counters map[uuid.UUID]repository.Counters
}

func newMemMailboxes() *memMailboxes {
	return &memMailboxes{
		boxes:    make(map[uuid.UUID]*repository.Mailbox),
		ensured:  make(map[uuid.UUID]int),
		counters: make(map[uuid.UUID]repository.Counters),
	}
}

func (s *memMailboxes) Ensure(_ context.Context, accountID uuid.UUID) error {
	s.ensured[accountID]++
	for _, m := range s.boxes {
		if m.AccountID == accountID {
			return nil
		}
	}
	for _, role := range []string{repository.SpecialInbox, repository.SpecialSpam} {
		r := role
		id := uuid.New()
		s.boxes[id] = &repository.Mailbox{ID: id, AccountID: accountID, Name: role, Path: role, SpecialUse: &r}
	}
	return nil
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

type memMessages struct {
	mailboxes *memMailboxes
	created   []*repository.Message
}

func (s *memMessages) CreateWithCounters(_ context.Context, m *repository.Message) error {
	cp := *m
	s.created = append(s.created, &cp)
	c := s.mailboxes.counters[m.MailboxID]
	d := m.Delta()
	c, _ = repository.ApplyDelta(c, d)
	s.mailboxes.counters[m.MailboxID] = c
	return nil
}

type memUploader struct {
	uploaded []string
	err      error
}

func (u *memUploader) Upload(_ context.Context, accountID uuid.UUID, file blob.File) (*repository.Attachment, error) {
	if u.err != nil {
		return nil, u.err
	}
	key := "attachments/" + accountID.String() + "/" + file.Filename
	u.uploaded = append(u.uploaded, key)
	return &repository.Attachment{
		ID:         uuid.New(),
		Filename:   file.Filename,
		SizeBytes:  int64(len(file.Data)),
		StorageKey: key,
		CreatedAt:  time.Now(),
	}, nil
}

type memQuota struct {
	err error
}

func (q *memQuota) Enforce(_ context.Context, _ uuid.UUID, _ int64) error { return q.err }

type pipelineFixture struct {
	pipeline  *Pipeline
	mailboxes *memMailboxes
	messages  *memMessages
	uploader  *memUploader
	quota     *memQuota
	accountID uuid.UUID
	rcpt      string
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		mailboxes: newMemMailboxes(),
		uploader:  &memUploader{},
		quota:     &memQuota{},
		accountID: uuid.New(),
	}
	f.messages = &memMessages{mailboxes: f.mailboxes}
	f.rcpt = f.accountID.String() + "@mailhaven.io"
	resolver := NewResolver(UUIDDirectory{}, "mailhaven.io")
	f.pipeline = NewPipeline(resolver, f.mailboxes, f.messages, f.uploader, f.quota, 5.0, "mailhaven.io", slog.Default())
	return f
}

func strPtr(s string) *string { return &s }

func TestDeliverToInbox(t *testing.T) {
	f := newPipelineFixture()
	body := string(make([]byte, 1024))

	m, box, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
		MessageID: "<abc@example.org>",
		From:      []repository.Address{{Email: "sender@example.org"}},
		Subject:   strPtr("hello"),
		BodyText:  &body,
		SpamScore: 2.0,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if box.SpecialUse == nil || *box.SpecialUse != repository.SpecialInbox {
		t.Errorf("delivered to %q, want inbox", box.Path)
	}
	if m.Flags.Seen {
		t.Error("delivered message should be unseen")
	}
	if m.SpamAction == nil || *m.SpamAction != SpamActionNone {
		t.Errorf("spam action = %v, want none", m.SpamAction)
	}
	if m.SizeBytes != 1024 {
		t.Errorf("size = %d, want 1024", m.SizeBytes)
	}

	c := f.mailboxes.counters[box.ID]
	if c.TotalMessages != 1 || c.UnseenMessages != 1 || c.SizeBytes != 1024 {
		t.Errorf("inbox counters = %+v, want {1 1 1024}", c)
	}
	if f.mailboxes.ensured[f.accountID] != 1 {
		t.Error("delivery should provision mailboxes on first touch")
	}
}

func TestDeliverSpamRouting(t *testing.T) {
	f := newPipelineFixture()

	tests := []struct {
		score    float64
		wantRole string
	}{
		{score: 4.9, wantRole: repository.SpecialInbox},
		{score: 5.0, wantRole: repository.SpecialSpam},
		{score: 9.3, wantRole: repository.SpecialSpam},
	}
	for _, tt := range tests {
		m, box, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
			From:      []repository.Address{{Email: "sender@example.org"}},
			SpamScore: tt.score,
		})
		if err != nil {
			t.Fatalf("Deliver(score=%v) error = %v", tt.score, err)
		}
		if box.SpecialUse == nil || *box.SpecialUse != tt.wantRole {
			t.Errorf("score %v delivered to %q, want %q", tt.score, box.Path, tt.wantRole)
		}
		wantAction := SpamActionNone
		if tt.wantRole == repository.SpecialSpam {
			wantAction = SpamActionSpam
		}
		if m.SpamAction == nil || *m.SpamAction != wantAction {
			t.Errorf("score %v spam action = %v, want %q", tt.score, m.SpamAction, wantAction)
		}
	}
}

func TestDeliverQuotaExceeded(t *testing.T) {
	f := newPipelineFixture()
	f.quota.err = mailerr.ErrQuotaExceeded

	_, _, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
		From:  []repository.Address{{Email: "sender@example.org"}},
		Files: []blob.File{{Filename: "big.bin", Data: make([]byte, 2048)}},
	})
	if !errors.Is(err, mailerr.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	if len(f.uploader.uploaded) != 0 {
		t.Error("quota rejection should happen before any upload")
	}
	if len(f.messages.created) != 0 {
		t.Error("quota rejection should leave no message behind")
	}
}

func TestDeliverUnknownRecipient(t *testing.T) {
	f := newPipelineFixture()

	_, _, err := f.pipeline.Deliver(context.Background(), "not-a-uuid@mailhaven.io", InboundMessage{
		From: []repository.Address{{Email: "sender@example.org"}},
	})
	if !errors.Is(err, mailerr.ErrUnknownRecipient) {
		t.Fatalf("error = %v, want ErrUnknownRecipient", err)
	}
	if len(f.messages.created) != 0 {
		t.Error("bounce should leave no message behind")
	}
}

func TestDeliverAliasTag(t *testing.T) {
	f := newPipelineFixture()

	m, _, err := f.pipeline.Deliver(context.Background(), f.accountID.String()+"+shopping@mailhaven.io", InboundMessage{
		From: []repository.Address{{Email: "shop@example.org"}},
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if m.AliasTag == nil || *m.AliasTag != "shopping" {
		t.Errorf("alias tag = %v, want %q", m.AliasTag, "shopping")
	}
}

func TestDeliverWithAttachments(t *testing.T) {
	f := newPipelineFixture()
	body := "see attached"

	m, box, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
		From:     []repository.Address{{Email: "sender@example.org"}},
		BodyText: &body,
		Files: []blob.File{
			{Filename: "report.pdf", Data: make([]byte, 500)},
			{Filename: "logo.png", Data: make([]byte, 300), Inline: true},
		},
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(m.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(m.Attachments))
	}
	wantSize := int64(len(body) + 500 + 300)
	if m.SizeBytes != wantSize {
		t.Errorf("size = %d, want %d", m.SizeBytes, wantSize)
	}
	c := f.mailboxes.counters[box.ID]
	if c.SizeBytes != wantSize {
		t.Errorf("mailbox size = %d, want %d", c.SizeBytes, wantSize)
	}
}

func TestDeliverMintsMessageID(t *testing.T) {
	f := newPipelineFixture()

	m, _, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
		From: []repository.Address{{Email: "sender@example.org"}},
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if m.MessageID == "" {
		t.Error("missing Message-ID should be minted")
	}
}

func TestDeliverSanitizesHTML(t *testing.T) {
	f := newPipelineFixture()
	html := `<p>hi</p><script>alert("x")</script>`

	m, _, err := f.pipeline.Deliver(context.Background(), f.rcpt, InboundMessage{
		From:     []repository.Address{{Email: "sender@example.org"}},
		BodyHTML: &html,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if m.BodyHTML == nil {
		t.Fatal("body html dropped entirely")
	}
	if got := *m.BodyHTML; got != "<p>hi</p>" {
		t.Errorf("sanitized html = %q, want %q", got, "<p>hi</p>")
	}
}
