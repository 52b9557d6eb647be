package repository

import (
	"time"

	"github.com/google/uuid"
)

// Special-use mailbox roles. At most one mailbox per (account, role).
const (
	SpecialInbox   = "inbox"
	SpecialSent    = "sent"
	SpecialDrafts  = "drafts"
	SpecialTrash   = "trash"
	SpecialSpam    = "spam"
	SpecialArchive = "archive"
)

// Mailbox represents one folder of an account. Counters are maintained by
// the message repository in the same transaction as the message mutation
// they reflect.
type Mailbox struct {
	ID             uuid.UUID `db:"id"`
	AccountID      uuid.UUID `db:"account_id"`
	Name           string    `db:"name"`
	Path           string    `db:"path"`
	SpecialUse     *string   `db:"special_use"`
	TotalMessages  int64     `db:"total_messages"`
	UnseenMessages int64     `db:"unseen_messages"`
	SizeBytes      int64     `db:"size_bytes"`
	RetentionDays  *int      `db:"retention_days"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsSpecial reports whether the mailbox carries a special-use role.
func (m *Mailbox) IsSpecial() bool {
	return m.SpecialUse != nil && *m.SpecialUse != ""
}

// Address is a single structured email address.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Flags is the togglable flag set of a message.
type Flags struct {
	Seen      bool `json:"seen"`
	Starred   bool `json:"starred"`
	Answered  bool `json:"answered"`
	Forwarded bool `json:"forwarded"`
	Draft     bool `json:"draft"`
}

// FlagUpdate carries a partial flag mutation. Nil fields are left untouched.
type FlagUpdate struct {
	Seen      *bool `json:"seen,omitempty"`
	Starred   *bool `json:"starred,omitempty"`
	Answered  *bool `json:"answered,omitempty"`
	Forwarded *bool `json:"forwarded,omitempty"`
	Draft     *bool `json:"draft,omitempty"`
}

// Apply returns f with the non-nil fields of u applied, plus the change in
// the mailbox's unseen count this transition contributes (-1, 0 or +1).
func (u FlagUpdate) Apply(f Flags) (Flags, int64) {
	var unseenDelta int64
	if u.Seen != nil && *u.Seen != f.Seen {
		if *u.Seen {
			unseenDelta = -1
		} else {
			unseenDelta = 1
		}
		f.Seen = *u.Seen
	}
	if u.Starred != nil {
		f.Starred = *u.Starred
	}
	if u.Answered != nil {
		f.Answered = *u.Answered
	}
	if u.Forwarded != nil {
		f.Forwarded = *u.Forwarded
	}
	if u.Draft != nil {
		f.Draft = *u.Draft
	}
	return f, unseenDelta
}

// Message represents a stored message. A message belongs to exactly one
// account and one mailbox; moving it reassigns mailbox membership
// transactionally. SizeBytes is immutable after creation.
type Message struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	MailboxID   uuid.UUID
	MessageID   string
	InReplyTo   *string
	References  []string
	From        []Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     *string
	BodyText    *string
	BodyHTML    *string
	Headers     map[string]string
	Flags       Flags
	Labels      []string
	Encrypted   bool
	SpamScore   float64
	SpamAction  *string
	SizeBytes   int64
	AliasTag    *string
	MessageDate time.Time
	ReceivedAt  time.Time
	CreatedAt   time.Time
	Attachments []Attachment
}

// Delta returns the counter contribution of the message to its mailbox.
func (m *Message) Delta() CounterDelta {
	d := CounterDelta{Messages: 1, SizeBytes: m.SizeBytes}
	if !m.Flags.Seen {
		d.Unseen = 1
	}
	return d
}

// MessageSummary is the list-view projection of a message.
type MessageSummary struct {
	ID             uuid.UUID
	MailboxID      uuid.UUID
	From           []Address
	Subject        *string
	Flags          Flags
	Labels         []string
	SizeBytes      int64
	HasAttachments bool
	MessageDate    time.Time
	ReceivedAt     time.Time
}

// Attachment is attachment metadata embedded in a message. The storage key
// references a blob that must exist for as long as the message exists.
type Attachment struct {
	ID          uuid.UUID `db:"id"`
	MessageID   uuid.UUID `db:"message_id"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	StorageKey  string    `db:"storage_key"`
	Checksum    string    `db:"checksum"`
	ContentID   *string   `db:"content_id"`
	Inline      bool      `db:"is_inline"`
	CreatedAt   time.Time `db:"created_at"`
}

// Label is a user-defined tag, unique per (account, name).
type Label struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	Name      string    `db:"name"`
	Color     string    `db:"color"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
}

// ListMessageParams holds filters for listing messages. Limit is capped at
// MaxPageSize regardless of caller input.
type ListMessageParams struct {
	MailboxID  *uuid.UUID
	Limit      int
	Offset     int
	UnseenOnly bool
	Starred    bool
	Label      string
}

// SearchParams holds free-text and structured filters for message search.
type SearchParams struct {
	Query          string
	MailboxID      *uuid.UUID
	Seen           *bool
	Starred        *bool
	Label          string
	From           string
	HasAttachments *bool
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}

// MaxPageSize is the hard cap for list and search page sizes.
const MaxPageSize = 100
