package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

// MessageRepo provides message persistence over PostgreSQL. Every mutation
// that changes a message's mailbox contribution adjusts the mailbox
// counters through applyMailboxDelta inside the same transaction, so the
// counter invariant holds after every individual operation.
type MessageRepo struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewMessageRepo creates a new MessageRepo.
func NewMessageRepo(db *sqlx.DB, logger *slog.Logger) *MessageRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageRepo{db: db, logger: logger}
}

const messageColumns = `id, account_id, mailbox_id, message_id, in_reply_to, refs,
	from_addrs, to_addrs, cc_addrs, bcc_addrs, subject, body_text, body_html, headers,
	seen, starred, answered, forwarded, draft, labels, encrypted, spam_score, spam_action,
	size_bytes, alias_tag, message_date, received_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m       Message
		refs    []byte
		from    []byte
		to      []byte
		cc      []byte
		bcc     []byte
		headers []byte
		labels  []byte
	)
	err := row.Scan(
		&m.ID, &m.AccountID, &m.MailboxID, &m.MessageID, &m.InReplyTo, &refs,
		&from, &to, &cc, &bcc, &m.Subject, &m.BodyText, &m.BodyHTML, &headers,
		&m.Flags.Seen, &m.Flags.Starred, &m.Flags.Answered, &m.Flags.Forwarded, &m.Flags.Draft,
		&labels, &m.Encrypted, &m.SpamScore, &m.SpamAction,
		&m.SizeBytes, &m.AliasTag, &m.MessageDate, &m.ReceivedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw  []byte
		dest any
	}{
		{refs, &m.References},
		{from, &m.From},
		{to, &m.To},
		{cc, &m.Cc},
		{bcc, &m.Bcc},
		{headers, &m.Headers},
		{labels, &m.Labels},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
				return nil, fmt.Errorf("decode message column: %w", err)
			}
		}
	}
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	return &m, nil
}

func jsonVal(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return b, nil
}

// CreateWithCounters inserts the message and its attachment metadata and
// increments the destination mailbox counters in one transaction.
func (r *MessageRepo) CreateWithCounters(ctx context.Context, m *Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cols := map[string][]byte{}
	for name, v := range map[string]any{
		"refs": m.References, "from": m.From, "to": m.To, "cc": m.Cc, "bcc": m.Bcc,
		"headers": m.Headers, "labels": m.Labels,
	} {
		b, err := jsonVal(v)
		if err != nil {
			return err
		}
		cols[name] = b
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
	`,
		m.ID, m.AccountID, m.MailboxID, m.MessageID, m.InReplyTo, cols["refs"],
		cols["from"], cols["to"], cols["cc"], cols["bcc"], m.Subject, m.BodyText, m.BodyHTML, cols["headers"],
		m.Flags.Seen, m.Flags.Starred, m.Flags.Answered, m.Flags.Forwarded, m.Flags.Draft,
		cols["labels"], m.Encrypted, m.SpamScore, m.SpamAction,
		m.SizeBytes, m.AliasTag, m.MessageDate, m.ReceivedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for i := range m.Attachments {
		a := &m.Attachments[i]
		a.MessageID = m.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, message_id, filename, content_type, size_bytes,
				storage_key, checksum, content_id, is_inline, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, a.ID, a.MessageID, a.Filename, a.ContentType, a.SizeBytes,
			a.StorageKey, a.Checksum, a.ContentID, a.Inline, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}

	clamped, err := applyMailboxDelta(ctx, tx, m.MailboxID, m.Delta())
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message create: %w", err)
	}
	r.logClamp(clamped, m.MailboxID, "create")
	return nil
}

// GetByID returns the full message including attachments. Messages of other
// accounts are indistinguishable from missing ones.
func (r *MessageRepo) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1 AND account_id = $2
	`, id, accountID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := r.db.SelectContext(ctx, &m.Attachments, `
		SELECT id, message_id, filename, content_type, size_bytes, storage_key,
			checksum, content_id, is_inline, created_at
		FROM attachments WHERE message_id = $1 ORDER BY created_at
	`, m.ID); err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	return m, nil
}

// List returns a page of message summaries sorted by message date
// descending, plus the total count for pagination.
func (r *MessageRepo) List(ctx context.Context, accountID uuid.UUID, params ListMessageParams) ([]MessageSummary, int, error) {
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	where := "WHERE m.account_id = $1"
	args := []any{accountID}
	argIdx := 2

	if params.MailboxID != nil {
		where += fmt.Sprintf(" AND m.mailbox_id = $%d", argIdx)
		args = append(args, *params.MailboxID)
		argIdx++
	}
	if params.UnseenOnly {
		where += " AND m.seen = false"
	}
	if params.Starred {
		where += " AND m.starred = true"
	}
	if params.Label != "" {
		where += fmt.Sprintf(" AND m.labels ? $%d", argIdx)
		args = append(args, params.Label)
		argIdx++
	}

	return r.querySummaries(ctx, where, args, argIdx, params.Limit, params.Offset)
}

// Search executes free-text and structured-filter queries over messages.
func (r *MessageRepo) Search(ctx context.Context, accountID uuid.UUID, params SearchParams) ([]MessageSummary, int, error) {
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	where := "WHERE m.account_id = $1"
	args := []any{accountID}
	argIdx := 2

	if params.Query != "" {
		where += fmt.Sprintf(` AND (
			m.subject ILIKE $%d OR m.body_text ILIKE $%d OR m.from_addrs::text ILIKE $%d
		)`, argIdx, argIdx, argIdx)
		args = append(args, "%"+params.Query+"%")
		argIdx++
	}
	if params.MailboxID != nil {
		where += fmt.Sprintf(" AND m.mailbox_id = $%d", argIdx)
		args = append(args, *params.MailboxID)
		argIdx++
	}
	if params.Seen != nil {
		where += fmt.Sprintf(" AND m.seen = $%d", argIdx)
		args = append(args, *params.Seen)
		argIdx++
	}
	if params.Starred != nil {
		where += fmt.Sprintf(" AND m.starred = $%d", argIdx)
		args = append(args, *params.Starred)
		argIdx++
	}
	if params.Label != "" {
		where += fmt.Sprintf(" AND m.labels ? $%d", argIdx)
		args = append(args, params.Label)
		argIdx++
	}
	if params.From != "" {
		where += fmt.Sprintf(" AND m.from_addrs::text ILIKE $%d", argIdx)
		args = append(args, "%"+params.From+"%")
		argIdx++
	}
	if params.Since != nil {
		where += fmt.Sprintf(" AND m.message_date >= $%d", argIdx)
		args = append(args, *params.Since)
		argIdx++
	}
	if params.Until != nil {
		where += fmt.Sprintf(" AND m.message_date <= $%d", argIdx)
		args = append(args, *params.Until)
		argIdx++
	}
	if params.HasAttachments != nil {
		if *params.HasAttachments {
			where += " AND EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id)"
		} else {
			where += " AND NOT EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id)"
		}
	}

	return r.querySummaries(ctx, where, args, argIdx, params.Limit, params.Offset)
}

func (r *MessageRepo) querySummaries(ctx context.Context, where string, args []any, argIdx, limit, offset int) ([]MessageSummary, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM messages m "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.mailbox_id, m.from_addrs, m.subject,
			m.seen, m.starred, m.answered, m.forwarded, m.draft,
			m.labels, m.size_bytes,
			EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id) AS has_attachments,
			m.message_date, m.received_at
		FROM messages m %s
		ORDER BY m.message_date DESC
		LIMIT $%d OFFSET $%d
	`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	summaries := []MessageSummary{}
	for rows.Next() {
		var (
			s      MessageSummary
			from   []byte
			labels []byte
		)
		err := rows.Scan(&s.ID, &s.MailboxID, &from, &s.Subject,
			&s.Flags.Seen, &s.Flags.Starred, &s.Flags.Answered, &s.Flags.Forwarded, &s.Flags.Draft,
			&labels, &s.SizeBytes, &s.HasAttachments, &s.MessageDate, &s.ReceivedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message summary: %w", err)
		}
		if len(from) > 0 {
			if err := json.Unmarshal(from, &s.From); err != nil {
				return nil, 0, fmt.Errorf("decode from addresses: %w", err)
			}
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &s.Labels); err != nil {
				return nil, 0, fmt.Errorf("decode labels: %w", err)
			}
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate messages: %w", err)
	}
	return summaries, total, nil
}

func (r *MessageRepo) getForUpdate(ctx context.Context, tx *sqlx.Tx, accountID, id uuid.UUID) (*Message, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1 AND account_id = $2 FOR UPDATE
	`, id, accountID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("lock message: %w", err)
	}
	return m, nil
}

// UpdateFlags applies a partial flag update. When the seen flag transitions
// the mailbox's unseen counter is adjusted in the same transaction.
func (r *MessageRepo) UpdateFlags(ctx context.Context, accountID, id uuid.UUID, upd FlagUpdate) (*Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := r.getForUpdate(ctx, tx, accountID, id)
	if err != nil {
		return nil, err
	}

	flags, unseenDelta := upd.Apply(m.Flags)
	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET seen = $2, starred = $3, answered = $4, forwarded = $5, draft = $6
		WHERE id = $1
	`, m.ID, flags.Seen, flags.Starred, flags.Answered, flags.Forwarded, flags.Draft)
	if err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}

	clamped, err := applyMailboxDelta(ctx, tx, m.MailboxID, CounterDelta{Unseen: unseenDelta})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit flag update: %w", err)
	}
	r.logClamp(clamped, m.MailboxID, "flags")
	m.Flags = flags
	return m, nil
}

// Move reassigns the message to the target mailbox and transfers its
// counter contribution from source to target in one transaction. The target
// must belong to the same account.
func (r *MessageRepo) Move(ctx context.Context, accountID, id, targetMailboxID uuid.UUID) (*Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := r.getForUpdate(ctx, tx, accountID, id)
	if err != nil {
		return nil, err
	}
	if m.MailboxID == targetMailboxID {
		return m, tx.Commit()
	}

	var targetExists bool
	err = tx.GetContext(ctx, &targetExists, `
		SELECT EXISTS (SELECT 1 FROM mailboxes WHERE id = $1 AND account_id = $2)
	`, targetMailboxID, accountID)
	if err != nil {
		return nil, fmt.Errorf("check target mailbox: %w", err)
	}
	if !targetExists {
		return nil, mailerr.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET mailbox_id = $2 WHERE id = $1`, m.ID, targetMailboxID); err != nil {
		return nil, fmt.Errorf("reassign mailbox: %w", err)
	}

	delta := m.Delta()
	// Lock in a stable order to avoid deadlocks between concurrent moves.
	first, firstDelta := m.MailboxID, delta.Neg()
	second, secondDelta := targetMailboxID, delta
	if strings.Compare(second.String(), first.String()) < 0 {
		first, second = second, first
		firstDelta, secondDelta = secondDelta, firstDelta
	}
	clamped1, err := applyMailboxDelta(ctx, tx, first, firstDelta)
	if err != nil {
		return nil, err
	}
	clamped2, err := applyMailboxDelta(ctx, tx, second, secondDelta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit move: %w", err)
	}
	r.logClamp(clamped1 || clamped2, m.MailboxID, "move")
	m.MailboxID = targetMailboxID
	return m, nil
}

// DeleteWithCounters removes the message record, cascades attachment
// metadata and decrements the owning mailbox's counters. It returns the
// storage keys of the deleted attachments so the caller can clean up blobs.
func (r *MessageRepo) DeleteWithCounters(ctx context.Context, accountID, id uuid.UUID) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := r.getForUpdate(ctx, tx, accountID, id)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := tx.SelectContext(ctx, &keys, `SELECT storage_key FROM attachments WHERE message_id = $1`, m.ID); err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, m.ID); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}

	clamped, err := applyMailboxDelta(ctx, tx, m.MailboxID, m.Delta().Neg())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message delete: %w", err)
	}
	r.logClamp(clamped, m.MailboxID, "delete")
	return keys, nil
}

// UpdateLabels replaces the message's label set.
func (r *MessageRepo) UpdateLabels(ctx context.Context, accountID, id uuid.UUID, labels []string) (*Message, error) {
	b, err := jsonVal(labels)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET labels = $3 WHERE id = $1 AND account_id = $2
	`, id, accountID, b)
	if err != nil {
		return nil, fmt.Errorf("update labels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update labels rows affected: %w", err)
	}
	if n == 0 {
		return nil, mailerr.ErrNotFound
	}
	return r.GetByID(ctx, accountID, id)
}

// RemoveLabelEverywhere removes a label name from every message of the
// account that carries it and returns the number of messages touched.
func (r *MessageRepo) RemoveLabelEverywhere(ctx context.Context, accountID uuid.UUID, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET labels = labels - $2 WHERE account_id = $1 AND labels ? $2
	`, accountID, name)
	if err != nil {
		return 0, fmt.Errorf("remove label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove label rows affected: %w", err)
	}
	return n, nil
}

// ListThread returns summaries of every message of the account whose
// Message-ID, In-Reply-To or References intersects the candidate set,
// sorted by message date ascending.
func (r *MessageRepo) ListThread(ctx context.Context, accountID uuid.UUID, candidateIDs []string) ([]MessageSummary, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(candidateIDs))
	args := []any{accountID}
	for i, cid := range candidateIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, cid)
	}
	in := strings.Join(placeholders, ", ")

	query := fmt.Sprintf(`
		SELECT m.id, m.mailbox_id, m.from_addrs, m.subject,
			m.seen, m.starred, m.answered, m.forwarded, m.draft,
			m.labels, m.size_bytes,
			EXISTS (SELECT 1 FROM attachments a WHERE a.message_id = m.id) AS has_attachments,
			m.message_date, m.received_at
		FROM messages m
		WHERE m.account_id = $1 AND (
			m.message_id IN (%s) OR m.in_reply_to IN (%s) OR m.refs ?| ARRAY[%s]
		)
		ORDER BY m.message_date ASC
	`, in, in, in)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	var summaries []MessageSummary
	for rows.Next() {
		var (
			s      MessageSummary
			from   []byte
			labels []byte
		)
		err := rows.Scan(&s.ID, &s.MailboxID, &from, &s.Subject,
			&s.Flags.Seen, &s.Flags.Starred, &s.Flags.Answered, &s.Flags.Forwarded, &s.Flags.Draft,
			&labels, &s.SizeBytes, &s.HasAttachments, &s.MessageDate, &s.ReceivedAt)
		if err != nil {
			return nil, fmt.Errorf("scan thread message: %w", err)
		}
		if len(from) > 0 {
			if err := json.Unmarshal(from, &s.From); err != nil {
				return nil, fmt.Errorf("decode from addresses: %w", err)
			}
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &s.Labels); err != nil {
				return nil, fmt.Errorf("decode labels: %w", err)
			}
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread: %w", err)
	}
	return summaries, nil
}

// CountReceivedSince counts messages in a mailbox received at or after the
// given instant. Used for the daily send limit over the Sent mailbox.
func (r *MessageRepo) CountReceivedSince(ctx context.Context, mailboxID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM messages WHERE mailbox_id = $1 AND received_at >= $2
	`, mailboxID, since)
	if err != nil {
		return 0, fmt.Errorf("count sent messages: %w", err)
	}
	return n, nil
}

// DeleteMailboxBatch deletes up to batchSize messages from a mailbox,
// keeping counters consistent, and returns how many were deleted plus the
// attachment storage keys freed. Callers loop until it returns zero, which
// bounds memory use when emptying large mailboxes.
func (r *MessageRepo) DeleteMailboxBatch(ctx context.Context, mailboxID uuid.UUID, batchSize int) (int, []string, error) {
	if batchSize < 1 {
		batchSize = 500
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	type victim struct {
		ID        uuid.UUID `db:"id"`
		Seen      bool      `db:"seen"`
		SizeBytes int64     `db:"size_bytes"`
	}
	var victims []victim
	err = tx.SelectContext(ctx, &victims, `
		SELECT id, seen, size_bytes FROM messages
		WHERE mailbox_id = $1
		ORDER BY received_at
		LIMIT $2
		FOR UPDATE
	`, mailboxID, batchSize)
	if err != nil {
		return 0, nil, fmt.Errorf("select batch: %w", err)
	}
	if len(victims) == 0 {
		return 0, nil, nil
	}

	var delta CounterDelta
	placeholders := make([]string, len(victims))
	args := make([]any, len(victims))
	for i, v := range victims {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v.ID
		delta.Messages--
		delta.SizeBytes -= v.SizeBytes
		if !v.Seen {
			delta.Unseen--
		}
	}
	in := strings.Join(placeholders, ", ")

	var keys []string
	if err := tx.SelectContext(ctx, &keys,
		fmt.Sprintf(`SELECT storage_key FROM attachments WHERE message_id IN (%s)`, in), args...); err != nil {
		return 0, nil, fmt.Errorf("list batch attachment keys: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM messages WHERE id IN (%s)`, in), args...); err != nil {
		return 0, nil, fmt.Errorf("delete batch: %w", err)
	}

	clamped, err := applyMailboxDelta(ctx, tx, mailboxID, delta)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit batch delete: %w", err)
	}
	r.logClamp(clamped, mailboxID, "batch-delete")
	return len(victims), keys, nil
}

// AttachmentKeysExist reports which of the given storage keys are still
// referenced by attachment rows. Used by the orphan cleanup sweep.
func (r *MessageRepo) AttachmentKeysExist(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k
	}
	query := fmt.Sprintf(`SELECT storage_key FROM attachments WHERE storage_key IN (%s)`,
		strings.Join(placeholders, ", "))

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("check attachment keys: %w", err)
	}
	for _, k := range found {
		result[k] = true
	}
	return result, nil
}

func (r *MessageRepo) logClamp(clamped bool, mailboxID uuid.UUID, op string) {
	if clamped {
		r.logger.Error("mailbox counter clamped to zero",
			slog.String("mailbox_id", mailboxID.String()),
			slog.String("operation", op))
	}
}
