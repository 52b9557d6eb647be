package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

const pgUniqueViolation = "23505"

// MailboxRepo provides mailbox persistence over PostgreSQL.
type MailboxRepo struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewMailboxRepo creates a new MailboxRepo.
func NewMailboxRepo(db *sqlx.DB, logger *slog.Logger) *MailboxRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailboxRepo{db: db, logger: logger}
}

const mailboxColumns = `id, account_id, name, path, special_use, total_messages,
	unseen_messages, size_bytes, retention_days, created_at, updated_at`

// CountByAccount returns the number of mailboxes an account currently has.
func (r *MailboxRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM mailboxes WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("count mailboxes: %w", err)
	}
	return n, nil
}

// CreateBatch inserts mailboxes in one transaction, ignoring conflicts on
// the (account, special_use) and (account, path) uniqueness constraints so
// concurrent first-touch provisioning cannot create duplicates.
func (r *MailboxRepo) CreateBatch(ctx context.Context, mailboxes []*Mailbox) error {
	if len(mailboxes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range mailboxes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mailboxes (id, account_id, name, path, special_use, retention_days)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`, m.ID, m.AccountID, m.Name, m.Path, m.SpecialUse, m.RetentionDays)
		if err != nil {
			return fmt.Errorf("insert mailbox %q: %w", m.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mailbox batch: %w", err)
	}
	return nil
}

// Create inserts a single user mailbox. A path collision for the account
// maps to mailerr.ErrAlreadyExists.
func (r *MailboxRepo) Create(ctx context.Context, m *Mailbox) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailboxes (id, account_id, name, path, special_use, retention_days)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.AccountID, m.Name, m.Path, m.SpecialUse, m.RetentionDays)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return mailerr.ErrAlreadyExists
		}
		return fmt.Errorf("insert mailbox: %w", err)
	}
	return nil
}

// ListByAccount returns all mailboxes of an account ordered by path.
func (r *MailboxRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Mailbox, error) {
	var mailboxes []Mailbox
	err := r.db.SelectContext(ctx, &mailboxes, `
		SELECT `+mailboxColumns+` FROM mailboxes WHERE account_id = $1 ORDER BY path
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	return mailboxes, nil
}

// GetByID returns the mailbox if it exists and is owned by the account.
func (r *MailboxRepo) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Mailbox, error) {
	var m Mailbox
	err := r.db.GetContext(ctx, &m, `
		SELECT `+mailboxColumns+` FROM mailboxes WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("get mailbox: %w", err)
	}
	return &m, nil
}

// GetByPath returns the account's mailbox with the given path.
func (r *MailboxRepo) GetByPath(ctx context.Context, accountID uuid.UUID, path string) (*Mailbox, error) {
	var m Mailbox
	err := r.db.GetContext(ctx, &m, `
		SELECT `+mailboxColumns+` FROM mailboxes WHERE account_id = $1 AND path = $2
	`, accountID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("get mailbox by path: %w", err)
	}
	return &m, nil
}

// GetBySpecialUse returns the account's mailbox with the given role, or
// mailerr.ErrConfiguration if the role is not provisioned.
func (r *MailboxRepo) GetBySpecialUse(ctx context.Context, accountID uuid.UUID, role string) (*Mailbox, error) {
	var m Mailbox
	err := r.db.GetContext(ctx, &m, `
		SELECT `+mailboxColumns+` FROM mailboxes WHERE account_id = $1 AND special_use = $2
	`, accountID, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrConfiguration
		}
		return nil, fmt.Errorf("get special mailbox: %w", err)
	}
	return &m, nil
}

// Delete removes the mailbox record. Contained messages must already have
// been removed by the caller.
func (r *MailboxRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mailboxes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mailbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete mailbox rows affected: %w", err)
	}
	if n == 0 {
		return mailerr.ErrNotFound
	}
	return nil
}

// AdjustCounters applies a delta to a mailbox's counters atomically,
// clamping at zero. A clamp is logged as an invariant violation and never
// surfaced to the caller.
func (r *MailboxRepo) AdjustCounters(ctx context.Context, mailboxID uuid.UUID, d CounterDelta) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	clamped, err := applyMailboxDelta(ctx, tx, mailboxID, d)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit counter adjust: %w", err)
	}
	if clamped {
		r.logger.Error("mailbox counter clamped to zero",
			slog.String("mailbox_id", mailboxID.String()),
			slog.Int64("delta_messages", d.Messages),
			slog.Int64("delta_unseen", d.Unseen),
			slog.Int64("delta_size", d.SizeBytes))
	}
	return nil
}

// SumSizeByAccount returns the live aggregate size over all mailboxes of an
// account. This is the source of truth for quota usage.
func (r *MailboxRepo) SumSizeByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(size_bytes), 0) FROM mailboxes WHERE account_id = $1
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("sum mailbox sizes: %w", err)
	}
	return total, nil
}
