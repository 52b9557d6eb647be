package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

// LabelRepo provides label persistence over PostgreSQL.
type LabelRepo struct {
	db *sqlx.DB
}

// NewLabelRepo creates a new LabelRepo.
func NewLabelRepo(db *sqlx.DB) *LabelRepo {
	return &LabelRepo{db: db}
}

// Create inserts a label at the end of the account's manual ordering. A
// duplicate (account, name) maps to mailerr.ErrAlreadyExists.
func (r *LabelRepo) Create(ctx context.Context, l *Label) error {
	err := r.db.GetContext(ctx, &l.Position, `
		INSERT INTO labels (id, account_id, name, color, position)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM labels WHERE account_id = $2))
		RETURNING position
	`, l.ID, l.AccountID, l.Name, l.Color)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return mailerr.ErrAlreadyExists
		}
		return fmt.Errorf("insert label: %w", err)
	}
	return nil
}

// ListByAccount returns the account's labels in manual order.
func (r *LabelRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Label, error) {
	var labels []Label
	err := r.db.SelectContext(ctx, &labels, `
		SELECT id, account_id, name, color, position, created_at
		FROM labels WHERE account_id = $1 ORDER BY position
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return labels, nil
}

// GetByID returns the label if it exists and is owned by the account.
func (r *LabelRepo) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Label, error) {
	var l Label
	err := r.db.GetContext(ctx, &l, `
		SELECT id, account_id, name, color, position, created_at
		FROM labels WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("get label: %w", err)
	}
	return &l, nil
}

// GetByName returns the label with the given name, if any.
func (r *LabelRepo) GetByName(ctx context.Context, accountID uuid.UUID, name string) (*Label, error) {
	var l Label
	err := r.db.GetContext(ctx, &l, `
		SELECT id, account_id, name, color, position, created_at
		FROM labels WHERE account_id = $1 AND name = $2
	`, accountID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailerr.ErrNotFound
		}
		return nil, fmt.Errorf("get label by name: %w", err)
	}
	return &l, nil
}

// Update changes the label's color and/or position.
func (r *LabelRepo) Update(ctx context.Context, accountID, id uuid.UUID, color string, position int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE labels SET color = $3, position = $4 WHERE id = $1 AND account_id = $2
	`, id, accountID, color, position)
	if err != nil {
		return fmt.Errorf("update label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update label rows affected: %w", err)
	}
	if n == 0 {
		return mailerr.ErrNotFound
	}
	return nil
}

// Delete removes the label record. Fan-out removal from message label sets
// is the label service's responsibility.
func (r *LabelRepo) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM labels WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete label rows affected: %w", err)
	}
	if n == 0 {
		return mailerr.ErrNotFound
	}
	return nil
}

// DeleteByAccount removes all labels of an account. Used by account purge.
func (r *LabelRepo) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM labels WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("delete account labels: %w", err)
	}
	return nil
}
