// Package label manages user-defined labels and their fan-out removal
// from message label sets.
package label

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

// defaultColor is applied when a label is created without one.
const defaultColor = "#808080"

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Store is the label persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, l *repository.Label) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]repository.Label, error)
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*repository.Label, error)
	GetByName(ctx context.Context, accountID uuid.UUID, name string) (*repository.Label, error)
	Update(ctx context.Context, accountID, id uuid.UUID, color string, position int) error
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}

// MessageStore removes a deleted label from every message that carries it.
type MessageStore interface {
	RemoveLabelEverywhere(ctx context.Context, accountID uuid.UUID, name string) (int64, error)
}

// Service implements label operations.
type Service struct {
	labels   Store
	messages MessageStore
	logger   *slog.Logger
}

// NewService creates a label service.
func NewService(labels Store, messages MessageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{labels: labels, messages: messages, logger: logger}
}

// Create adds a label at the end of the account's ordering. Names are
// unique per account.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, name, color string) (*repository.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: label name must not be empty", mailerr.ErrValidation)
	}
	if color == "" {
		color = defaultColor
	}
	if !colorPattern.MatchString(color) {
		return nil, fmt.Errorf("%w: color must be a hex triplet like #1a2b3c", mailerr.ErrValidation)
	}
	l := &repository.Label{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      name,
		Color:     color,
	}
	if err := s.labels.Create(ctx, l); err != nil {
		return nil, err
	}
	return s.labels.GetByID(ctx, accountID, l.ID)
}

// List returns the account's labels in manual order.
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]repository.Label, error) {
	return s.labels.ListByAccount(ctx, accountID)
}

// Get returns a single label owned by the account.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*repository.Label, error) {
	return s.labels.GetByID(ctx, accountID, id)
}

// Update changes a label's color and/or position. Nil fields keep their
// current value.
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, color *string, position *int) (*repository.Label, error) {
	l, err := s.labels.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	newColor := l.Color
	if color != nil {
		if !colorPattern.MatchString(*color) {
			return nil, fmt.Errorf("%w: color must be a hex triplet like #1a2b3c", mailerr.ErrValidation)
		}
		newColor = *color
	}
	newPosition := l.Position
	if position != nil {
		newPosition = *position
	}
	if err := s.labels.Update(ctx, accountID, id, newColor, newPosition); err != nil {
		return nil, err
	}
	return s.labels.GetByID(ctx, accountID, id)
}

// Delete removes the label and strips it from every message that carries
// it. The fan-out runs after the label record is gone; a crash in between
// leaves dangling names in message label sets, which are harmless and
// invisible once the label no longer exists.
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	l, err := s.labels.GetByID(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := s.labels.Delete(ctx, accountID, id); err != nil {
		return err
	}
	touched, err := s.messages.RemoveLabelEverywhere(ctx, accountID, l.Name)
	if err != nil {
		return fmt.Errorf("remove label from messages: %w", err)
	}
	s.logger.Info("label deleted",
		slog.String("account_id", accountID.String()),
		slog.String("name", l.Name),
		slog.Int64("messages_touched", touched))
	return nil
}
