package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mailhaven/mailstore/internal/mailerr"
	"github.com/mailhaven/mailstore/internal/repository"
)

type memUsage struct {
	used   int64
	sentID uuid.UUID
}

func (s *memUsage) SumSizeByAccount(_ context.Context, _ uuid.UUID) (int64, error) {
	return s.used, nil
}

func (s *memUsage) GetBySpecialUse(_ context.Context, _ uuid.UUID, role string) (*repository.Mailbox, error) {
	if role != repository.SpecialSent {
		return nil, mailerr.ErrConfiguration
	}
	r := role
	return &repository.Mailbox{ID: s.sentID, SpecialUse: &r}, nil
}

type memSendCounts struct {
	count     int
	lastSince time.Time
}

func (s *memSendCounts) CountReceivedSince(_ context.Context, _ uuid.UUID, since time.Time) (int, error) {
	s.lastSince = since
	return s.count, nil
}

func newTestLedger(used int64, sent int) (*Ledger, *memUsage, *memSendCounts) {
	usage := &memUsage{used: used, sentID: uuid.New()}
	counts := &memSendCounts{count: sent}
	l := NewLedger(usage, counts, nil)
	return l, usage, counts
}

func TestUsage(t *testing.T) {
	l, _, _ := newTestLedger(FreeTier.StorageBytes/2, 0)

	u, err := l.Usage(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.UsedBytes != FreeTier.StorageBytes/2 {
		t.Errorf("used = %d", u.UsedBytes)
	}
	if u.LimitBytes != FreeTier.StorageBytes {
		t.Errorf("limit = %d, want free tier", u.LimitBytes)
	}
	if u.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", u.Percentage)
	}
}

func TestEnforce(t *testing.T) {
	tests := []struct {
		name       string
		used       int64
		additional int64
		wantErr    bool
	}{
		{name: "well under", used: 0, additional: 1024},
		{name: "exactly at limit", used: FreeTier.StorageBytes - 100, additional: 100},
		{name: "one byte over", used: FreeTier.StorageBytes - 100, additional: 101, wantErr: true},
		{name: "already full", used: FreeTier.StorageBytes, additional: 1, wantErr: true},
		{name: "zero additional at full", used: FreeTier.StorageBytes, additional: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLedger(tt.used, 0)
			err := l.Enforce(context.Background(), uuid.New(), tt.additional)
			if tt.wantErr && !errors.Is(err, mailerr.ErrQuotaExceeded) {
				t.Errorf("error = %v, want ErrQuotaExceeded", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
		})
	}
}

func TestEnforceSendLimit(t *testing.T) {
	tests := []struct {
		name    string
		sent    int
		wantErr bool
	}{
		{name: "under cap", sent: FreeTier.DailySendLimit - 1},
		{name: "at cap", sent: FreeTier.DailySendLimit, wantErr: true},
		{name: "over cap", sent: FreeTier.DailySendLimit + 5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLedger(0, tt.sent)
			err := l.EnforceSendLimit(context.Background(), uuid.New())
			if tt.wantErr && !errors.Is(err, mailerr.ErrSendLimitExceeded) {
				t.Errorf("error = %v, want ErrSendLimitExceeded", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
		})
	}
}

func TestDailySendCountWindow(t *testing.T) {
	l, _, counts := newTestLedger(0, 3)
	l.now = func() time.Time {
		return time.Date(2026, 8, 30, 15, 42, 7, 0, time.UTC)
	}

	n, err := l.DailySendCount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("DailySendCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	want := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if !counts.lastSince.Equal(want) {
		t.Errorf("window start = %v, want local midnight %v", counts.lastSince, want)
	}
}

func TestStaticTierLookup(t *testing.T) {
	lookup := NewStaticTierLookup()
	tier, err := lookup.TierOf(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("TierOf() error = %v", err)
	}
	if tier != FreeTier {
		t.Errorf("tier = %+v, want free tier", tier)
	}
}
