package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
)

var (
	// ErrInvalidToken means the scanned QR token matches no attendee.
	ErrInvalidToken = errors.New("unknown qr token")
	// ErrOrdinalTaken means a concurrent scan claimed the ordinal first.
	ErrOrdinalTaken = errors.New("ordinal already written")
	// ErrStoreUnavailable means the store kept failing after retries.
	ErrStoreUnavailable = errors.New("check-in store unavailable")
)

// scanRetries bounds the count-insert loop. Each lost ordinal race or
// transient store error burns one attempt.
const scanRetries = 3

// Store is what the scan path needs from persistence. Ordinal uniqueness
// per token is the store's job; the service only recounts and retries.
type Store interface {
	AttendeeByToken(ctx context.Context, qrToken string) (*models.Attendee, error)
	CountInstances(ctx context.Context, qrToken string) (int, error)
	InsertInstance(ctx context.Context, inst *models.CheckInInstance) error
	MarkFirstCheckIn(ctx context.Context, qrToken string, at time.Time) error
}

// ScanResult is what the door screen shows after a scan.
type ScanResult struct {
	Attendee    *models.Attendee `json:"attendee"`
	Ordinal     int              `json:"ordinal"`
	GuestType   string           `json:"guest_type"`
	CheckedInAt time.Time        `json:"checked_in_at"`
}

// Service resolves scans into check-in instances.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a check-in service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Scan records one scan of a QR token. The first scan is the attendee, every
// further scan a guest on the same token; ordinals per token are gapless and
// assigned in arrival order. Two scanners racing on the same token collide
// on the (token, ordinal) unique key and the loser retries with a fresh
// count, so both walk away with distinct ordinals.
func (s *Service) Scan(ctx context.Context, qrToken string) (*ScanResult, error) {
	qrToken = strings.ToUpper(strings.TrimSpace(qrToken))
	if qrToken == "" {
		return nil, ErrInvalidToken
	}

	attendee, err := s.store.AttendeeByToken(ctx, qrToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt < scanRetries; attempt++ {
		count, err := s.store.CountInstances(ctx, qrToken)
		if err != nil {
			lastErr = err
			continue
		}

		inst := &models.CheckInInstance{
			QRToken:     qrToken,
			Ordinal:     count + 1,
			CheckedInAt: time.Now().UTC(),
		}
		inst.GuestType = models.GuestTypeFor(inst.Ordinal)

		if err := s.store.InsertInstance(ctx, inst); err != nil {
			if errors.Is(err, ErrOrdinalTaken) {
				s.logger.Debug("ordinal race lost, recounting",
					zap.String("qr_token", qrToken), zap.Int("ordinal", inst.Ordinal))
			}
			lastErr = err
			continue
		}

		if inst.Ordinal == 1 {
			if err := s.store.MarkFirstCheckIn(ctx, qrToken, inst.CheckedInAt); err != nil {
				// The instance row is already in; the repair pass will
				// reconcile the flag.
				s.logger.Warn("first check-in flag update failed",
					zap.String("qr_token", qrToken), zap.Error(err))
			} else {
				attendee.CheckedIn = true
				if attendee.FirstCheckedInAt == nil {
					attendee.FirstCheckedInAt = &inst.CheckedInAt
				}
			}
		}

		return &ScanResult{
			Attendee:    attendee,
			Ordinal:     inst.Ordinal,
			GuestType:   inst.GuestType,
			CheckedInAt: inst.CheckedInAt,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, lastErr)
}
