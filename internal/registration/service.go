package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/utils"
)

var (
	// ErrInvalidToken means no registration token with that code exists.
	ErrInvalidToken = errors.New("unknown registration token")
	// ErrTokenExpired covers expired, exhausted and deactivated tokens. The
	// caller never learns which; the code on the door poster just stopped
	// working.
	ErrTokenExpired = errors.New("registration token expired or exhausted")
	// ErrDuplicateEmail means an attendee with this email already exists.
	ErrDuplicateEmail = errors.New("this email is already registered")
	// ErrTokenNotFound means no token with that id exists (admin surface).
	ErrTokenNotFound = errors.New("registration token not found")
	// ErrStoreUnavailable means the store kept failing.
	ErrStoreUnavailable = errors.New("registration store unavailable")

	errQRCollision   = errors.New("qr token collision")
	errCodeCollision = errors.New("token code collision")
)

// qrTokenLength is the length of minted walk-in QR tokens.
const qrTokenLength = 6

// mintAttempts bounds code regeneration on collision.
const mintAttempts = 5

// Store is what the walk-in flow needs from persistence.
type Store interface {
	TokenByCode(ctx context.Context, code string) (*models.RegistrationToken, error)
	AttendeeEmailExists(ctx context.Context, email string) (bool, error)
	ConsumeAndCreate(ctx context.Context, tokenID uuid.UUID, a *models.Attendee) error
}

// RegisterInput is a walk-in registration attempt.
type RegisterInput struct {
	Token    string
	FullName string
	Email    string
	Phone    string
	Company  string
}

// TokenStatus is the pre-flight answer for the registration form.
type TokenStatus struct {
	Valid         bool      `json:"valid"`
	Label         string    `json:"label,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	RemainingUses int       `json:"remaining_uses"`
}

// Service runs the walk-in registration gate.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a registration service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Register admits one walk-in through the token gate. Checks run in a fixed
// order: token exists, token usable, email not already registered. Only
// then is a use consumed and the attendee row created, atomically; a
// rejection at any check leaves current_uses untouched.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Attendee, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Token))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	tok, err := s.store.TokenByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !tok.UsableAt(time.Now()) {
		return nil, ErrTokenExpired
	}

	exists, err := s.store.AttendeeEmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if exists {
		return nil, ErrDuplicateEmail
	}

	a := &models.Attendee{
		FullName:         strings.TrimSpace(in.FullName),
		Email:            email,
		Phone:            strings.TrimSpace(in.Phone),
		Company:          strings.TrimSpace(in.Company),
		RegistrationType: models.RegistrationTypeWalkIn,
	}
	for i := 0; i < mintAttempts; i++ {
		a.QRToken, err = utils.GenerateCode(qrTokenLength)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		err = s.store.ConsumeAndCreate(ctx, tok.ID, a)
		if !errors.Is(err, errQRCollision) {
			break
		}
	}
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrDuplicateEmail):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Validate answers the pre-flight form check without consuming anything.
func (s *Service) Validate(ctx context.Context, code string) (*TokenStatus, error) {
	tok, err := s.store.TokenByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &TokenStatus{
		Valid:         tok.UsableAt(time.Now()),
		Label:         tok.Label,
		ExpiresAt:     tok.ExpiresAt,
		RemainingUses: tok.RemainingUses(),
	}, nil
}
