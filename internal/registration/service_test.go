package registration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
)

// fakeGate mirrors the transactional consume-and-create: the gate is
// re-checked under the lock, and a failed insert rolls the use back.
type fakeGate struct {
	mu        sync.Mutex
	tokens    map[uuid.UUID]*models.RegistrationToken
	byCode    map[string]uuid.UUID
	emails    map[string]bool
	attendees []models.Attendee

	// skipEmailPrecheck makes the pre-check lie so the insert itself hits
	// the duplicate, exercising the rollback path.
	skipEmailPrecheck bool
	insertErr         error
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		tokens: make(map[uuid.UUID]*models.RegistrationToken),
		byCode: make(map[string]uuid.UUID),
		emails: make(map[string]bool),
	}
}

func (g *fakeGate) addToken(code string, maxUses int, expiresAt time.Time, active bool) *models.RegistrationToken {
	t := &models.RegistrationToken{
		ID:        uuid.New(),
		Token:     code,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
		IsActive:  active,
	}
	g.tokens[t.ID] = t
	g.byCode[code] = t.ID
	return t
}

func (g *fakeGate) addAttendee(email string) {
	g.emails[email] = true
	g.attendees = append(g.attendees, models.Attendee{ID: uuid.New(), Email: email})
}

func (g *fakeGate) TokenByCode(_ context.Context, code string) (*models.RegistrationToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byCode[code]
	if !ok {
		return nil, ErrInvalidToken
	}
	cp := *g.tokens[id]
	return &cp, nil
}

func (g *fakeGate) AttendeeEmailExists(_ context.Context, email string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.skipEmailPrecheck {
		return false, nil
	}
	return g.emails[email], nil
}

func (g *fakeGate) ConsumeAndCreate(_ context.Context, tokenID uuid.UUID, a *models.Attendee) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tokens[tokenID]
	if !ok || !t.UsableAt(time.Now()) {
		return ErrTokenExpired
	}
	t.CurrentUses++

	rollback := func() { t.CurrentUses-- }
	if g.insertErr != nil {
		rollback()
		return g.insertErr
	}
	if g.emails[a.Email] {
		rollback()
		return ErrDuplicateEmail
	}

	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	g.emails[a.Email] = true
	g.attendees = append(g.attendees, *a)
	return nil
}

func (g *fakeGate) uses(code string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens[g.byCode[code]].CurrentUses
}

func (g *fakeGate) attendeeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.attendees)
}

func TestRegisterWalkIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("ABC123", 2, time.Now().Add(time.Hour), true)
	svc := NewService(gate, zap.NewNop())

	a, err := svc.Register(ctx, RegisterInput{
		Token:    "ABC123",
		FullName: "Dana Walk",
		Email:    "Dana@Example.com",
	})
	require.NoError(t, err)
	require.Equal(t, models.RegistrationTypeWalkIn, a.RegistrationType)
	require.Equal(t, "dana@example.com", a.Email, "emails are stored lowercased")
	require.Len(t, a.QRToken, 6)
	require.Equal(t, 1, gate.uses("ABC123"))
}

func TestRegisterSingleUseToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("ABC123", 1, time.Now().Add(time.Hour), true)
	svc := NewService(gate, zap.NewNop())

	first, err := svc.Register(ctx, RegisterInput{Token: "abc123", FullName: "First In", Email: "first@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, first.QRToken)
	require.Equal(t, 1, gate.uses("ABC123"))

	_, err = svc.Register(ctx, RegisterInput{Token: "ABC123", FullName: "Second Out", Email: "second@example.com"})
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Equal(t, 1, gate.uses("ABC123"), "a rejected registration consumes nothing")
	require.Equal(t, 1, gate.attendeeCount())
}

func TestRegisterUnknownToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	svc := NewService(gate, zap.NewNop())

	_, err := svc.Register(ctx, RegisterInput{Token: "NOPE99", FullName: "No One", Email: "no@example.com"})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Zero(t, gate.attendeeCount())
}

func TestRegisterUnusableToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		gate := newFakeGate()
		gate.addToken("OLD111", 5, time.Now().Add(-time.Minute), true)
		svc := NewService(gate, zap.NewNop())

		_, err := svc.Register(ctx, RegisterInput{Token: "OLD111", FullName: "Late Guest", Email: "late@example.com"})
		require.ErrorIs(t, err, ErrTokenExpired)
		require.Zero(t, gate.uses("OLD111"))
	})

	t.Run("deactivated", func(t *testing.T) {
		gate := newFakeGate()
		gate.addToken("OFF222", 5, time.Now().Add(time.Hour), false)
		svc := NewService(gate, zap.NewNop())

		_, err := svc.Register(ctx, RegisterInput{Token: "OFF222", FullName: "Turned Away", Email: "away@example.com"})
		require.ErrorIs(t, err, ErrTokenExpired)
		require.Zero(t, gate.uses("OFF222"))
	})
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("DUP333", 5, time.Now().Add(time.Hour), true)
	gate.addAttendee("taken@example.com")
	svc := NewService(gate, zap.NewNop())

	_, err := svc.Register(ctx, RegisterInput{Token: "DUP333", FullName: "Again", Email: "Taken@Example.com"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	require.Zero(t, gate.uses("DUP333"), "the duplicate is caught before a use is consumed")
	require.Equal(t, 1, gate.attendeeCount())
}

func TestRegisterDuplicateEmailRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("RAC444", 5, time.Now().Add(time.Hour), true)
	gate.addAttendee("raced@example.com")
	gate.skipEmailPrecheck = true
	svc := NewService(gate, zap.NewNop())

	// The pre-check misses the duplicate; the insert inside the
	// transaction still catches it and the consumed use rolls back.
	_, err := svc.Register(ctx, RegisterInput{Token: "RAC444", FullName: "Raced", Email: "raced@example.com"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	require.Zero(t, gate.uses("RAC444"))
}

func TestRegisterInsertFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("ERR555", 5, time.Now().Add(time.Hour), true)
	gate.insertErr = fmt.Errorf("connection reset")
	svc := NewService(gate, zap.NewNop())

	_, err := svc.Register(ctx, RegisterInput{Token: "ERR555", FullName: "Unlucky", Email: "unlucky@example.com"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Zero(t, gate.uses("ERR555"))
	require.Zero(t, gate.attendeeCount())
}

func TestRegisterConcurrentLastUses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	gate.addToken("LAST66", 3, time.Now().Add(time.Hour), true)
	svc := NewService(gate, zap.NewNop())

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, RegisterInput{
				Token:    "LAST66",
				FullName: fmt.Sprintf("Guest %d", i),
				Email:    fmt.Sprintf("guest%d@example.com", i),
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, ErrTokenExpired)
		}
	}
	require.Equal(t, 3, admitted, "max_uses bounds admissions under contention")
	require.Equal(t, 3, gate.uses("LAST66"))
	require.Equal(t, 3, gate.attendeeCount())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := newFakeGate()
	expiry := time.Now().Add(time.Hour)
	tok := gate.addToken("VAL777", 2, expiry, true)
	tok.Label = "door poster"
	svc := NewService(gate, zap.NewNop())

	t.Run("usable token", func(t *testing.T) {
		status, err := svc.Validate(ctx, " val777 ")
		require.NoError(t, err)
		require.True(t, status.Valid)
		require.Equal(t, "door poster", status.Label)
		require.Equal(t, 2, status.RemainingUses)
		require.WithinDuration(t, expiry, status.ExpiresAt, time.Second)
	})

	t.Run("exhausted token reports invalid without consuming", func(t *testing.T) {
		tok.CurrentUses = 2
		status, err := svc.Validate(ctx, "VAL777")
		require.NoError(t, err)
		require.False(t, status.Valid)
		require.Zero(t, status.RemainingUses)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Validate(ctx, "MISSING")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
