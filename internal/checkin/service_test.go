package checkin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
)

// fakeStore enforces the same (qr_token, ordinal) uniqueness the database
// does, behind a mutex so concurrent scans exercise the retry path.
type fakeStore struct {
	mu        sync.Mutex
	attendees map[string]*models.Attendee
	instances map[string]map[int]models.CheckInInstance

	// staleCounts makes the next n CountInstances calls report one less
	// than the truth, forcing an ordinal collision.
	staleCounts int
	countErr    error
	insertErr   error
	markErr     error
}

func newFakeStore(tokens ...string) *fakeStore {
	s := &fakeStore{
		attendees: make(map[string]*models.Attendee),
		instances: make(map[string]map[int]models.CheckInInstance),
	}
	for _, tok := range tokens {
		s.attendees[tok] = &models.Attendee{
			ID:               uuid.New(),
			FullName:         "Guest " + tok,
			Email:            tok + "@example.com",
			QRToken:          tok,
			RegistrationType: models.RegistrationTypePreRegistered,
		}
	}
	return s
}

func (s *fakeStore) AttendeeByToken(_ context.Context, qrToken string) (*models.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendees[qrToken]
	if !ok {
		return nil, ErrInvalidToken
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) CountInstances(_ context.Context, qrToken string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := len(s.instances[qrToken])
	if s.staleCounts > 0 && n > 0 {
		s.staleCounts--
		n--
	}
	return n, nil
}

func (s *fakeStore) InsertInstance(_ context.Context, inst *models.CheckInInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	byOrdinal, ok := s.instances[inst.QRToken]
	if !ok {
		byOrdinal = make(map[int]models.CheckInInstance)
		s.instances[inst.QRToken] = byOrdinal
	}
	if _, taken := byOrdinal[inst.Ordinal]; taken {
		return ErrOrdinalTaken
	}
	inst.ID = uuid.New()
	inst.CreatedAt = time.Now()
	byOrdinal[inst.Ordinal] = *inst
	return nil
}

func (s *fakeStore) MarkFirstCheckIn(_ context.Context, qrToken string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	a := s.attendees[qrToken]
	a.CheckedIn = true
	if a.FirstCheckedInAt == nil {
		t := at
		a.FirstCheckedInAt = &t
	}
	return nil
}

func (s *fakeStore) ordinals(qrToken string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for ord := range s.instances[qrToken] {
		out = append(out, ord)
	}
	sort.Ints(out)
	return out
}

func TestScanGuestTypeSequence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("Q1XYZ2")
	svc := NewService(store, zap.NewNop())

	want := []struct {
		ordinal   int
		guestType string
	}{
		{1, "original"},
		{2, "plus_one"},
		{3, "plus_two"},
		{4, "plus_3"},
		{5, "plus_4"},
	}
	for _, w := range want {
		res, err := svc.Scan(ctx, "Q1XYZ2")
		require.NoError(t, err)
		require.Equal(t, w.ordinal, res.Ordinal)
		require.Equal(t, w.guestType, res.GuestType)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, store.ordinals("Q1XYZ2"))
}

func TestScanFirstScanFlipsCheckedIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("AAAAAA")
	svc := NewService(store, zap.NewNop())

	res, err := svc.Scan(ctx, "AAAAAA")
	require.NoError(t, err)
	require.Equal(t, 1, res.Ordinal)
	require.True(t, res.Attendee.CheckedIn)
	require.NotNil(t, res.Attendee.FirstCheckedInAt)

	first := *store.attendees["AAAAAA"].FirstCheckedInAt

	res, err = svc.Scan(ctx, "AAAAAA")
	require.NoError(t, err)
	require.Equal(t, 2, res.Ordinal)
	require.Equal(t, first, *store.attendees["AAAAAA"].FirstCheckedInAt, "first check-in time never moves")
}

func TestScanThreeTimes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("Q1ABCD")
	svc := NewService(store, zap.NewNop())

	var guestTypes []string
	for i := 0; i < 3; i++ {
		res, err := svc.Scan(ctx, "Q1ABCD")
		require.NoError(t, err)
		guestTypes = append(guestTypes, res.GuestType)
	}

	require.Equal(t, []string{"original", "plus_one", "plus_two"}, guestTypes)
	require.Equal(t, []int{1, 2, 3}, store.ordinals("Q1ABCD"))
	require.True(t, store.attendees["Q1ABCD"].CheckedIn)
	require.NotNil(t, store.attendees["Q1ABCD"].FirstCheckedInAt)
}

func TestScanUnknownToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("KNOWN1")
	svc := NewService(store, zap.NewNop())

	_, err := svc.Scan(ctx, "NOPE99")
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Empty(t, store.instances, "a failed scan writes nothing")

	_, err = svc.Scan(ctx, "   ")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestScanNormalizesToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("ABC234")
	svc := NewService(store, zap.NewNop())

	res, err := svc.Scan(ctx, "  abc234 ")
	require.NoError(t, err)
	require.Equal(t, "ABC234", res.Attendee.QRToken)
	require.Equal(t, 1, res.Ordinal)
}

func TestScanConcurrentSameToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("RACE42")
	svc := NewService(store, zap.NewNop())

	const n = 20
	results := make([]*ScanResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// retry until this scan lands; a real door keeps scanning too
			for {
				res, err := svc.Scan(ctx, "RACE42")
				if err == nil {
					results[i] = res
					return
				}
				if !errors.Is(err, ErrStoreUnavailable) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	var ordinals []int
	originals := 0
	for _, res := range results {
		require.NotNil(t, res)
		ordinals = append(ordinals, res.Ordinal)
		if res.GuestType == models.GuestTypeOriginal {
			originals++
		}
	}
	sort.Ints(ordinals)

	wantOrdinals := make([]int, n)
	for i := range wantOrdinals {
		wantOrdinals[i] = i + 1
	}
	require.Equal(t, wantOrdinals, ordinals, "ordinals are gapless and distinct")
	require.Equal(t, 1, originals, "exactly one scan is the original")
	require.Equal(t, wantOrdinals, store.ordinals("RACE42"))
	require.True(t, store.attendees["RACE42"].CheckedIn)
	require.NotNil(t, store.attendees["RACE42"].FirstCheckedInAt)
}

func TestScanRetriesOnOrdinalRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("STALE1")
	svc := NewService(store, zap.NewNop())

	_, err := svc.Scan(ctx, "STALE1")
	require.NoError(t, err)

	// The next scan sees a stale count, collides on ordinal 1 and must
	// recount to land on ordinal 2.
	store.staleCounts = 1
	res, err := svc.Scan(ctx, "STALE1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Ordinal)
	require.Equal(t, models.GuestTypePlusOne, res.GuestType)
}

func TestScanStoreUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("DOWN77")
	svc := NewService(store, zap.NewNop())

	store.countErr = fmt.Errorf("connection refused")
	_, err := svc.Scan(ctx, "DOWN77")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Empty(t, store.instances)
}

func TestScanSucceedsWhenFlagUpdateFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore("FLAG55")
	svc := NewService(store, zap.NewNop())

	// The instance row lands even when the flag update fails; the repair
	// pass reconciles the flag later.
	store.markErr = fmt.Errorf("connection reset")
	res, err := svc.Scan(ctx, "FLAG55")
	require.NoError(t, err)
	require.Equal(t, 1, res.Ordinal)
	require.Equal(t, []int{1}, store.ordinals("FLAG55"))
	require.False(t, store.attendees["FLAG55"].CheckedIn)
}
