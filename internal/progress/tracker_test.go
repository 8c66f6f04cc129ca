package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/pkg/models"
)

type fakeMasteryRepo struct{}

func (fakeMasteryRepo) GetByUser(context.Context, int64) ([]models.MasteryRecord, error) {
	return nil, nil
}
func (fakeMasteryRepo) Upsert(context.Context, *models.MasteryRecord) error { return nil }
func (fakeMasteryRepo) DeleteByUser(context.Context, int64) error           { return nil }

type fakeStore struct {
	mu     sync.Mutex
	snaps  map[int64]models.ProgressSnapshot
	setErr error
	sets   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{snaps: make(map[int64]models.ProgressSnapshot)}
}

func (s *fakeStore) Get(_ context.Context, userID int64) (models.ProgressSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[userID]
	return snap, ok, nil
}

func (s *fakeStore) Set(_ context.Context, snap models.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.snaps[snap.UserID] = snap
	return nil
}

func (s *fakeStore) get(userID int64) (models.ProgressSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[userID]
	return snap, ok
}

func testLibrary() *curriculum.Library {
	units := []models.Unit{
		{ID: "u1", Name: "First sounds", Position: 1},
		{ID: "u2", Name: "Digraphs", Position: 2, Prerequisites: []string{"u1"}},
	}
	items := []models.SkillItem{
		{ID: "s", UnitID: "u1", Grapheme: "s", Phoneme: "/s/", ExampleWord: "sun", Difficulty: 1, Position: 1},
		{ID: "a", UnitID: "u1", Grapheme: "a", Phoneme: "/æ/", ExampleWord: "ant", Difficulty: 1, Position: 2},
		{ID: "sh", UnitID: "u2", Grapheme: "sh", Phoneme: "/ʃ/", ExampleWord: "ship", Difficulty: 3, Position: 3},
	}
	return curriculum.New(units, items)
}

func newTestTracker(store Store) (*Tracker, *mastery.Model) {
	library := testLibrary()
	m := mastery.New(config.DefaultTuning(), library, fakeMasteryRepo{}, zap.NewNop())
	return New(m, library, store, zap.NewNop()), m
}

var day0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// master records enough correct outcomes to cross the mastery threshold.
func master(t *testing.T, m *mastery.Model, userID int64, itemID string, asOf time.Time) {
	t.Helper()
	for i := 0; i < config.DefaultTuning().MasteryThreshold; i++ {
		_, err := m.RecordOutcome(context.Background(), userID, itemID, models.ResultCorrect, asOf)
		require.NoError(t, err)
	}
}

func TestFirstSessionStartsStreak(t *testing.T) {
	tracker, _ := newTestTracker(newFakeStore())

	snap, err := tracker.OnSessionComplete(context.Background(), 1, nil, day0)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.CurrentStreakDays)
	assert.Equal(t, 0, snap.TotalMastered)
	assert.Equal(t, day0, snap.LastActiveAt)
	assert.Equal(t, []string{"u1"}, snap.UnlockedUnits, "only the prerequisite-free unit is open")
}

func TestMasteringUnitUnlocksNext(t *testing.T) {
	tracker, m := newTestTracker(newFakeStore())

	master(t, m, 1, "s", day0)
	snap, err := tracker.OnSessionComplete(context.Background(), 1, nil, day0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalMastered)
	assert.False(t, snap.HasUnit("u2"), "one unmastered item keeps the unit locked")

	master(t, m, 1, "a", day0)
	snap, err = tracker.OnSessionComplete(context.Background(), 1, nil, day0)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalMastered)
	assert.Equal(t, []string{"u1", "u2"}, snap.UnlockedUnits)
}

func TestStreakAccounting(t *testing.T) {
	tracker, _ := newTestTracker(newFakeStore())
	ctx := context.Background()

	snap, err := tracker.OnSessionComplete(ctx, 1, nil, day0)
	require.NoError(t, err)
	require.Equal(t, 1, snap.CurrentStreakDays)

	// A second session the same day leaves the streak unchanged
	snap, err = tracker.OnSessionComplete(ctx, 1, nil, day0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreakDays)

	// The next calendar day extends it, even across a short wall-clock gap
	snap, err = tracker.OnSessionComplete(ctx, 1, nil, day0.Add(19*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentStreakDays)

	// A missed day resets to 1
	snap, err = tracker.OnSessionComplete(ctx, 1, nil, day0.Add(4*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreakDays)
}

func TestSnapshotFallsBackToStore(t *testing.T) {
	store := newFakeStore()
	store.snaps[7] = models.ProgressSnapshot{
		UserID:            7,
		TotalMastered:     2,
		CurrentStreakDays: 4,
		LastActiveAt:      day0,
	}
	tracker, _ := newTestTracker(store)

	snap, err := tracker.Snapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.CurrentStreakDays)

	// The store streak continues when the next session lands the day after
	snap, err = tracker.OnSessionComplete(context.Background(), 7, nil, day0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, snap.CurrentStreakDays)
}

func TestSnapshotForNewUserIsEmpty(t *testing.T) {
	tracker, _ := newTestTracker(newFakeStore())

	snap, err := tracker.Snapshot(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalMastered)
	assert.Zero(t, snap.CurrentStreakDays)
	assert.True(t, snap.LastActiveAt.IsZero())
}

func TestPersistenceFailureKeepsSnapshot(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("disk full")
	tracker, m := newTestTracker(store)
	ctx := context.Background()

	master(t, m, 1, "s", day0)
	snap, err := tracker.OnSessionComplete(ctx, 1, nil, day0)
	require.Error(t, err)
	assert.Equal(t, 1, snap.TotalMastered, "failed write still returns the recomputed snapshot")
	assert.True(t, tracker.SyncPending(1))

	// In-memory state survives the failure
	got, err := tracker.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// Once the store recovers, the periodic flush drains the backlog
	store.setErr = nil
	assert.Equal(t, 1, tracker.FlushPending(ctx))
	assert.False(t, tracker.SyncPending(1))
	assert.Equal(t, snap, store.snaps[1])

	assert.Zero(t, tracker.FlushPending(ctx), "nothing left to flush")
}

func TestOverlappingSessionsKeepBothContributions(t *testing.T) {
	store := newFakeStore()
	tracker, m := newTestTracker(store)
	ctx := context.Background()

	// Two sessions for the same user finish at the same moment, one having
	// mastered "s" and the other "a". Each completion recomputes from the
	// shared mastery records, so whichever write lands last must still
	// carry both items.
	master(t, m, 1, "s", day0)
	master(t, m, 1, "a", day0)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.OnSessionComplete(ctx, 1, nil, day0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, ok := store.get(1)
	require.True(t, ok)
	assert.Equal(t, 2, snap.TotalMastered, "persisted snapshot holds the union of both sessions")
	assert.Equal(t, []string{"u1", "u2"}, snap.UnlockedUnits)

	got, err := tracker.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalMastered)
}

func TestResetClearsSnapshotAtGivenTime(t *testing.T) {
	store := newFakeStore()
	tracker, m := newTestTracker(store)
	ctx := context.Background()

	master(t, m, 1, "s", day0)
	_, err := tracker.OnSessionComplete(ctx, 1, nil, day0)
	require.NoError(t, err)

	resetAt := day0.Add(48 * time.Hour)
	require.NoError(t, tracker.Reset(ctx, 1, resetAt))

	snap, err := tracker.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, snap.TotalMastered)
	assert.Zero(t, snap.CurrentStreakDays)
	assert.Equal(t, resetAt, snap.UpdatedAt)

	// The zeroed row is persisted, not just cached
	persisted, ok := store.get(1)
	require.True(t, ok)
	assert.Zero(t, persisted.TotalMastered)
	assert.Equal(t, resetAt, persisted.UpdatedAt)
	assert.False(t, tracker.SyncPending(1))
}
