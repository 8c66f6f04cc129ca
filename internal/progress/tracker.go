// Package progress aggregates mastery state and session outcomes into the
// user-facing progress snapshot: totals, day streaks, and unit unlocks.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/pkg/models"
)

// Store is the persistent backing for snapshots.
type Store interface {
	Get(ctx context.Context, userID int64) (models.ProgressSnapshot, bool, error)
	Set(ctx context.Context, snap models.ProgressSnapshot) error
}

// Tracker maintains per-user progress snapshots. Snapshots live in memory
// and are persisted after each session; a failed write marks the user
// sync-pending and the next successful write carries the state forward.
type Tracker struct {
	mastery *mastery.Model
	library *curriculum.Library
	store   Store
	logger  *zap.Logger

	mu        sync.Mutex
	snapshots map[int64]models.ProgressSnapshot
	pending   map[int64]bool
}

// New creates a tracker.
func New(m *mastery.Model, library *curriculum.Library, store Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		mastery:   m,
		library:   library,
		store:     store,
		logger:    logger,
		snapshots: make(map[int64]models.ProgressSnapshot),
		pending:   make(map[int64]bool),
	}
}

// OnSessionComplete recomputes the user's snapshot after a finished
// session and persists it. A persistence failure is returned to the
// caller but the recomputed snapshot is kept in memory regardless.
func (t *Tracker) OnSessionComplete(ctx context.Context, userID int64, results []models.SessionResult, now time.Time) (models.ProgressSnapshot, error) {
	records, err := t.mastery.Records(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}

	prev, err := t.current(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}

	mastered := make(map[string]bool)
	for _, rec := range records {
		if t.mastery.IsMastered(rec) {
			mastered[rec.ItemID] = true
		}
	}

	snap := models.ProgressSnapshot{
		UserID:            userID,
		TotalMastered:     len(mastered),
		CurrentStreakDays: streakDays(prev, now),
		LastActiveAt:      now,
		UnlockedUnits:     t.unlockedUnits(mastered),
		UpdatedAt:         now,
	}

	t.mu.Lock()
	t.snapshots[userID] = snap
	t.mu.Unlock()

	t.logger.Debug("session complete",
		zap.Int64("user", userID), zap.Int("answered", len(results)),
		zap.Int("mastered", snap.TotalMastered), zap.Int("streak_days", snap.CurrentStreakDays))

	if err := t.store.Set(ctx, snap); err != nil {
		t.mu.Lock()
		t.pending[userID] = true
		t.mu.Unlock()
		t.logger.Warn("failed to persist progress snapshot",
			zap.Int64("user", userID), zap.Error(err))
		return snap, err
	}

	t.mu.Lock()
	delete(t.pending, userID)
	t.mu.Unlock()
	return snap, nil
}

// Snapshot returns the user's current snapshot, preferring in-memory state
// over the store.
func (t *Tracker) Snapshot(ctx context.Context, userID int64) (models.ProgressSnapshot, error) {
	return t.current(ctx, userID)
}

// SyncPending reports whether the user's last snapshot write failed and is
// awaiting retry. Drives the non-blocking sync indicator in the bot.
func (t *Tracker) SyncPending(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[userID]
}

// FlushPending retries persistence for every sync-pending snapshot and
// returns how many writes succeeded. Run periodically by the background
// scheduler.
func (t *Tracker) FlushPending(ctx context.Context) int {
	t.mu.Lock()
	retry := make(map[int64]models.ProgressSnapshot)
	for userID := range t.pending {
		retry[userID] = t.snapshots[userID]
	}
	t.mu.Unlock()

	var flushed int
	for userID, snap := range retry {
		if err := t.store.Set(ctx, snap); err != nil {
			t.logger.Warn("retry of snapshot persistence failed",
				zap.Int64("user", userID), zap.Error(err))
			continue
		}
		t.mu.Lock()
		// Only clear the flag if no newer failed write raced in; the
		// snapshot map always holds the latest state either way.
		if t.snapshots[userID].UpdatedAt.Equal(snap.UpdatedAt) {
			delete(t.pending, userID)
		}
		t.mu.Unlock()
		flushed++
	}
	return flushed
}

// Reset clears the user's snapshot after a mastery wipe. The zeroed
// snapshot is persisted so a restart does not resurrect the old totals.
func (t *Tracker) Reset(ctx context.Context, userID int64, now time.Time) error {
	snap := models.ProgressSnapshot{UserID: userID, UpdatedAt: now.UTC()}

	t.mu.Lock()
	t.snapshots[userID] = snap
	delete(t.pending, userID)
	t.mu.Unlock()

	if err := t.store.Set(ctx, snap); err != nil {
		return fmt.Errorf("failed to reset progress snapshot: %v", err)
	}
	return nil
}

// current loads the snapshot from memory, falling back to the store.
func (t *Tracker) current(ctx context.Context, userID int64) (models.ProgressSnapshot, error) {
	t.mu.Lock()
	if snap, ok := t.snapshots[userID]; ok {
		t.mu.Unlock()
		return snap, nil
	}
	t.mu.Unlock()

	snap, found, err := t.store.Get(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	if !found {
		return models.ProgressSnapshot{UserID: userID}, nil
	}

	t.mu.Lock()
	t.snapshots[userID] = snap
	t.mu.Unlock()
	return snap, nil
}

// streakDays computes the calendar-day streak: +1 when the previous
// activity was exactly yesterday, unchanged when already active today,
// reset to 1 after any longer gap (or on first activity).
func streakDays(prev models.ProgressSnapshot, now time.Time) int {
	if prev.LastActiveAt.IsZero() {
		return 1
	}
	switch daysBetween(prev.LastActiveAt, now) {
	case 0:
		if prev.CurrentStreakDays == 0 {
			return 1
		}
		return prev.CurrentStreakDays
	case 1:
		return prev.CurrentStreakDays + 1
	default:
		return 1
	}
}

// daysBetween counts whole calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / (24 * time.Hour))
}

// unlockedUnits returns the units whose prerequisite units are fully
// mastered, in curriculum order. Units without prerequisites are always
// unlocked.
func (t *Tracker) unlockedUnits(mastered map[string]bool) []string {
	var unlocked []string
	for _, unitID := range t.library.UnitIDs() {
		unit, _ := t.library.Unit(unitID)
		open := true
		for _, prereq := range unit.Prerequisites {
			for _, itemID := range t.library.ItemsInUnit(prereq) {
				if !mastered[itemID] {
					open = false
					break
				}
			}
			if !open {
				break
			}
		}
		if open {
			unlocked = append(unlocked, unitID)
		}
	}
	return unlocked
}
