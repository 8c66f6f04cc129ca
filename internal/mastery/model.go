// Package mastery tracks per-user, per-item proficiency with a
// spaced-repetition schedule: intervals grow on correct answers and
// collapse back to the floor on mistakes.
package mastery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/pkg/models"
)

// Repository persists mastery records.
type Repository interface {
	GetByUser(ctx context.Context, userID int64) ([]models.MasteryRecord, error)
	Upsert(ctx context.Context, rec *models.MasteryRecord) error
	DeleteByUser(ctx context.Context, userID int64) error
}

// Model holds the in-memory mastery state, loaded lazily per user and
// written through to the repository on every outcome. Within one user's
// flow all calls are sequential; the mutex only guards cross-user access.
type Model struct {
	tuning  config.Tuning
	library *curriculum.Library
	repo    Repository
	logger  *zap.Logger

	mu    sync.Mutex
	users map[int64]map[string]*models.MasteryRecord
}

// New creates a mastery model.
func New(tuning config.Tuning, library *curriculum.Library, repo Repository, logger *zap.Logger) *Model {
	return &Model{
		tuning:  tuning,
		library: library,
		repo:    repo,
		logger:  logger,
		users:   make(map[int64]map[string]*models.MasteryRecord),
	}
}

// RecordOutcome applies one exposure result to the (user, item) record,
// creating it on first exposure, and returns the updated record.
//
// Correct: streak and ease grow, the interval multiplies by the ease
// factor. Incorrect: streak resets, ease shrinks, the interval collapses
// to the floor. Skipped: streak and ease are untouched and the item comes
// back after the floor interval.
func (m *Model) RecordOutcome(ctx context.Context, userID int64, itemID string, result models.Result, asOf time.Time) (models.MasteryRecord, error) {
	if !result.Valid() {
		return models.MasteryRecord{}, fmt.Errorf("invalid result %q", result)
	}
	if _, ok := m.library.Item(itemID); !ok {
		return models.MasteryRecord{}, fmt.Errorf("unknown skill item %q", itemID)
	}

	m.mu.Lock()
	records, err := m.userRecordsLocked(ctx, userID)
	if err != nil {
		m.mu.Unlock()
		return models.MasteryRecord{}, err
	}

	rec, ok := records[itemID]
	if !ok {
		rec = &models.MasteryRecord{
			UserID:     userID,
			ItemID:     itemID,
			EaseFactor: m.tuning.InitialEase,
			CreatedAt:  asOf,
		}
		records[itemID] = rec
	}

	rec.AttemptCount++
	rec.LastResult = result
	rec.LastSeenAt = asOf
	rec.UpdatedAt = asOf

	switch result {
	case models.ResultCorrect:
		rec.CorrectStreak++
		rec.EaseFactor = clamp(rec.EaseFactor+m.tuning.EaseIncrement, m.tuning.MinEase, m.tuning.MaxEase)
		interval := rec.IntervalDays * rec.EaseFactor
		if interval < m.tuning.IntervalFloorDays {
			interval = m.tuning.IntervalFloorDays
		}
		if interval > m.tuning.MaxIntervalDays {
			interval = m.tuning.MaxIntervalDays
		}
		rec.IntervalDays = interval
		rec.NextDueAt = asOf.Add(days(interval))
	case models.ResultIncorrect:
		rec.CorrectStreak = 0
		rec.EaseFactor = clamp(rec.EaseFactor-m.tuning.EaseDecrement, m.tuning.MinEase, m.tuning.MaxEase)
		rec.IntervalDays = m.tuning.IntervalFloorDays
		rec.NextDueAt = asOf.Add(days(m.tuning.IntervalFloorDays))
	case models.ResultSkipped:
		// No proficiency signal: reschedule at the floor without touching
		// streak or ease.
		rec.NextDueAt = asOf.Add(days(m.tuning.IntervalFloorDays))
	}

	updated := *rec
	m.mu.Unlock()

	// Write-through is best-effort: the in-memory record stays valid and
	// the next upsert carries the latest state forward.
	if err := m.repo.Upsert(ctx, &updated); err != nil {
		m.logger.Warn("failed to persist mastery record",
			zap.Int64("user", userID), zap.String("item", itemID), zap.Error(err))
	}
	return updated, nil
}

// DueItems returns the IDs of items due for review as of the given time,
// most overdue first, easier items before harder on a tie. Items whose
// prerequisites are not yet mastered are excluded even when overdue.
func (m *Model) DueItems(ctx context.Context, userID int64, asOf time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.userRecordsLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	type dueItem struct {
		id         string
		overdue    time.Duration
		difficulty int
		position   int
	}
	var due []dueItem
	for id, rec := range records {
		if rec.NextDueAt.After(asOf) {
			continue
		}
		item, ok := m.library.Item(id)
		if !ok {
			continue
		}
		if !m.prereqsMetLocked(records, item) {
			continue
		}
		due = append(due, dueItem{
			id:         id,
			overdue:    asOf.Sub(rec.NextDueAt),
			difficulty: item.Difficulty,
			position:   item.Position,
		})
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].overdue != due[j].overdue {
			return due[i].overdue > due[j].overdue
		}
		if due[i].difficulty != due[j].difficulty {
			return due[i].difficulty < due[j].difficulty
		}
		return due[i].position < due[j].position
	})

	ids := make([]string, len(due))
	for i, d := range due {
		ids[i] = d.id
	}
	return ids, nil
}

// UnseenItems returns curriculum-ordered item IDs the user has never been
// exposed to and whose prerequisites are mastered.
func (m *Model) UnseenItems(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.userRecordsLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	var unseen []string
	for _, id := range m.library.ItemIDs() {
		if _, seen := records[id]; seen {
			continue
		}
		item, _ := m.library.Item(id)
		if !m.prereqsMetLocked(records, item) {
			continue
		}
		unseen = append(unseen, id)
	}
	return unseen, nil
}

// Records returns a copy of all mastery records for a user.
func (m *Model) Records(ctx context.Context, userID int64) ([]models.MasteryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.userRecordsLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.MasteryRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	return out, nil
}

// IsMastered reports whether a record has reached the mastery threshold.
func (m *Model) IsMastered(rec models.MasteryRecord) bool {
	return rec.CorrectStreak >= m.tuning.MasteryThreshold
}

// Reset wipes all mastery state for a user, in memory and in the store.
// Unlike routine write-through, a failure here propagates: the caller
// asked for an explicit destructive action and must know if it failed.
func (m *Model) Reset(ctx context.Context, userID int64) error {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
	return nil
}

// userRecordsLocked returns the record map for a user, loading it from the
// repository on first access. Caller must hold m.mu.
func (m *Model) userRecordsLocked(ctx context.Context, userID int64) (map[string]*models.MasteryRecord, error) {
	if records, ok := m.users[userID]; ok {
		return records, nil
	}
	stored, err := m.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mastery records: %w", err)
	}
	records := make(map[string]*models.MasteryRecord, len(stored))
	for i := range stored {
		rec := stored[i]
		records[rec.ItemID] = &rec
	}
	m.users[userID] = records
	return records, nil
}

// prereqsMetLocked reports whether every prerequisite of the item is at or
// above the mastery threshold. Caller must hold m.mu.
func (m *Model) prereqsMetLocked(records map[string]*models.MasteryRecord, item models.SkillItem) bool {
	for _, prereq := range item.Prerequisites {
		rec, ok := records[prereq]
		if !ok || rec.CorrectStreak < m.tuning.MasteryThreshold {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}
