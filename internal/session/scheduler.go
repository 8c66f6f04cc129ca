// Package session builds practice plans from the mastery model and the
// curriculum, and feeds answer outcomes back into the model.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/curriculum"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/pkg/models"
)

// Scheduler produces session plans and advances through them. Plans are
// immutable once built; the caller owns its position within a plan.
type Scheduler struct {
	mastery *mastery.Model
	library *curriculum.Library
	logger  *zap.Logger
}

// New creates a scheduler.
func New(m *mastery.Model, library *curriculum.Library, logger *zap.Logger) *Scheduler {
	return &Scheduler{mastery: m, library: library, logger: logger}
}

// BuildSession selects up to size items for a new session: due reviews
// first, then not-yet-seen items in curriculum order respecting
// prerequisites, then the lowest-ease review items, in that priority order.
func (s *Scheduler) BuildSession(ctx context.Context, userID int64, size int, asOf time.Time) (models.SessionPlan, error) {
	if size <= 0 {
		return models.SessionPlan{}, fmt.Errorf("session size must be positive, got %d", size)
	}

	plan := models.SessionPlan{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: asOf,
	}
	chosen := make(map[string]bool)

	due, err := s.mastery.DueItems(ctx, userID, asOf)
	if err != nil {
		return models.SessionPlan{}, err
	}
	for _, id := range due {
		if len(plan.ItemIDs) == size {
			break
		}
		plan.ItemIDs = append(plan.ItemIDs, id)
		chosen[id] = true
	}

	if len(plan.ItemIDs) < size {
		unseen, err := s.mastery.UnseenItems(ctx, userID)
		if err != nil {
			return models.SessionPlan{}, err
		}
		for _, id := range unseen {
			if len(plan.ItemIDs) == size {
				break
			}
			if !chosen[id] {
				plan.ItemIDs = append(plan.ItemIDs, id)
				chosen[id] = true
			}
		}
	}

	if len(plan.ItemIDs) < size {
		reviews, err := s.lowestEaseReviews(ctx, userID, chosen)
		if err != nil {
			return models.SessionPlan{}, err
		}
		for _, id := range reviews {
			if len(plan.ItemIDs) == size {
				break
			}
			plan.ItemIDs = append(plan.ItemIDs, id)
		}
	}

	if len(plan.ItemIDs) == 0 {
		return models.SessionPlan{}, fmt.Errorf("no items available for user %d", userID)
	}

	s.logger.Debug("built session plan",
		zap.Int64("user", userID), zap.String("plan", plan.ID), zap.Int("items", len(plan.ItemIDs)))
	return plan, nil
}

// Advance records the outcome for the item at pos and returns the next
// item, or complete=true once the plan is exhausted. The plan itself is
// never mutated.
func (s *Scheduler) Advance(ctx context.Context, plan models.SessionPlan, pos int, result models.Result, asOf time.Time) (next models.SkillItem, complete bool, err error) {
	if pos < 0 || pos >= len(plan.ItemIDs) {
		return models.SkillItem{}, false, fmt.Errorf("position %d out of range for plan of %d items", pos, len(plan.ItemIDs))
	}

	if _, err := s.mastery.RecordOutcome(ctx, plan.UserID, plan.ItemIDs[pos], result, asOf); err != nil {
		return models.SkillItem{}, false, err
	}

	if pos+1 >= len(plan.ItemIDs) {
		return models.SkillItem{}, true, nil
	}
	item, ok := s.library.Item(plan.ItemIDs[pos+1])
	if !ok {
		return models.SkillItem{}, false, fmt.Errorf("plan references unknown item %q", plan.ItemIDs[pos+1])
	}
	return item, false, nil
}

// lowestEaseReviews returns already-seen, not-yet-due items ordered by
// ease factor ascending (hardest first), for backfilling short sessions.
func (s *Scheduler) lowestEaseReviews(ctx context.Context, userID int64, exclude map[string]bool) ([]string, error) {
	records, err := s.mastery.Records(ctx, userID)
	if err != nil {
		return nil, err
	}

	var candidates []models.MasteryRecord
	for _, rec := range records {
		if !exclude[rec.ItemID] {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].EaseFactor != candidates[j].EaseFactor {
			return candidates[i].EaseFactor < candidates[j].EaseFactor
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})

	ids := make([]string, len(candidates))
	for i, rec := range candidates {
		ids[i] = rec.ItemID
	}
	return ids, nil
}
