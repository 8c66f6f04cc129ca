package models

import "time"

// ProgressSnapshot is the per-user aggregate the mission tracker maintains.
// It is recomputed after each session, kept in memory, and persisted
// best-effort: a failed write is retried on the next opportunity and
// never discards the in-memory state.
type ProgressSnapshot struct {
	UserID            int64     `json:"user_id" db:"user_id"`
	TotalMastered     int       `json:"total_mastered" db:"total_mastered"`
	CurrentStreakDays int       `json:"current_streak_days" db:"current_streak_days"`
	LastActiveAt      time.Time `json:"last_active_at" db:"last_active_at"`
	UnlockedUnits     []string  `json:"unlocked_units" db:"-"` // Unit IDs available to the learner
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// HasUnit reports whether the given unit is unlocked in this snapshot.
func (s *ProgressSnapshot) HasUnit(unitID string) bool {
	for _, id := range s.UnlockedUnits {
		if id == unitID {
			return true
		}
	}
	return false
}
