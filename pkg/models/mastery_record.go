package models

import "time"

// Result is the outcome of a single exposure to a skill item.
type Result string

const (
	// ResultCorrect means the learner answered correctly
	ResultCorrect Result = "correct"
	// ResultIncorrect means the learner answered incorrectly
	ResultIncorrect Result = "incorrect"
	// ResultSkipped means the learner skipped the item without answering
	ResultSkipped Result = "skipped"
)

// Valid reports whether r is one of the known result values.
func (r Result) Valid() bool {
	switch r {
	case ResultCorrect, ResultIncorrect, ResultSkipped:
		return true
	}
	return false
}

// MasteryRecord tracks a user's proficiency with a specific skill item using
// a spaced-repetition schedule. One record exists per (user, item) pair,
// created on first exposure and never deleted (only reset explicitly).
//
// Invariants: CorrectStreak resets to 0 on any incorrect result;
// NextDueAt is always >= LastSeenAt.
type MasteryRecord struct {
	UserID        int64     `json:"user_id" db:"user_id"`
	ItemID        string    `json:"item_id" db:"item_id"`
	AttemptCount  int       `json:"attempt_count" db:"attempt_count"`
	CorrectStreak int       `json:"correct_streak" db:"correct_streak"`
	EaseFactor    float64   `json:"ease_factor" db:"ease_factor"`     // Bounded to [MinEase, MaxEase]
	IntervalDays  float64   `json:"interval_days" db:"interval_days"` // Current review interval in days
	LastResult    Result    `json:"last_result" db:"last_result"`
	LastSeenAt    time.Time `json:"last_seen_at" db:"last_seen_at"`
	NextDueAt     time.Time `json:"next_due_at" db:"next_due_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
