package models

import "time"

// SkillItem represents a single phonics element to be learned, e.g. the
// grapheme "sh" with its phoneme /ʃ/. Items are reference data: loaded once
// at startup and never modified by the learning core.
type SkillItem struct {
	ID              string    `json:"id" db:"id"`
	UnitID          string    `json:"unit_id" db:"unit_id"`
	Grapheme        string    `json:"grapheme" db:"grapheme"`
	Phoneme         string    `json:"phoneme" db:"phoneme"`
	ExampleWord     string    `json:"example_word" db:"example_word"`
	ExampleSentence string    `json:"example_sentence" db:"example_sentence"`
	Difficulty      int       `json:"difficulty" db:"difficulty"` // 1-5 scale of difficulty
	Prerequisites   []string  `json:"prerequisites" db:"-"`       // IDs of items that must be mastered first
	Position        int       `json:"position" db:"position"`     // Order within the curriculum
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Unit groups skill items into a teaching block, e.g. "Short vowels".
// A unit unlocks for a learner once all items of its prerequisite units
// are mastered.
type Unit struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Position      int       `json:"position" db:"position"`
	Prerequisites []string  `json:"prerequisites" db:"-"` // IDs of units that must be completed first
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
