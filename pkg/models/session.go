package models

import "time"

// SessionPlan is an ordered sequence of skill items chosen for one practice
// session. Plans are immutable once built and never persisted; the caller
// tracks its own position while advancing through the plan.
type SessionPlan struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ItemIDs   []string  `json:"item_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Size returns the number of items in the plan.
func (p *SessionPlan) Size() int {
	return len(p.ItemIDs)
}

// SessionResult records the outcome of one item within a completed session.
type SessionResult struct {
	ItemID string `json:"item_id"`
	Result Result `json:"result"`
}
