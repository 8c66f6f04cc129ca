package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/phonicsbot/pkg/models"
)

// SnapshotRepository handles database operations for progress snapshots.
// It is the persistent store behind the mission tracker: one row per user,
// keyed by Telegram ID.
type SnapshotRepository struct{}

// NewSnapshotRepository creates a new repository instance
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{}
}

// Get returns the stored snapshot for a user. The second return value is
// false when no snapshot has been persisted yet.
func (r *SnapshotRepository) Get(ctx context.Context, userID int64) (models.ProgressSnapshot, bool, error) {
	var snap models.ProgressSnapshot
	var unlocked string

	query := `
		SELECT user_id, total_mastered, current_streak_days, last_active_at, unlocked_units, updated_at
		FROM progress_snapshots WHERE user_id = ?
	`
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	err := DB.QueryRowContext(ctx, query, userID).Scan(
		&snap.UserID,
		&snap.TotalMastered,
		&snap.CurrentStreakDays,
		&snap.LastActiveAt,
		&unlocked,
		&snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to get progress snapshot: %v", err)
	}

	if unlocked != "" {
		snap.UnlockedUnits = strings.Split(unlocked, ",")
	}
	return snap, true, nil
}

// Set stores the snapshot, replacing any previous row for the user
func (r *SnapshotRepository) Set(ctx context.Context, snap models.ProgressSnapshot) error {
	unlocked := strings.Join(snap.UnlockedUnits, ",")

	if DB.DriverName() == "postgres" {
		query := `
			INSERT INTO progress_snapshots (
				user_id, total_mastered, current_streak_days, last_active_at, unlocked_units
			) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				total_mastered = EXCLUDED.total_mastered,
				current_streak_days = EXCLUDED.current_streak_days,
				last_active_at = EXCLUDED.last_active_at,
				unlocked_units = EXCLUDED.unlocked_units,
				updated_at = NOW()
		`
		_, err := DB.ExecContext(ctx, query,
			snap.UserID, snap.TotalMastered, snap.CurrentStreakDays, snap.LastActiveAt, unlocked)
		if err != nil {
			return fmt.Errorf("failed to set progress snapshot: %v", err)
		}
		return nil
	}

	query := `
		INSERT INTO progress_snapshots (
			user_id, total_mastered, current_streak_days, last_active_at, unlocked_units, updated_at
		) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			total_mastered = excluded.total_mastered,
			current_streak_days = excluded.current_streak_days,
			last_active_at = excluded.last_active_at,
			unlocked_units = excluded.unlocked_units,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.ExecContext(ctx, query,
		snap.UserID, snap.TotalMastered, snap.CurrentStreakDays, snap.LastActiveAt, unlocked)
	if err != nil {
		return fmt.Errorf("failed to set progress snapshot: %v", err)
	}
	return nil
}
