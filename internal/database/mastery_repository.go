package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/phonicsbot/pkg/models"
)

// MasteryRepository handles database operations for mastery records
type MasteryRepository struct{}

// NewMasteryRepository creates a new repository instance
func NewMasteryRepository() *MasteryRepository {
	return &MasteryRepository{}
}

// GetByUser returns all mastery records for a user
func (r *MasteryRepository) GetByUser(ctx context.Context, userID int64) ([]models.MasteryRecord, error) {
	query := `
		SELECT user_id, item_id, attempt_count, correct_streak, ease_factor,
			interval_days, last_result, last_seen_at, next_due_at, created_at, updated_at
		FROM mastery_records WHERE user_id = ?
	`
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	rows, err := DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery records: %v", err)
	}
	defer rows.Close()

	var records []models.MasteryRecord
	for rows.Next() {
		var rec models.MasteryRecord
		err := rows.Scan(
			&rec.UserID,
			&rec.ItemID,
			&rec.AttemptCount,
			&rec.CorrectStreak,
			&rec.EaseFactor,
			&rec.IntervalDays,
			&rec.LastResult,
			&rec.LastSeenAt,
			&rec.NextDueAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mastery record: %v", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Upsert creates or updates the record for (user, item)
func (r *MasteryRepository) Upsert(ctx context.Context, rec *models.MasteryRecord) error {
	if DB.DriverName() == "postgres" {
		query := `
			INSERT INTO mastery_records (
				user_id, item_id, attempt_count, correct_streak, ease_factor,
				interval_days, last_result, last_seen_at, next_due_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (user_id, item_id) DO UPDATE SET
				attempt_count = EXCLUDED.attempt_count,
				correct_streak = EXCLUDED.correct_streak,
				ease_factor = EXCLUDED.ease_factor,
				interval_days = EXCLUDED.interval_days,
				last_result = EXCLUDED.last_result,
				last_seen_at = EXCLUDED.last_seen_at,
				next_due_at = EXCLUDED.next_due_at,
				updated_at = NOW()
		`
		_, err := DB.ExecContext(ctx, query,
			rec.UserID, rec.ItemID, rec.AttemptCount, rec.CorrectStreak, rec.EaseFactor,
			rec.IntervalDays, rec.LastResult, rec.LastSeenAt, rec.NextDueAt)
		if err != nil {
			return fmt.Errorf("failed to upsert mastery record: %v", err)
		}
		return nil
	}

	query := `
		INSERT INTO mastery_records (
			user_id, item_id, attempt_count, correct_streak, ease_factor,
			interval_days, last_result, last_seen_at, next_due_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, item_id) DO UPDATE SET
			attempt_count = excluded.attempt_count,
			correct_streak = excluded.correct_streak,
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			last_result = excluded.last_result,
			last_seen_at = excluded.last_seen_at,
			next_due_at = excluded.next_due_at,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.ExecContext(ctx, query,
		rec.UserID, rec.ItemID, rec.AttemptCount, rec.CorrectStreak, rec.EaseFactor,
		rec.IntervalDays, rec.LastResult, rec.LastSeenAt, rec.NextDueAt)
	if err != nil {
		return fmt.Errorf("failed to upsert mastery record: %v", err)
	}
	return nil
}

// DeleteByUser removes all records for a user (explicit progress reset)
func (r *MasteryRepository) DeleteByUser(ctx context.Context, userID int64) error {
	query := "DELETE FROM mastery_records WHERE user_id = ?"
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	_, err := DB.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mastery records: %v", err)
	}
	return nil
}
