package database

import (
	"fmt"
	"strings"

	"github.com/example/phonicsbot/pkg/models"
)

// UserRepository handles database operations for users
type UserRepository struct{}

// NewUserRepository creates a new repository instance
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// GetByID returns a user by Telegram ID
func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	var user models.User

	query := "SELECT telegram_id, first_name, is_admin, notification_enabled, notification_hour, items_per_session, created_at, updated_at FROM users WHERE telegram_id = ?"

	// Convert ? placeholders to $ for PostgreSQL if needed
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", -1)
	}

	err := DB.QueryRow(query, id).Scan(
		&user.ID,
		&user.FirstName,
		&user.IsAdmin,
		&user.NotificationEnabled,
		&user.NotificationHour,
		&user.ItemsPerSession,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %v", err)
	}

	return &user, nil
}

// Upsert inserts a new user or updates the mutable fields if one exists
func (r *UserRepository) Upsert(user *models.User) error {
	if DB.DriverName() == "postgres" {
		query := `
			INSERT INTO users (
				telegram_id, first_name, is_admin,
				notification_enabled, notification_hour, items_per_session
			) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (telegram_id) DO UPDATE SET
				first_name = EXCLUDED.first_name,
				notification_enabled = EXCLUDED.notification_enabled,
				notification_hour = EXCLUDED.notification_hour,
				items_per_session = EXCLUDED.items_per_session,
				updated_at = NOW()
			RETURNING created_at, updated_at
		`
		return DB.QueryRow(
			query,
			user.ID,
			user.FirstName,
			user.IsAdmin,
			user.NotificationEnabled,
			user.NotificationHour,
			user.ItemsPerSession,
		).Scan(&user.CreatedAt, &user.UpdatedAt)
	}

	// SQLite path
	query := `
		INSERT INTO users (
			telegram_id, first_name, is_admin,
			notification_enabled, notification_hour, items_per_session,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (telegram_id) DO UPDATE SET
			first_name = excluded.first_name,
			notification_enabled = excluded.notification_enabled,
			notification_hour = excluded.notification_hour,
			items_per_session = excluded.items_per_session,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.Exec(
		query,
		user.ID,
		user.FirstName,
		user.IsAdmin,
		user.NotificationEnabled,
		user.NotificationHour,
		user.ItemsPerSession,
	)
	if err != nil {
		return fmt.Errorf("failed to create/update user: %v", err)
	}

	// Get the timestamps in a separate query
	return DB.QueryRow("SELECT created_at, updated_at FROM users WHERE telegram_id = ?", user.ID).
		Scan(&user.CreatedAt, &user.UpdatedAt)
}

// Delete removes a user
func (r *UserRepository) Delete(id int64) error {
	query := "DELETE FROM users WHERE telegram_id = ?"

	// Replace ? with $ for PostgreSQL if needed
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", -1)
	}

	_, err := DB.Exec(query, id)
	return err
}

// GetUsersForNotification returns users who have reminders enabled for the given hour
func (r *UserRepository) GetUsersForNotification(hour int) ([]models.User, error) {
	condition := "notification_enabled = 1 AND notification_hour = ?"

	// Replace ? with $ for PostgreSQL if needed
	if DB.DriverName() == "postgres" {
		condition = "notification_enabled = TRUE AND notification_hour = $1"
	}

	return r.getUsersWithCondition(condition, hour)
}

// getUsersWithCondition is a helper function to get users with a specific condition
func (r *UserRepository) getUsersWithCondition(condition string, args ...interface{}) ([]models.User, error) {
	query := "SELECT telegram_id, first_name, is_admin, notification_enabled, notification_hour, items_per_session, created_at, updated_at FROM users WHERE " + condition

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users with condition: %v", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User

		err := rows.Scan(
			&user.ID,
			&user.FirstName,
			&user.IsAdmin,
			&user.NotificationEnabled,
			&user.NotificationHour,
			&user.ItemsPerSession,
			&user.CreatedAt,
			&user.UpdatedAt,
		)

		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %v", err)
		}

		users = append(users, user)
	}

	return users, nil
}
