package models

// User represents a Telegram user practicing with the bot. The Telegram
// user ID is the stable identifier all learning state is keyed on.
type User struct {
	ID                  int64  `json:"id" db:"telegram_id"` // Telegram User ID
	FirstName           string `json:"first_name" db:"first_name"`
	IsAdmin             bool   `json:"is_admin" db:"is_admin"`
	NotificationEnabled bool   `json:"notification_enabled" db:"notification_enabled"`
	NotificationHour    int    `json:"notification_hour" db:"notification_hour"` // Hour of day for reminders (0-23)
	ItemsPerSession     int    `json:"items_per_session" db:"items_per_session"`
	CreatedAt           string `json:"created_at" db:"created_at"`
	UpdatedAt           string `json:"updated_at" db:"updated_at"`
}
