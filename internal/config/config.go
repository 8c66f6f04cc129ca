package config

import (
	"os"
	"strconv"
	"time"
)

// Default values used when the corresponding environment variable is unset.
const (
	DefaultBudgetCapUnits      = 500
	DefaultBudgetWindowHours   = 24
	DefaultCacheMaxBytes       = 8 << 20 // 8 MiB of cached payloads
	DefaultStaticTTLHours      = 24 * 30
	DefaultVariableTTLHours    = 24
	DefaultItemsPerSession     = 10
	DefaultNotificationStart   = 8
	DefaultNotificationEnd     = 20
	DefaultExampleCostUnits    = 1
	DefaultAudioCostUnits      = 5
)

// Tuning holds the spaced-repetition parameters. They are named fields
// rather than literals so test suites can probe boundary values directly.
type Tuning struct {
	InitialEase       float64 // Ease factor for a freshly created record
	EaseIncrement     float64 // Added to ease factor on a correct answer
	EaseDecrement     float64 // Subtracted from ease factor on an incorrect answer
	MinEase           float64
	MaxEase           float64
	IntervalFloorDays float64 // Minimum review interval
	MaxIntervalDays   float64
	MasteryThreshold  int // Correct streak at which an item counts as mastered
}

// DefaultTuning returns the tuning used in production.
func DefaultTuning() Tuning {
	return Tuning{
		InitialEase:       2.5,
		EaseIncrement:     0.1,
		EaseDecrement:     0.3,
		MinEase:           1.3,
		MaxEase:           3.0,
		IntervalFloorDays: 1,
		MaxIntervalDays:   365,
		MasteryThreshold:  3,
	}
}

// Config is the application configuration, assembled from environment
// variables (a .env file is loaded first by main).
type Config struct {
	TelegramToken string
	OpenAIKey     string
	AdminUserIDs  string // Comma-separated Telegram IDs

	// Budget ledger
	BudgetCapUnits int
	BudgetWindow   time.Duration

	// Response cache
	CacheMaxBytes int
	StaticTTL     time.Duration // TTL class for fixed curriculum content (audio, canned examples)
	VariableTTL   time.Duration // TTL class for personalized or variable content

	// Per-modality charge, in budget units
	ExampleCostUnits int
	AudioCostUnits   int

	// Sessions and notifications
	ItemsPerSession       int
	NotificationStartHour int
	NotificationEndHour   int

	Tuning Tuning
}

// Load builds the configuration from the environment.
func Load() *Config {
	return &Config{
		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		AdminUserIDs:          os.Getenv("ADMIN_USER_IDS"),
		BudgetCapUnits:        envInt("BUDGET_CAP_UNITS", DefaultBudgetCapUnits),
		BudgetWindow:          time.Duration(envInt("BUDGET_WINDOW_HOURS", DefaultBudgetWindowHours)) * time.Hour,
		CacheMaxBytes:         envInt("CACHE_MAX_BYTES", DefaultCacheMaxBytes),
		StaticTTL:             time.Duration(envInt("CACHE_STATIC_TTL_HOURS", DefaultStaticTTLHours)) * time.Hour,
		VariableTTL:           time.Duration(envInt("CACHE_VARIABLE_TTL_HOURS", DefaultVariableTTLHours)) * time.Hour,
		ExampleCostUnits:      envInt("EXAMPLE_COST_UNITS", DefaultExampleCostUnits),
		AudioCostUnits:        envInt("AUDIO_COST_UNITS", DefaultAudioCostUnits),
		ItemsPerSession:       envInt("ITEMS_PER_SESSION", DefaultItemsPerSession),
		NotificationStartHour: envInt("NOTIFICATION_START_HOUR", DefaultNotificationStart),
		NotificationEndHour:   envInt("NOTIFICATION_END_HOUR", DefaultNotificationEnd),
		Tuning:                DefaultTuning(),
	}
}

// envInt reads an integer environment variable, falling back to def when
// the variable is unset or malformed.
func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
