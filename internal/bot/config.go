package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Default number of skill items per practice session
	DefaultItemsPerSession int
	// Upper bound a user can set for session size
	MaxItemsPerSession int
	// Long-polling timeout in seconds
	UpdateTimeout int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DefaultItemsPerSession: 10,
		MaxItemsPerSession:     20,
		UpdateTimeout:          60,
	}
}
