package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the global database connection
var DB *sqlx.DB

// dbType returns the configured database driver name.
// SQLite is the default; set DB_TYPE=postgres with DATABASE_URL for Postgres.
func dbType() string {
	t := os.Getenv("DB_TYPE")
	if t == "" {
		return "sqlite"
	}
	return t
}

// Connect establishes a connection to the database
func Connect() error {
	var db *sqlx.DB
	var err error

	if dbType() == "postgres" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %v", err)
		}
	} else {
		// Create data directory if it doesn't exist
		dataDir := "data"
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %v", err)
		}

		dbPath := filepath.Join(dataDir, "phonicsbot.db")
		db, err = sqlx.Connect("sqlite3", dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %v", err)
		}

		// Enable foreign keys
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %v", err)
		}

		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	DB = db

	// Initialize schema
	return initializeSchema()
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema() error {
	// Create users table
	_, err := DB.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			first_name TEXT,
			is_admin BOOLEAN DEFAULT false,
			notification_enabled BOOLEAN DEFAULT true,
			notification_hour INTEGER DEFAULT 17,
			items_per_session INTEGER DEFAULT 10,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	// Create units table
	_, err = DB.Exec(`
		CREATE TABLE IF NOT EXISTS units (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			prerequisites TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create units table: %v", err)
	}

	// Create skill_items table
	_, err = DB.Exec(`
		CREATE TABLE IF NOT EXISTS skill_items (
			id TEXT PRIMARY KEY,
			unit_id TEXT NOT NULL,
			grapheme TEXT NOT NULL,
			phoneme TEXT NOT NULL,
			example_word TEXT DEFAULT '',
			example_sentence TEXT DEFAULT '',
			difficulty INTEGER DEFAULT 1,
			prerequisites TEXT DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (unit_id) REFERENCES units(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create skill_items table: %v", err)
	}

	// Create mastery_records table
	_, err = DB.Exec(`
		CREATE TABLE IF NOT EXISTS mastery_records (
			user_id INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			attempt_count INTEGER DEFAULT 0,
			correct_streak INTEGER DEFAULT 0,
			ease_factor REAL DEFAULT 2.5,
			interval_days REAL DEFAULT 1,
			last_result TEXT DEFAULT '',
			last_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			next_due_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, item_id),
			FOREIGN KEY (item_id) REFERENCES skill_items(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create mastery_records table: %v", err)
	}

	// Create progress_snapshots table
	_, err = DB.Exec(`
		CREATE TABLE IF NOT EXISTS progress_snapshots (
			user_id INTEGER PRIMARY KEY,
			total_mastered INTEGER DEFAULT 0,
			current_streak_days INTEGER DEFAULT 0,
			last_active_at TIMESTAMP,
			unlocked_units TEXT DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create progress_snapshots table: %v", err)
	}

	// Create cache_entries table (best-effort write-through for the response cache)
	_, err = DB.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			fingerprint TEXT PRIMARY KEY,
			payload_text TEXT DEFAULT '',
			payload_audio BLOB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			size_hint INTEGER DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create cache_entries table: %v", err)
	}

	return nil
}
