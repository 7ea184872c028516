package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	_ "github.com/lib/pq"
)

// PostgresHistory persists topic history in a PostgreSQL table. It holds
// the same in-memory History as the file backend; the table is rewritten
// as the authoritative state on every Save.
type PostgresHistory struct {
	*History
	db *sql.DB
}

// NewPostgresHistory connects, pings and initializes the schema.
func NewPostgresHistory(connectionString string, retentionDays int) (*PostgresHistory, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ph := &PostgresHistory{
		History: NewHistory(retentionDays),
		db:      db,
	}

	if err := ph.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("postgres history connected")
	return ph, nil
}

func (ph *PostgresHistory) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_history (
		topic TEXT PRIMARY KEY,
		last_used DATE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_knowledge_history_last_used ON knowledge_history(last_used);
	`

	if _, err := ph.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load reads every row into memory. Query failures degrade to an empty
// history.
func (ph *PostgresHistory) Load() {
	rows, err := ph.db.Query(`SELECT topic, last_used FROM knowledge_history`)
	if err != nil {
		logger.Warn("history query failed, starting empty", "error", err)
		ph.replace(nil)
		return
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var topic string
		var lastUsed time.Time
		if err := rows.Scan(&topic, &lastUsed); err != nil {
			logger.Warn("skipping unreadable history row", "error", err)
			continue
		}
		entries[topic] = lastUsed.Format(DateLayout)
	}
	if err := rows.Err(); err != nil {
		logger.Warn("history rows failed, starting empty", "error", err)
		ph.replace(nil)
		return
	}

	ph.replace(entries)
}

// Save applies retention cleanup and replaces the table contents in one
// transaction.
func (ph *PostgresHistory) Save() error {
	entries, _ := ph.snapshotForSave()

	tx, err := ph.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM knowledge_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO knowledge_history (topic, last_used) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for topic, date := range entries {
		if _, err := stmt.Exec(topic, date); err != nil {
			return fmt.Errorf("failed to save topic %q: %w", topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// Close closes the database connection
func (ph *PostgresHistory) Close() error {
	if ph.db != nil {
		return ph.db.Close()
	}
	return nil
}
