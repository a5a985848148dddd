// Package postgres stores the lockbox event audit trail.
//
// The trail is append-only and write-mostly. It is never read back to rebuild
// solve or lock state: a restart always begins with an empty, locked box.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	DeviceID  string                 `json:"device_id"`
	BootID    *string                `json:"boot_id,omitempty"`
}

// writeTimeout bounds a single insert.
const writeTimeout = 3 * time.Second

// Client manages the Postgres connection for event storage.
type Client struct {
	db       *sql.DB
	deviceID string
}

// ConnString builds a lib/pq connection string from the standard PG* environment variables.
func ConnString() string {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "lockbox")
	dbname := getEnv("PGDATABASE", "lockbox")
	password := os.Getenv("PGPASSWORD")

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
}

// New opens and verifies a connection and ensures the events table exists.
func New(deviceID string) (*Client, error) {
	db, err := sql.Open("postgres", ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:       db,
		deviceID: deviceID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS lockbox_events (
			event_id  BIGSERIAL PRIMARY KEY,
			ts        TIMESTAMPTZ NOT NULL,
			level     TEXT NOT NULL,
			event     TEXT NOT NULL,
			msg       TEXT,
			fields    JSONB,
			device_id TEXT NOT NULL,
			boot_id   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_lockbox_events_ts ON lockbox_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_lockbox_events_boot ON lockbox_events(boot_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, bootID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	query := `
		INSERT INTO lockbox_events (ts, level, event, msg, fields, device_id, boot_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err = c.db.ExecContext(ctx, query, ts, level, event, nullable(msg), fieldsJSON, c.deviceID, nullable(bootID))
	return err
}

// Query returns the last N events for this device, newest first.
func (c *Client) Query(ctx context.Context, limit int) ([]EventRow, error) {
	limit = clampLimit(limit)

	query := `
		SELECT event_id, ts, level, event, msg, fields, device_id, boot_id
		FROM lockbox_events
		WHERE device_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, bootID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.DeviceID, &bootID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if bootID.Valid {
			e.BootID = &bootID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Ping reports whether the database is reachable.
func (c *Client) Ping() error {
	return c.db.Ping()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}
