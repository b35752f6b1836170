// Package ledger provides an append-only history of commands sent to
// Cync devices, used for auditing and the command API.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventCommandSent   EventType = "command_sent"
	EventCommandFailed EventType = "command_failed"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	UniqueID  string         `json:"unique_id"`
	Command   string         `json:"command"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ledger provides append-only command logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new entry to the ledger. Timestamp is filled in when zero.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	var payloadJSON []byte
	var err error

	if e.Payload != nil {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO command_ledger (event_type, timestamp, unique_id, command, source, payload, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.EventType), ts.UTC().Unix(), e.UniqueID, e.Command, e.Source, string(payloadJSON), e.Error)

	return err
}

// Recent returns the newest entries, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, unique_id, command, source, payload, error
		FROM command_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ForEntity returns the newest entries for one entity, newest first
func (l *Ledger) ForEntity(ctx context.Context, uniqueID string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, unique_id, command, source, payload, error
		FROM command_ledger
		WHERE unique_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, uniqueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM command_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var source, payloadStr, errStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.UniqueID, &entry.Command, &source, &payloadStr, &errStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.Source = source.String
		entry.Error = errStr.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
