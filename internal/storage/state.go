// Package storage provides versioned JSON state storage on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one stored entry.
type Record struct {
	ID        string
	Payload   []byte
	Version   int64
	UpdatedAt time.Time
}

// Store provides generic versioned state storage with JSON payloads.
// State is keyed by (kind, id); every write bumps the version.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new generic state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get decodes the payload for (kind, id) into v.
// Returns found=false without error if the entry does not exist.
func (s *Store) Get(ctx context.Context, kind, id string, v any) (found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload FROM resource_state
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s/%s: %w", kind, id, err)
	}
	return true, nil
}

// Put stores v as JSON, incrementing the version if the entry exists.
func (s *Store) Put(ctx context.Context, kind, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, kind, id, string(payload), now)

	if err == nil {
		log.Debug().
			Str("kind", kind).
			Str("id", id).
			Msg("Store.Put completed")
	}

	return err
}

// Delete removes a state entry.
func (s *Store) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM resource_state WHERE kind = ? AND id = ?
	`, kind, id)

	return err
}

// Clear removes all state for a kind. If kind is empty, clears all state.
func (s *Store) Clear(ctx context.Context, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM resource_state`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM resource_state WHERE kind = ?`, kind)
	}

	return err
}

// List returns every entry of a kind ordered by id.
func (s *Store) List(ctx context.Context, kind string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, version, updated_at FROM resource_state
		WHERE kind = ?
		ORDER BY id
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload string
		var updatedAt int64

		if err := rows.Scan(&rec.ID, &payload, &rec.Version, &updatedAt); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}
