package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// checkpointKey is the single indexer_state row the ingestion engine uses.
const checkpointKey = "last_processed_block"

// LastProcessedBlock reads the ingestion checkpoint. The second return is
// false when no checkpoint has been written yet.
func (s *Store) LastProcessedBlock() (uint64, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM indexer_state WHERE key = ?`, checkpointKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt checkpoint value %q: %w", value, err)
	}
	return block, true, nil
}

// SetLastProcessedBlock writes the ingestion checkpoint. Called exactly
// once per fully processed batch.
func (s *Store) SetLastProcessedBlock(block uint64, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO indexer_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		checkpointKey, strconv.FormatUint(block, 10), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}
