package store

import (
	"context"
	"database/sql"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// LegacyStore reads and drains the flattened legacy counter structure.
// Conversion deletes each leaf only after its replacement event is durable,
// so a crash mid-batch leaves at most re-convertible leaves, never lost ones.
type LegacyStore struct {
	db *sql.DB
}

func NewLegacyStore(db *sql.DB) *LegacyStore {
	return &LegacyStore{db: db}
}

// ListLeaves returns up to limit convertible leaves for a channel in
// deterministic traversal order.
func (s *LegacyStore) ListLeaves(ctx context.Context, channelID string, limit int) ([]models.LegacyLeaf, error) {
	query := `
		SELECT streamer_id, poster_id, sequence_key, ts
		FROM legacy_stats
		WHERE channel_id = $1
		ORDER BY streamer_id, poster_id, sequence_key
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leaves []models.LegacyLeaf
	for rows.Next() {
		var leaf models.LegacyLeaf
		if err := rows.Scan(&leaf.StreamerID, &leaf.PosterID, &leaf.SequenceKey, &leaf.Timestamp); err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, rows.Err()
}

// DeleteLeaf removes a single converted leaf.
func (s *LegacyStore) DeleteLeaf(ctx context.Context, channelID string, leaf models.LegacyLeaf) error {
	query := `
		DELETE FROM legacy_stats
		WHERE channel_id = $1 AND streamer_id = $2 AND poster_id = $3 AND sequence_key = $4
	`
	_, err := s.db.ExecContext(ctx, query, channelID, leaf.StreamerID, leaf.PosterID, leaf.SequenceKey)
	return err
}

// HasLeaves reports whether any unconverted legacy data remains for a channel.
func (s *LegacyStore) HasLeaves(ctx context.Context, channelID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM legacy_stats WHERE channel_id = $1
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, channelID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
