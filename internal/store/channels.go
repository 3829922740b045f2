package store

import (
	"context"
	"database/sql"
)

// ChannelStore is the directory of channels the extension has been active on.
// The chat bot polls it to know which channels to join.
type ChannelStore struct {
	db *sql.DB
}

func NewChannelStore(db *sql.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

// Touch records that a channel is using the extension. Idempotent.
func (s *ChannelStore) Touch(ctx context.Context, channelID string) error {
	query := `
		INSERT INTO channels (channel_id, joined_at)
		VALUES ($1, NOW())
		ON CONFLICT (channel_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, channelID)
	return err
}

// ListIDs returns all known channel ids.
func (s *ChannelStore) ListIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT channel_id
		FROM channels
		ORDER BY channel_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
