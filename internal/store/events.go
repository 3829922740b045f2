package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// EventStore persists shoutout events. Rows are append-only; eviction from a
// rotation never touches this table.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Insert writes a new event row. A missing key is assigned before the write
// and reported back on the event.
func (s *EventStore) Insert(ctx context.Context, ev *models.ShoutoutEvent) error {
	if ev.Key == "" {
		ev.Key = uuid.New().String()
	}
	query := `
		INSERT INTO shoutout_events (key, channel_id, streamer_id, poster_id, ts, legacy)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.Key, ev.ChannelID, ev.StreamerID, ev.PosterID, ev.Timestamp, ev.Legacy,
	)
	return err
}

// Get retrieves a single event by key.
func (s *EventStore) Get(ctx context.Context, key string) (*models.ShoutoutEvent, error) {
	query := `
		SELECT key, channel_id, streamer_id, poster_id, ts, legacy
		FROM shoutout_events
		WHERE key = $1
	`
	var ev models.ShoutoutEvent
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&ev.Key, &ev.ChannelID, &ev.StreamerID, &ev.PosterID, &ev.Timestamp, &ev.Legacy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetMany resolves a set of keys to events. Keys with no backing row are
// simply absent from the result.
func (s *EventStore) GetMany(ctx context.Context, keys []string) (map[string]models.ShoutoutEvent, error) {
	out := make(map[string]models.ShoutoutEvent, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	query := `
		SELECT key, channel_id, streamer_id, poster_id, ts, legacy
		FROM shoutout_events
		WHERE key = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ev models.ShoutoutEvent
		if err := rows.Scan(&ev.Key, &ev.ChannelID, &ev.StreamerID, &ev.PosterID, &ev.Timestamp, &ev.Legacy); err != nil {
			return nil, err
		}
		out[ev.Key] = ev
	}
	return out, rows.Err()
}

// Recent returns up to limit events for a channel, most recent first. Used to
// rebuild a rotation that has no stored state.
func (s *EventStore) Recent(ctx context.Context, channelID string, limit int) ([]models.ShoutoutEvent, error) {
	query := `
		SELECT key, channel_id, streamer_id, poster_id, ts, legacy
		FROM shoutout_events
		WHERE channel_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []models.ShoutoutEvent
	for rows.Next() {
		var ev models.ShoutoutEvent
		if err := rows.Scan(&ev.Key, &ev.ChannelID, &ev.StreamerID, &ev.PosterID, &ev.Timestamp, &ev.Legacy); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
