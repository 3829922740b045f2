package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// CheckpointStore persists migration progress per channel so interrupted
// conversions can resume where they stopped.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Get(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error) {
	query := `
		SELECT channel_id, in_progress, converted_total
		FROM migration_checkpoints
		WHERE channel_id = $1
	`
	var cp models.MigrationCheckpoint
	err := s.db.QueryRowContext(ctx, query, channelID).Scan(
		&cp.ChannelID, &cp.InProgress, &cp.ConvertedTotal,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp *models.MigrationCheckpoint) error {
	query := `
		INSERT INTO migration_checkpoints (channel_id, in_progress, converted_total, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (channel_id) DO UPDATE SET
			in_progress = EXCLUDED.in_progress,
			converted_total = EXCLUDED.converted_total,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, cp.ChannelID, cp.InProgress, cp.ConvertedTotal)
	return err
}

// ListInProgress returns channels whose migration was interrupted mid-run.
func (s *CheckpointStore) ListInProgress(ctx context.Context) ([]string, error) {
	query := `
		SELECT channel_id
		FROM migration_checkpoints
		WHERE in_progress = TRUE
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		channels = append(channels, id)
	}
	return channels, rows.Err()
}
