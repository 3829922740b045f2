package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// SettingsStore persists per-channel extension settings as a JSON document.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, channelID string) (*models.Settings, error) {
	query := `
		SELECT settings
		FROM channel_settings
		WHERE channel_id = $1
	`
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, channelID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings for channel %s: %w", channelID, err)
	}
	return &settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, channelID string, settings *models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings for channel %s: %w", channelID, err)
	}
	query := `
		INSERT INTO channel_settings (channel_id, settings, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (channel_id) DO UPDATE SET
			settings = EXCLUDED.settings,
			updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query, channelID, raw)
	return err
}
