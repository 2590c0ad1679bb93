package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gitflash/interviewd/internal/models"
)

type CallPreferenceRepository struct {
	db *sql.DB
}

func NewCallPreferenceRepository(db *sql.DB) *CallPreferenceRepository {
	return &CallPreferenceRepository{db: db}
}

// GetPreferences falls back to the defaults for users without a row.
func (r *CallPreferenceRepository) GetPreferences(ctx context.Context, userID string) (*models.CallPreferences, error) {
	const query = `
	SELECT user_id, camera_enabled, microphone_enabled, updated_at
	FROM call_preferences
	WHERE user_id = $1
	`

	var prefs models.CallPreferences
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.CameraEnabled,
		&prefs.MicrophoneEnabled,
		&prefs.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		defaults := models.DefaultCallPreferences(userID)
		return &defaults, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get call preferences: %w", err)
	}

	return &prefs, nil
}

func (r *CallPreferenceRepository) SavePreferences(ctx context.Context, prefs *models.CallPreferences) error {
	const query = `
	INSERT INTO call_preferences (user_id, camera_enabled, microphone_enabled, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		camera_enabled = EXCLUDED.camera_enabled,
		microphone_enabled = EXCLUDED.microphone_enabled,
		updated_at = NOW()
	RETURNING updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		prefs.UserID,
		prefs.CameraEnabled,
		prefs.MicrophoneEnabled,
	).Scan(&prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save call preferences: %w", err)
	}
	return nil
}
