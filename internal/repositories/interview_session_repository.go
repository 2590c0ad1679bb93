package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gitflash/interviewd/internal/models"
)

type InterviewSessionRepository struct {
	db *sql.DB
}

func NewInterviewSessionRepository(db *sql.DB) *InterviewSessionRepository {
	return &InterviewSessionRepository{db: db}
}

// SaveSession inserts the session or overwrites the stored copy. The record
// is keyed by the provider's session id, so drafts are never stored.
func (r *InterviewSessionRepository) SaveSession(ctx context.Context, session *models.InterviewSession) error {
	if session.SessionID == "" {
		return errors.New("session id is required")
	}

	const query = `
	INSERT INTO interview_sessions (
		session_id,
		view_id,
		user_id,
		conversation_id,
		join_url,
		status,
		provider_status,
		duration_seconds,
		participant_joined_at,
		recording_status,
		recording_url,
		recording_error,
		created_at,
		updated_at,
		ended_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (session_id) DO UPDATE SET
		view_id = EXCLUDED.view_id,
		join_url = EXCLUDED.join_url,
		status = EXCLUDED.status,
		provider_status = EXCLUDED.provider_status,
		duration_seconds = EXCLUDED.duration_seconds,
		participant_joined_at = EXCLUDED.participant_joined_at,
		recording_status = EXCLUDED.recording_status,
		recording_url = EXCLUDED.recording_url,
		recording_error = EXCLUDED.recording_error,
		updated_at = EXCLUDED.updated_at,
		ended_at = EXCLUDED.ended_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		session.SessionID,
		session.ViewID,
		session.UserID,
		session.ConversationID,
		session.JoinURL,
		session.Status,
		session.Detail.ProviderStatus,
		session.Detail.DurationSeconds,
		session.Detail.ParticipantJoinedAt,
		session.Recording.Status,
		session.Recording.URL,
		session.Recording.Error,
		session.CreatedAt,
		session.UpdatedAt,
		session.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("save interview session: %w", err)
	}
	return nil
}

// GetSessionByID returns models.ErrNotFound for unknown sessions.
func (r *InterviewSessionRepository) GetSessionByID(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const query = `
	SELECT
		session_id,
		view_id,
		user_id,
		conversation_id,
		join_url,
		status,
		provider_status,
		duration_seconds,
		participant_joined_at,
		recording_status,
		recording_url,
		recording_error,
		created_at,
		updated_at,
		ended_at
	FROM interview_sessions
	WHERE session_id = $1
	LIMIT 1
	`

	var session models.InterviewSession

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.ViewID,
		&session.UserID,
		&session.ConversationID,
		&session.JoinURL,
		&session.Status,
		&session.Detail.ProviderStatus,
		&session.Detail.DurationSeconds,
		&session.Detail.ParticipantJoinedAt,
		&session.Recording.Status,
		&session.Recording.URL,
		&session.Recording.Error,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.EndedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get interview session: %w", err)
	}

	return &session, nil
}
