package services

import (
	"context"

	"github.com/gitflash/interviewd/internal/models"
)

// Notifier receives every event a view raises.
type Notifier interface {
	Publish(event models.SessionEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.SessionEvent)

func (f NotifierFunc) Publish(event models.SessionEvent) { f(event) }

// MultiNotifier fans an event out to several notifiers. Nil entries are skipped.
type MultiNotifier []Notifier

func (m MultiNotifier) Publish(event models.SessionEvent) {
	for _, n := range m {
		if n != nil {
			n.Publish(event)
		}
	}
}

// SessionStore persists session records so a user can come back to a view.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.InterviewSession) error
	// GetSessionByID returns models.ErrNotFound when no record exists.
	GetSessionByID(ctx context.Context, sessionID string) (*models.InterviewSession, error)
}

// PreferenceStore keeps per-user camera and microphone activation.
type PreferenceStore interface {
	// GetPreferences returns the defaults when the user has none stored.
	GetPreferences(ctx context.Context, userID string) (*models.CallPreferences, error)
	SavePreferences(ctx context.Context, prefs *models.CallPreferences) error
}

// Leaver is the part of the call surface the controller needs.
type Leaver interface {
	Leave(ctx context.Context) error
}

type nopNotifier struct{}

func (nopNotifier) Publish(models.SessionEvent) {}
