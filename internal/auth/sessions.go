package auth

import (
	"context"
	"time"

	"gamekey-store/internal/database"
)

// sessionWindow bounds how far back the activity view reaches. With no
// server-side session store, anything older than this is considered gone.
const sessionWindow = 24 * time.Hour

// ActiveSession is a derived view of a currently signed-in admin
type ActiveSession struct {
	Role       string    `json:"role"`
	Identifier string    `json:"identifier"`
	IPAddress  *string   `json:"ip_address"`
	UserAgent  *string   `json:"user_agent"`
	LoginAt    time.Time `json:"login_at"`
}

// ActiveSessions approximates who is signed in from the audit trail: the
// most recent login per actor within the window counts as active unless a
// later logout by the same actor closes it. One row per actor; concurrent
// sessions from multiple devices collapse into the newest login.
func (s *Service) ActiveSessions(ctx context.Context) ([]*ActiveSession, error) {
	since := time.Now().Add(-sessionWindow)

	logins, err := s.store.GetAuditEventsSince(ctx, "login", since)
	if err != nil {
		return nil, err
	}
	logouts, err := s.store.GetAuditEventsSince(ctx, "logout", since)
	if err != nil {
		return nil, err
	}
	return DeriveActiveSessions(logins, logouts), nil
}

// DeriveActiveSessions is the pure core of ActiveSessions, operating on
// pre-fetched audit rows ordered newest first.
func DeriveActiveSessions(logins, logouts []*database.AuditEvent) []*ActiveSession {
	// newest logout per actor
	lastLogout := make(map[string]time.Time)
	for _, e := range logouts {
		key := e.ActorRole + "\x00" + e.ActorIdentifier
		if _, seen := lastLogout[key]; !seen {
			lastLogout[key] = e.CreatedAt
		}
	}

	var sessions []*ActiveSession
	seen := make(map[string]bool)
	for _, e := range logins {
		key := e.ActorRole + "\x00" + e.ActorIdentifier
		if seen[key] {
			continue
		}
		seen[key] = true
		if out, ok := lastLogout[key]; ok && !out.Before(e.CreatedAt) {
			continue
		}
		sessions = append(sessions, &ActiveSession{
			Role:       e.ActorRole,
			Identifier: e.ActorIdentifier,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			LoginAt:    e.CreatedAt,
		})
	}
	return sessions
}
