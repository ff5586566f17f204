package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/internal/database"
)

func auditRow(eventType, role, id string, at time.Time) *database.AuditEvent {
	return &database.AuditEvent{
		EventType:       eventType,
		ActorRole:       role,
		ActorIdentifier: id,
		CreatedAt:       at,
	}
}

// newestFirst sorts rows the way the audit queries return them
func newestFirst(rows []*database.AuditEvent) []*database.AuditEvent {
	sorted := make([]*database.AuditEvent, len(rows))
	copy(sorted, rows)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].CreatedAt.After(sorted[i].CreatedAt) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	return sorted
}

func TestDeriveActiveSessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	logins := newestFirst([]*database.AuditEvent{
		auditRow("login", "admin", "alice@shop.gg", base),
		auditRow("login", "staff", "bob@shop.gg", base.Add(30*time.Minute)),
		auditRow("login", "staff", "carol@shop.gg", base.Add(time.Hour)),
	})
	logouts := newestFirst([]*database.AuditEvent{
		auditRow("logout", "staff", "bob@shop.gg", base.Add(45*time.Minute)),
	})

	sessions := DeriveActiveSessions(logins, logouts)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].Identifier, sessions[1].Identifier}
	assert.Contains(t, ids, "alice@shop.gg")
	assert.Contains(t, ids, "carol@shop.gg")
}

// A login after the last logout reopens the session.
func TestLoginAfterLogoutIsActive(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	logins := newestFirst([]*database.AuditEvent{
		auditRow("login", "staff", "bob@shop.gg", base),
		auditRow("login", "staff", "bob@shop.gg", base.Add(2*time.Hour)),
	})
	logouts := newestFirst([]*database.AuditEvent{
		auditRow("logout", "staff", "bob@shop.gg", base.Add(time.Hour)),
	})

	sessions := DeriveActiveSessions(logins, logouts)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob@shop.gg", sessions[0].Identifier)
	assert.Equal(t, base.Add(2*time.Hour), sessions[0].LoginAt)
}

// Actors are keyed by role AND identifier; the same email under two roles
// is two actors.
func TestActorKeyIncludesRole(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	logins := newestFirst([]*database.AuditEvent{
		auditRow("login", "admin", "alice@shop.gg", base),
		auditRow("login", "staff", "alice@shop.gg", base.Add(time.Minute)),
	})
	logouts := newestFirst([]*database.AuditEvent{
		auditRow("logout", "staff", "alice@shop.gg", base.Add(time.Hour)),
	})

	sessions := DeriveActiveSessions(logins, logouts)
	require.Len(t, sessions, 1)
	assert.Equal(t, "admin", sessions[0].Role)
}

// Multiple logins by one actor collapse into a single row, the newest.
func TestConcurrentLoginsCollapse(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	logins := newestFirst([]*database.AuditEvent{
		auditRow("login", "staff", "bob@shop.gg", base),
		auditRow("login", "staff", "bob@shop.gg", base.Add(time.Minute)),
		auditRow("login", "staff", "bob@shop.gg", base.Add(2*time.Minute)),
	})

	sessions := DeriveActiveSessions(logins, nil)
	require.Len(t, sessions, 1)
	assert.Equal(t, base.Add(2*time.Minute), sessions[0].LoginAt)
}

func TestNoSessions(t *testing.T) {
	assert.Empty(t, DeriveActiveSessions(nil, nil))
}
