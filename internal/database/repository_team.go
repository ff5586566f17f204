package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// TEAM MEMBERS
// ============================================================================

// CreateTeamMember inserts a new team member (pending until first login)
func (r *Repository) CreateTeamMember(ctx context.Context, m *TeamMember) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	query := `
		INSERT INTO team_members (email, name, password_hash, role, permissions, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	if m.Status == "" {
		m.Status = TeamPending
	}
	if m.Permissions == nil {
		m.Permissions = []string{}
	}
	return r.db.Pool.QueryRow(
		ctx, query, m.Email, m.Name, m.PasswordHash, m.Role, m.Permissions, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// GetTeamMemberByEmail retrieves a team member by email
func (r *Repository) GetTeamMemberByEmail(ctx context.Context, email string) (*TeamMember, error) {
	return r.queryTeamMember(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// GetTeamMemberByID retrieves a team member by id
func (r *Repository) GetTeamMemberByID(ctx context.Context, id string) (*TeamMember, error) {
	return r.queryTeamMember(ctx, `WHERE id = $1`, id)
}

// ListTeamMembers lists all team members
func (r *Repository) ListTeamMembers(ctx context.Context) ([]*TeamMember, error) {
	query := teamColumns + ` FROM team_members ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*TeamMember
	for rows.Next() {
		m := &TeamMember{}
		if err := scanTeamMember(rows, m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateTeamMemberPermissions replaces a member's role and permission list
func (r *Repository) UpdateTeamMemberPermissions(ctx context.Context, id, role string, permissions []string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE team_members SET role = $2, permissions = $3, updated_at = NOW() WHERE id = $1
	`, id, role, permissions)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateTeamMember sets a pending member's name and password and flips
// them to active.
func (r *Repository) ActivateTeamMember(ctx context.Context, id, name, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE team_members
		SET name = $2, password_hash = $3, status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, name, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTeamMemberLogin activates a pending member and stamps last login
func (r *Repository) MarkTeamMemberLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE team_members SET status = 'active', last_login_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	return err
}

// DeleteTeamMember removes a team member
func (r *Repository) DeleteTeamMember(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM team_members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// InsertAuditEvent records a login/logout event
func (r *Repository) InsertAuditEvent(ctx context.Context, e *AuditEvent) error {
	query := `
		INSERT INTO admin_audit_logs (event_type, actor_role, actor_identifier, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query, e.EventType, e.ActorRole, e.ActorIdentifier, e.IPAddress, e.UserAgent,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetAuditEventsSince lists audit events of one type newer than a cutoff,
// newest first.
func (r *Repository) GetAuditEventsSince(ctx context.Context, eventType string, since time.Time) ([]*AuditEvent, error) {
	query := `
		SELECT id, event_type, actor_role, actor_identifier, ip_address, user_agent, created_at
		FROM admin_audit_logs
		WHERE event_type = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, eventType, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEvents(rows)
}

// ListAuditEvents lists recent audit events of any type
func (r *Repository) ListAuditEvents(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_type, actor_role, actor_identifier, ip_address, user_agent, created_at
		FROM admin_audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEvents(rows)
}

// ============================================================================
// helpers
// ============================================================================

const teamColumns = `SELECT id, email, name, password_hash, role, permissions, status, last_login_at, created_at, updated_at`

func (r *Repository) queryTeamMember(ctx context.Context, where string, args ...interface{}) (*TeamMember, error) {
	query := teamColumns + ` FROM team_members ` + where
	m := &TeamMember{}
	err := scanTeamMember(r.db.Pool.QueryRow(ctx, query, args...), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func scanTeamMember(row pgx.Row, m *TeamMember) error {
	return row.Scan(
		&m.ID, &m.Email, &m.Name, &m.PasswordHash, &m.Role, &m.Permissions,
		&m.Status, &m.LastLoginAt, &m.CreatedAt, &m.UpdatedAt,
	)
}

func scanAuditEvents(rows pgx.Rows) ([]*AuditEvent, error) {
	var events []*AuditEvent
	for rows.Next() {
		e := &AuditEvent{}
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.ActorRole, &e.ActorIdentifier,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
