package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gamekey-store/config"
	"gamekey-store/internal/database"
	"gamekey-store/internal/logging"
)

// Store is the repository surface auth needs
type Store interface {
	CreateTeamMember(ctx context.Context, m *database.TeamMember) error
	GetTeamMemberByEmail(ctx context.Context, email string) (*database.TeamMember, error)
	GetTeamMemberByID(ctx context.Context, id string) (*database.TeamMember, error)
	ListTeamMembers(ctx context.Context) ([]*database.TeamMember, error)
	UpdateTeamMemberPermissions(ctx context.Context, id, role string, permissions []string) error
	ActivateTeamMember(ctx context.Context, id, name, passwordHash string) error
	MarkTeamMemberLogin(ctx context.Context, id string, at time.Time) error
	DeleteTeamMember(ctx context.Context, id string) error
	InsertAuditEvent(ctx context.Context, e *database.AuditEvent) error
	GetAuditEventsSince(ctx context.Context, eventType string, since time.Time) ([]*database.AuditEvent, error)
}

// Service implements admin authentication and team management
type Service struct {
	store      Store
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     zerolog.Logger
}

// NewService creates an auth service
func NewService(store Store, cfg config.AuthConfig) *Service {
	return &Service{
		store:      store,
		jwtSecret:  cfg.JWTSecret,
		accessTTL:  cfg.AccessTokenDuration,
		refreshTTL: cfg.RefreshTokenDuration,
		logger:     logging.For("auth"),
	}
}

// TokenPair is the result of a successful login or refresh
type TokenPair struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	ExpiresIn    int64                `json:"expires_in"`
	Member       *database.TeamMember `json:"member"`
}

// RequestMeta carries the client address details recorded in the audit log
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Login verifies credentials, records an audit login event and issues
// tokens. Pending members must accept their invite first.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*TokenPair, error) {
	member, err := s.store.GetTeamMemberByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		// burn a comparison anyway so lookups and mismatches take
		// similar time
		CheckPassword("$2a$12$RRCzZqmHblkwtcHach1o1ulPJKT9h2WS9cWR9bQnHjqB0MQUomDd6", password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if member.Status == database.TeamPending {
		return nil, ErrInviteRequired
	}
	if !CheckPassword(member.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.store.MarkTeamMemberLogin(ctx, member.ID, now); err != nil {
		s.logger.Error().Err(err).Str("member", member.Email).Msg("failed to stamp last login")
	}
	s.audit(ctx, "login", member, meta)

	return s.issueTokens(member)
}

// Logout records the audit logout event that closes the member's session
// in the activity view. The token itself simply expires.
func (s *Service) Logout(ctx context.Context, claims *Claims, meta RequestMeta) {
	member := &database.TeamMember{ID: claims.MemberID, Email: claims.Email, Role: claims.Role}
	s.audit(ctx, "logout", member, meta)
}

// ForceLogout writes a synthetic logout event for another actor, closing
// their session in the activity view. Advisory only: an issued token stays
// valid until it expires.
func (s *Service) ForceLogout(ctx context.Context, actorRole, actorIdentifier string, meta RequestMeta) {
	member := &database.TeamMember{Role: actorRole, Email: actorIdentifier}
	s.audit(ctx, "logout", member, meta)
	s.logger.Info().
		Str("role", actorRole).
		Str("identifier", actorIdentifier).
		Msg("session closed by admin")
}

// Refresh exchanges a refresh token for a new token pair, re-reading the
// member so permission changes take effect.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parseToken(refreshToken, purposeRefresh)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetTeamMemberByID(ctx, claims.MemberID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return s.issueTokens(member)
}

func (s *Service) issueTokens(member *database.TeamMember) (*TokenPair, error) {
	access, err := s.signToken(member.ID, member.Email, member.Role, member.Permissions, purposeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(member.ID, member.Email, member.Role, nil, purposeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		Member:       member,
	}, nil
}

func (s *Service) audit(ctx context.Context, eventType string, member *database.TeamMember, meta RequestMeta) {
	event := &database.AuditEvent{
		EventType:       eventType,
		ActorRole:       member.Role,
		ActorIdentifier: member.Email,
	}
	if meta.IPAddress != "" {
		event.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		event.UserAgent = &meta.UserAgent
	}
	if err := s.store.InsertAuditEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to write audit event")
	}
}

// ============================================================================
// TEAM MANAGEMENT
// ============================================================================

// InviteMember creates a pending team member and returns the one-time
// invite token the new member uses to set their password.
func (s *Service) InviteMember(ctx context.Context, email, role string, permissions []string) (*database.TeamMember, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role == RoleOwner {
		return nil, "", ErrOwnerImmutable
	}
	for _, p := range permissions {
		if !ValidPermission(p) {
			return nil, "", &AuthError{Code: "unknown_permission", Message: "unknown permission: " + p}
		}
	}
	if _, err := s.store.GetTeamMemberByEmail(ctx, email); err == nil {
		return nil, "", ErrMemberExists
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, "", err
	}

	member := &database.TeamMember{
		Email:       email,
		Role:        role,
		Permissions: permissions,
		Status:      database.TeamPending,
	}
	if err := s.store.CreateTeamMember(ctx, member); err != nil {
		return nil, "", err
	}

	// invite tokens live longer than access tokens so the email can sit
	// in an inbox for a few days
	token, err := s.signToken(member.ID, member.Email, member.Role, nil, purposeInvite, 72*time.Hour)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info().Str("email", email).Str("role", role).Msg("team member invited")
	return member, token, nil
}

// AcceptInvite activates a pending member, setting their name and password
func (s *Service) AcceptInvite(ctx context.Context, inviteToken, name, password string) (*database.TeamMember, error) {
	claims, err := s.parseToken(inviteToken, purposeInvite)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetTeamMemberByID(ctx, claims.MemberID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if member.Status != database.TeamPending {
		return nil, ErrInvalidToken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := s.store.ActivateTeamMember(ctx, member.ID, name, hash); err != nil {
		return nil, err
	}
	member.Status = database.TeamActive
	member.Name = &name
	s.logger.Info().Str("email", member.Email).Msg("invite accepted")
	return member, nil
}

// UpdatePermissions replaces a member's role and permissions. The owner
// account cannot be touched.
func (s *Service) UpdatePermissions(ctx context.Context, memberID, role string, permissions []string) error {
	member, err := s.store.GetTeamMemberByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member.Role == RoleOwner || role == RoleOwner {
		return ErrOwnerImmutable
	}
	for _, p := range permissions {
		if !ValidPermission(p) {
			return &AuthError{Code: "unknown_permission", Message: "unknown permission: " + p}
		}
	}
	return s.store.UpdateTeamMemberPermissions(ctx, memberID, role, permissions)
}

// RemoveMember deletes a team member. The owner account cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, memberID string) error {
	member, err := s.store.GetTeamMemberByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member.Role == RoleOwner {
		return ErrOwnerImmutable
	}
	return s.store.DeleteTeamMember(ctx, memberID)
}

// EnsureOwner creates the owner account on first boot when credentials are
// provided through the environment and no owner exists yet.
func (s *Service) EnsureOwner(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.store.GetTeamMemberByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	owner := &database.TeamMember{
		Email:        email,
		PasswordHash: hash,
		Role:         RoleOwner,
		Status:       database.TeamActive,
	}
	if err := s.store.CreateTeamMember(ctx, owner); err != nil {
		return err
	}
	s.logger.Info().Str("email", email).Msg("owner account created")
	return nil
}
