package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamekey-store/config"
)

func testService() *Service {
	return NewService(nil, config.AuthConfig{
		JWTSecret:            "test-secret",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
	})
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleOwner, nil, PermTeam), "owner bypasses checks")
	assert.True(t, HasPermission(RoleStaff, []string{PermOrdersView}, PermOrdersView))
	assert.False(t, HasPermission(RoleStaff, []string{PermOrdersView}, PermOrdersManage))
	assert.False(t, HasPermission(RoleAdmin, nil, PermCoupons))
}

func TestPermissionErrorNamesRequirement(t *testing.T) {
	err := &PermissionError{Required: PermCoupons}
	assert.Contains(t, err.Error(), PermCoupons)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := testService()
	token, err := svc.signToken("member-1", "alice@shop.gg", RoleAdmin, []string{PermOrdersView}, purposeAccess, time.Minute)
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.MemberID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, []string{PermOrdersView}, claims.Permissions)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := testService()
	token, err := svc.signToken("member-1", "alice@shop.gg", RoleAdmin, nil, purposeAccess, -time.Minute)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// A refresh or invite token must not authenticate API calls.
func TestPurposeMismatchRejected(t *testing.T) {
	svc := testService()
	refresh, err := svc.signToken("member-1", "alice@shop.gg", RoleAdmin, nil, purposeRefresh, time.Hour)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := testService().signToken("member-1", "alice@shop.gg", RoleAdmin, nil, purposeAccess, time.Minute)
	require.NoError(t, err)

	other := NewService(nil, config.AuthConfig{JWTSecret: "different-secret", AccessTokenDuration: time.Minute})
	_, err = other.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse battery"))
	assert.False(t, CheckPassword(hash, "wrong password"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}
