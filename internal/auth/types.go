// Package auth handles admin dashboard authentication: team member
// credentials, JWT issuance, permission checks and the login audit trail.
package auth

import "fmt"

// AuthError is a typed authentication failure with a stable machine code
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = &AuthError{Code: "invalid_credentials", Message: "invalid email or password"}
	ErrInvalidToken       = &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	ErrInviteRequired     = &AuthError{Code: "invite_pending", Message: "account invite has not been accepted"}
	ErrWeakPassword       = &AuthError{Code: "weak_password", Message: "password must be at least 8 characters"}
	ErrMemberExists       = &AuthError{Code: "member_exists", Message: "a team member with this email already exists"}
	ErrOwnerImmutable     = &AuthError{Code: "owner_immutable", Message: "the owner account cannot be modified or removed"}
)

// PermissionError reports a denied action and which permission it needed,
// so the dashboard can show what to ask the owner for.
type PermissionError struct {
	Required string `json:"required"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing permission: %s", e.Required)
}

// Roles. The owner bypasses permission checks entirely.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Permissions gate individual admin dashboard areas
const (
	PermOrdersView   = "orders.view"
	PermOrdersManage = "orders.manage"
	PermLicenses     = "licenses.manage"
	PermProducts     = "products.manage"
	PermCoupons      = "coupons.manage"
	PermWebhooks     = "webhooks.manage"
	PermTeam         = "team.manage"
	PermAudit        = "audit.view"
	PermLogins       = "manage_logins"
)

// AllPermissions lists every known permission, used to validate invites
var AllPermissions = []string{
	PermOrdersView, PermOrdersManage, PermLicenses, PermProducts,
	PermCoupons, PermWebhooks, PermTeam, PermAudit, PermLogins,
}

// HasPermission reports whether a role/permission set covers a permission
func HasPermission(role string, permissions []string, required string) bool {
	if role == RoleOwner {
		return true
	}
	for _, p := range permissions {
		if p == required {
			return true
		}
	}
	return false
}

// ValidPermission reports whether a permission name is known
func ValidPermission(p string) bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}
