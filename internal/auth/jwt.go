package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. Invite tokens cannot authenticate API calls and access
// tokens cannot accept invites.
const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"
	purposeInvite  = "invite"
)

// Claims is the JWT payload for admin sessions
type Claims struct {
	MemberID    string   `json:"member_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Purpose     string   `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Service) signToken(memberID, email, role string, permissions []string, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		MemberID:    memberID,
		Email:       email,
		Role:        role,
		Permissions: permissions,
		Purpose:     purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) parseToken(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken validates an access token and returns its claims
func (s *Service) VerifyAccessToken(tokenString string) (*Claims, error) {
	return s.parseToken(tokenString, purposeAccess)
}
