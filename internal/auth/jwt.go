package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ErrInvalidToken is returned for malformed, expired or forged tokens
var ErrInvalidToken = errors.New("invalid token")

// JWTManager manages JWT tokens
type JWTManager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	return &JWTManager{
		config: cfg,
		now:    time.Now,
	}
}

// Claims represents JWT claims. They are the whole session state of a
// request and travel in its context.
type Claims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID       `json:"user_id"`
	TenantID *uuid.UUID      `json:"tenant_id,omitempty"`
	UserType models.UserType `json:"user_type"`
	Role     string          `json:"role,omitempty"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
}

// IsAdmin reports whether the token belongs to a platform admin
func (c *Claims) IsAdmin() bool {
	return c.UserType == models.UserTypeAdmin
}

// ForUser builds the claims of a tenant owner or employee
func ForUser(u *models.User) Claims {
	tenantID := u.TenantID
	userType := models.UserTypeEmployee
	if u.IsOwner {
		userType = models.UserTypeOwner
	}
	return Claims{
		UserID:   u.ID,
		TenantID: &tenantID,
		UserType: userType,
		Role:     u.Role,
		Name:     u.Name,
		Email:    u.Email,
	}
}

// ForAdmin builds the claims of a platform admin
func ForAdmin(a *models.Admin) Claims {
	return Claims{
		UserID:   a.ID,
		UserType: models.UserTypeAdmin,
		Name:     a.Name,
		Email:    a.Email,
	}
}

// GenerateToken signs an access token for claims
func (m *JWTManager) GenerateToken(claims Claims) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.config.Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.IsAdmin() && claims.TenantID == nil {
		return nil, fmt.Errorf("%w: tenant token without tenant", ErrInvalidToken)
	}
	return claims, nil
}

type contextKey struct{}

// WithClaims returns a copy of ctx carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext returns the claims stored in ctx
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok && claims != nil
}
