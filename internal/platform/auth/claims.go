package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/domain/theatre"
)

// Roles and permissions with special meaning.
const (
	RoleAdmin            = "admin"
	RoleSuperAdmin       = "super_admin"
	PermManageAllTenants = "tenants:manage_all"
	PermAll              = "*"
)

// Claims is the access-token payload.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	FacilityID  string   `json:"facility_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// ParseToken decodes a bearer token. With a signing key the HS256 signature
// and standard claims are verified; without one the payload is read as-is
// and only expiry is checked.
func ParseToken(tokenStr string, signingKey []byte) (*Claims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), "Bearer "))
	if tokenStr == "" {
		return nil, fmt.Errorf("auth: empty token")
	}
	claims := &Claims{}

	if len(signingKey) > 0 {
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return nil, fmt.Errorf("auth: invalid token: %w", err)
		}
		return claims, nil
	}

	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("auth: malformed token: %w", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("auth: token expired at %s", claims.ExpiresAt.Format(time.RFC3339))
	}
	return claims, nil
}

// HasRole reports whether the claims carry role (case-insensitive).
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Grants reports whether the claims allow action ("read" or "write") on
// scopeKey. Admin roles and the "*" permission allow everything; write
// implies read; "<scope>:*" allows both.
func (c *Claims) Grants(scopeKey, action string) bool {
	if c.HasRole(RoleAdmin) || c.HasRole(RoleSuperAdmin) {
		return true
	}
	for _, p := range c.Permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == PermAll:
			return true
		case p == strings.ToLower(scopeKey)+":*":
			return true
		case p == strings.ToLower(scopeKey)+":"+action:
			return true
		case action == "read" && p == strings.ToLower(scopeKey)+":write":
			return true
		}
	}
	return false
}

// Capability maps the claims to what the workflow may do under scopeKey.
func (c *Claims) Capability(scopeKey string) theatre.Capability {
	manageAll := c.HasRole(RoleSuperAdmin)
	for _, p := range c.Permissions {
		if strings.EqualFold(strings.TrimSpace(p), PermManageAllTenants) {
			manageAll = true
		}
	}
	return theatre.Capability{
		CanRead:             c.Grants(scopeKey, "read"),
		CanWrite:            c.Grants(scopeKey, "write"),
		CanManageAllTenants: manageAll,
		TenantID:            strings.TrimSpace(c.TenantID),
		FacilityID:          strings.TrimSpace(c.FacilityID),
		IsResolved:          true,
	}
}

// ClaimsOracle answers capability questions from the session's access token.
// A missing or invalid token resolves to no access.
type ClaimsOracle struct {
	mu         sync.RWMutex
	claims     *Claims
	signingKey []byte
	logger     zerolog.Logger
}

var _ theatre.CapabilityOracle = (*ClaimsOracle)(nil)

func NewClaimsOracle(token string, signingKey []byte, logger zerolog.Logger) *ClaimsOracle {
	o := &ClaimsOracle{
		signingKey: signingKey,
		logger:     logger.With().Str("component", "claims_oracle").Logger(),
	}
	_ = o.SetToken(token)
	return o
}

// SetToken replaces the session token. An unusable token is logged and
// leaves the session without access.
func (o *ClaimsOracle) SetToken(token string) error {
	claims, err := ParseToken(token, o.signingKey)
	o.mu.Lock()
	o.claims = claims
	o.mu.Unlock()
	if err != nil {
		o.logger.Warn().Err(err).Msg("access token unusable; theatre workflow will be denied")
		return err
	}
	o.logger.Debug().Str("subject", claims.Subject).Str("tenant_id", claims.TenantID).Msg("access token loaded")
	return nil
}

func (o *ClaimsOracle) Capabilities(scopeKey string) theatre.Capability {
	o.mu.RLock()
	claims := o.claims
	o.mu.RUnlock()
	if claims == nil {
		return theatre.Capability{IsResolved: true}
	}
	return claims.Capability(scopeKey)
}
