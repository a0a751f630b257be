// Copyright (c) 2026 Keyra. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via constructor injection.
package sec

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyrahq/keyra/internal/platform/apperr"
)

// # Token Types

// TokenType distinguishes access tokens from refresh tokens.
//
// The two are never structurally interchangeable: every validation checks
// the embedded type against the type the caller expects.
type TokenType string

const (
	// TokenTypeAccess marks short-lived bearer tokens for API requests.
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh marks long-lived tokens redeemable for a new pair.
	TokenTypeRefresh TokenType = "refresh"
)

// # Claims & Principal

// AuthClaims represents the payload embedded inside a Keyra JWT.
//
// # Minimal Claim Set
//
// Only subject, role, tenant, token type, and session id are embedded.
// No secrets and no PII beyond the subject identifier ever enter a token.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	Role      string `json:"rol"`
	TenantID  string `json:"tid,omitempty"`
	TokenType string `json:"typ"`
	SessionID string `json:"sid"`
}

// Principal is the verified identity derived from a validated token.
//
// An empty TenantID means the principal is platform-scoped (bound to no
// single tenant).
type Principal struct {
	ActorID  string `json:"actor_id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Principal extracts the identity triple from validated claims.
func (c *AuthClaims) Principal() Principal {
	return Principal{
		ActorID:  c.Subject,
		Role:     c.Role,
		TenantID: c.TenantID,
	}
}

// # Token Pair

// TokenPair is the result of one issuance: a signed access/refresh pair
// with their computed expiries and the session they are bound to.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// # Token Service

// TokenService handles generation and verification of JWT tokens using
// HS256 with a process-wide secret.
//
// The secret is read-only configuration loaded at startup; it is never
// rotated at runtime.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests to pin expiry checks.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	service.now = now
	return service
}

// AccessTTL returns the configured access token lifetime.
func (service *TokenService) AccessTTL() time.Duration { return service.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (service *TokenService) RefreshTTL() time.Duration { return service.refreshTTL }

/*
Issue creates a signed access and refresh token pair for an actor.

Description: Both tokens carry the same subject/role/tenant/session claims;
they differ only in token type and expiry.

Parameters:
  - actorID: Subject of the tokens.
  - role: Role name of the actor.
  - tenantID: Tenant of the actor; empty for platform-scoped roles.
  - sessionID: Session the pair is bound to.

Returns:
  - *TokenPair: Signed tokens with computed expiries
  - error: Signing failures
*/
func (service *TokenService) Issue(actorID, role, tenantID, sessionID string) (*TokenPair, error) {
	currentTime := service.now()

	accessToken, accessExpiry, err := service.sign(actorID, role, tenantID, sessionID, TokenTypeAccess, currentTime, service.accessTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExpiry, err := service.sign(actorID, role, tenantID, sessionID, TokenTypeRefresh, currentTime, service.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		SessionID:        sessionID,
	}, nil
}

// sign builds and signs a single token of the given type.
func (service *TokenService) sign(actorID, role, tenantID, sessionID string, tokenType TokenType, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := issuedAt.Add(ttl)
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      role,
		TenantID:  tenantID,
		TokenType: string(tokenType),
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal(err)
	}

	return signedToken, expiresAt, nil
}

/*
Validate checks the signature, issuer, expiry, and token type of a JWT string.

Description: Expiry is enforced strictly against the service clock — there
is no grace window. Token type confusion (an access token presented where a
refresh token is expected, or vice versa) is rejected after the signature
check succeeds.

Parameters:
  - tokenString: Raw JWT.
  - expectedType: TokenTypeAccess or TokenTypeRefresh.

Returns:
  - *AuthClaims: Verified claims
  - error: apperr.InvalidToken, apperr.ExpiredToken, or apperr.WrongTokenType
*/
func (service *TokenService) Validate(tokenString string, expectedType TokenType) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		return service.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ExpiredToken()
		}
		return nil, apperr.InvalidToken()
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, apperr.InvalidToken()
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, apperr.InvalidToken()
	}

	if claims.TokenType != string(expectedType) {
		return nil, apperr.WrongTokenType()
	}

	return claims, nil
}
