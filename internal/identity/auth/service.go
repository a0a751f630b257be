// Copyright (c) 2026 Keyra. All rights reserved.

/*
Package auth implements the authentication core of the platform.

It orchestrates credential verification, token issuance, refresh rotation,
revocation, and the audit trail around them. One parametrized service
covers every role in the registry; the role a request acts under comes in
as input and is validated against the registry, never hardcoded.

Architecture:

  - Service: Orchestrates business logic (Join, Login, Refresh, Logout).
  - Stores: Abstracted interfaces for Postgres (actors, sessions, audit)
    and Redis (active-actor cache).
  - Security: bcrypt secrets and HS256-signed JWTs via platform/sec.

The package ensures that identity data remains consistent and secure
throughout the platform's lifecycle.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyrahq/keyra/internal/identity/actor"
	"github.com/keyrahq/keyra/internal/identity/audit"
	"github.com/keyrahq/keyra/internal/identity/authz"
	"github.com/keyrahq/keyra/internal/identity/session"
	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/retry"
	"github.com/keyrahq/keyra/internal/platform/sec"
	"github.com/keyrahq/keyra/pkg/ident"
	"github.com/keyrahq/keyra/pkg/uuid"
)

// # Contracts & Types

// ActiveCache is the volatile cache over the active-actor lookback.
//
// Failures are advisory: a cache error is treated as a miss, never as a
// verdict about the actor.
type ActiveCache interface {
	Get(ctx context.Context, actorID string) (active bool, found bool, err error)
	Set(ctx context.Context, actorID string, active bool) error
	Invalidate(ctx context.Context, actorID string) error
}

// Recorder accepts audit entries without blocking the caller.
// Implemented by [audit.Writer].
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, token,
// or session logic must be reviewed by the security team.
type Service struct {
	actors   actor.Store
	cache    ActiveCache
	sessions session.Store
	tokens   *sec.TokenService
	auditor  Recorder
	registry *authz.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the authentication [Service] with its dependencies.
func NewService(
	actors actor.Store,
	cache ActiveCache,
	sessions session.Store,
	tokens *sec.TokenService,
	auditor Recorder,
	registry *authz.Registry,
	logger *slog.Logger,
) *Service {
	return &Service{
		actors:   actors,
		cache:    cache,
		sessions: sessions,
		tokens:   tokens,
		auditor:  auditor,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests to pin timestamps.
func (service *Service) WithClock(now func() time.Time) *Service {
	service.now = now
	return service
}

// AuthSession is a successfully established session: the actor it belongs
// to and the signed token pair bound to it.
type AuthSession struct {
	Actor *actor.Actor
	Pair  *sec.TokenPair
}

// # Enrollment Flow

// JoinInput holds the data required to enroll a new actor under a role.
type JoinInput struct {
	Role        string
	TenantID    string // empty for platform-scoped roles
	Identifier  string
	Secret      string // local credential; mutually exclusive with ExternalKey
	ExternalKey string // SSO-mapped identity key
	DisplayName string
	Fingerprint string
}

/*
Join enrolls a new actor and opens their first session.

Description: Validates the role against the registry, enforces the tenant
binding the role's scope demands, normalizes the identifier, hashes the
secret, persists the actor, and issues the initial token pair.

Parameters:
  - ctx: context.Context
  - input: JoinInput

Returns:
  - *AuthSession: Created actor with signed tokens
  - error: NotFound (unknown role), Conflict, validation, or storage errors
*/
func (service *Service) Join(ctx context.Context, input JoinInput) (*AuthSession, error) {
	descriptor, err := service.resolveRole(input.Role)
	if err != nil {
		return nil, err
	}

	if err := service.checkTenantBinding(descriptor, input.TenantID); err != nil {
		return nil, err
	}

	newActor := &actor.Actor{
		ID:          uuid.New(),
		Role:        string(descriptor.Name),
		Identifier:  ident.Normalize(input.Identifier),
		DisplayName: input.DisplayName,
		IsActive:    true,
	}
	if descriptor.TenantScoped {
		tenant := input.TenantID
		newActor.TenantID = &tenant
	}

	// Exactly one credential shape: a local secret or an external key.
	switch {
	case input.Secret != "":
		hash, err := sec.HashSecret(input.Secret)
		if err != nil {
			return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
		}
		newActor.CredentialHash = hash
	case input.ExternalKey != "":
		newActor.ExternalKey = input.ExternalKey
	default:
		return nil, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   actor.FieldSecret,
			Message: "A secret or an external key is required",
		})
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return service.actors.Create(ctx, newActor)
	})
	if err != nil {
		return nil, service.infra(err)
	}

	authSession, err := service.openSession(ctx, newActor, input.Fingerprint)
	if err != nil {
		service.record(ctx, audit.EventIssued, audit.OutcomeFailure, &newActor.ID, nil, "session creation failed after enrollment")
		return nil, err
	}

	service.record(ctx, audit.EventIssued, audit.OutcomeSuccess, &newActor.ID, &authSession.Pair.SessionID, "actor enrolled")
	return authSession, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Role        string
	TenantID    string
	Identifier  string
	Secret      string
	Fingerprint string
}

/*
Login verifies credentials and opens a new session.

Description: Unknown identifiers and wrong secrets produce the identical
INVALID_CREDENTIALS response so accounts cannot be enumerated. Inactive
and soft-deleted actors are rejected with ACCOUNT_INACTIVE regardless of
credential correctness. Every attempt lands in the audit trail.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *AuthSession: Signed token pair with the actor
  - error: InvalidCredentials, AccountInactive, or storage errors
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*AuthSession, error) {
	descriptor, err := service.resolveRole(input.Role)
	if err != nil {
		return nil, err
	}

	identifier := ident.Normalize(input.Identifier)

	var tenantScope *string
	if descriptor.TenantScoped && input.TenantID != "" {
		tenant := input.TenantID
		tenantScope = &tenant
	}

	var found *actor.Actor
	err = retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		found, lookupErr = service.actors.FindByIdentifier(ctx, identifier, tenantScope)
		return lookupErr
	})
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			service.record(ctx, audit.EventFailed, audit.OutcomeFailure, nil, nil, "login: unknown identifier")
			return nil, apperr.InvalidCredentials()
		}
		return nil, service.infra(err)
	}

	// The actor must hold the role path they logged in through.
	if !service.registry.Satisfies(authz.Role(found.Role), descriptor.Name) {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &found.ID, nil, "login: role mismatch")
		return nil, apperr.InvalidCredentials()
	}

	if !found.CanAuthenticate() {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &found.ID, nil, "login: account inactive")
		return nil, apperr.AccountInactive()
	}

	if !service.verifyCredential(found, input.Secret) {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &found.ID, nil, "login: secret mismatch")
		return nil, apperr.InvalidCredentials()
	}

	authSession, err := service.openSession(ctx, found, input.Fingerprint)
	if err != nil {
		service.record(ctx, audit.EventIssued, audit.OutcomeFailure, &found.ID, nil, "login: session creation failed")
		return nil, err
	}

	// Best-effort side effects: neither may fail a successful login.
	if err := service.actors.TouchLastLogin(ctx, found.ID, service.now()); err != nil {
		service.logger.WarnContext(ctx, "auth_touch_last_login_failed", slog.String("error", err.Error()))
	}
	service.cacheActive(ctx, found.ID, true)

	service.record(ctx, audit.EventIssued, audit.OutcomeSuccess, &found.ID, &authSession.Pair.SessionID, "login")
	return authSession, nil
}

// verifyCredential dispatches on the actor's credential shape.
func (service *Service) verifyCredential(found *actor.Actor, secret string) bool {
	if found.CredentialHash != "" {
		return sec.VerifySecret(secret, found.CredentialHash)
	}
	return sec.VerifyExternalKey(secret, found.ExternalKey)
}

// # Refresh Flow

/*
Refresh redeems a refresh token for a rotated token pair.

Description: The token's signature, expiry, and type are checked first, so
a tampered token learns nothing about session state. The session is then
spent atomically; losing the race — or presenting an already-spent token —
is a replay, which revokes the entire session chain before TOKEN_REUSED is
returned.

Parameters:
  - ctx: context.Context
  - rawToken: string (refresh JWT from body or cookie)
  - fingerprint: string

Returns:
  - *AuthSession: New signed token pair
  - error: InvalidToken, ExpiredToken, WrongTokenType, TokenReused,
    AccountInactive, or storage errors
*/
func (service *Service) Refresh(ctx context.Context, rawToken, fingerprint string) (*AuthSession, error) {
	claims, err := service.tokens.Validate(rawToken, sec.TokenTypeRefresh)
	if err != nil {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, nil, nil, "refresh: token rejected")
		return nil, err
	}

	actorID := claims.Subject
	sessionID := claims.SessionID

	var current *session.Session
	err = retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		current, lookupErr = service.sessions.FindByID(ctx, sessionID)
		return lookupErr
	})
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &actorID, &sessionID, "refresh: unknown session")
			return nil, apperr.InvalidToken()
		}
		return nil, service.infra(err)
	}

	// The raw token must hash to what the session recorded at issuance.
	// A forged `sid` claim alone gets no further than this.
	if !sec.TokenHashEqual(rawToken, current.RefreshTokenHash) {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &actorID, &sessionID, "refresh: token hash mismatch")
		return nil, apperr.InvalidToken()
	}

	var owner *actor.Actor
	err = retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		owner, lookupErr = service.actors.FindByID(ctx, current.ActorID)
		return lookupErr
	})
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &actorID, &sessionID, "refresh: actor deleted")
			return nil, apperr.AccountInactive()
		}
		return nil, service.infra(err)
	}
	if !owner.CanAuthenticate() {
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &owner.ID, &sessionID, "refresh: account inactive")
		return nil, apperr.AccountInactive()
	}

	// Build the successor before spending, so the supersede is one atomic step.
	successorID := uuid.New()
	pair, err := service.tokens.Issue(owner.ID, owner.Role, owner.TenantString(), successorID)
	if err != nil {
		return nil, err
	}

	successor := &session.Session{
		ID:               successorID,
		ChainID:          current.ChainID,
		ActorID:          owner.ID,
		AccessTokenHash:  sec.HashToken(pair.AccessToken),
		RefreshTokenHash: sec.HashToken(pair.RefreshToken),
		Fingerprint:      fingerprint,
		IssuedAt:         service.now(),
		ExpiresAt:        pair.RefreshExpiresAt,
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return service.sessions.Supersede(ctx, current.ID, successor)
	})
	switch {
	case err == nil:
		// fallthrough to success

	case isReplay(err):
		// Replay signal: take down every descendant of the chain.
		if revokeErr := service.sessions.RevokeChain(ctx, current.ChainID, session.ReasonReplay); revokeErr != nil {
			service.logger.ErrorContext(ctx, "auth_replay_chain_revoke_failed",
				slog.String("chain_id", current.ChainID),
				slog.String("error", revokeErr.Error()),
			)
		}
		service.record(ctx, audit.EventRevoked, audit.OutcomeFailure, &owner.ID, &current.ID, "refresh: token reuse detected, chain revoked")
		return nil, apperr.TokenReused()

	case isSessionExpired(err):
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &owner.ID, &current.ID, "refresh: session expired")
		return nil, apperr.ExpiredToken()

	case apperr.IsCode(err, "NOT_FOUND"):
		service.record(ctx, audit.EventFailed, audit.OutcomeFailure, &owner.ID, &current.ID, "refresh: session vanished")
		return nil, apperr.InvalidToken()

	default:
		return nil, service.infra(err)
	}

	service.record(ctx, audit.EventRefreshed, audit.OutcomeSuccess, &owner.ID, &successor.ID, "refresh")
	return &AuthSession{Actor: owner, Pair: pair}, nil
}

// # Revocation Flow

/*
Logout revokes the session bound to the presented access token.

Description: Idempotent — revoking an already-revoked or unknown session
still reports success, so a double-click on "sign out" never errors.

Parameters:
  - ctx: context.Context
  - rawAccessToken: string

Returns:
  - error: InvalidToken (unverifiable token) or storage errors
*/
func (service *Service) Logout(ctx context.Context, rawAccessToken string) error {
	claims, err := service.tokens.Validate(rawAccessToken, sec.TokenTypeAccess)
	if err != nil {
		return err
	}

	actorID := claims.Subject
	sessionID := claims.SessionID

	err = retry.Do(ctx, func(ctx context.Context) error {
		return service.sessions.Revoke(ctx, sessionID, session.ReasonLogout)
	})
	if err != nil {
		return service.infra(err)
	}

	service.record(ctx, audit.EventRevoked, audit.OutcomeSuccess, &actorID, &sessionID, "logout")
	return nil
}

/*
DeactivateActor disables an actor and revokes every session they own.

Description: The cache entry is invalidated eagerly so outstanding access
tokens die on their next lookback rather than at cache expiry.

Parameters:
  - ctx: context.Context
  - actorID: string

Returns:
  - error: Storage errors
*/
func (service *Service) DeactivateActor(ctx context.Context, actorID string) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return service.actors.Deactivate(ctx, actorID)
	})
	if err != nil {
		return service.infra(err)
	}

	if err := service.sessions.RevokeAllForActor(ctx, actorID, session.ReasonDeactivated); err != nil {
		service.logger.ErrorContext(ctx, "auth_deactivate_revoke_all_failed",
			slog.String("actor_id", actorID),
			slog.String("error", err.Error()),
		)
	}
	if service.cache != nil {
		if err := service.cache.Invalidate(ctx, actorID); err != nil {
			service.logger.WarnContext(ctx, "auth_cache_invalidate_failed", slog.String("error", err.Error()))
		}
	}

	service.record(ctx, audit.EventRevoked, audit.OutcomeSuccess, &actorID, nil, "actor deactivated")
	return nil
}

// # Validation Flow

/*
Authenticate verifies an access token and resolves its principal.

Description: Signature, issuer, expiry, and token type come first; then
the active-actor lookback confirms the subject may still authenticate.
The lookback is cached with a short TTL — correctness over latency, since
deactivation invalidates eagerly. Session activity is touched best-effort.

Parameters:
  - ctx: context.Context
  - accessToken: string

Returns:
  - *sec.Principal: Verified identity
  - error: InvalidToken, ExpiredToken, WrongTokenType, AccountInactive,
    or storage errors
*/
func (service *Service) Authenticate(ctx context.Context, accessToken string) (*sec.Principal, error) {
	claims, err := service.tokens.Validate(accessToken, sec.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	active, err := service.lookbackActive(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperr.AccountInactive()
	}

	if err := service.sessions.TouchActivity(ctx, claims.SessionID); err != nil {
		service.logger.WarnContext(ctx, "auth_touch_activity_failed", slog.String("error", err.Error()))
	}

	principal := claims.Principal()
	return &principal, nil
}

// lookbackActive answers "may this actor still authenticate", consulting
// the cache before the store.
func (service *Service) lookbackActive(ctx context.Context, actorID string) (bool, error) {
	if service.cache != nil {
		active, found, err := service.cache.Get(ctx, actorID)
		if err != nil {
			service.logger.WarnContext(ctx, "auth_cache_get_failed", slog.String("error", err.Error()))
		} else if found {
			return active, nil
		}
	}

	var found *actor.Actor
	err := retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		found, lookupErr = service.actors.FindByID(ctx, actorID)
		return lookupErr
	})
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			service.cacheActive(ctx, actorID, false)
			return false, nil
		}
		return false, service.infra(err)
	}

	active := found.CanAuthenticate()
	service.cacheActive(ctx, actorID, active)
	return active, nil
}

// # Profile & Maintenance

/*
Me returns the full actor record behind a verified principal.

Parameters:
  - ctx: context.Context
  - principal: *sec.Principal

Returns:
  - *actor.Actor: Hydrated entity
  - error: NotFound or storage errors
*/
func (service *Service) Me(ctx context.Context, principal *sec.Principal) (*actor.Actor, error) {
	var found *actor.Actor
	err := retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		found, lookupErr = service.actors.FindByID(ctx, principal.ActorID)
		return lookupErr
	})
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			return nil, err
		}
		return nil, service.infra(err)
	}
	return found, nil
}

// CleanupExpiredSessions removes sessions past their refresh expiry.
// Intended for a periodic maintenance caller.
func (service *Service) CleanupExpiredSessions(ctx context.Context) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return service.sessions.DeleteExpired(ctx)
	})
	if err != nil {
		return service.infra(err)
	}
	return nil
}

// # Internals

// resolveRole maps a role name from the request path to its descriptor.
func (service *Service) resolveRole(name string) (authz.Descriptor, error) {
	descriptor, ok := service.registry.Lookup(name)
	if !ok {
		return authz.Descriptor{}, apperr.NotFound("Role")
	}
	return descriptor, nil
}

// checkTenantBinding enforces the tenant shape a role's scope demands.
func (service *Service) checkTenantBinding(descriptor authz.Descriptor, tenantID string) error {
	if descriptor.TenantScoped && tenantID == "" {
		return apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   actor.FieldTenantID,
			Message: "This role requires a tenant",
		})
	}
	if !descriptor.TenantScoped && tenantID != "" {
		return apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   actor.FieldTenantID,
			Message: "This role is not tenant-scoped",
		})
	}
	return nil
}

// openSession creates a new session chain and issues its token pair.
func (service *Service) openSession(ctx context.Context, owner *actor.Actor, fingerprint string) (*AuthSession, error) {
	sessionID := uuid.New()

	pair, err := service.tokens.Issue(owner.ID, owner.Role, owner.TenantString(), sessionID)
	if err != nil {
		return nil, err
	}

	// The first session of a chain is its own chain id.
	record := &session.Session{
		ID:               sessionID,
		ChainID:          sessionID,
		ActorID:          owner.ID,
		AccessTokenHash:  sec.HashToken(pair.AccessToken),
		RefreshTokenHash: sec.HashToken(pair.RefreshToken),
		Fingerprint:      fingerprint,
		IssuedAt:         service.now(),
		ExpiresAt:        pair.RefreshExpiresAt,
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return service.sessions.Create(ctx, record)
	})
	if err != nil {
		return nil, service.infra(err)
	}

	return &AuthSession{Actor: owner, Pair: pair}, nil
}

// cacheActive stores a lookback verdict, logging and ignoring failures.
func (service *Service) cacheActive(ctx context.Context, actorID string, active bool) {
	if service.cache == nil {
		return
	}
	if err := service.cache.Set(ctx, actorID, active); err != nil {
		service.logger.WarnContext(ctx, "auth_cache_set_failed", slog.String("error", err.Error()))
	}
}

// record enqueues an audit entry; the writer guarantees it never blocks.
func (service *Service) record(ctx context.Context, eventType, outcome string, actorID, sessionID *string, message string) {
	if service.auditor == nil {
		return
	}
	service.auditor.Record(ctx, audit.Entry{
		ActorID:   actorID,
		SessionID: sessionID,
		EventType: eventType,
		Outcome:   outcome,
		Message:   message,
		CreatedAt: service.now(),
	})
}

// infra classifies an error from a retried store call: domain errors pass
// through, anything else becomes SERVICE_UNAVAILABLE.
func (service *Service) infra(err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.ServiceUnavailable(err)
}

// isReplay reports whether a supersede failed because the session was
// already spent or revoked.
func isReplay(err error) bool { return errors.Is(err, session.ErrReplay) }

// isSessionExpired reports whether a supersede failed on an expired session.
func isSessionExpired(err error) bool { return errors.Is(err, session.ErrSessionExpired) }
