// Copyright (c) 2026 Keyra. All rights reserved.

package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyrahq/keyra/internal/identity/actor"
	"github.com/keyrahq/keyra/internal/identity/audit"
	"github.com/keyrahq/keyra/internal/identity/auth"
	"github.com/keyrahq/keyra/internal/identity/authz"
	"github.com/keyrahq/keyra/internal/identity/session"
	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/sec"
)

// # In-Memory Fakes

// fakeActorStore mimics the Postgres actor store, including scope-unique
// identifiers and an injectable outage.
type fakeActorStore struct {
	mu       sync.Mutex
	actors   map[string]*actor.Actor
	failures int   // number of upcoming calls that fail
	failErr  error // infrastructure error to fail with
	calls    int
}

func newFakeActorStore() *fakeActorStore {
	return &fakeActorStore{actors: map[string]*actor.Actor{}}
}

func (store *fakeActorStore) outage() bool {
	store.calls++
	if store.failures > 0 {
		store.failures--
		return true
	}
	return false
}

func (store *fakeActorStore) Create(ctx context.Context, newActor *actor.Actor) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.outage() {
		return store.failErr
	}
	for _, existing := range store.actors {
		if existing.DeletedAt == nil && existing.Identifier == newActor.Identifier && tenantEqual(existing.TenantID, newActor.TenantID) {
			return apperr.Conflict("Identifier is already registered")
		}
	}
	copied := *newActor
	store.actors[newActor.ID] = &copied
	return nil
}

func (store *fakeActorStore) FindByID(ctx context.Context, id string) (*actor.Actor, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.outage() {
		return nil, store.failErr
	}
	found, ok := store.actors[id]
	if !ok || found.DeletedAt != nil {
		return nil, apperr.NotFound("Actor")
	}
	copied := *found
	return &copied, nil
}

func (store *fakeActorStore) FindByIdentifier(ctx context.Context, identifier string, tenantID *string) (*actor.Actor, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.outage() {
		return nil, store.failErr
	}
	for _, found := range store.actors {
		if found.Identifier == identifier && tenantEqual(found.TenantID, tenantID) {
			copied := *found
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Actor")
}

func (store *fakeActorStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if found, ok := store.actors[id]; ok {
		found.LastLoginAt = &at
	}
	return nil
}

func (store *fakeActorStore) Deactivate(ctx context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if found, ok := store.actors[id]; ok {
		found.IsActive = false
	}
	return nil
}

func (store *fakeActorStore) SoftDelete(ctx context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if found, ok := store.actors[id]; ok {
		now := time.Now()
		found.DeletedAt = &now
	}
	return nil
}

func tenantEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// fakeSessionStore mirrors the conditional-update semantics of the
// Postgres registry, so the single-winner contract is testable.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*session.Session{}}
}

func (store *fakeSessionStore) Create(ctx context.Context, record *session.Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	copied := *record
	store.sessions[record.ID] = &copied
	return nil
}

func (store *fakeSessionStore) FindByID(ctx context.Context, id string) (*session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	found, ok := store.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	copied := *found
	return &copied, nil
}

func (store *fakeSessionStore) Supersede(ctx context.Context, oldID string, successor *session.Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	old, ok := store.sessions[oldID]
	if !ok {
		return apperr.NotFound("Session")
	}

	now := time.Now()
	switch {
	case old.IsRefreshed() || old.IsRevoked():
		return session.ErrReplay
	case old.IsExpired(now):
		return session.ErrSessionExpired
	}

	old.RefreshedAt = &now
	copied := *successor
	store.sessions[successor.ID] = &copied
	return nil
}

func (store *fakeSessionStore) Revoke(ctx context.Context, id string, reason string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if found, ok := store.sessions[id]; ok && !found.IsRevoked() {
		now := time.Now()
		found.RevokedAt = &now
		found.RevokeReason = &reason
	}
	return nil
}

func (store *fakeSessionStore) RevokeChain(ctx context.Context, chainID string, reason string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	now := time.Now()
	for _, found := range store.sessions {
		if found.ChainID == chainID && !found.IsRevoked() {
			found.RevokedAt = &now
			found.RevokeReason = &reason
		}
	}
	return nil
}

func (store *fakeSessionStore) RevokeAllForActor(ctx context.Context, actorID string, reason string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	now := time.Now()
	for _, found := range store.sessions {
		if found.ActorID == actorID && !found.IsRevoked() {
			found.RevokedAt = &now
			found.RevokeReason = &reason
		}
	}
	return nil
}

func (store *fakeSessionStore) TouchActivity(ctx context.Context, id string) error { return nil }

func (store *fakeSessionStore) DeleteExpired(ctx context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	now := time.Now()
	for id, found := range store.sessions {
		if found.IsExpired(now) {
			delete(store.sessions, id)
		}
	}
	return nil
}

// chainSessions returns every session of a chain, for assertions.
func (store *fakeSessionStore) chainSessions(chainID string) []*session.Session {
	store.mu.Lock()
	defer store.mu.Unlock()
	var out []*session.Session
	for _, found := range store.sessions {
		if found.ChainID == chainID {
			copied := *found
			out = append(out, &copied)
		}
	}
	return out
}

// fakeCache is a map-backed ActiveCache.
type fakeCache struct {
	mu       sync.Mutex
	verdicts map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{verdicts: map[string]bool{}} }

func (cache *fakeCache) Get(ctx context.Context, actorID string) (bool, bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	active, found := cache.verdicts[actorID]
	return active, found, nil
}

func (cache *fakeCache) Set(ctx context.Context, actorID string, active bool) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.verdicts[actorID] = active
	return nil
}

func (cache *fakeCache) Invalidate(ctx context.Context, actorID string) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.verdicts, actorID)
	return nil
}

// fakeRecorder captures audit entries synchronously.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (recorder *fakeRecorder) Record(ctx context.Context, entry audit.Entry) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.entries = append(recorder.entries, entry)
}

func (recorder *fakeRecorder) byEvent(eventType string) []audit.Entry {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	var out []audit.Entry
	for _, entry := range recorder.entries {
		if entry.EventType == eventType {
			out = append(out, entry)
		}
	}
	return out
}

// # Harness

type harness struct {
	service  *auth.Service
	actors   *fakeActorStore
	sessions *fakeSessionStore
	cache    *fakeCache
	recorder *fakeRecorder
	tokens   *sec.TokenService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	actors := newFakeActorStore()
	sessions := newFakeSessionStore()
	cache := newFakeCache()
	recorder := &fakeRecorder{}
	tokens := sec.NewTokenService("0123456789abcdef0123456789abcdef", "keyra", time.Hour, 168*time.Hour)

	service := auth.NewService(actors, cache, sessions, tokens, recorder, authz.Default(), slog.Default())
	return &harness{
		service:  service,
		actors:   actors,
		sessions: sessions,
		cache:    cache,
		recorder: recorder,
		tokens:   tokens,
	}
}

func (h *harness) join(t *testing.T, role, tenant, identifier, secret string) *auth.AuthSession {
	t.Helper()
	authSession, err := h.service.Join(context.Background(), auth.JoinInput{
		Role:        role,
		TenantID:    tenant,
		Identifier:  identifier,
		Secret:      secret,
		DisplayName: "Test Actor",
	})
	require.NoError(t, err)
	return authSession
}

// # Enrollment

/*
TestService_Join covers enrollment, scope-unique identifiers, and tenant binding.
*/
func TestService_Join(t *testing.T) {
	t.Run("creates_actor_and_session", func(t *testing.T) {
		h := newHarness(t)
		authSession := h.join(t, "regularUser", "tenant-1", "Ana@Example.com", "s3cretpass")

		require.NotNil(t, authSession.Actor)
		assert.Equal(t, "regularUser", authSession.Actor.Role)
		// Identifier is stored normalized.
		assert.Equal(t, "ana@example.com", authSession.Actor.Identifier)
		assert.NotEmpty(t, authSession.Pair.AccessToken)
		assert.NotEmpty(t, authSession.Pair.RefreshToken)

		issued := h.recorder.byEvent(audit.EventIssued)
		require.Len(t, issued, 1)
		assert.Equal(t, audit.OutcomeSuccess, issued[0].Outcome)
	})

	t.Run("duplicate_identifier_conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		_, err := h.service.Join(context.Background(), auth.JoinInput{
			Role:       "regularUser",
			TenantID:   "tenant-1",
			Identifier: "ANA@example.com", // same identity after normalization
			Secret:     "otherpass1",
		})
		assert.True(t, apperr.IsCode(err, "CONFLICT"))
	})

	t.Run("same_identifier_other_tenant_allowed", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")
		h.join(t, "regularUser", "tenant-2", "ana@example.com", "s3cretpass")
	})

	t.Run("unknown_role_404", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.Join(context.Background(), auth.JoinInput{
			Role: "ghost", Identifier: "x@y.z", Secret: "s3cretpass",
		})
		assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	})

	t.Run("tenant_scoped_role_requires_tenant", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.Join(context.Background(), auth.JoinInput{
			Role: "regularUser", Identifier: "x@y.z", Secret: "s3cretpass",
		})
		assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
	})

	t.Run("platform_role_rejects_tenant", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.Join(context.Background(), auth.JoinInput{
			Role: "systemAdmin", TenantID: "tenant-1", Identifier: "x@y.z", Secret: "s3cretpass",
		})
		assert.True(t, apperr.IsCode(err, "VALIDATION_ERROR"))
	})
}

// # Login

/*
TestService_Login covers the credential verification matrix.
*/
func TestService_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "manager", "tenant-1", "ana@example.com", "s3cretpass")

		authSession, err := h.service.Login(context.Background(), auth.LoginInput{
			Role: "manager", TenantID: "tenant-1", Identifier: "Ana@Example.COM", Secret: "s3cretpass",
		})
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", authSession.Actor.Identifier)

		claims, err := h.tokens.Validate(authSession.Pair.AccessToken, sec.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, "manager", claims.Role)
		assert.Equal(t, "tenant-1", claims.TenantID)
	})

	t.Run("unknown_identifier_and_wrong_secret_identical", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		_, unknownErr := h.service.Login(context.Background(), auth.LoginInput{
			Role: "regularUser", TenantID: "tenant-1", Identifier: "ghost@example.com", Secret: "s3cretpass",
		})
		_, wrongErr := h.service.Login(context.Background(), auth.LoginInput{
			Role: "regularUser", TenantID: "tenant-1", Identifier: "ana@example.com", Secret: "wrongsecret",
		})

		require.Error(t, unknownErr)
		require.Error(t, wrongErr)
		assert.Equal(t, apperr.As(unknownErr).Code, apperr.As(wrongErr).Code)
		assert.Equal(t, apperr.As(unknownErr).Message, apperr.As(wrongErr).Message)
		assert.True(t, apperr.IsCode(unknownErr, "INVALID_CREDENTIALS"))

		failed := h.recorder.byEvent(audit.EventFailed)
		assert.Len(t, failed, 2)
	})

	t.Run("deactivated_account_inactive", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")
		require.NoError(t, h.actors.Deactivate(context.Background(), joined.Actor.ID))

		_, err := h.service.Login(context.Background(), auth.LoginInput{
			Role: "regularUser", TenantID: "tenant-1", Identifier: "ana@example.com", Secret: "s3cretpass",
		})
		assert.True(t, apperr.IsCode(err, "ACCOUNT_INACTIVE"))
	})

	t.Run("role_mismatch_hidden_as_invalid_credentials", func(t *testing.T) {
		h := newHarness(t)
		h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		_, err := h.service.Login(context.Background(), auth.LoginInput{
			Role: "manager", TenantID: "tenant-1", Identifier: "ana@example.com", Secret: "s3cretpass",
		})
		assert.True(t, apperr.IsCode(err, "INVALID_CREDENTIALS"))
	})
}

// # Refresh Rotation

/*
TestService_Refresh covers rotation, replay revocation, and type confusion.
*/
func TestService_Refresh(t *testing.T) {
	t.Run("rotation_then_replay_revokes_chain", func(t *testing.T) {
		h := newHarness(t)
		first := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")
		chainID := first.Pair.SessionID

		second, err := h.service.Refresh(context.Background(), first.Pair.RefreshToken, "ua")
		require.NoError(t, err)
		assert.NotEqual(t, first.Pair.RefreshToken, second.Pair.RefreshToken)

		// Replaying the spent token is a replay signal.
		_, err = h.service.Refresh(context.Background(), first.Pair.RefreshToken, "ua")
		assert.True(t, apperr.IsCode(err, "TOKEN_REUSED"))

		// The whole chain is revoked, killing the legitimate successor too.
		for _, chained := range h.sessions.chainSessions(chainID) {
			assert.True(t, chained.IsRevoked() || chained.IsRefreshed())
		}
		_, err = h.service.Refresh(context.Background(), second.Pair.RefreshToken, "ua")
		assert.True(t, apperr.IsCode(err, "TOKEN_REUSED"))
	})

	t.Run("access_token_is_wrong_type", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		_, err := h.service.Refresh(context.Background(), joined.Pair.AccessToken, "ua")
		assert.True(t, apperr.IsCode(err, "WRONG_TOKEN_TYPE"))
	})

	t.Run("garbage_token_invalid", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.service.Refresh(context.Background(), "not.a.token", "ua")
		assert.True(t, apperr.IsCode(err, "INVALID_TOKEN"))
	})

	t.Run("deactivated_actor_cannot_refresh", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")
		require.NoError(t, h.actors.Deactivate(context.Background(), joined.Actor.ID))

		_, err := h.service.Refresh(context.Background(), joined.Pair.RefreshToken, "ua")
		assert.True(t, apperr.IsCode(err, "ACCOUNT_INACTIVE"))
	})

	t.Run("concurrent_refreshes_single_winner", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.service.Refresh(context.Background(), joined.Pair.RefreshToken, "ua")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var successes, replays int
		for err := range results {
			switch {
			case err == nil:
				successes++
			case apperr.IsCode(err, "TOKEN_REUSED"):
				replays++
			default:
				t.Fatalf("unexpected refresh error: %v", err)
			}
		}
		assert.Equal(t, 1, successes)
		assert.Equal(t, 1, replays)
	})
}

// # Revocation & Validation

/*
TestService_Logout verifies idempotent revocation of the presented session.
*/
func TestService_Logout(t *testing.T) {
	h := newHarness(t)
	joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

	require.NoError(t, h.service.Logout(context.Background(), joined.Pair.AccessToken))

	// Idempotent: a second logout of the same session still succeeds.
	require.NoError(t, h.service.Logout(context.Background(), joined.Pair.AccessToken))

	// The refresh token of the revoked session is now useless.
	_, err := h.service.Refresh(context.Background(), joined.Pair.RefreshToken, "ua")
	assert.True(t, apperr.IsCode(err, "TOKEN_REUSED"))
}

/*
TestService_Authenticate verifies the access-token path with the active lookback.
*/
func TestService_Authenticate(t *testing.T) {
	t.Run("resolves_principal", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "manager", "tenant-1", "ana@example.com", "s3cretpass")

		principal, err := h.service.Authenticate(context.Background(), joined.Pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, joined.Actor.ID, principal.ActorID)
		assert.Equal(t, "manager", principal.Role)
		assert.Equal(t, "tenant-1", principal.TenantID)
	})

	t.Run("deactivation_kills_outstanding_tokens", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		// Warm the cache with a positive verdict.
		_, err := h.service.Authenticate(context.Background(), joined.Pair.AccessToken)
		require.NoError(t, err)

		// Deactivation revokes sessions and invalidates the cached verdict.
		require.NoError(t, h.service.DeactivateActor(context.Background(), joined.Actor.ID))

		_, err = h.service.Authenticate(context.Background(), joined.Pair.AccessToken)
		assert.True(t, apperr.IsCode(err, "ACCOUNT_INACTIVE"))
	})

	t.Run("refresh_token_rejected", func(t *testing.T) {
		h := newHarness(t)
		joined := h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

		_, err := h.service.Authenticate(context.Background(), joined.Pair.RefreshToken)
		assert.True(t, apperr.IsCode(err, "WRONG_TOKEN_TYPE"))
	})
}

// # Outage Propagation

/*
TestService_StoreOutage verifies the retry-once-then-503 policy: an
unreachable store never masquerades as an authentication failure.
*/
func TestService_StoreOutage(t *testing.T) {
	h := newHarness(t)
	h.join(t, "regularUser", "tenant-1", "ana@example.com", "s3cretpass")

	h.actors.failErr = errors.New("connection refused")
	h.actors.failures = 2 // first attempt and its retry

	before := h.actors.calls
	_, err := h.service.Login(context.Background(), auth.LoginInput{
		Role: "regularUser", TenantID: "tenant-1", Identifier: "ana@example.com", Secret: "s3cretpass",
	})

	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, "SERVICE_UNAVAILABLE"))
	assert.Equal(t, 2, h.actors.calls-before)
}
