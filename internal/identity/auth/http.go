// Copyright (c) 2026 Keyra. All rights reserved.

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keyrahq/keyra/internal/identity/actor"
	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/constants"
	requestutil "github.com/keyrahq/keyra/internal/platform/request"
	"github.com/keyrahq/keyra/internal/platform/respond"
	"github.com/keyrahq/keyra/internal/platform/validate"
)

// # HTTP Handler

// Handler exposes the authentication service over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates the authentication HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes builds the router for authentication endpoints.
//
// The role is a path parameter: /auth/{role}/login serves every declared
// role with one handler. Unknown roles 404 inside the service.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Route("/{role}", func(scoped chi.Router) {
		scoped.Post("/join", handler.Join)
		scoped.Post("/login", handler.Login)
		scoped.Post("/refresh", handler.Refresh)
	})

	router.Post("/logout", handler.Logout)
	router.Get("/me", handler.Me)

	return router
}

// # Request / Response Shapes

// joinRequest is the payload for POST /auth/{role}/join.
type joinRequest struct {
	Identifier  string `json:"identifier"`
	Secret      string `json:"secret,omitempty"`
	ExternalKey string `json:"external_key,omitempty"`
	DisplayName string `json:"display_name"`
	TenantID    string `json:"tenant_id,omitempty"`
}

// loginRequest is the payload for POST /auth/{role}/login.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// refreshRequest is the payload for POST /auth/{role}/refresh. The token
// may come from the body or the HttpOnly cookie; the body wins.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// authResponse is the transport shape of an established session.
type authResponse struct {
	Actor            *actor.Actor `json:"actor"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

// # Handlers

/*
Join handles POST /auth/{role}/join.

Description: Enrolls a new actor under the role in the URL and returns
the initial token pair.

Responses:
  - 201: Actor summary with signed tokens
  - 400: Validation failures
  - 404: Unknown role
  - 409: Identifier already registered within scope
*/
func (handler *Handler) Join(writer http.ResponseWriter, request *http.Request) {
	var payload joinRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.
		Required(actor.FieldIdentifier, payload.Identifier).
		MaxLen(actor.FieldIdentifier, payload.Identifier, 254).
		MaxLen(actor.FieldDisplayName, payload.DisplayName, 100).
		Custom(actor.FieldSecret, payload.Secret == "" && payload.ExternalKey == "", "A secret or an external key is required").
		Custom(actor.FieldSecret, payload.Secret != "" && payload.ExternalKey != "", "Provide either a secret or an external key, not both")
	if payload.Secret != "" {
		validator.MinLen(actor.FieldSecret, payload.Secret, 8)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	authSession, err := handler.service.Join(request.Context(), JoinInput{
		Role:        requestutil.Param(request, "role"),
		TenantID:    payload.TenantID,
		Identifier:  payload.Identifier,
		Secret:      payload.Secret,
		ExternalKey: payload.ExternalKey,
		DisplayName: payload.DisplayName,
		Fingerprint: fingerprintFrom(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, authSession)
	respond.Created(writer, toAuthResponse(authSession))
}

/*
Login handles POST /auth/{role}/login.

Responses:
  - 200: Signed token pair
  - 401: INVALID_CREDENTIALS (identical for unknown identifier and bad secret)
  - 403: ACCOUNT_INACTIVE
  - 404: Unknown role
  - 503: Backing store unavailable after retry
*/
func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	var payload loginRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	err := validator.
		Required(actor.FieldIdentifier, payload.Identifier).
		Required(actor.FieldSecret, payload.Secret).
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	authSession, err := handler.service.Login(request.Context(), LoginInput{
		Role:        requestutil.Param(request, "role"),
		TenantID:    payload.TenantID,
		Identifier:  payload.Identifier,
		Secret:      payload.Secret,
		Fingerprint: fingerprintFrom(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, authSession)
	respond.OK(writer, toAuthResponse(authSession))
}

/*
Refresh handles POST /auth/{role}/refresh.

Description: Redeems a refresh token (JSON body, falling back to the
HttpOnly cookie) for a rotated pair. Reuse of a spent token revokes the
whole session chain.

Responses:
  - 200: New signed token pair
  - 401: INVALID_TOKEN, TOKEN_EXPIRED, WRONG_TOKEN_TYPE, or TOKEN_REUSED
  - 403: ACCOUNT_INACTIVE
*/
func (handler *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {
	var payload refreshRequest
	// The body is optional when the cookie carries the token.
	_ = requestutil.DecodeJSON(request, &payload)

	rawToken := payload.RefreshToken
	if rawToken == "" {
		if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil {
			rawToken = cookie.Value
		}
	}
	if rawToken == "" {
		respond.Error(writer, request, apperr.InvalidToken())
		return
	}

	authSession, err := handler.service.Refresh(request.Context(), rawToken, fingerprintFrom(request))
	if err != nil {
		clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, authSession)
	respond.OK(writer, toAuthResponse(authSession))
}

/*
Logout handles POST /auth/logout.

Description: Revokes the session bound to the presented access token.
Idempotent; a second logout of the same session still succeeds.

Responses:
  - 204: Session revoked
  - 401: Missing or unverifiable access token
*/
func (handler *Handler) Logout(writer http.ResponseWriter, request *http.Request) {
	rawToken := requestutil.BearerToken(request)
	if rawToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
		return
	}

	if err := handler.service.Logout(request.Context(), rawToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
Me handles GET /auth/me.

Description: Returns the actor record behind the verified principal.

Responses:
  - 200: Actor record
  - 401: Not authenticated
*/
func (handler *Handler) Me(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	found, err := handler.service.Me(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, found)
}

// # Helpers

// toAuthResponse flattens a service result into the transport shape.
func toAuthResponse(authSession *AuthSession) authResponse {
	return authResponse{
		Actor:            authSession.Actor,
		AccessToken:      authSession.Pair.AccessToken,
		RefreshToken:     authSession.Pair.RefreshToken,
		AccessExpiresAt:  authSession.Pair.AccessExpiresAt,
		RefreshExpiresAt: authSession.Pair.RefreshExpiresAt,
	}
}

// setRefreshCookie mirrors the refresh token into an HttpOnly cookie
// scoped to the auth endpoints.
func setRefreshCookie(writer http.ResponseWriter, authSession *AuthSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    authSession.Pair.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  authSession.Pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh token cookie immediately.
func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// fingerprintFrom derives opaque client metadata for session bookkeeping.
func fingerprintFrom(request *http.Request) string {
	agent := request.UserAgent()
	if agent == "" {
		agent = "unknown"
	}
	return agent
}
