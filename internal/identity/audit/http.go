// Copyright (c) 2026 Keyra. All rights reserved.

package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyrahq/keyra/internal/platform/respond"
	"github.com/keyrahq/keyra/pkg/pagination"
)

// Handler exposes the audit trail to platform administrators.
//
// Routes are mounted behind the systemAdmin guard by the server; the
// handler itself performs no authorization.
type Handler struct {
	store Store
}

// NewHandler creates the audit HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes builds the router for audit endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.List)
	return router
}

/*
List handles GET /admin/audit.

Description: Returns one page of audit entries, newest first. Optional
query filters: actor_id, event_type, outcome.

Query Parameters:
  - page, limit: pagination (1-indexed, clamped)
  - actor_id, event_type, outcome: optional filters

Responses:
  - 200: Paginated entry list
  - 500: Listing failures
*/
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)
	filter := Filter{
		ActorID:   request.URL.Query().Get("actor_id"),
		EventType: request.URL.Query().Get("event_type"),
		Outcome:   request.URL.Query().Get("outcome"),
	}

	entries, total, err := handler.store.List(request.Context(), filter, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, pagination.NewMeta(params.Page, params.Limit, total))
}
