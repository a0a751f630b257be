// Copyright (c) 2026 Keyra. All rights reserved.

// Package retry implements the storage retry policy for the auth core.
//
// # Policy
//
// A failed store operation is retried exactly once after a short fixed
// delay. Domain errors ([apperr.AppError], e.g. NOT_FOUND) are returned
// immediately — only infrastructure failures are retried. Callers surface
// a second failure as SERVICE_UNAVAILABLE, never as an authentication
// failure.
package retry

import (
	"context"
	"time"

	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/constants"
)

// Do runs op, retrying once on an infrastructure error.
//
// # Flow
//  1. Run op. Success or a domain [*apperr.AppError] returns immediately.
//  2. Wait [constants.StoreRetryDelay], respecting context cancellation.
//  3. Run op a second time and return its result as-is.
//
// Context cancellation during the pause fails closed with the context error.
func Do(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || apperr.IsAppError(err) {
		return err
	}

	timer := time.NewTimer(constants.StoreRetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	return op(ctx)
}
