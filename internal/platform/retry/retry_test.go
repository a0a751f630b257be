// Copyright (c) 2026 Keyra. All rights reserved.

package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/retry"
)

/*
TestDo_SuccessFirstAttempt runs the operation exactly once on success.
*/
func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

/*
TestDo_DomainErrorNotRetried returns AppErrors immediately: NOT_FOUND is
an answer, not an outage.
*/
func TestDo_DomainErrorNotRetried(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return apperr.NotFound("Actor")
	})

	assert.True(t, apperr.IsCode(err, "NOT_FOUND"))
	assert.Equal(t, 1, calls)
}

/*
TestDo_InfraErrorRetriedOnce retries an infrastructure failure exactly once.
*/
func TestDo_InfraErrorRetriedOnce(t *testing.T) {
	infraErr := errors.New("connection refused")

	t.Run("second_attempt_succeeds", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return infraErr
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("second_attempt_fails", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return infraErr
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, infraErr)
		assert.Equal(t, 2, calls)
	})
}

/*
TestDo_ContextCanceledDuringPause fails closed with the context error.
*/
func TestDo_ContextCanceledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := retry.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel() // cancel before the retry pause elapses
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
