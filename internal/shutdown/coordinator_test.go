// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsLIFOAndOnce(t *testing.T) {
	c := NewCoordinator()
	var order []string
	for _, name := range []string{"history-close", "telemetry-flush", "temp-cleanup"} {
		name := name
		c.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	assert.Equal(t, []string{"temp-cleanup", "telemetry-flush", "history-close"}, c.Names())

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"temp-cleanup", "telemetry-flush", "history-close"}, order)

	order = nil
	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, order)
	assert.Empty(t, c.Names())
}

func TestRunJoinsErrors(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("boom")
	ran := false
	c.Register("ok", func(context.Context) error {
		ran = true
		return nil
	})
	c.Register("flush", func(context.Context) error { return boom })

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "flush: boom")
	assert.True(t, ran, "later hooks still run after a failure")
}

func TestRegisterAfterRunIgnored(t *testing.T) {
	c := NewCoordinator()
	require.NoError(t, c.Run(context.Background()))

	c.Register("late", func(context.Context) error {
		t.Fatal("hook registered after Run must not execute")
		return nil
	})
	c.Register("nil", nil)
	require.NoError(t, c.Run(context.Background()))
}

func TestRunWithTimeoutSharesDeadline(t *testing.T) {
	c := NewCoordinator()
	var budgets []time.Duration
	for i := 0; i < 2; i++ {
		c.Register("hook", func(ctx context.Context) error {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			budgets = append(budgets, time.Until(deadline))
			return nil
		})
	}

	require.NoError(t, c.RunWithTimeout(2*time.Second))
	require.Len(t, budgets, 2)
	assert.LessOrEqual(t, budgets[0], time.Second)
	assert.Greater(t, budgets[1], time.Second)
}
