// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package shutdown runs cleanup hooks when the CLI exits, whether the command
// finished or was interrupted.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type HookFunc func(context.Context) error

type hook struct {
	name string
	fn   HookFunc
}

// Coordinator runs registered hooks at most once, newest first.
type Coordinator struct {
	mu    sync.Mutex
	hooks []hook
	done  bool
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register adds a hook. Hooks registered after Run are ignored.
func (c *Coordinator) Register(name string, fn HookFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
}

// Names lists the pending hooks in the order they will run.
func (c *Coordinator) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	names := make([]string, 0, len(c.hooks))
	for i := len(c.hooks) - 1; i >= 0; i-- {
		names = append(names, c.hooks[i].name)
	}
	return names
}

// Run executes every hook and joins their errors. The deadline of ctx, if
// any, is split evenly across the hooks still to run.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hookCtx, cancel := share(ctx, i+1)
		if err := hooks[i].fn(hookCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

// RunWithTimeout is Run bounded by timeout from a fresh context, for use
// after the command context has already been cancelled.
func (c *Coordinator) RunWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Run(ctx)
}

func share(ctx context.Context, remaining int) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return ctx, func() {}
	}
	left := time.Until(deadline)
	if left <= 0 {
		return context.WithTimeout(ctx, time.Millisecond)
	}
	return context.WithTimeout(ctx, left/time.Duration(remaining))
}
