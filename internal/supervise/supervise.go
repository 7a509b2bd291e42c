// Package supervise provides the shared context that all background work in a
// transfer runs under. Every top-level operation owns one Context and one
// Monitor; the Monitor resolves with the first error reported by any
// background worker, or with nil once all workers have finished cleanly.
package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// Context carries the logger and the single-slot error channel shared by all
// workers belonging to one operation. Child contexts share the channel but
// may add logging attributes to scope output to a stream or file.
type Context struct {
	ctx    context.Context
	logger *slog.Logger
	shared *shared
}

// shared is the state common to a Context and all its children.
type shared struct {
	errs chan error // capacity 1: the single error slot
	wg   sync.WaitGroup
	gone atomic.Bool // set once the Monitor has resolved
}

// Monitor aggregates background-task outcomes into a single success or
// first-failure result.
type Monitor struct {
	shared *shared
}

// New builds a fresh Context and its Monitor. The root Context counts as one
// outstanding unit of work; callers must invoke Finish once their foreground
// task is done, or Wait will never resolve successfully.
func New(ctx context.Context, logger *slog.Logger) (*Context, *Monitor) {
	sh := &shared{errs: make(chan error, 1)}
	sh.wg.Add(1)
	c := &Context{ctx: ctx, logger: logger, shared: sh}
	return c, &Monitor{shared: sh}
}

// Context returns the underlying context.Context for I/O calls.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Logger returns the logger associated with this context.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Child derives a context sharing the same error slot, with extra structured
// logging attributes (alternating key/value pairs, as for slog).
func (c *Context) Child(args ...any) *Context {
	return &Context{ctx: c.ctx, logger: c.logger.With(args...), shared: c.shared}
}

// Finish releases the root unit of work created by New. It must be called
// exactly once, after the foreground task has finished spawning workers.
func (c *Context) Finish() {
	c.shared.wg.Done()
}

// Spawn runs fn on its own goroutine. If fn fails, the error is reported to
// the Monitor best-effort: when the slot is already full or the Monitor has
// resolved, the error is logged at debug level and dropped. A report never
// blocks and never panics.
func (c *Context) Spawn(fn func() error) {
	c.shared.wg.Add(1)
	go func() {
		defer c.shared.wg.Done()
		if err := fn(); err != nil {
			c.report(err)
		}
	}()
}

// SpawnProcess starts and monitors an external process. A launch failure or
// a non-zero exit is reported exactly like a worker error.
func (c *Context) SpawnProcess(name string, cmd *exec.Cmd) {
	c.Spawn(func() error {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%s failed to start: %w", name, err)
		}
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return nil
	})
}

func (c *Context) report(err error) {
	c.logger.Debug("reporting background worker error", "error", err)
	if c.shared.gone.Load() {
		c.logger.Debug("supervision already resolved, dropping worker error", "error", err)
		return
	}
	select {
	case c.shared.errs <- err:
	default:
		c.logger.Debug("error slot already filled, dropping worker error", "error", err)
	}
}

// Wait blocks until either a worker reports an error (returned immediately)
// or every worker and the root task have finished (returns nil). At most one
// error is ever returned; Wait must be called at most once.
func (m *Monitor) Wait() error {
	done := make(chan struct{})
	go func() {
		m.shared.wg.Wait()
		close(done)
	}()
	select {
	case err := <-m.shared.errs:
		m.shared.gone.Store(true)
		return err
	case <-done:
		m.shared.gone.Store(true)
		// A worker may have reported just before its final Done.
		select {
		case err := <-m.shared.errs:
			return err
		default:
			return nil
		}
	}
}
