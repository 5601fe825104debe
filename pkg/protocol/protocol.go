// Package protocol defines the channel integration contract and its
// process-wide registry. A Protocol is a named, independently startable
// communication channel (chat, email, Discord, Slack, ...) that accepts
// outbound messages and exposes a uniform lifecycle to every front-end.
package protocol

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/grvsrs/relaygate/pkg/message"
)

// Protocol is the capability every channel integration implements.
// New channels are added by implementing this interface and registering the
// instance; the registry and dispatch layers never change.
type Protocol interface {
	// Name returns the unique registry key for this instance.
	Name() string

	// Start performs integration-specific setup and transitions to running.
	// Starting an already-running protocol is a no-op. On failure the
	// protocol remains stopped and the error is returned.
	Start(ctx context.Context) error

	// Stop tears down resources and transitions to stopped. Stopping an
	// already-stopped protocol is a no-op.
	Stop(ctx context.Context) error

	// Running reports the current lifecycle state.
	Running() bool

	// Config returns a redacted, non-secret view of the integration's
	// configuration. Implementations must never include credentials.
	Config() map[string]interface{}

	// GenerateID produces a message identifier unique among messages this
	// instance has generated. Safe for concurrent use with Send.
	GenerateID() string

	// Send delivers a message through the underlying channel. Must only be
	// called while running; callers check Running first and the dispatch
	// layer enforces it.
	Send(ctx context.Context, msg *message.Message) error
}

// Hooks are the integration-specific pieces a concrete channel plugs into a
// Runner. Any hook may be nil, in which case the step is skipped (useful for
// purely in-process channels).
type Hooks struct {
	Connect    func(ctx context.Context) error
	Disconnect func(ctx context.Context) error
	Deliver    func(ctx context.Context, msg *message.Message) error
}

// Runner implements the Protocol lifecycle state machine once, so every
// channel shares the same transition guarantees: transitions are mutually
// exclusive (two concurrent Starts never double-initialize), redundant
// Start/Stop calls are no-ops, and a failed Connect leaves the state stopped.
type Runner struct {
	name    string
	config  map[string]interface{}
	hooks   Hooks
	mu      sync.RWMutex
	running bool
}

// NewRunner creates a stopped Runner for the named channel. The config map is
// the redacted view returned by Config; it must not contain secrets.
func NewRunner(name string, config map[string]interface{}, hooks Hooks) *Runner {
	if config == nil {
		config = make(map[string]interface{})
	}
	return &Runner{name: name, config: config, hooks: hooks}
}

// Name returns the registry key.
func (r *Runner) Name() string { return r.name }

// Start transitions stopped → running, invoking the Connect hook.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.hooks.Connect != nil {
		if err := r.hooks.Connect(ctx); err != nil {
			return err
		}
	}
	r.running = true
	return nil
}

// Stop transitions running → stopped, invoking the Disconnect hook.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	if r.hooks.Disconnect != nil {
		if err := r.hooks.Disconnect(ctx); err != nil {
			return err
		}
	}
	r.running = false
	return nil
}

// Running reports the lifecycle state.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Config returns a copy of the redacted configuration snapshot.
func (r *Runner) Config() map[string]interface{} {
	out := make(map[string]interface{}, len(r.config))
	for k, v := range r.config {
		out[k] = v
	}
	return out
}

// GenerateID returns a fresh unique message identifier.
func (r *Runner) GenerateID() string {
	return uuid.NewString()
}

// Send delivers a message through the Deliver hook. It rejects sends while
// stopped so a plugin's transport is never touched without a live connection.
// The read lock is held across the hook call: Stop's write lock waits for
// in-flight deliveries, so Disconnect never tears down a session while a
// delivery is still using it. Concurrent Sends proceed in parallel.
func (r *Runner) Send(ctx context.Context, msg *message.Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return ErrNotRunning
	}
	if r.hooks.Deliver == nil {
		return nil
	}
	return r.hooks.Deliver(ctx, msg)
}

var _ Protocol = (*Runner)(nil)
