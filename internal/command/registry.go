// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"fmt"
	"sync"
)

// Handler executes one Command and produces the canonical response
// type (spec §9 "polymorphism over handler return values": every
// handler returns a *CommandResponse, full stop).
type Handler func(c *Command) *CommandResponse

// Hook runs at registry setup, tidy, or shutdown time. Hooks do not
// take a Command; they exist for handlers that need to open/close a
// resource shared across invocations (a cache handle, a file lock).
type Hook func() error

// Registry is a name to Handler map populated once at startup by
// declarative registrations (spec §4 "Command Registry") and treated
// as immutable thereafter; reads from many goroutines are therefore
// safe without further locking once setup finishes, but Register
// itself takes a lock so init order is not load-bearing.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	setup    []Hook
	tidy     []Hook
	shutdown []Hook
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to handler. A duplicate registration replaces
// the previous handler; callers are expected to register each name
// exactly once during startup.
func (r *Registry) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// OnSetup appends a hook run once before the registry starts serving
// commands.
func (r *Registry) OnSetup(hook Hook) { r.setup = append(r.setup, hook) }

// OnTidy appends a hook run periodically (wired to the supervisor's
// timer tick) for handlers that need to do incremental housekeeping.
func (r *Registry) OnTidy(hook Hook) { r.tidy = append(r.tidy, hook) }

// OnShutdown appends a hook run once during an orderly halt.
func (r *Registry) OnShutdown(hook Hook) { r.shutdown = append(r.shutdown, hook) }

// Setup runs every registered setup hook in registration order,
// returning the first error encountered.
func (r *Registry) Setup() error { return runHooks(r.setup) }

// Tidy runs every registered tidy hook, collecting rather than
// stopping at the first error so one misbehaving hook does not starve
// the others.
func (r *Registry) Tidy() []error {
	var errs []error
	for _, h := range r.tidy {
		if err := h(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Shutdown runs every registered shutdown hook, collecting errors the
// same way Tidy does.
func (r *Registry) Shutdown() []error {
	var errs []error
	for _, h := range r.shutdown {
		if err := h(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Dispatch looks up c.Name and invokes its handler, converting an
// unknown name or a panicking handler into an error CommandResponse
// instead of propagating (spec §9 "exceptions for flow control",
// §7 "handler exceptions ... are caught and converted").
func (r *Registry) Dispatch(c *Command) (resp *CommandResponse) {
	r.mu.RLock()
	handler, ok := r.handlers[c.Name]
	r.mu.RUnlock()

	if !ok {
		return Error(fmt.Sprintf("no handler registered for command %q", c.Name), c.GUID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = Error(fmt.Sprintf("handler panic: %v", rec), c.GUID)
		}
	}()

	resp = handler(c)
	if resp == nil {
		resp = Error("handler returned no response", c.GUID)
	}
	if resp.GUID == "" {
		resp.GUID = c.GUID
	}
	return resp
}

func runHooks(hooks []Hook) error {
	for _, h := range hooks {
		if err := h(); err != nil {
			return err
		}
	}
	return nil
}
