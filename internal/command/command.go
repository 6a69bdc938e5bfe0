// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package command defines the Command/CommandResponse data model, the
// Registry handlers are declared against, the Router that fans a
// Command out to the local receiver and/or the cluster exchange, and
// the length-delimited TCP Receiver that terminates the local path.
package command

import "github.com/google/uuid"

// BroadcastScope controls how far a Command travels.
type BroadcastScope int

const (
	ScopeNone BroadcastScope = iota
	ScopeCluster
	ScopeGlobal
)

// Command is the unit of work routed through the sidecar. GUID is
// preserved across serialization and rebroadcast; IgnoreOnHosts is
// append-only and is how loop suppression across the cluster
// exchange is implemented.
type Command struct {
	GUID           string                 `json:"guid"`
	Name           string                 `json:"name"`
	Args           []interface{}          `json:"args,omitempty"`
	Kwargs         map[string]interface{} `json:"kwargs,omitempty"`
	BroadcastScope BroadcastScope         `json:"broadcast_scope"`
	IgnoreOnHosts  []string               `json:"ignore_on_hosts,omitempty"`
}

// New builds a Command with a fresh GUID.
func New(name string, args []interface{}, kwargs map[string]interface{}, scope BroadcastScope) *Command {
	return &Command{
		GUID:           uuid.NewString(),
		Name:           name,
		Args:           args,
		Kwargs:         kwargs,
		BroadcastScope: scope,
	}
}

// MarkSeenBy appends host to IgnoreOnHosts if it is not already
// present. Safe to call repeatedly; never removes an entry.
func (c *Command) MarkSeenBy(host string) {
	for _, h := range c.IgnoreOnHosts {
		if h == host {
			return
		}
	}
	c.IgnoreOnHosts = append(c.IgnoreOnHosts, host)
}

// SeenBy reports whether host already appears in IgnoreOnHosts.
func (c *Command) SeenBy(host string) bool {
	for _, h := range c.IgnoreOnHosts {
		if h == host {
			return true
		}
	}
	return false
}

// ToEnvelope converts a Command to the map shape the Serializer
// signs. Every field, broadcast_scope included, is copied as it is;
// the caller's Command is not modified.
func (c *Command) ToEnvelope() map[string]interface{} {
	return map[string]interface{}{
		"guid":            c.GUID,
		"name":            c.Name,
		"args":            c.Args,
		"kwargs":          c.Kwargs,
		"broadcast_scope": int(c.BroadcastScope),
		"ignore_on_hosts": c.IgnoreOnHosts,
	}
}

// FromEnvelope rebuilds a Command from a decoded envelope map. Unknown
// or missing keys yield zero values rather than an error: the wire
// format is append-only by design.
func FromEnvelope(env map[string]interface{}) *Command {
	c := &Command{}
	if v, ok := env["guid"].(string); ok {
		c.GUID = v
	}
	if v, ok := env["name"].(string); ok {
		c.Name = v
	}
	if v, ok := env["args"].([]interface{}); ok {
		c.Args = v
	}
	if v, ok := env["kwargs"].(map[string]interface{}); ok {
		c.Kwargs = v
	}
	switch v := env["broadcast_scope"].(type) {
	case float64:
		c.BroadcastScope = BroadcastScope(int(v))
	case int:
		c.BroadcastScope = BroadcastScope(v)
	}
	switch v := env["ignore_on_hosts"].(type) {
	case []interface{}:
		for _, h := range v {
			if s, ok := h.(string); ok {
				c.IgnoreOnHosts = append(c.IgnoreOnHosts, s)
			}
		}
	case []string:
		c.IgnoreOnHosts = append(c.IgnoreOnHosts, v...)
	}
	return c
}

// ResponseState is the outcome of a dispatched Command.
type ResponseState string

const (
	StateSuccess ResponseState = "success"
	StateError   ResponseState = "error"
)

// CommandResponse is the single canonical handler return type
// (spec §9 "polymorphism over handler return values"): every handler,
// regardless of what it conceptually wants to return, is adapted to
// this shape at the registry boundary.
type CommandResponse struct {
	State   ResponseState `json:"state"`
	Message interface{}   `json:"message"`
	GUID    string        `json:"guid,omitempty"`
}

// Success builds a success response, optionally echoing guid.
func Success(message interface{}, guid string) *CommandResponse {
	return &CommandResponse{State: StateSuccess, Message: message, GUID: guid}
}

// Error builds an error response, optionally echoing guid.
func Error(message interface{}, guid string) *CommandResponse {
	return &CommandResponse{State: StateError, Message: message, GUID: guid}
}

// ToEnvelope converts a CommandResponse to the map shape the
// Serializer signs.
func (r *CommandResponse) ToEnvelope() map[string]interface{} {
	return map[string]interface{}{
		"state":   string(r.State),
		"message": r.Message,
		"guid":    r.GUID,
	}
}

// ResponseFromEnvelope rebuilds a CommandResponse from a decoded
// envelope map.
func ResponseFromEnvelope(env map[string]interface{}) *CommandResponse {
	r := &CommandResponse{}
	if v, ok := env["state"].(string); ok {
		r.State = ResponseState(v)
	}
	r.Message = env["message"]
	if v, ok := env["guid"].(string); ok {
		r.GUID = v
	}
	return r
}
