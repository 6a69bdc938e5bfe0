// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import "github.com/dfo-meds/erddaputil/pkg/log"

// BrokerSender is the Router's view of the Broker Adapter: just
// enough to publish an envelope and ask whether the adapter is
// usable at all. The broker package implements this against NATS;
// tests can supply a stub.
type BrokerSender interface {
	Publish(envelope string, scope BroadcastScope) error
	Configured() bool
}

// LocalSender is the Router's view of the Local Receiver: deliver an
// envelope and get the response envelope back, the way a CLI
// invocation dials the loopback socket.
type LocalSender interface {
	Send(envelope string) (string, error)
}

// Serializer is the subset of *serializer.Serializer the Router and
// Receiver need; declared here to avoid a dependency from command on
// serializer's concrete type where only the behavior matters.
type Serializer interface {
	Serialize(map[string]interface{}) (string, error)
	Unserialize(string) (map[string]interface{}, error)
}

// Router implements the command fan-out in spec §4.2: broker first
// (if enabled and in scope), then local (if enabled); the local
// response always wins on the return path.
type Router struct {
	Serializer   Serializer
	Broker       BrokerSender // nil if no broker configured
	Local        LocalSender  // nil if local delivery disabled
	Hostname     string
	LocalEnabled bool
}

// Send fans c out per configuration and returns the response a caller
// should surface. A broker send failure is logged and does not
// short-circuit the local delivery attempt.
func (r *Router) Send(c *Command) *CommandResponse {
	var brokerResp *CommandResponse

	if r.Broker != nil && c.BroadcastScope != ScopeNone && r.Broker.Configured() {
		c.MarkSeenBy(r.Hostname)
		env, err := r.Serializer.Serialize(c.ToEnvelope())
		if err != nil {
			brokerResp = Error("serialize for broker: "+err.Error(), c.GUID)
		} else if err := r.Broker.Publish(env, c.BroadcastScope); err != nil {
			log.Warnf("command: broker publish failed for %s: %v", c.Name, err)
			brokerResp = Error("broker publish failed: "+err.Error(), c.GUID)
		} else {
			brokerResp = Success("published", c.GUID)
		}
	}

	if r.LocalEnabled && r.Local != nil {
		env, err := r.Serializer.Serialize(c.ToEnvelope())
		if err != nil {
			return Error("serialize for local delivery: "+err.Error(), c.GUID)
		}
		respEnv, err := r.Local.Send(env)
		if err != nil {
			return Error("local delivery failed: "+err.Error(), c.GUID)
		}
		decoded, err := r.Serializer.Unserialize(respEnv)
		if err != nil {
			return Error("local response unreadable: "+err.Error(), c.GUID)
		}
		return ResponseFromEnvelope(decoded)
	}

	if brokerResp != nil {
		return brokerResp
	}

	return Error("no transport enabled for this command", c.GUID)
}
