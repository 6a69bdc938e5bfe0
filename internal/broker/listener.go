// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/dedup"
	"github.com/dfo-meds/erddaputil/pkg/log"
)

// Listener implements the receive side of spec §4.5: on every message
// from the Adapter, unserialize it, skip it if this GUID has already
// been dispatched locally (tolerating the bus's at-least-once
// delivery), clear the broadcast scope so the local dispatch can
// never itself trigger a rebroadcast, and forward locally unless this
// host already appears in ignore_on_hosts.
type Listener struct {
	Adapter    *Adapter
	Serializer command.Serializer
	Local      command.LocalSender
	Dedup      *dedup.Store
	Hostname   string
}

// Start subscribes the Adapter and processes messages until halt is closed.
func (l *Listener) Start(halt <-chan struct{}) error {
	return l.Adapter.Subscribe(l.handle, halt)
}

func (l *Listener) handle(envelope []byte) {
	decoded, err := l.Serializer.Unserialize(string(envelope))
	if err != nil {
		log.Warnf("broker: dropping message with bad signature: %v", err)
		return
	}

	cmd := command.FromEnvelope(decoded)

	if l.Dedup != nil {
		alreadySeen, err := l.Dedup.CheckAndRemember(cmd.GUID)
		if err != nil {
			log.Warnf("broker: dedup check failed for %s: %v", cmd.GUID, err)
		} else if alreadySeen {
			log.Debugf("broker: ignoring duplicate delivery of %s", cmd.GUID)
			return
		}
	}

	if cmd.SeenBy(l.Hostname) {
		log.Debugf("broker: %s already processed by this host, not re-dispatching", cmd.GUID)
		return
	}

	if l.Local == nil {
		log.Warnf("broker: no local sender configured, dropping %s", cmd.GUID)
		return
	}

	cmd.BroadcastScope = command.ScopeNone
	cmd.MarkSeenBy(l.Hostname)

	env, err := l.Serializer.Serialize(cmd.ToEnvelope())
	if err != nil {
		log.Warnf("broker: re-serialize for local dispatch failed: %v", err)
		return
	}

	if _, err := l.Local.Send(env); err != nil {
		log.Warnf("broker: local dispatch of %s failed: %v", cmd.GUID, err)
	}
}
