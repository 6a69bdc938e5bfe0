// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broker is the Broker Adapter (spec §4.5): a thin
// publish/consume surface over the cluster exchange, backed by NATS
// the way the teacher's pkg/nats wraps nats.go. Two logical topics
// carry scoped broadcasts; a queue group per host keeps a message
// from being processed by every process on the same host twice.
package broker

import (
	"fmt"

	"github.com/dfo-meds/erddaputil/internal/command"
	natsclient "github.com/dfo-meds/erddaputil/pkg/nats"
)

// Config names the cluster exchange this Adapter binds to.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
	Prefix        string
	ClusterName   string
	Hostname      string
}

// Adapter publishes and subscribes to the cluster exchange. A nil
// *Adapter (what a caller holds when the broker is disabled) is
// Configured() == false and safe to hold but not to call
// Publish/Subscribe on.
type Adapter struct {
	client      *natsclient.Client
	prefix      string
	clusterName string
	hostname    string
}

// NewAdapter connects to cfg.Address. Callers should only call this
// when the broker is enabled in configuration; an empty address is
// treated as a configuration error rather than silently skipped, so
// that misconfiguration surfaces at startup.
func NewAdapter(cfg Config) (*Adapter, error) {
	client, err := natsclient.NewClient(natsclient.Config{
		Address:       cfg.Address,
		Username:      cfg.Username,
		Password:      cfg.Password,
		CredsFilePath: cfg.CredsFilePath,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client:      client,
		prefix:      cfg.Prefix,
		clusterName: cfg.ClusterName,
		hostname:    cfg.Hostname,
	}, nil
}

// Configured reports whether the Adapter has a live connection it can
// publish/consume on, satisfying command.BrokerSender.
func (a *Adapter) Configured() bool {
	return a != nil && a.client != nil && a.client.IsConnected()
}

// clusterSubject is the scoped-broadcast topic: <prefix>.cluster.<cluster_name>.
func (a *Adapter) clusterSubject() string {
	return fmt.Sprintf("%s.cluster.%s", a.prefix, a.clusterName)
}

// globalSubject is the cross-cluster broadcast topic: <prefix>.global.
func (a *Adapter) globalSubject() string {
	return fmt.Sprintf("%s.global", a.prefix)
}

// queueName is the per-host queue group, so a single logical message
// is processed once per host regardless of how many processes on
// that host subscribe.
func (a *Adapter) queueName() string {
	return fmt.Sprintf("%s_%s_%s", a.prefix, a.clusterName, a.hostname)
}

// subjectFor maps a BroadcastScope to the topic it publishes on.
func (a *Adapter) subjectFor(scope command.BroadcastScope) (string, error) {
	switch scope {
	case command.ScopeCluster:
		return a.clusterSubject(), nil
	case command.ScopeGlobal:
		return a.globalSubject(), nil
	default:
		return "", fmt.Errorf("broker: scope %v has no cluster exchange topic", scope)
	}
}

// Publish sends envelope on the topic selected by scope, satisfying
// command.BrokerSender.
func (a *Adapter) Publish(envelope string, scope command.BroadcastScope) error {
	subject, err := a.subjectFor(scope)
	if err != nil {
		return err
	}
	return a.client.Publish(subject, []byte(envelope))
}

// MessageHandler receives one raw envelope per delivered message.
type MessageHandler func(envelope []byte)

// Subscribe joins the per-host queue group on both exchange topics
// and invokes handler once per message until halt is closed.
func (a *Adapter) Subscribe(handler MessageHandler, halt <-chan struct{}) error {
	wrapped := func(_ string, data []byte) { handler(data) }

	if err := a.client.SubscribeQueue(a.clusterSubject(), a.queueName(), wrapped); err != nil {
		return err
	}
	if err := a.client.SubscribeQueue(a.globalSubject(), a.queueName(), wrapped); err != nil {
		return err
	}

	go func() {
		<-halt
		a.client.Close()
	}()
	return nil
}

// Close tears down the connection immediately, without waiting for halt.
func (a *Adapter) Close() {
	if a != nil && a.client != nil {
		a.client.Close()
	}
}
