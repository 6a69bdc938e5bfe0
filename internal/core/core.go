// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package core is the dependency-injected singleton container (spec
// §9 "the concurrency-friendly variant"): one Core struct, built once
// at startup, holding every process-wide object and passed by pointer
// into each worker constructor instead of being reached through
// package-level globals.
package core

import (
	"fmt"
	"time"

	"github.com/dfo-meds/erddaputil/internal/broker"
	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/dfo-meds/erddaputil/internal/datasets"
	"github.com/dfo-meds/erddaputil/internal/dedup"
	"github.com/dfo-meds/erddaputil/internal/metrics"
	"github.com/dfo-meds/erddaputil/internal/serializer"
)

// Core holds every process-wide singleton (spec §9's list: Config,
// Serializer, Metric Facade, Dataset Manager, Command Registry,
// Broker Adapter), plus the Metric Sender and dedup store that the
// Broker Adapter and Metric Facade need but that aren't themselves
// named in the spec's singleton list.
type Core struct {
	Config     config.ProgramConfig
	Metrics    *metrics.Facade
	Sender     *metrics.Sender
	Serializer *serializer.Serializer
	Registry   *command.Registry
	Datasets   *datasets.Manager
	Broker     *broker.Adapter
	Dedup      *dedup.Store
}

// New constructs every singleton from cfg. It opens no network
// listeners and starts no workers; that happens when cmd/
// erddaputild registers each worker with the supervisor. When the
// broker is enabled it does connect to the broker here.
func New(cfg config.ProgramConfig) (*Core, error) {
	c := &Core{
		Config:     cfg,
		Metrics:    metrics.New(),
		Serializer: serializer.New(cfg.SecretKey),
		Registry:   command.NewRegistry(),
	}

	c.Datasets = datasets.New(cfg.DatasetManager, c.Metrics)
	RegisterDatasetHandlers(c.Registry, c.Datasets)

	if cfg.Metrics.SinkURL != "" {
		c.Sender = metrics.NewSender(cfg.Metrics.QueueSize)
		c.Sender.SinkURL = cfg.Metrics.SinkURL
		c.Sender.Username = cfg.Metrics.SinkUsername
		c.Sender.Password = cfg.Metrics.SinkPassword
		c.Sender.BatchSize = cfg.Metrics.BatchSize
		c.Sender.BatchWait = time.Duration(cfg.Metrics.BatchWaitMS) * time.Millisecond
		c.Sender.MaxRetries = cfg.Metrics.MaxRetries
		c.Sender.RetryDelay = time.Duration(cfg.Metrics.RetryDelayMS) * time.Millisecond
		c.Sender.MaxInFlight = cfg.Metrics.MaxTasks
	}

	if cfg.Broker.Enabled {
		adapter, err := broker.NewAdapter(broker.Config{
			Address:       cfg.Broker.Address,
			Username:      cfg.Broker.Username,
			Password:      cfg.Broker.Password,
			CredsFilePath: cfg.Broker.CredsFilePath,
			Prefix:        cfg.Broker.Prefix,
			ClusterName:   cfg.Broker.ClusterName,
			Hostname:      cfg.Hostname,
		})
		if err != nil {
			return nil, fmt.Errorf("core: broker adapter: %w", err)
		}
		c.Broker = adapter

		store, err := dedup.Open(cfg.DedupDBPath)
		if err != nil {
			return nil, fmt.Errorf("core: dedup store: %w", err)
		}
		c.Dedup = store
	}

	return c, nil
}

// Close releases resources New opened that aren't themselves
// supervisor-managed workers (the dedup store's database handle; the
// broker adapter's connection, which Listener.Start already closes on
// halt and so is not duplicated here).
func (c *Core) Close() {
	if c.Dedup != nil {
		c.Dedup.Close()
	}
}
