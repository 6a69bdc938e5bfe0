// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// erddaputild is the sidecar daemon: it loads configuration, builds
// the Core singleton container, registers every worker with the
// supervisor, and runs until an operator shutdown signal drains them
// in order.
package main

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"time"

	"github.com/dfo-meds/erddaputil/internal/authenticator"
	"github.com/dfo-meds/erddaputil/internal/broker"
	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/dfo-meds/erddaputil/internal/core"
	"github.com/dfo-meds/erddaputil/internal/httpapi"
	"github.com/dfo-meds/erddaputil/internal/supervisor"
	"github.com/dfo-meds/erddaputil/pkg/log"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var flagGops bool
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatal(fmt.Sprintf("gops/agent.Listen failed: %s", err.Error()))
		}
	}

	if err := config.Load(); err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(config.Keys.LogLevel)
	log.SetLogDateTime(config.Keys.LogDateTime)

	c, err := core.New(config.Keys)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	// Every subsequent read of the configuration goes through c.Config,
	// the copy New captured into the Core singleton, not the package
	// global: once Core exists it is the one source of truth the rest
	// of this process's wiring depends on.
	sup, err := supervisor.New()
	if err != nil {
		log.Fatal(err)
	}

	router := &command.Router{
		Serializer:   c.Serializer,
		Hostname:     c.Config.Hostname,
		LocalEnabled: c.Config.Receiver.Enabled,
	}

	if c.Config.Receiver.Enabled {
		receiver := &command.Receiver{
			Serializer:  c.Serializer,
			Registry:    c.Registry,
			Host:        c.Config.Receiver.Host,
			Port:        c.Config.Receiver.Port,
			Backlog:     c.Config.Receiver.Backlog,
			ReadTimeout: time.Duration(c.Config.Receiver.ReadTimeoutSeconds) * time.Second,
		}
		router.Local = &command.Client{Host: c.Config.Receiver.Host, Port: c.Config.Receiver.Port}
		sup.Register("receiver", supervisor.WorkerFunc(receiver.ListenAndServe))
	}

	if c.Broker != nil {
		router.Broker = c.Broker
		dedupStore := c.Dedup
		// The broker listener's local-forward step (spec §4.5) does not
		// depend on the TCP receiver being enabled, so it dispatches
		// in-process against the Registry rather than reusing
		// router.Local, which stays nil whenever receiver.enabled=false.
		listener := &broker.Listener{
			Adapter:    c.Broker,
			Serializer: c.Serializer,
			Local:      &command.InProcessSender{Serializer: c.Serializer, Registry: c.Registry},
			Dedup:      dedupStore,
			Hostname:   c.Config.Hostname,
		}
		sup.Register("broker-listener", supervisor.WorkerFunc(listener.Start))

		if err := sup.ScheduleEvery(24*time.Hour, func() {
			if _, err := dedupStore.Prune(7 * 24 * time.Hour); err != nil {
				log.Warnf("dedup: prune failed: %v", err)
			}
		}); err != nil {
			log.Warnf("supervisor: schedule dedup prune: %v", err)
		}
	}

	sup.Register("dataset-manager", supervisor.WorkerFunc(func(halt <-chan struct{}) error {
		c.Datasets.Run(halt)
		return nil
	}))

	if c.Config.ManagementAPI.Enabled {
		auth := managementAuthenticator(c.Config.ManagementAPI)
		metricsHandler := promhttp.HandlerFor(c.Metrics.Registry(), promhttp.HandlerOpts{})
		server := httpapi.New(c.Config.ManagementAPI.Addr, router, auth, c.Metrics, metricsHandler)
		sup.Register("management-api", server)
	}

	if err := sup.ScheduleEvery(time.Minute, func() {
		for _, tidyErr := range c.Registry.Tidy() {
			log.Warnf("registry tidy: %v", tidyErr)
		}
	}); err != nil {
		log.Warnf("supervisor: schedule registry tidy: %v", err)
	}

	if err := c.Registry.Setup(); err != nil {
		log.Fatal(err)
	}

	// The metric sender is registered last so it keeps running while
	// every other worker winds down, and can still deliver metrics
	// describing their shutdown.
	if c.Sender != nil {
		sup.Register("metric-sender", supervisor.WorkerFunc(func(halt <-chan struct{}) error {
			c.Sender.Run(halt)
			return nil
		}))
	}

	log.Infof("erddaputild starting (hostname=%s)", c.Config.Hostname)
	sup.Run()

	for _, shutdownErr := range c.Registry.Shutdown() {
		log.Warnf("registry shutdown: %v", shutdownErr)
	}
	log.Info("erddaputild stopped")
}

// managementAuthenticator builds the Authenticator the management API
// checks HTTP Basic credentials against (spec §6.1). With no username
// configured, auth is explicitly disabled (returns nil, the documented
// loopback-only deployment case httpapi.Server.requireAuth already
// handles) rather than silently always-nil regardless of configuration.
func managementAuthenticator(cfg config.ManagementAPIConfig) authenticator.Authenticator {
	if cfg.Username == "" {
		return nil
	}
	return authenticator.Func(func(user, pass string) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.Password)) == 1
		return userOK && passOK, nil
	})
}
