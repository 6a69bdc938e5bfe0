// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi is the authenticated HTTP management API (spec
// §6.1): every dataset-manager operation reachable over HTTP, the
// metric push sink (spec §6 "EXTERNAL INTERFACES" / §6.3), wired
// through the same Command Router the local socket and CLI use, plus
// the local Prometheus-compatible scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dfo-meds/erddaputil/internal/authenticator"
	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/httpapi/docs"
	"github.com/dfo-meds/erddaputil/internal/metrics"
	"github.com/dfo-meds/erddaputil/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// commandNames lists every operation in spec §4.3's public-operations
// table, each mounted at POST /api/<name>.
var commandNames = []string{
	"reload_dataset",
	"reload_all_datasets",
	"set_active_flag",
	"update_email_block_list",
	"update_ip_block_list",
	"update_allow_unlimited_list",
	"clear_cache",
	"compile_datasets",
	"flush",
	"list_datasets",
}

// Server is the management API's HTTP surface. Constructed with New,
// started with Run, which satisfies supervisor.Worker.
type Server struct {
	Addr           string
	Router         *command.Router
	Authenticator  authenticator.Authenticator
	Metrics        *metrics.Facade
	MetricsHandler http.Handler

	httpServer *http.Server
}

// New builds the route table and wraps it with the teacher's
// middleware stack (compression, panic recovery, access logging),
// the same assembly cmd/cc-backend/main.go performs on its own
// router, generalized from job-management routes to dataset/ACL/cache
// routes. A nil Authenticator disables the auth check entirely (for
// a loopback-only deployment where the operator has already scoped
// access at the network layer). facade may be nil if the push sink
// should not be mounted (e.g. no metric facade configured).
func New(addr string, router *command.Router, auth authenticator.Authenticator, facade *metrics.Facade, metricsHandler http.Handler) *Server {
	s := &Server{Addr: addr, Router: router, Authenticator: auth, Metrics: facade, MetricsHandler: metricsHandler}

	docs.SwaggerInfo.Host = addr

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	for _, name := range commandNames {
		api.HandleFunc("/"+name, s.handleCommand(name))
	}
	if facade != nil {
		r.Handle("/push", s.requireAuth(http.HandlerFunc(s.handlePush))).Methods(http.MethodPost)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"))).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	logged := handlers.CustomLoggingHandler(io.Discard, r, accessLogFormatter)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func accessLogFormatter(_ io.Writer, params handlers.LogFormatterParams) {
	log.Infof("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
		params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
}

// Run starts the server and blocks until halt is closed, satisfying
// supervisor.Worker.
func (s *Server) Run(halt <-chan struct{}) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", s.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-halt:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok {
			s.unauthorized(w)
			return
		}
		authenticated, err := s.Authenticator.Authenticate(user, pass)
		if err != nil {
			http.Error(w, "authentication check failed", http.StatusInternalServerError)
			return
		}
		if !authenticated {
			s.unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="erddaputil"`)
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

// response is the uniform `{success, message}` body spec §7 requires
// for every command-level outcome ("all command-level failures
// return 200 with `{success:false, message:...}`"), distinct from
// CommandResponse's `{state, message, guid}` wire shape used on the
// socket and bus paths.
type response struct {
	Success bool        `json:"success"`
	Message interface{} `json:"message"`
}

func (s *Server) handleCommand(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kwargs := map[string]interface{}{}
		if r.Body != nil {
			dec := json.NewDecoder(r.Body)
			if err := dec.Decode(&kwargs); err != nil && err != io.EOF {
				writeJSON(w, response{Success: false, Message: "malformed JSON body: " + err.Error()})
				return
			}
		}

		scope := command.ScopeNone
		if raw, ok := kwargs["_broadcast"]; ok {
			scope = broadcastScope(raw)
			delete(kwargs, "_broadcast")
		}

		cmd := command.New(name, nil, kwargs, scope)
		resp := s.Router.Send(cmd)
		writeJSON(w, response{Success: resp.State == command.StateSuccess, Message: resp.Message})
	}
}

// broadcastScope maps the `_broadcast` request field (spec §6: 0, 1,
// 2 meaning none/cluster/global) onto a BroadcastScope, defaulting to
// none for any value outside that closed set.
func broadcastScope(raw interface{}) command.BroadcastScope {
	n, ok := raw.(float64)
	if !ok {
		return command.ScopeNone
	}
	switch int(n) {
	case 1:
		return command.ScopeCluster
	case 2:
		return command.ScopeGlobal
	default:
		return command.ScopeNone
	}
}

// handlePush is the metric push sink (spec §6 "EXTERNAL INTERFACES":
// `POST /push`, HTTP Basic auth, response `{success, errors}`). It
// accepts both wire shapes the original webapp.metrics module
// handles: a batch body (`{"metrics": [sample, ...]}`) or a single
// bare sample object, applying each sample against the Metric Facade
// and collecting per-sample errors rather than aborting on the first
// one, matching the original's partial-success behavior.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, response{Success: false, Message: "read request body: " + err.Error()})
		return
	}

	var body metrics.PushBody
	var samples []metrics.Sample
	if err := json.Unmarshal(raw, &body); err == nil && body.Metrics != nil {
		samples = body.Metrics
	} else {
		var single metrics.Sample
		if err := json.Unmarshal(raw, &single); err != nil {
			writeJSON(w, response{Success: false, Message: "malformed JSON body: " + err.Error()})
			return
		}
		samples = []metrics.Sample{single}
	}

	errs := make([]string, 0)
	for _, sample := range samples {
		if err := s.Metrics.Apply(sample); err != nil {
			log.Warnf("httpapi: push metric %s/%s: %v", sample.MetricType, sample.MetricName, err)
			errs = append(errs, err.Error())
		}
	}

	writePushJSON(w, metrics.PushResponse{Success: len(errs) == 0, Errors: errs})
}

func writePushJSON(w http.ResponseWriter, body metrics.PushResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("httpapi: write push response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("httpapi: write response: %v", err)
	}
}
