// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dfo-meds/erddaputil/internal/authenticator"
	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/dfo-meds/erddaputil/internal/core"
	"github.com/dfo-meds/erddaputil/internal/datasets"
	"github.com/dfo-meds/erddaputil/internal/metrics"
	"github.com/dfo-meds/erddaputil/internal/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inProcessLocalSender dispatches directly through a Registry,
// standing in for the TCP Receiver so these tests don't need a real
// socket: it unserializes, dispatches, and reserializes exactly as
// command.Receiver.handle does.
type inProcessLocalSender struct {
	serializer *serializer.Serializer
	registry   *command.Registry
}

func (l *inProcessLocalSender) Send(envelope string) (string, error) {
	env, err := l.serializer.Unserialize(envelope)
	if err != nil {
		return "", err
	}
	resp := l.registry.Dispatch(command.FromEnvelope(env))
	return l.serializer.Serialize(resp.ToEnvelope())
}

func newTestServer(t *testing.T, auth authenticator.Authenticator) (*Server, string) {
	return newTestServerWithFacade(t, auth, metrics.New())
}

func newTestServerWithFacade(t *testing.T, auth authenticator.Authenticator, facade *metrics.Facade) (*Server, string) {
	t.Helper()
	bpd := t.TempDir()
	cfg := config.DatasetManagerConfig{
		BigParentDirectory: bpd,
		TemplatePath:       filepath.Join(bpd, "template.xml"),
		FragmentsDir:       filepath.Join(bpd, "fragments"),
		MasterDocumentPath: filepath.Join(bpd, "datasets.xml"),
		BackupDir:          filepath.Join(bpd, "backup"),
		MaxPending:         99,
		MaxDelaySeconds:    30,
	}
	require.NoError(t, os.MkdirAll(cfg.FragmentsDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.TemplatePath, []byte(`<erddapDatasets></erddapDatasets>`), 0o644))

	manager := datasets.New(cfg, nil)
	registry := command.NewRegistry()
	core.RegisterDatasetHandlers(registry, manager)

	sc := serializer.New("test-secret-key")
	router := &command.Router{
		Serializer:   sc,
		Local:        &inProcessLocalSender{serializer: sc, registry: registry},
		LocalEnabled: true,
		Hostname:     "test-host",
	}

	srv := New("127.0.0.1:0", router, auth, facade, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func TestCommandRouteReturns200OnCommandFailure(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/api/reload_dataset", "application/json", strings.NewReader(`{"flag": 0}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "command-level failures still return 200 per spec")
}

func TestCommandRouteSucceedsWithValidArguments(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/api/reload_dataset", "application/json",
		strings.NewReader(`{"ids": ["A"], "flag": 2, "flush": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticationRequiredWhenAuthenticatorSet(t *testing.T) {
	denyAll := authenticator.Func(func(_, _ string) (bool, error) { return false, nil })
	_, base := newTestServer(t, denyAll)

	resp, err := http.Post(base+"/api/list_datasets", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticationSkippedWhenAuthenticatorNil(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/api/list_datasets", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticationAcceptsValidCredentials(t *testing.T) {
	allow := authenticator.Func(func(u, p string) (bool, error) { return u == "op" && p == "secret", nil })
	_, base := newTestServer(t, allow)

	req, err := http.NewRequest(http.MethodPost, base+"/api/list_datasets", nil)
	require.NoError(t, err)
	req.SetBasicAuth("op", "secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPushRouteAcceptsBatchBody(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/push", "application/json", strings.NewReader(
		`{"metrics": [{"metric_type": "counter", "metric_name": "pushed_total", "method": "inc"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Empty(t, body.Errors)
}

func TestPushRouteAcceptsBareSample(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/push", "application/json",
		strings.NewReader(`{"metric_type": "gauge", "metric_name": "queue_depth", "method": "set", "arguments": [3]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
}

func TestPushRouteCollectsPerSampleErrors(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Post(base+"/push", "application/json", strings.NewReader(
		`{"metrics": [{"metric_type": "bogus", "metric_name": "x"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "push failures still return 200, errors are reported in the body")

	var body struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Len(t, body.Errors, 1)
}

func TestPushRouteRequiresAuthWhenConfigured(t *testing.T) {
	denyAll := authenticator.Func(func(_, _ string) (bool, error) { return false, nil })
	_, base := newTestServerWithFacade(t, denyAll, metrics.New())

	resp, err := http.Post(base+"/push", "application/json", strings.NewReader(`{"metric_type": "counter", "metric_name": "x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushRouteNotMountedWithoutFacade(t *testing.T) {
	_, base := newTestServerWithFacade(t, nil, nil)

	resp, err := http.Post(base+"/push", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSwaggerDocIsServed(t *testing.T) {
	_, base := newTestServer(t, nil)

	resp, err := http.Get(base + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Contains(t, doc, "paths")
}
