// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, "info", d.LogLevel)
	assert.Equal(t, 9172, d.Receiver.Port)
	assert.True(t, d.Receiver.Enabled)
	assert.False(t, d.Broker.Enabled)
	assert.Equal(t, "erddaputil", d.Broker.Prefix)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"hostname": "sidecar-a",
		"receiver": {"port": 9999}
	}`), 0o644))

	t.Setenv("ERDDAPUTIL_CONFIG_PATH", path)
	t.Chdir(t.TempDir())

	require.NoError(t, Load())
	assert.Equal(t, "sidecar-a", Keys.Hostname)
	assert.Equal(t, 9999, Keys.Receiver.Port)
	// Untouched fields keep their default.
	assert.Equal(t, "info", Keys.LogLevel)
	assert.True(t, Keys.Receiver.Enabled)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not-a-real-key": true}`), 0o644))

	t.Setenv("ERDDAPUTIL_CONFIG_PATH", path)
	t.Chdir(t.TempDir())

	err := Load()
	require.Error(t, err)
}

func TestEnvOverlayWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hostname": "from-file"}`), 0o644))

	t.Setenv("ERDDAPUTIL_CONFIG_PATH", path)
	t.Setenv("ERDDAPUTIL_HOSTNAME", "from-env")
	t.Chdir(t.TempDir())

	require.NoError(t, Load())
	assert.Equal(t, "from-env", Keys.Hostname)
}

func TestMissingFilesAreNotErrors(t *testing.T) {
	t.Setenv("ERDDAPUTIL_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	require.NoError(t, Load())
	assert.Equal(t, Defaults().Receiver.Port, Keys.Receiver.Port)
}
