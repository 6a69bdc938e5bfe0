// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, config.DatasetManagerConfig) {
	t.Helper()
	bpd := t.TempDir()
	cfg := config.DatasetManagerConfig{
		BigParentDirectory: bpd,
		TemplatePath:       filepath.Join(bpd, "template.xml"),
		FragmentsDir:       filepath.Join(bpd, "fragments"),
		MasterDocumentPath: filepath.Join(bpd, "datasets.xml"),
		BackupDir:          filepath.Join(bpd, "backup"),
		MaxPending:         99,
		MaxDelaySeconds:    2,
	}
	require.NoError(t, os.MkdirAll(cfg.FragmentsDir, 0o755))
	return New(cfg, nil), cfg
}

func flagPath(bpd, subdir, id string) string {
	return filepath.Join(bpd, subdir, id)
}

func TestReloadCoalescingScenario(t *testing.T) {
	m, cfg := newTestManager(t)

	require.NoError(t, m.ReloadDataset([]string{"A"}, FlagSoft, false))
	require.NoError(t, m.ReloadDataset([]string{"A"}, FlagHard, false))
	require.NoError(t, m.ReloadDataset([]string{"B"}, FlagBadFiles, false))

	_, err := os.Stat(flagPath(cfg.BigParentDirectory, "hardFlag", "A"))
	assert.True(t, os.IsNotExist(err), "should not drain before max_delay elapses")

	time.Sleep(2100 * time.Millisecond)
	require.NoError(t, m.Flush(false))

	_, err = os.Stat(flagPath(cfg.BigParentDirectory, "hardFlag", "A"))
	assert.NoError(t, err, "A should have drained at the upgraded HARD flag")
	_, err = os.Stat(flagPath(cfg.BigParentDirectory, "badFilesFlag", "B"))
	assert.NoError(t, err)
	_, err = os.Stat(flagPath(cfg.BigParentDirectory, "flag", "A"))
	assert.True(t, os.IsNotExist(err), "A must not also appear under the plain soft-flag subdir")
}

func TestReloadDatasetRejectsInvalidFlag(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.ReloadDataset([]string{"A"}, ReloadFlag(9), false)
	assert.Error(t, err)
}

func TestReloadDatasetWithFlushDrainsImmediately(t *testing.T) {
	m, cfg := newTestManager(t)
	require.NoError(t, m.ReloadDataset([]string{"A"}, FlagSoft, true))

	_, err := os.Stat(flagPath(cfg.BigParentDirectory, "flag", "A"))
	assert.NoError(t, err)
}

func TestExistingFlagFileIsNotOverwritten(t *testing.T) {
	m, cfg := newTestManager(t)
	path := flagPath(cfg.BigParentDirectory, "flag", "A")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, m.ReloadDataset([]string{"A"}, FlagSoft, true))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "stale", string(content))
}

func TestWhitespaceOnlyDatasetIDIsDropped(t *testing.T) {
	m, cfg := newTestManager(t)
	require.NoError(t, m.ReloadDataset([]string{"   "}, FlagSoft, true))

	_, err := os.Stat(filepath.Join(cfg.BigParentDirectory, "flag"))
	assert.True(t, os.IsNotExist(err), "a whitespace-only id must never reach the drain")
}

func TestClearCacheSkipsSymlinks(t *testing.T) {
	m, cfg := newTestManager(t)
	root := filepath.Join(cfg.BigParentDirectory, "decompressed")
	require.NoError(t, os.MkdirAll(root, 0o755))

	realFile := filepath.Join(cfg.BigParentDirectory, "real.nc")
	require.NoError(t, os.WriteFile(realFile, []byte("x"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.nc"), []byte("y"), 0o644))
	require.NoError(t, os.Symlink(realFile, filepath.Join(root, "link.nc")))

	require.NoError(t, m.ClearCache(nil))

	_, err := os.Stat(filepath.Join(root, "kept.nc"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(root, "link.nc"))
	assert.NoError(t, err, "symlink itself must survive")
	_, err = os.Stat(realFile)
	assert.NoError(t, err, "symlink target must never be followed and removed")
}

func TestClearCacheRestrictsToIDSubtree(t *testing.T) {
	m, cfg := newTestManager(t)
	root := filepath.Join(cfg.BigParentDirectory, "decompressed")
	aDir := filepath.Join(root, "tA", "datasetA")
	bDir := filepath.Join(root, "tB", "datasetB")
	require.NoError(t, os.MkdirAll(aDir, 0o755))
	require.NoError(t, os.MkdirAll(bDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(aDir, "f.nc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bDir, "f.nc"), []byte("y"), 0o644))

	require.NoError(t, m.ClearCache([]string{"datasetA"}))

	_, err := os.Stat(filepath.Join(aDir, "f.nc"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(bDir, "f.nc"))
	assert.NoError(t, err, "dataset B's subtree must be untouched")
}
