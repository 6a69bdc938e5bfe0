// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCompileAddsNewFragmentAndQueuesSoftReload(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets><dataset datasetID="T" active="true"><title>T</title></dataset></erddapDatasets>`)
	writeFile(t, cfg.MasterDocumentPath, `<erddapDatasets><dataset datasetID="T" active="true"><title>T</title></dataset></erddapDatasets>`)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "x.xml"), `<dataset datasetID="X" active="true"><title>X</title></dataset>`)

	require.NoError(t, m.CompileDatasets(false, false, true))

	content, err := os.ReadFile(cfg.MasterDocumentPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `datasetID="T"`)
	assert.Contains(t, string(content), `datasetID="X"`)

	_, err = os.Stat(filepath.Join(cfg.BigParentDirectory, "flag", "T"))
	assert.NoError(t, err, "T should get a soft reload because a new dataset (X) appeared")
}

func TestCompileHardReloadsOnStructuralChange(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets><dataset datasetID="T" active="true"><title>Changed</title></dataset></erddapDatasets>`)
	writeFile(t, cfg.MasterDocumentPath, `<erddapDatasets><dataset datasetID="T" active="true"><title>Original</title></dataset></erddapDatasets>`)

	require.NoError(t, m.CompileDatasets(false, false, true))

	_, err := os.Stat(filepath.Join(cfg.BigParentDirectory, "hardFlag", "T"))
	assert.NoError(t, err)
}

func TestCompileNoHardReloadWhenUnchanged(t *testing.T) {
	m, cfg := newTestManager(t)
	doc := `<erddapDatasets><dataset datasetID="T" active="true"><title>Same</title></dataset></erddapDatasets>`
	writeFile(t, cfg.TemplatePath, doc)
	writeFile(t, cfg.MasterDocumentPath, doc)

	require.NoError(t, m.CompileDatasets(false, false, true))

	_, err := os.Stat(filepath.Join(cfg.BigParentDirectory, "hardFlag", "T"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompileBackupIsTakenBeforeOverwrite(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets><dataset datasetID="T" active="true"></dataset></erddapDatasets>`)
	writeFile(t, cfg.MasterDocumentPath, `<erddapDatasets><dataset datasetID="T" active="true"></dataset></erddapDatasets>`)

	require.NoError(t, m.CompileDatasets(false, false, true))

	entries, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCompileSkipErroredFragmentContinues(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets></erddapDatasets>`)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "bad.xml"), `<dataset datasetID="BAD"`)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "good.xml"), `<dataset datasetID="GOOD" active="true"></dataset>`)

	require.NoError(t, m.CompileDatasets(true, false, true))

	content, err := os.ReadFile(cfg.MasterDocumentPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `datasetID="GOOD"`)
	assert.NotContains(t, string(content), `datasetID="BAD"`)
}

func TestCompileAbortsOnUnparsableFragmentWithoutSkip(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets></erddapDatasets>`)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "bad.xml"), `<dataset datasetID="BAD"`)

	err := m.CompileDatasets(false, false, true)
	require.NoError(t, err) // CompileDatasets itself only enqueues+drains; pipeline error is logged, not returned
	_, statErr := os.Stat(cfg.MasterDocumentPath)
	assert.True(t, os.IsNotExist(statErr), "master must not be written when a fragment parse aborts the drain")
}

func TestIPRangeExpansionIntoRequestBlacklist(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets></erddapDatasets>`)

	require.NoError(t, m.UpdateIPBlockList([]string{"10.0.0.0/23"}, true, false))
	require.NoError(t, m.CompileDatasets(false, false, true))

	content, err := os.ReadFile(cfg.MasterDocumentPath)
	require.NoError(t, err)
	root := extractElementText(t, string(content), ipBlockElement)
	parts := strings.Split(root, ",")
	assert.ElementsMatch(t, []string{"10.0.0.*", "10.0.1.*"}, parts)
}

func extractElementText(t *testing.T, doc, element string) string {
	t.Helper()
	open := "<" + element + ">"
	closeTag := "</" + element + ">"
	start := strings.Index(doc, open)
	require.GreaterOrEqual(t, start, 0, "element %s not found", element)
	start += len(open)
	end := strings.Index(doc[start:], closeTag)
	require.GreaterOrEqual(t, end, 0)
	return doc[start : start+end]
}

func TestACLAddIdempotenceDoesNotEnqueueCompile(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets></erddapDatasets>`)

	require.NoError(t, m.UpdateIPBlockList([]string{"10.0.0.1"}, true, true))
	info1, err := os.Stat(cfg.MasterDocumentPath)
	require.NoError(t, err)

	require.NoError(t, m.UpdateIPBlockList([]string{"10.0.0.1"}, true, true))
	info2, statErr := os.Stat(cfg.MasterDocumentPath)
	require.NoError(t, statErr)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "repeated add of an already-present entry must not trigger recompilation")
}

func TestListDatasetsReflectsMasterDocument(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, cfg.MasterDocumentPath, `<erddapDatasets><dataset datasetID="A" active="true"></dataset><dataset datasetID="B" active="false"></dataset></erddapDatasets>`)

	infos, err := m.ListDatasets()
	require.NoError(t, err)
	assert.ElementsMatch(t, []DatasetInfo{{ID: "A", Active: true}, {ID: "B", Active: false}}, infos)
}

func TestSetActiveFlagNoMatchLeavesStateUnchanged(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "a.xml"), `<dataset datasetID="A" active="true"></dataset>`)

	err := m.SetActiveFlag([]string{"NOPE"}, false, false)
	assert.Error(t, err)

	content, readErr := os.ReadFile(filepath.Join(cfg.FragmentsDir, "a.xml"))
	require.NoError(t, readErr)
	assert.Contains(t, string(content), `active="true"`)
}

func TestSetActiveFlagTogglesFragmentAndQueuesCompile(t *testing.T) {
	m, cfg := newTestManager(t)
	writeFile(t, filepath.Join(cfg.FragmentsDir, "a.xml"), `<dataset datasetID="A" active="true"></dataset>`)
	writeFile(t, cfg.TemplatePath, `<erddapDatasets></erddapDatasets>`)

	require.NoError(t, m.SetActiveFlag([]string{"A"}, false, true))

	content, err := os.ReadFile(filepath.Join(cfg.FragmentsDir, "a.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `active="false"`)

	_, err = os.Stat(cfg.MasterDocumentPath)
	assert.NoError(t, err, "flush=true should have driven the queued recompilation")
}
