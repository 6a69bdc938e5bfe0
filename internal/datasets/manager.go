// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/dfo-meds/erddaputil/internal/metrics"
	"github.com/dfo-meds/erddaputil/pkg/log"
)

// Manager is the Dataset Manager (spec §4.3): the single authoritative
// owner of the fragment directory, the master document, the three ACL
// files, the backup directory, and the flag subdirectories. All
// mutation goes through it and is serialized by its own lock.
type Manager struct {
	cfg     config.DatasetManagerConfig
	metrics *metrics.Facade

	mu        sync.Mutex
	reloads   map[string]*reloadEntry
	recompile *recompileRequest
	draining  bool

	ipBlock        *aclFile
	emailBlock     *aclFile
	unlimitedAllow *aclFile
}

// New builds a Manager over the given configuration. metricsFacade may
// be nil in tests; production callers pass the process-wide Facade
// from core.Core.
func New(cfg config.DatasetManagerConfig, metricsFacade *metrics.Facade) *Manager {
	ipPath := cfg.IPBlockListPath
	if ipPath == "" {
		ipPath = filepath.Join(cfg.BigParentDirectory, ".ip_block_list.txt")
	}
	emailPath := cfg.EmailBlockListPath
	if emailPath == "" {
		emailPath = filepath.Join(cfg.BigParentDirectory, ".email_block_list.txt")
	}
	unlimitedPath := cfg.UnlimitedAllowListPath
	if unlimitedPath == "" {
		unlimitedPath = filepath.Join(cfg.BigParentDirectory, ".unlimited_allow_list.txt")
	}

	return &Manager{
		cfg:            cfg,
		metrics:        metricsFacade,
		reloads:        make(map[string]*reloadEntry),
		ipBlock:        newACLFile(ipPath, validateIPEntry),
		emailBlock:     newACLFile(emailPath, validateEmailEntry),
		unlimitedAllow: newACLFile(unlimitedPath, validateIPEntry),
	}
}

func (m *Manager) count(name string, labels map[string]string) {
	if m.metrics == nil {
		return
	}
	if err := m.metrics.Apply(metrics.Sample{MetricType: "counter", MetricName: name, Method: "inc", Labels: labels}); err != nil {
		log.Warnf("datasets: metric %s: %v", name, err)
	}
}

// Run evaluates the reload-coalescing drain policy on a timer tick
// until halt is closed (spec §4.3.1: "evaluated ... on a timer
// tick").
func (m *Manager) Run(halt <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-halt:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.drainReloads(false)
			m.mu.Unlock()
		}
	}
}

// ReloadDataset enqueues a DatasetReloadEntry for each id with
// upgrade-only flag merge and a sliding timestamp (spec §4.3).
func (m *Manager) ReloadDataset(ids []string, flag ReloadFlag, flush bool) error {
	if !flag.Valid() {
		return erddaperr.NewValidationError("flag", fmt.Sprint(flag), fmt.Errorf("must be 0, 1, or 2"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.enqueueReload(id, flag)
	}
	m.drainReloads(flush)
	return nil
}

// ReloadAllDatasets parses the current master document and enqueues
// every active dataset with flag, then flushes per §4.3.1.
func (m *Manager) ReloadAllDatasets(flag ReloadFlag, flush bool) error {
	if !flag.Valid() {
		return erddaperr.NewValidationError("flag", fmt.Sprint(flag), fmt.Errorf("must be 0, 1, or 2"))
	}
	if m.cfg.MasterDocumentPath == "" {
		return erddaperr.NewConfigError("reload_all_datasets", fmt.Errorf("master-document-path is not configured"))
	}

	infos, err := m.readMasterDatasets()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		if info.Active {
			m.enqueueReload(info.ID, flag)
		}
	}
	m.drainReloads(flush)
	return nil
}

// enqueueReload applies the upgrade-only/sliding-timestamp merge. Must
// be called with mu held.
func (m *Manager) enqueueReload(id string, flag ReloadFlag) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	now := time.Now()
	if existing, ok := m.reloads[id]; ok {
		if flag > existing.flag {
			existing.flag = flag
		}
		existing.enqueuedAt = now
		return
	}
	m.reloads[id] = &reloadEntry{flag: flag, enqueuedAt: now}
}

// SetActiveFlag scans fragment files for each id and flips its active
// attribute; on any change it enqueues a soft reload and a
// recompilation (spec §4.3).
func (m *Manager) SetActiveFlag(ids []string, active bool, flush bool) error {
	if m.cfg.FragmentsDir == "" {
		return erddaperr.NewConfigError("set_active_flag", fmt.Errorf("fragments-dir is not configured"))
	}

	anyChanged := false
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		changed, err := m.setFragmentActive(id, active)
		if err != nil {
			return err
		}
		if changed {
			anyChanged = true
			m.mu.Lock()
			m.enqueueReload(id, FlagSoft)
			m.mu.Unlock()
		}
	}

	if anyChanged {
		m.mu.Lock()
		m.enqueueRecompile(false, false)
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if flush {
		m.drainRecompile()
		m.drainReloads(true)
	} else {
		m.drainReloads(false)
	}
	return nil
}

func (m *Manager) setFragmentActive(id string, active bool) (bool, error) {
	entries, err := os.ReadDir(m.cfg.FragmentsDir)
	if err != nil {
		return false, erddaperr.NewFilesystemError("read fragments dir", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		path := filepath.Join(m.cfg.FragmentsDir, e.Name())
		node, err := parseFragmentFile(path)
		if err != nil {
			continue
		}
		datasetID, _ := node.Attr("datasetID")
		if datasetID != id {
			continue
		}

		current, _ := node.Attr("active")
		want := "true"
		if !active {
			want = "false"
		}
		if current == want {
			return false, nil
		}
		node.SetAttr("active", want)
		if err := writeFragmentFile(path, node); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, erddaperr.NewValidationError("dataset-id", id, fmt.Errorf("no fragment found for this dataset id"))
}

// UpdateEmailBlockList validates and applies entries to the email
// block ACL, enqueueing a recompilation if the set changed.
func (m *Manager) UpdateEmailBlockList(entries []string, add, flush bool) error {
	return m.updateACL(m.emailBlock, entries, add, flush)
}

// UpdateIPBlockList validates and applies entries to the IP block ACL.
func (m *Manager) UpdateIPBlockList(entries []string, add, flush bool) error {
	return m.updateACL(m.ipBlock, entries, add, flush)
}

// UpdateAllowUnlimitedList validates and applies entries to the
// unlimited-allow ACL.
func (m *Manager) UpdateAllowUnlimitedList(entries []string, add, flush bool) error {
	return m.updateACL(m.unlimitedAllow, entries, add, flush)
}

func (m *Manager) updateACL(list *aclFile, entries []string, add, flush bool) error {
	changed, err := list.update(entries, add)
	if err != nil {
		return err
	}
	if changed {
		m.mu.Lock()
		m.enqueueRecompile(false, false)
		m.mu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if flush {
		m.drainRecompile()
		m.drainReloads(true)
	}
	return nil
}

// ListDatasets parses the current master document and returns one
// entry per dataset with its effective active value.
func (m *Manager) ListDatasets() ([]DatasetInfo, error) {
	return m.readMasterDatasets()
}

// ClearCache recursively unlinks every non-symlink file under the
// decompressed-cache tree, restricted to per-id subtrees when ids are
// given. Symlinks are never followed or deleted (spec §4.3, §8).
func (m *Manager) ClearCache(ids []string) error {
	if m.cfg.BigParentDirectory == "" {
		return erddaperr.NewConfigError("clear_cache", fmt.Errorf("big-parent-directory is not configured"))
	}
	root := filepath.Join(m.cfg.BigParentDirectory, "decompressed")

	if len(ids) == 0 {
		return clearTree(root)
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || len(id) < 2 {
			continue
		}
		sub := filepath.Join(root, id[len(id)-2:], id)
		if err := clearTree(sub); err != nil {
			return err
		}
	}
	return nil
}

func clearTree(root string) error {
	info, err := os.Lstat(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return erddaperr.NewFilesystemError("clear_cache stat", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			log.Warnf("datasets: clear_cache: remove %s: %v", path, rmErr)
		}
		return nil
	})
}

// CompileDatasets enqueues a RecompileRequest with the merge semantics
// of spec §3, flushing immediately if requested.
func (m *Manager) CompileDatasets(skipErrored, reloadAll, immediate bool) error {
	m.mu.Lock()
	m.enqueueRecompile(skipErrored, reloadAll)
	if immediate {
		m.drainRecompile()
		m.drainReloads(true)
	}
	m.mu.Unlock()
	return nil
}

// enqueueRecompile applies the merge semantics of spec §3: skipErrored
// downgrades monotonically (false wins), reloadAll upgrades
// monotonically (true wins). Must be called with mu held.
func (m *Manager) enqueueRecompile(skipErrored, reloadAll bool) {
	now := time.Now()
	if m.recompile == nil {
		m.recompile = &recompileRequest{skipErrored: skipErrored, reloadAll: reloadAll, enqueuedAt: now}
		return
	}
	if !skipErrored {
		m.recompile.skipErrored = false
	}
	if reloadAll {
		m.recompile.reloadAll = true
	}
	m.recompile.enqueuedAt = now
}

// Flush drains the recompilation queue then the reload queue (spec
// §4.3, §4.3.1, §4.3.2).
func (m *Manager) Flush(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainRecompile()
	m.drainReloads(force)
	return nil
}
