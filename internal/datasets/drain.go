// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/dfo-meds/erddaputil/pkg/log"
)

// drainReloads implements the coalescing drain policy (spec §4.3.1),
// evaluated at every enqueue, at every flush, and on a timer tick.
// Must be called with mu held.
func (m *Manager) drainReloads(force bool) {
	if len(m.reloads) == 0 {
		return
	}

	type item struct {
		id    string
		entry *reloadEntry
	}
	items := make([]item, 0, len(m.reloads))
	for id, e := range m.reloads {
		items = append(items, item{id, e})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.enqueuedAt.Before(items[j].entry.enqueuedAt)
	})

	maxDelay := time.Duration(m.cfg.MaxDelaySeconds) * time.Second
	now := time.Now()
	toDrain := make(map[string]bool)

	switch {
	case force || maxDelay <= 0:
		for _, it := range items {
			toDrain[it.id] = true
		}
	default:
		if m.cfg.MaxPending > 0 && len(items) > m.cfg.MaxPending {
			excess := len(items) - m.cfg.MaxPending
			for i := 0; i < excess; i++ {
				toDrain[items[i].id] = true
			}
		}
		for _, it := range items {
			if now.Sub(it.entry.enqueuedAt) >= maxDelay {
				toDrain[it.id] = true
			}
		}
	}

	for id := range toDrain {
		entry := m.reloads[id]
		if err := m.writeFlagFile(id, entry.flag); err != nil {
			log.Warnf("datasets: drain %s: %v", id, err)
			m.count("dataset_drain_errors_total", nil)
		}
		// Removed regardless of error to prevent livelock (spec §4.3.1).
		delete(m.reloads, id)
	}
}

// writeFlagFile writes the trigger file for one dataset's drain. An
// existing file is left untouched: the data server has not yet
// consumed the previous signal.
func (m *Manager) writeFlagFile(id string, flag ReloadFlag) error {
	if m.cfg.BigParentDirectory == "" {
		return erddaperr.NewConfigError("drain", fmt.Errorf("big-parent-directory is not configured"))
	}
	dir := filepath.Join(m.cfg.BigParentDirectory, flag.subdir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return erddaperr.NewFilesystemError("flag mkdir", err)
	}

	path := filepath.Join(dir, id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		return erddaperr.NewFilesystemError("flag write", err)
	}
	return nil
}

// drainRecompile runs the recompilation pipeline for the current
// request, if any. Must be called with mu held, which also satisfies
// spec §4.3.4's "re-entry prevented" requirement for the draining
// state.
func (m *Manager) drainRecompile() {
	if m.recompile == nil {
		return
	}
	req := m.recompile
	m.recompile = nil

	if err := m.runCompilePipeline(req.skipErrored, req.reloadAll); err != nil {
		log.Errorf("datasets: compile_datasets: %v", err)
		m.count("dataset_compile_errors_total", nil)
	}
}
