// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dfo-meds/erddaputil/internal/erddaperr"
)

// aclFile is one of the three access-control lists (spec §3, "ACL
// file"): an unordered set of normalized entries persisted one per
// line, reloaded opportunistically on mtime change and rewritten
// atomically.
//
// Atomicity: the original truncates the file in place; this
// implementation writes a temp file in the same directory and renames
// over the target (see DESIGN.md, "ACL file rewrite atomicity").
type aclFile struct {
	path     string
	validate func(string) error

	loadedMTime time.Time
	entries     map[string]struct{}
}

func newACLFile(path string, validate func(string) error) *aclFile {
	return &aclFile{path: path, validate: validate, entries: make(map[string]struct{})}
}

// ensureLoaded reloads from disk if the file's mtime has advanced
// since the last load (opportunistic invalidation, spec §5).
func (a *aclFile) ensureLoaded() error {
	info, err := os.Stat(a.path)
	if os.IsNotExist(err) {
		a.entries = make(map[string]struct{})
		a.loadedMTime = time.Time{}
		return nil
	}
	if err != nil {
		return erddaperr.NewFilesystemError("acl stat", err)
	}
	if !info.ModTime().After(a.loadedMTime) {
		return nil
	}

	f, err := os.Open(a.path)
	if err != nil {
		return erddaperr.NewFilesystemError("acl open", err)
	}
	defer f.Close()

	entries := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := normalizeEntry(scanner.Text())
		if line == "" {
			continue
		}
		entries[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return erddaperr.NewFilesystemError("acl scan", err)
	}

	a.entries = entries
	a.loadedMTime = info.ModTime()
	return nil
}

func normalizeEntry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sorted returns the current entries in lexical order, for list
// operations and ACL-injection into the master document.
func (a *aclFile) sorted() []string {
	out := make([]string, 0, len(a.entries))
	for e := range a.entries {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// update validates each entry, then adds or removes it from the set,
// reporting whether the set actually changed. An unchanged set is
// never rewritten, so mtime-based opportunistic reload elsewhere
// observes no spurious change (spec §8, "ACL add idempotence").
func (a *aclFile) update(rawEntries []string, add bool) (changed bool, err error) {
	if err := a.ensureLoaded(); err != nil {
		return false, err
	}

	for _, raw := range rawEntries {
		entry := normalizeEntry(raw)
		if entry == "" {
			continue
		}
		if err := a.validate(entry); err != nil {
			return false, erddaperr.NewValidationError("acl-entry", raw, err)
		}
	}

	for _, raw := range rawEntries {
		entry := normalizeEntry(raw)
		if entry == "" {
			continue
		}
		_, present := a.entries[entry]
		switch {
		case add && !present:
			a.entries[entry] = struct{}{}
			changed = true
		case !add && present:
			delete(a.entries, entry)
			changed = true
		}
	}

	if !changed {
		return false, nil
	}
	if err := a.write(); err != nil {
		return false, err
	}
	return true, nil
}

// write persists the current set to disk atomically: write to a temp
// file in the same directory, then rename over the target.
func (a *aclFile) write() error {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return erddaperr.NewFilesystemError("acl mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, ".acl-*.tmp")
	if err != nil {
		return erddaperr.NewFilesystemError("acl create temp", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, e := range a.sorted() {
		if _, err := fmt.Fprintln(w, e); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return erddaperr.NewFilesystemError("acl write", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("acl flush", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("acl close temp", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("acl rename", err)
	}

	if info, err := os.Stat(a.path); err == nil {
		a.loadedMTime = info.ModTime()
	}
	return nil
}
