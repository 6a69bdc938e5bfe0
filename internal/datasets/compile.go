// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/dfo-meds/erddaputil/internal/xmltree"
	"github.com/dfo-meds/erddaputil/pkg/log"
)

const (
	datasetElement        = "dataset"
	unlimitedAllowElement = "ipAddressUnlimited"
	emailBlockElement     = "subscriptionEmailBlacklist"
	ipBlockElement        = "requestBlacklist"
)

// parseFragmentFile parses a single-dataset XML fragment file.
func parseFragmentFile(path string) (*xmltree.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, erddaperr.NewFilesystemError("open fragment", err)
	}
	defer f.Close()

	node, err := xmltree.Parse(f)
	if err != nil {
		return nil, erddaperr.NewParseError(path, err)
	}
	return node, nil
}

// writeFragmentFile rewrites a fragment file in place (used by
// set_active_flag), atomically.
func writeFragmentFile(path string, node *xmltree.Node) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fragment-*.tmp")
	if err != nil {
		return erddaperr.NewFilesystemError("fragment create temp", err)
	}
	tmpPath := tmp.Name()

	if err := xmltree.WriteElement(tmp, node); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("fragment write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("fragment close", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("fragment rename", err)
	}
	return nil
}

// parseMasterDocument parses the document at path, returning (nil,
// nil) if the path does not exist.
func parseMasterDocument(path string) (*xmltree.Node, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, erddaperr.NewFilesystemError("open master document", err)
	}
	defer f.Close()

	node, err := xmltree.Parse(f)
	if err != nil {
		return nil, erddaperr.NewParseError(path, err)
	}
	return node, nil
}

// readMasterDatasets parses the current master document and returns
// one DatasetInfo per dataset element, in document order.
func (m *Manager) readMasterDatasets() ([]DatasetInfo, error) {
	root, err := parseMasterDocument(m.cfg.MasterDocumentPath)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	var out []DatasetInfo
	for _, d := range root.ChildrenNamed(datasetElement) {
		id, _ := d.Attr("datasetID")
		active := true
		if v, ok := d.Attr("active"); ok {
			active = v != "false"
		}
		out = append(out, DatasetInfo{ID: id, Active: active})
	}
	return out, nil
}

// fragmentFiles lists *.xml files in the fragments directory in
// deterministic (sorted) order.
func fragmentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, erddaperr.NewFilesystemError("read fragments dir", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// runCompilePipeline executes the nine-step recompilation pipeline
// (spec §4.3.2). Must be called with mu held.
func (m *Manager) runCompilePipeline(skipErrored, reloadAll bool) error {
	if m.cfg.TemplatePath == "" {
		return erddaperr.NewConfigError("compile_datasets", fmt.Errorf("template-path is not configured"))
	}
	if m.cfg.MasterDocumentPath == "" {
		return erddaperr.NewConfigError("compile_datasets", fmt.Errorf("master-document-path is not configured"))
	}

	// Step 1: parse the template document.
	f, err := os.Open(m.cfg.TemplatePath)
	if err != nil {
		return erddaperr.NewFilesystemError("open template", err)
	}
	working, err := xmltree.Parse(f)
	f.Close()
	if err != nil {
		return erddaperr.NewParseError(m.cfg.TemplatePath, err)
	}

	byID := make(map[string]*xmltree.Node)
	for _, d := range working.ChildrenNamed(datasetElement) {
		if id, ok := d.Attr("datasetID"); ok {
			byID[id] = d
		}
	}

	// Step 2+3: enumerate and merge fragments.
	newIDs := make(map[string]bool)
	if m.cfg.FragmentsDir != "" {
		paths, err := fragmentFiles(m.cfg.FragmentsDir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			frag, err := parseFragmentFile(path)
			if err != nil {
				if skipErrored {
					log.Warnf("datasets: compile: skipping unparsable fragment %s: %v", path, err)
					m.count("dataset_fragment_parse_errors_total", nil)
					continue
				}
				return err
			}
			id, ok := frag.Attr("datasetID")
			if !ok || strings.TrimSpace(id) == "" {
				if skipErrored {
					continue
				}
				return erddaperr.NewParseError(path, fmt.Errorf("fragment has no datasetID"))
			}
			if prev, ok := byID[id]; ok {
				working.RemoveChild(prev)
			} else {
				newIDs[id] = true
			}
			working.AppendChild(frag)
			byID[id] = frag
		}
	}

	// Step 4: merge the three ACL lists into the working tree.
	if err := m.mergeACLInto(working, unlimitedAllowElement, m.unlimitedAllow, expandForUnlimitedList); err != nil {
		return err
	}
	if err := m.mergeACLInto(working, emailBlockElement, m.emailBlock, nil); err != nil {
		return err
	}
	if err := m.mergeACLInto(working, ipBlockElement, m.ipBlock, expandForBlockList); err != nil {
		return err
	}

	// Step 5: compute prior digests and back up the prior master.
	priorDigests := make(map[string]string)
	if prior, err := parseMasterDocument(m.cfg.MasterDocumentPath); err != nil {
		log.Warnf("datasets: compile: reading prior master for digest: %v", err)
		m.count("dataset_compile_soft_errors_total", nil)
	} else if prior != nil {
		for _, d := range prior.ChildrenNamed(datasetElement) {
			if id, ok := d.Attr("datasetID"); ok {
				priorDigests[id] = structuralHash(d)
			}
		}
		if m.cfg.BackupDir != "" {
			if err := m.backupPriorMaster(); err != nil {
				log.Warnf("datasets: compile: backup failed: %v", err)
				m.count("dataset_compile_soft_errors_total", nil)
				return nil
			}
		}
	}

	// Step 6: serialize the working tree to the master path.
	if err := writeMasterDocument(m.cfg.MasterDocumentPath, working); err != nil {
		log.Errorf("datasets: compile: write master: %v", err)
		m.count("dataset_compile_soft_errors_total", nil)
		return nil
	}

	// Step 7: enqueue reloads based on digest comparison.
	anyQueued := false
	for _, d := range working.ChildrenNamed(datasetElement) {
		id, ok := d.Attr("datasetID")
		if !ok {
			continue
		}
		prevDigest, known := priorDigests[id]
		if !known {
			continue
		}
		newDigest := structuralHash(d)
		if newDigest != prevDigest {
			m.enqueueReload(id, FlagHard)
			anyQueued = true
		} else if reloadAll {
			m.enqueueReload(id, FlagBadFiles)
			anyQueued = true
		}
	}
	if len(newIDs) > 0 && !anyQueued {
		for id := range priorDigests {
			m.enqueueReload(id, FlagSoft)
			break
		}
	}

	// Step 8: drain all pending reloads.
	m.drainReloads(true)

	// Step 9: prune old backups.
	if m.cfg.BackupDir != "" && m.cfg.BackupRetentionDays > 0 {
		if err := m.pruneBackups(); err != nil {
			log.Warnf("datasets: compile: prune backups: %v", err)
			m.count("dataset_compile_soft_errors_total", nil)
		}
	}

	return nil
}

// mergeACLInto unions the ACL-bearing element's existing comma-
// separated text with the ACL file's entries, applying expand (if
// non-nil) to each ACL-file entry before union — the IP block and
// unlimited-allow lists expand subnet/wildcard notation per §4.3.3;
// the email list does not.
func (m *Manager) mergeACLInto(working *xmltree.Node, elementName string, list *aclFile, expand func(string) ([]string, error)) error {
	target := firstOrNewChild(working, elementName)

	existing := make(map[string]struct{})
	for _, e := range strings.Split(target.Text, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			existing[e] = struct{}{}
		}
	}

	if err := list.ensureLoaded(); err != nil {
		return err
	}
	for _, entry := range list.sorted() {
		if expand == nil {
			existing[entry] = struct{}{}
			continue
		}
		expanded, err := expand(entry)
		if err != nil {
			return erddaperr.NewValidationError("acl-entry", entry, err)
		}
		for _, e := range expanded {
			existing[e] = struct{}{}
		}
	}

	merged := make([]string, 0, len(existing))
	for e := range existing {
		merged = append(merged, e)
	}
	sort.Strings(merged)
	target.Text = strings.Join(merged, ",")
	return nil
}

// firstOrNewChild returns working's first child named name, creating
// and appending an empty one if none exists.
func firstOrNewChild(working *xmltree.Node, name string) *xmltree.Node {
	if children := working.ChildrenNamed(name); len(children) > 0 {
		return children[0]
	}
	node := xmltree.NewNode(name)
	working.AppendChild(node)
	return node
}

// writeMasterDocument writes a master document atomically: write to a
// temp file in the same directory, then rename over the target.
func writeMasterDocument(path string, root *xmltree.Node) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return erddaperr.NewFilesystemError("master mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".master-*.tmp")
	if err != nil {
		return erddaperr.NewFilesystemError("master create temp", err)
	}
	tmpPath := tmp.Name()

	if err := xmltree.Write(tmp, root); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("master write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("master close", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return erddaperr.NewFilesystemError("master rename", err)
	}
	return nil
}

// backupPriorMaster copies the prior master document into the backup
// directory under a timestamped name, disambiguated by a counter if
// the name is already taken (spec §4.3.2 step 5). The new master is
// only written after this succeeds (see DESIGN.md, "partial backup
// failure").
func (m *Manager) backupPriorMaster() error {
	if err := os.MkdirAll(m.cfg.BackupDir, 0o755); err != nil {
		return erddaperr.NewFilesystemError("backup mkdir", err)
	}

	base := filepath.Base(m.cfg.MasterDocumentPath)
	stamp := time.Now().UTC().Format("20060102T150405")
	dest := filepath.Join(m.cfg.BackupDir, fmt.Sprintf("%s.%s", base, stamp))
	for counter := 1; ; counter++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(m.cfg.BackupDir, fmt.Sprintf("%s.%s.%d", base, stamp, counter))
	}

	src, err := os.Open(m.cfg.MasterDocumentPath)
	if err != nil {
		return erddaperr.NewFilesystemError("backup open source", err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return erddaperr.NewFilesystemError("backup create dest", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return erddaperr.NewFilesystemError("backup copy", err)
	}
	return nil
}

// pruneBackups removes backup files older than backup_retention_days.
func (m *Manager) pruneBackups() error {
	cutoff := time.Now().Add(-time.Duration(m.cfg.BackupRetentionDays) * 24 * time.Hour)
	return filepath.WalkDir(m.cfg.BackupDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warnf("datasets: prune backup %s: %v", path, rmErr)
			}
		}
		return nil
	})
}
