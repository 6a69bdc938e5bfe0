// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package datasets is the Dataset Manager: the stateful core that
// coalesces reload and recompilation requests, rebuilds the data
// server's master configuration document from a template plus
// per-dataset fragments, and maintains the three access-control
// lists.
package datasets

import "time"

// ReloadFlag is the intensity of a dataset reload request. Values and
// ordering mirror the flag subdirectories the data server watches.
type ReloadFlag int

const (
	FlagSoft ReloadFlag = iota
	FlagBadFiles
	FlagHard
)

// Valid reports whether f is one of the three recognized flag values.
func (f ReloadFlag) Valid() bool { return f >= FlagSoft && f <= FlagHard }

// subdir returns the flag subdirectory name under the big parent
// directory that a drain of this flag writes into.
func (f ReloadFlag) subdir() string {
	switch f {
	case FlagBadFiles:
		return "badFilesFlag"
	case FlagHard:
		return "hardFlag"
	default:
		return "flag"
	}
}

// reloadEntry is the per-dataset queued reload state (spec §3,
// "DatasetReloadEntry"). The flag is upgrade-only between enqueues;
// enqueuedAt slides forward on every enqueue.
type reloadEntry struct {
	flag       ReloadFlag
	enqueuedAt time.Time
}

// recompileRequest is the singleton recompilation request (spec §3,
// "RecompileRequest"). skipErrored downgrades monotonically (false
// wins); reloadAll upgrades monotonically (true wins); enqueuedAt
// slides.
type recompileRequest struct {
	skipErrored bool
	reloadAll   bool
	enqueuedAt  time.Time
}

// DatasetInfo is one row of DatasetManager.ListDatasets: a dataset id
// and its effective active flag as it currently stands in the master
// document.
type DatasetInfo struct {
	ID     string
	Active bool
}
