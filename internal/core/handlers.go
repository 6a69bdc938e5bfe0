// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"strings"

	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/datasets"
)

// RegisterDatasetHandlers binds every public operation in spec
// §4.3's table to its command name, the declarative style the spec
// calls for (§4 "Command Registry ... populated at startup by
// declarative registrations") rather than reflective dispatch.
func RegisterDatasetHandlers(registry *command.Registry, manager *datasets.Manager) {
	registry.Register("reload_dataset", func(c *command.Command) *command.CommandResponse {
		ids, err := stringSliceArg(c, "ids", 0)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		flag, err := intArg(c, "flag", 1)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		flush := boolArg(c, "flush", 2, false)
		if err := manager.ReloadDataset(ids, datasets.ReloadFlag(flag), flush); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("reload enqueued", c.GUID)
	})

	registry.Register("reload_all_datasets", func(c *command.Command) *command.CommandResponse {
		flag, err := intArg(c, "flag", 0)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		flush := boolArg(c, "flush", 1, false)
		if err := manager.ReloadAllDatasets(datasets.ReloadFlag(flag), flush); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("reload enqueued for all active datasets", c.GUID)
	})

	registry.Register("set_active_flag", func(c *command.Command) *command.CommandResponse {
		ids, err := stringSliceArg(c, "ids", 0)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		active := boolArg(c, "active", 1, true)
		flush := boolArg(c, "flush", 2, false)
		if err := manager.SetActiveFlag(ids, active, flush); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("active flag updated", c.GUID)
	})

	registry.Register("update_email_block_list", aclHandler(manager.UpdateEmailBlockList))
	registry.Register("update_ip_block_list", aclHandler(manager.UpdateIPBlockList))
	registry.Register("update_allow_unlimited_list", aclHandler(manager.UpdateAllowUnlimitedList))

	registry.Register("clear_cache", func(c *command.Command) *command.CommandResponse {
		ids, err := optionalStringSliceArg(c, "ids", 0)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		if err := manager.ClearCache(ids); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("cache cleared", c.GUID)
	})

	registry.Register("compile_datasets", func(c *command.Command) *command.CommandResponse {
		skipErrored := boolArg(c, "skip_errored", 0, false)
		reloadAll := boolArg(c, "reload_all", 1, false)
		immediate := boolArg(c, "immediate", 2, false)
		if err := manager.CompileDatasets(skipErrored, reloadAll, immediate); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("recompilation enqueued", c.GUID)
	})

	registry.Register("flush", func(c *command.Command) *command.CommandResponse {
		force := boolArg(c, "force", 0, false)
		if err := manager.Flush(force); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("flushed", c.GUID)
	})

	registry.Register("list_datasets", func(c *command.Command) *command.CommandResponse {
		infos, err := manager.ListDatasets()
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success(formatDatasetList(infos), c.GUID)
	})
}

// aclHandler adapts the three identically-shaped ACL operations
// (update_email_block_list, update_ip_block_list,
// update_allow_unlimited_list) to a single Handler factory instead of
// repeating the same argument extraction three times.
func aclHandler(update func(entries []string, add, flush bool) error) command.Handler {
	return func(c *command.Command) *command.CommandResponse {
		entries, err := stringSliceArg(c, "entries", 0)
		if err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		add := boolArg(c, "add", 1, true)
		flush := boolArg(c, "flush", 2, false)
		if err := update(entries, add, flush); err != nil {
			return command.Error(err.Error(), c.GUID)
		}
		return command.Success("access control list updated", c.GUID)
	}
}

// formatDatasetList renders the one-line-per-dataset text the
// original's list_datasets returns ("Datasets:\n<id> (<active>)" per
// line), rather than a structured JSON array.
func formatDatasetList(infos []datasets.DatasetInfo) string {
	lines := make([]string, len(infos))
	for i, info := range infos {
		lines[i] = fmt.Sprintf("%s (%t)", info.ID, info.Active)
	}
	return "Datasets:\n" + strings.Join(lines, "\n")
}
