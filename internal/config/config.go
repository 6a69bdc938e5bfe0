// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config is the process-wide Configuration Facade: a layered
// view over package defaults, JSON files, and a closed set of
// environment variables. Every other component reads its settings
// from config.Keys once config.Load has run.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/dfo-meds/erddaputil/pkg/log"
	"github.com/joho/godotenv"
)

// Keys holds the merged configuration. It is populated by Load and
// read by every other package; nothing outside this package should
// mutate it.
var Keys = Defaults()

// envPathListSeparator matches the OS's PATH list separator, used to
// split ERDDAPUTIL_CONFIG_PATH into individual file paths.
const envPathListSeparator = string(os.PathListSeparator)

// Load rebuilds Keys from scratch: package defaults, then
// $HOME/.erddaputil/config.json, then ./config.json, then every path
// named in ERDDAPUTIL_CONFIG_PATH (in order), then an optional .env
// file, then the closed set of ERDDAPUTIL_* environment variables.
// Later layers win. A missing file at any layer is not an error; a
// malformed or schema-invalid file is.
func Load() error {
	Keys = Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFile(filepath.Join(home, ".erddaputil", "config.json")); err != nil {
			return err
		}
	}

	if err := mergeFile("config.json"); err != nil {
		return err
	}

	if raw := os.Getenv("ERDDAPUTIL_CONFIG_PATH"); raw != "" {
		for _, p := range strings.Split(raw, envPathListSeparator) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if err := mergeFile(p); err != nil {
				return err
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env file present but unreadable: %v", err)
	}

	applyEnvOverlay()
	return nil
}

// mergeFile reads path, validates it against configSchema, and
// decodes it onto the existing Keys so that unset fields keep
// whatever value a previous layer gave them. A missing file is
// silently skipped.
func mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erddaperr.NewConfigError("config.mergeFile", err)
	}

	if err := Validate(configSchema, json.RawMessage(raw)); err != nil {
		return erddaperr.NewConfigError("config.mergeFile:"+path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return erddaperr.NewConfigError("config.mergeFile:"+path, err)
	}
	return nil
}

// applyEnvOverlay applies the closed set of ERDDAPUTIL_* environment
// variables on top of whatever the file layers produced. Unrecognized
// ERDDAPUTIL_* variables are ignored rather than rejected, since the
// overlay is additive convenience, not a validated document.
func applyEnvOverlay() {
	str := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	boolean := func(dst *bool, name string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}
	integer := func(dst *int, name string) {
		if v, ok := os.LookupEnv(name); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Warnf("config: %s=%q is not an integer, ignoring", name, v)
			}
		}
	}

	str(&Keys.SecretKey, "ERDDAPUTIL_SECRET_KEY")
	str(&Keys.Hostname, "ERDDAPUTIL_HOSTNAME")
	str(&Keys.LogLevel, "ERDDAPUTIL_LOG_LEVEL")
	boolean(&Keys.LogDateTime, "ERDDAPUTIL_LOG_DATE_TIME")
	str(&Keys.DedupDBPath, "ERDDAPUTIL_DEDUP_DB_PATH")

	boolean(&Keys.Receiver.Enabled, "ERDDAPUTIL_RECEIVER_ENABLED")
	str(&Keys.Receiver.Host, "ERDDAPUTIL_RECEIVER_HOST")
	integer(&Keys.Receiver.Port, "ERDDAPUTIL_RECEIVER_PORT")

	boolean(&Keys.Broker.Enabled, "ERDDAPUTIL_BROKER_ENABLED")
	str(&Keys.Broker.Address, "ERDDAPUTIL_BROKER_ADDRESS")
	str(&Keys.Broker.Username, "ERDDAPUTIL_BROKER_USERNAME")
	str(&Keys.Broker.Password, "ERDDAPUTIL_BROKER_PASSWORD")
	str(&Keys.Broker.CredsFilePath, "ERDDAPUTIL_BROKER_CREDS_FILE_PATH")
	str(&Keys.Broker.Prefix, "ERDDAPUTIL_BROKER_PREFIX")
	str(&Keys.Broker.ClusterName, "ERDDAPUTIL_BROKER_CLUSTER_NAME")

	str(&Keys.DatasetManager.BigParentDirectory, "ERDDAPUTIL_BIG_PARENT_DIRECTORY")
	str(&Keys.DatasetManager.TemplatePath, "ERDDAPUTIL_TEMPLATE_PATH")
	str(&Keys.DatasetManager.FragmentsDir, "ERDDAPUTIL_FRAGMENTS_DIR")
	str(&Keys.DatasetManager.MasterDocumentPath, "ERDDAPUTIL_MASTER_DOCUMENT_PATH")
	str(&Keys.DatasetManager.BackupDir, "ERDDAPUTIL_BACKUP_DIR")

	str(&Keys.Metrics.SinkURL, "ERDDAPUTIL_METRICS_SINK_URL")
	str(&Keys.Metrics.SinkUsername, "ERDDAPUTIL_METRICS_SINK_USERNAME")
	str(&Keys.Metrics.SinkPassword, "ERDDAPUTIL_METRICS_SINK_PASSWORD")

	boolean(&Keys.ManagementAPI.Enabled, "ERDDAPUTIL_MANAGEMENT_API_ENABLED")
	str(&Keys.ManagementAPI.Addr, "ERDDAPUTIL_MANAGEMENT_API_ADDR")
}
