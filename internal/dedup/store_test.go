// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dedup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndRememberDetectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	seen, err := store.CheckAndRemember("guid-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = store.CheckAndRemember("guid-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.CheckAndRemember("guid-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPruneRemovesOldEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.CheckAndRemember("guid-old")
	require.NoError(t, err)

	n, err := store.Prune(-time.Hour) // negative window: everything is "older"
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seen, err := store.CheckAndRemember("guid-old")
	require.NoError(t, err)
	assert.False(t, seen, "pruned guid should be forgotten")
}

func TestOpenIsIdempotentAboutMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening against an already-migrated database file must not
	// fail: migrateSchema should report ErrNoChange, not an error.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	seen, err := store.CheckAndRemember("guid-3")
	require.NoError(t, err)
	assert.False(t, seen)
}
