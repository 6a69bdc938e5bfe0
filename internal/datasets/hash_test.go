// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package datasets

import (
	"testing"

	"github.com/dfo-meds/erddaputil/internal/xmltree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuralHashStableAcrossChildOrder(t *testing.T) {
	a, err := xmltree.ParseString(`<dataset datasetID="X"><source name="a"><file>1</file></source><source name="b"><file>2</file></source></dataset>`)
	require.NoError(t, err)
	b, err := xmltree.ParseString(`<dataset datasetID="X"><source name="b"><file>2</file></source><source name="a"><file>1</file></source></dataset>`)
	require.NoError(t, err)

	assert.Equal(t, structuralHash(a), structuralHash(b))
}

func TestStructuralHashChangesWithTextChange(t *testing.T) {
	a, err := xmltree.ParseString(`<dataset datasetID="X"><title>Buoy 1</title></dataset>`)
	require.NoError(t, err)
	b, err := xmltree.ParseString(`<dataset datasetID="X"><title>Buoy 2</title></dataset>`)
	require.NoError(t, err)

	assert.NotEqual(t, structuralHash(a), structuralHash(b))
}

func TestStructuralHashIncludesDatasetIDAttribute(t *testing.T) {
	a, err := xmltree.ParseString(`<dataset datasetID="X" active="true"></dataset>`)
	require.NoError(t, err)
	b, err := xmltree.ParseString(`<dataset datasetID="Y" active="true"></dataset>`)
	require.NoError(t, err)

	assert.NotEqual(t, structuralHash(a), structuralHash(b), "datasetID is the top-level name-like attribute but not literally named 'name', so it is hashed as a normal attribute and does change the digest")
}

func TestStructuralHashChangesWithNonNameAttribute(t *testing.T) {
	a, err := xmltree.ParseString(`<dataset datasetID="X" active="true"></dataset>`)
	require.NoError(t, err)
	b, err := xmltree.ParseString(`<dataset datasetID="X" active="false"></dataset>`)
	require.NoError(t, err)

	assert.NotEqual(t, structuralHash(a), structuralHash(b))
}
