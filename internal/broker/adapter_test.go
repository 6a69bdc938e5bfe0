// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"testing"

	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectNaming(t *testing.T) {
	a := &Adapter{prefix: "erddaputil", clusterName: "cluster-a", hostname: "host-1"}

	assert.Equal(t, "erddaputil.cluster.cluster-a", a.clusterSubject())
	assert.Equal(t, "erddaputil.global", a.globalSubject())
	assert.Equal(t, "erddaputil_cluster-a_host-1", a.queueName())
}

func TestSubjectForScope(t *testing.T) {
	a := &Adapter{prefix: "erddaputil", clusterName: "cluster-a"}

	subj, err := a.subjectFor(command.ScopeCluster)
	require.NoError(t, err)
	assert.Equal(t, "erddaputil.cluster.cluster-a", subj)

	subj, err = a.subjectFor(command.ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, "erddaputil.global", subj)

	_, err = a.subjectFor(command.ScopeNone)
	require.Error(t, err)
}

func TestNilAdapterNotConfigured(t *testing.T) {
	var a *Adapter
	assert.False(t, a.Configured())
}
