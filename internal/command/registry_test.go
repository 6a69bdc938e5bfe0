// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownCommand(t *testing.T) {
	r := NewRegistry()
	resp := r.Dispatch(New("does_not_exist", nil, nil, ScopeNone))
	assert.Equal(t, StateError, resp.State)
}

func TestDispatchKnownCommand(t *testing.T) {
	r := NewRegistry()
	r.Register("flush", func(c *Command) *CommandResponse {
		return Success("flushed", c.GUID)
	})

	c := New("flush", nil, nil, ScopeNone)
	resp := r.Dispatch(c)
	assert.Equal(t, StateSuccess, resp.State)
	assert.Equal(t, c.GUID, resp.GUID)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", func(c *Command) *CommandResponse {
		panic("handler exploded")
	})

	resp := r.Dispatch(New("boom", nil, nil, ScopeNone))
	assert.Equal(t, StateError, resp.State)
}

func TestHooksRunInOrderAndCollectErrors(t *testing.T) {
	r := NewRegistry()
	var order []string

	r.OnSetup(func() error { order = append(order, "a"); return nil })
	r.OnSetup(func() error { order = append(order, "b"); return nil })
	require.NoError(t, r.Setup())
	assert.Equal(t, []string{"a", "b"}, order)

	r.OnTidy(func() error { return errors.New("tidy failed") })
	errs := r.Tidy()
	require.Len(t, errs, 1)
}
