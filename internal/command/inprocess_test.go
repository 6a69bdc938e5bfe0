// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"testing"

	"github.com/dfo-meds/erddaputil/internal/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessSenderDispatchesWithoutASocket(t *testing.T) {
	ser := serializer.New("a-test-secret-key-long-enough")
	registry := NewRegistry()
	registry.Register("ping", func(c *Command) *CommandResponse {
		return Success("pong", c.GUID)
	})

	sender := &InProcessSender{Serializer: ser, Registry: registry}

	cmd := New("ping", nil, nil, ScopeNone)
	env, err := ser.Serialize(cmd.ToEnvelope())
	require.NoError(t, err)

	respEnv, err := sender.Send(env)
	require.NoError(t, err)

	decoded, err := ser.Unserialize(respEnv)
	require.NoError(t, err)
	resp := ResponseFromEnvelope(decoded)
	assert.Equal(t, StateSuccess, resp.State)
	assert.Equal(t, "pong", resp.Message)
	assert.Equal(t, cmd.GUID, resp.GUID)
}

func TestInProcessSenderRejectsBadSignature(t *testing.T) {
	sender := &InProcessSender{Serializer: serializer.New("a-test-secret-key-long-enough"), Registry: NewRegistry()}

	_, err := sender.Send("not-a-signed-envelope")
	assert.Error(t, err)
}
