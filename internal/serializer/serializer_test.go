// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package serializer

import (
	"testing"

	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	s := New("a-test-secret-key-that-is-long-enough")

	payload := map[string]interface{}{
		"name": "reload_dataset",
		"args": []interface{}{"ds1", "ds2"},
		"guid": "abc-123",
	}

	env, err := s.Serialize(payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env)

	got, err := s.Unserialize(env)
	require.NoError(t, err)
	assert.Equal(t, payload["name"], got["name"])
	assert.Equal(t, payload["guid"], got["guid"])
}

func TestUnserializeRejectsTamperedEnvelope(t *testing.T) {
	s := New("a-test-secret-key-that-is-long-enough")

	env, err := s.Serialize(map[string]interface{}{"name": "flush"})
	require.NoError(t, err)

	tampered := []byte(env)
	tampered[len(tampered)/2] ^= 0xFF

	_, err = s.Unserialize(string(tampered))
	require.Error(t, err)

	var integrityErr *erddaperr.IntegrityError
	assert.ErrorAs(t, err, &integrityErr)
}

func TestUnserializeRejectsWrongKey(t *testing.T) {
	a := New("secret-one-is-long-enough-too")
	b := New("secret-two-is-also-long-enough")

	env, err := a.Serialize(map[string]interface{}{"name": "flush"})
	require.NoError(t, err)

	_, err = b.Unserialize(env)
	require.Error(t, err)
}
