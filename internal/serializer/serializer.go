// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serializer turns command envelopes into signed, URL-safe
// strings and back. It makes no confidentiality claim: the signature
// only prevents tampering by cluster peers and local clients, the way
// the teacher's session cookies are signed but not sealed.
package serializer

import (
	"github.com/dfo-meds/erddaputil/internal/erddaperr"
	"github.com/gorilla/securecookie"
)

// Serializer signs and verifies command envelopes with a process-wide
// secret. A Serializer is safe for concurrent use; securecookie's own
// Encode/Decode are.
type Serializer struct {
	sc *securecookie.SecureCookie
}

// New builds a Serializer from the configured secret key. The block
// key is left nil: securecookie then signs but does not encrypt,
// matching the "tamper-evident, not secret" contract.
func New(secretKey string) *Serializer {
	hashKey := []byte(secretKey)
	sc := securecookie.New(hashKey, nil)
	sc.MaxAge(0)
	// Command payloads are dynamic maps with nested slices and
	// numbers; gob (the default) requires concrete registered types,
	// so switch to JSON, which round-trips interface{} values as-is.
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Serializer{sc: sc}
}

// Serialize signs payload into a URL-safe envelope string.
func (s *Serializer) Serialize(payload map[string]interface{}) (string, error) {
	encoded, err := s.sc.Encode("erddaputil", payload)
	if err != nil {
		return "", erddaperr.NewIntegrityError(err)
	}
	return encoded, nil
}

// Unserialize verifies and decodes an envelope produced by Serialize.
// A signature mismatch or truncation surfaces as IntegrityError;
// callers should not distinguish among them. Envelopes do not expire
// (MaxAge is 0).
func (s *Serializer) Unserialize(envelope string) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if err := s.sc.Decode("erddaputil", envelope, &payload); err != nil {
		return nil, erddaperr.NewIntegrityError(err)
	}
	return payload, nil
}
