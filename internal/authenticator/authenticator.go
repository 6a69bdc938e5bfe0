// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package authenticator declares the capability the HTTP management
// API needs from a credential store. The password file and hashing
// logic behind a concrete implementation are an external collaborator
// referenced only by this interface, the way cmd/cc-backend/main.go
// treats auth.Authentication as a capability assembled elsewhere and
// handed in rather than built by the router itself.
package authenticator

// Authenticator checks a username/password pair presented over HTTP
// Basic auth. A nil error with ok=false means the credentials were
// well-formed but did not match; a non-nil error means the check
// itself could not be completed (store unavailable, and so on).
type Authenticator interface {
	Authenticate(user, pass string) (ok bool, err error)
}

// Func adapts a plain function to Authenticator.
type Func func(user, pass string) (bool, error)

func (f Func) Authenticate(user, pass string) (bool, error) { return f(user, pass) }

// AllowAll is a trivial Authenticator that accepts every credential
// pair; useful for local development or when the management API is
// bound only to loopback and authentication is disabled in
// configuration.
var AllowAll Authenticator = Func(func(_, _ string) (bool, error) { return true, nil })
