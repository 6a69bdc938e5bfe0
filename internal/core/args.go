// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"

	"github.com/dfo-meds/erddaputil/internal/command"
)

// stringSliceArg reads a []string argument named key from c.Kwargs,
// falling back to the positional argument at argsIndex. A single
// string kwarg/arg is treated as a one-element slice, matching how a
// CLI or HTTP caller would naturally pass one dataset id.
func stringSliceArg(c *command.Command, key string, argsIndex int) ([]string, error) {
	if v, ok := c.Kwargs[key]; ok {
		return toStringSlice(v)
	}
	if argsIndex < len(c.Args) {
		return toStringSlice(c.Args[argsIndex])
	}
	return nil, fmt.Errorf("missing required argument %q", key)
}

func toStringSlice(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string list, got element of type %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or string list, got %T", v)
	}
}

// intArg reads an integer argument, tolerating the float64 shape a
// decoded JSON/envelope map always produces.
func intArg(c *command.Command, key string, argsIndex int) (int, error) {
	var v interface{}
	if raw, ok := c.Kwargs[key]; ok {
		v = raw
	} else if argsIndex < len(c.Args) {
		v = c.Args[argsIndex]
	} else {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	default:
		return 0, fmt.Errorf("expected an integer for %q, got %T", key, v)
	}
}

// boolArg reads a boolean argument, returning def if it is absent
// from both Kwargs and the positional Args.
func boolArg(c *command.Command, key string, argsIndex int, def bool) bool {
	if v, ok := c.Kwargs[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
		return def
	}
	if argsIndex < len(c.Args) {
		if b, ok := c.Args[argsIndex].(bool); ok {
			return b
		}
	}
	return def
}

// optionalStringSliceArg is stringSliceArg for an argument that may
// legitimately be absent (spec §4.3's `clear_cache(ids?)`), returning
// nil rather than an error when unset.
func optionalStringSliceArg(c *command.Command, key string, argsIndex int) ([]string, error) {
	if _, ok := c.Kwargs[key]; ok {
		return stringSliceArg(c, key, argsIndex)
	}
	if argsIndex < len(c.Args) {
		return stringSliceArg(c, key, argsIndex)
	}
	return nil, nil
}
