// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dedup

import (
	"context"
	"time"

	"github.com/dfo-meds/erddaputil/pkg/log"
)

// queryHooks satisfies the sqlhooks.Hooks interface and logs every
// query the dedup store issues at debug level.
type queryHooks struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("dedup SQL query %s %q", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		log.Debugf("dedup SQL query took %s", time.Since(begin))
	}
	return ctx, nil
}

type beginKey struct{}
