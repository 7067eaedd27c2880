// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
)

// LocalSurface answers operations classified Local without a host
// round trip. Errors it returns reach the caller unchanged.
type LocalSurface interface {
	Invoke(ctx context.Context, op string, args []any, kwargs map[string]any) (any, error)
}

// LocalFunc implements one local operation.
type LocalFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// LocalFuncs is a LocalSurface backed by a map.
type LocalFuncs map[string]LocalFunc

// Invoke runs op, or fails with an UnroutableRequestError if op is missing.
func (f LocalFuncs) Invoke(ctx context.Context, op string, args []any, kwargs map[string]any) (any, error) {
	fn, ok := f[op]
	if !ok {
		return nil, &UnroutableRequestError{Op: op, Reason: ReasonLocal, Message: "no local implementation"}
	}
	return fn(ctx, args, kwargs)
}
