// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"fmt"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/handle"
)

func call(ctx context.Context, c handle.Caller, op string, args ...any) (any, error) {
	return c.Call(ctx, op, args, nil)
}

func callInt(ctx context.Context, c handle.Caller, op string, args ...any) (int, error) {
	v, err := call(ctx, c, op, args...)
	if err != nil {
		return 0, err
	}
	n, err := rpc.AsInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func callFloat(ctx context.Context, c handle.Caller, op string, args ...any) (float64, error) {
	v, err := call(ctx, c, op, args...)
	if err != nil {
		return 0, err
	}
	f, err := rpc.AsFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

func callString(ctx context.Context, c handle.Caller, op string, args ...any) (string, error) {
	v, err := call(ctx, c, op, args...)
	if err != nil {
		return "", err
	}
	s, err := rpc.AsString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func callBool(ctx context.Context, c handle.Caller, op string, args ...any) (bool, error) {
	v, err := call(ctx, c, op, args...)
	if err != nil {
		return false, err
	}
	b, err := rpc.AsBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func callHandle(ctx context.Context, c handle.Caller, op string, args ...any) (handle.Handle, error) {
	v, err := call(ctx, c, op, args...)
	if err != nil {
		return handle.Handle{}, err
	}
	h, err := rpc.AsHandle(v)
	if err != nil {
		return handle.Handle{}, fmt.Errorf("%s: %w", op, err)
	}
	return h, nil
}

// entity is embedded by every facade: a handle plus the caller used to
// reach its host.
type entity struct {
	h handle.Handle
	c handle.Caller
}

// Handle returns the underlying handle.
func (e entity) Handle() handle.Handle { return e.h }

// HasValidID asks the host whether the entity still exists. A vanished
// entity yields (false, nil).
func (e entity) HasValidID(ctx context.Context) (bool, error) {
	return handle.Validate(ctx, e.c, e.h)
}

// Resolve fetches the entity's live data.
func (e entity) Resolve(ctx context.Context) (handle.Entity, error) {
	return handle.Resolve(ctx, e.c, e.h)
}

func (e entity) String() string { return e.h.String() }
