// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handle

import (
	"context"
	"errors"
	"fmt"
)

// Built-in host operations every host listener understands.
const (
	OpValidate = "$validate"
	OpResolve  = "$resolve"
)

// ErrStale matches any StaleError.
var ErrStale = errors.New("stale handle")

// StaleError reports that the entity a handle names no longer exists.
type StaleError struct {
	Handle  Handle
	Message string
}

func (e *StaleError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "entity no longer exists"
	}
	if e.Handle.IsZero() {
		return fmt.Sprintf("stale handle: %s", msg)
	}
	return fmt.Sprintf("stale handle %s: %s", e.Handle, msg)
}

func (e *StaleError) Is(target error) bool { return target == ErrStale }

// Caller performs a named operation against the host. *rpc.Bridge
// implements it.
type Caller interface {
	Call(ctx context.Context, op string, args []any, kwargs map[string]any) (any, error)
}

// Entity is the live data the host reports for a resolved handle.
type Entity map[string]any

// Resolve fetches live entity data with a fresh round trip. It fails
// with a *StaleError if the entity is gone.
func Resolve(ctx context.Context, c Caller, h Handle) (Entity, error) {
	v, err := c.Call(ctx, OpResolve, []any{h}, nil)
	if err != nil {
		var stale *StaleError
		if errors.As(err, &stale) && stale.Handle.IsZero() {
			return nil, &StaleError{Handle: h, Message: stale.Message}
		}
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolve %s: unexpected result type %T", h, v)
	}
	return Entity(m), nil
}

// Validate re-checks liveness with a round trip; the answer is never
// cached. A stale handle yields (false, nil); transport failures are
// returned alongside false.
func Validate(ctx context.Context, c Caller, h Handle) (bool, error) {
	v, err := c.Call(ctx, OpValidate, []any{h}, nil)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return false, nil
		}
		return false, err
	}
	ok, isBool := v.(bool)
	if !isBool {
		return false, fmt.Errorf("validate %s: unexpected result type %T", h, v)
	}
	return ok, nil
}
