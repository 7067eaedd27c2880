// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/handle"
)

// Interpreter executes named operations inside the host. Implementations
// need not be goroutine safe: Server only calls them from its single
// interpreter goroutine.
type Interpreter interface {
	// Has reports whether op is defined.
	Has(op string) bool

	// Invoke runs op. A *handle.StaleError (or anything matching
	// handle.ErrStale) is reported to the client as a stale handle; an
	// *Error keeps its code.
	Invoke(ctx context.Context, op string, args Args) (any, error)
}

// Func implements one operation.
type Func func(ctx context.Context, args Args) (any, error)

// Funcs is an Interpreter backed by a map.
type Funcs map[string]Func

func (f Funcs) Has(op string) bool {
	_, ok := f[op]
	return ok
}

func (f Funcs) Invoke(ctx context.Context, op string, args Args) (any, error) {
	fn, ok := f[op]
	if !ok {
		return nil, fmt.Errorf("operation %q is not defined", op)
	}
	return fn(ctx, args)
}

// Error is a failure produced by the host API itself. Code and Message
// reach the client verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Errorf builds an *Error.
func Errorf(code, format string, a ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// CodeArgs marks argument errors raised by Args accessors.
const CodeArgs = "args"

// Args are the decoded arguments of one call.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Len is the number of positional arguments.
func (a Args) Len() int { return len(a.Positional) }

// At returns positional argument i, or an argument error if absent.
func (a Args) At(i int) (any, error) {
	if i < 0 || i >= len(a.Positional) {
		return nil, Errorf(CodeArgs, "missing argument %d", i)
	}
	return a.Positional[i], nil
}

func (a Args) convert(i int, want string, conv func(any) error) error {
	v, err := a.At(i)
	if err != nil {
		return err
	}
	if err := conv(v); err != nil {
		if errors.Is(err, rpc.ErrValueType) {
			return Errorf(CodeArgs, "argument %d: want %s, got %T", i, want, v)
		}
		return err
	}
	return nil
}

// Handle returns positional argument i as a handle.
func (a Args) Handle(i int) (h handle.Handle, err error) {
	err = a.convert(i, "handle", func(v any) (err error) { h, err = rpc.AsHandle(v); return })
	return h, err
}

// Int returns positional argument i as an int.
func (a Args) Int(i int) (n int, err error) {
	err = a.convert(i, "integer", func(v any) (err error) { n, err = rpc.AsInt(v); return })
	return n, err
}

// Float returns positional argument i as a float64.
func (a Args) Float(i int) (f float64, err error) {
	err = a.convert(i, "number", func(v any) (err error) { f, err = rpc.AsFloat(v); return })
	return f, err
}

// Str returns positional argument i as a string.
func (a Args) Str(i int) (s string, err error) {
	err = a.convert(i, "string", func(v any) (err error) { s, err = rpc.AsString(v); return })
	return s, err
}

// Bool returns positional argument i as a bool.
func (a Args) Bool(i int) (b bool, err error) {
	err = a.convert(i, "bool", func(v any) (err error) { b, err = rpc.AsBool(v); return })
	return b, err
}

// IntOr is Int with a default for an absent or nil argument.
func (a Args) IntOr(i, def int) (int, error) {
	if i >= len(a.Positional) || a.Positional[i] == nil {
		return def, nil
	}
	return a.Int(i)
}

// FloatOr is Float with a default for an absent or nil argument.
func (a Args) FloatOr(i int, def float64) (float64, error) {
	if i >= len(a.Positional) || a.Positional[i] == nil {
		return def, nil
	}
	return a.Float(i)
}

// BoolOr is Bool with a default for an absent or nil argument.
func (a Args) BoolOr(i int, def bool) (bool, error) {
	if i >= len(a.Positional) || a.Positional[i] == nil {
		return def, nil
	}
	return a.Bool(i)
}

// Kw returns keyword argument name.
func (a Args) Kw(name string) (any, bool) {
	v, ok := a.Keyword[name]
	return v, ok
}

// KwBool returns keyword argument name as a bool, or def if absent.
func (a Args) KwBool(name string, def bool) (bool, error) {
	v, ok := a.Keyword[name]
	if !ok || v == nil {
		return def, nil
	}
	b, err := rpc.AsBool(v)
	if err != nil {
		return false, Errorf(CodeArgs, "keyword %s: want bool, got %T", name, v)
	}
	return b, nil
}

// KwFloat returns keyword argument name as a float64, or def if absent.
func (a Args) KwFloat(name string, def float64) (float64, error) {
	v, ok := a.Keyword[name]
	if !ok || v == nil {
		return def, nil
	}
	f, err := rpc.AsFloat(v)
	if err != nil {
		return 0, Errorf(CodeArgs, "keyword %s: want number, got %T", name, v)
	}
	return f, nil
}
