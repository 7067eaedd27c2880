// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package luahost runs host operations as global functions of a
// sandboxed Lua state.
//
// A script defines operations as globals:
//
//	function GetTrackName(track)
//	    return names[handle_id(track)]
//	end
//
//	function DeleteTrack(track)
//	    if not tracks[handle_id(track)] then
//	        error({code = "stale", message = "track is gone"})
//	    end
//	    tracks[handle_id(track)] = nil
//	end
//
// Handles arrive as userdata and can be inspected with handle_kind,
// handle_id and handle_parent, or built with make_handle. Raising a table
// with code and message fields reports a host error with that code; the
// code "stale" reports a stale handle.
package luahost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("luahost: interpreter closed")

// CodeStale is the error code a script raises for a vanished entity.
const CodeStale = "stale"

// CodeLua marks runtime errors raised by the Lua VM itself.
const CodeLua = "lua"

// Interpreter implements host.Interpreter on a gopher-lua state.
//
// LState is not goroutine safe. host.Server already serializes calls;
// the mutex covers script loading from other goroutines.
type Interpreter struct {
	L      *lua.LState
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ host.Interpreter = (*Interpreter)(nil)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets where the script's print output goes.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// New creates a state with only the base, table, string and math
// libraries and the handle helpers installed.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		L:      lua.NewState(lua.Options{SkipOpenLibs: true}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}

	lua.OpenBase(i.L)
	lua.OpenTable(i.L)
	lua.OpenString(i.L)
	lua.OpenMath(i.L)
	// io, os, debug and package stay closed.

	i.installHelpers()
	return i
}

func (i *Interpreter) installHelpers() {
	L := i.L
	mt := L.NewTypeMetatable(handleTypeName)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(checkHandle(L, 1).String()))
		return 1
	}))
	L.SetField(mt, "__eq", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(checkHandle(L, 1).Equal(checkHandle(L, 2))))
		return 1
	}))

	L.SetGlobal("handle_kind", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(checkHandle(L, 1).Kind()))
		return 1
	}))
	L.SetGlobal("handle_id", L.NewFunction(func(L *lua.LState) int {
		L.Push(idToLua(checkHandle(L, 1).ID()))
		return 1
	}))
	L.SetGlobal("handle_parent", L.NewFunction(func(L *lua.LState) int {
		parent, ok := checkHandle(L, 1).Parent()
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(i.pushHandle(parent))
		return 1
	}))
	L.SetGlobal("make_handle", L.NewFunction(func(L *lua.LState) int {
		var parent *handle.Handle
		if L.Get(1) != lua.LNil {
			p := checkHandle(L, 1)
			parent = &p
		}
		kind := L.CheckString(2)
		id, err := idFromLua(L.Get(3))
		if err != nil {
			L.ArgError(3, err.Error())
			return 0
		}
		h, err := handle.Make(parent, id, handle.Kind(kind))
		if err != nil {
			L.RaiseError("make_handle: %s", err.Error())
			return 0
		}
		L.Push(i.pushHandle(h))
		return 1
	}))
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for n := 1; n <= L.GetTop(); n++ {
			parts = append(parts, L.ToStringMeta(L.Get(n)).String())
		}
		i.logger.Info("lua", "output", strings.Join(parts, "\t"))
		return 0
	}))
}

func checkHandle(L *lua.LState, n int) handle.Handle {
	ud := L.CheckUserData(n)
	h, ok := ud.Value.(handle.Handle)
	if !ok {
		L.ArgError(n, "handle expected")
		return handle.Handle{}
	}
	return h
}

// DoString loads a script.
func (i *Interpreter) DoString(code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.L.DoString(code)
}

// DoFile loads a script file.
func (i *Interpreter) DoFile(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.L.DoFile(path)
}

// Has reports whether op is a global function.
func (i *Interpreter) Has(op string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	return i.L.GetGlobal(op).Type() == lua.LTFunction
}

// Invoke calls the global function op with the positional arguments and,
// when present, a trailing table of keyword arguments. Multiple return
// values come back as a sequence.
func (i *Interpreter) Invoke(ctx context.Context, op string, args host.Args) (result any, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, ErrClosed
	}

	L := i.L
	fn := L.GetGlobal(op)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%q is not a function (got %s)", op, fn.Type())
	}

	base := L.GetTop()
	defer L.SetTop(base)

	L.Push(fn)
	nargs := 0
	for n, a := range args.Positional {
		lv, err := i.toLua(a, 0)
		if err != nil {
			return nil, host.Errorf(host.CodeArgs, "argument %d: %v", n, err)
		}
		L.Push(lv)
		nargs++
	}
	if len(args.Keyword) > 0 {
		lv, err := i.toLua(args.Keyword, 0)
		if err != nil {
			return nil, host.Errorf(host.CodeArgs, "keywords: %v", err)
		}
		L.Push(lv)
		nargs++
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.PCall(nargs, lua.MultRet, nil); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, scriptError(err)
	}

	nret := L.GetTop() - base
	switch nret {
	case 0:
		return nil, nil
	case 1:
		return toGo(L.Get(base+1), 0)
	}
	out := make([]any, nret)
	for n := range out {
		if out[n], err = toGo(L.Get(base+1+n), 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scriptError maps a raised Lua value to the host error vocabulary.
func scriptError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) || apiErr.Object == nil {
		return &host.Error{Code: CodeLua, Message: err.Error()}
	}
	if t, ok := apiErr.Object.(*lua.LTable); ok {
		code := lua.LVAsString(t.RawGetString("code"))
		message := lua.LVAsString(t.RawGetString("message"))
		if code == CodeStale {
			return &handle.StaleError{Message: message}
		}
		return &host.Error{Code: code, Message: message}
	}
	return &host.Error{Code: CodeLua, Message: apiErr.Object.String()}
}

// Close releases the state.
func (i *Interpreter) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.L.Close()
	i.closed = true
	return nil
}
