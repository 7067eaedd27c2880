// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package luahost

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/reabridge/rpc/handle"
)

// handleTypeName names the metatable shared by every handle userdata.
const handleTypeName = "reabridge.handle"

// maxConvertDepth bounds table nesting in both directions.
const maxConvertDepth = 32

func (i *Interpreter) pushHandle(h handle.Handle) *lua.LUserData {
	ud := i.L.NewUserData()
	ud.Value = h
	i.L.SetMetatable(ud, i.L.GetTypeMetatable(handleTypeName))
	return ud
}

// toLua converts a decoded wire value into a Lua value.
func (i *Interpreter) toLua(v any, depth int) (lua.LValue, error) {
	if depth > maxConvertDepth {
		return lua.LNil, fmt.Errorf("value nested deeper than %d", maxConvertDepth)
	}
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case int64:
		return lua.LNumber(x), nil
	case int:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case string:
		return lua.LString(x), nil
	case []byte:
		return lua.LString(x), nil
	case handle.Handle:
		return i.pushHandle(x), nil
	case []any:
		t := i.L.CreateTable(len(x), 0)
		for n, e := range x {
			lv, err := i.toLua(e, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			t.RawSetInt(n+1, lv)
		}
		return t, nil
	case map[string]any:
		t := i.L.CreateTable(0, len(x))
		for k, e := range x {
			lv, err := i.toLua(e, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	}
	return lua.LNil, fmt.Errorf("cannot pass %T to lua", v)
}

// toGo converts a Lua value into the wire value universe. Integral
// numbers become int64, since Lua 5.1 has a single number type.
func toGo(lv lua.LValue, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("table nested deeper than %d", maxConvertDepth)
	}
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), nil
		}
		return f, nil
	case lua.LString:
		return string(v), nil
	case *lua.LUserData:
		if h, ok := v.Value.(handle.Handle); ok {
			return h, nil
		}
		return nil, fmt.Errorf("cannot return userdata holding %T", v.Value)
	case *lua.LTable:
		return tableToGo(v, depth)
	}
	return nil, fmt.Errorf("cannot return lua %s", lv.Type())
}

// tableToGo returns a slice for tables with contiguous keys 1..n and a
// map otherwise. The empty table is an empty slice.
func tableToGo(t *lua.LTable, depth int) (any, error) {
	n := 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		n++
		kn, ok := k.(lua.LNumber)
		if !ok || float64(kn) != math.Trunc(float64(kn)) || kn < 1 {
			isArray = false
		}
	})
	if isArray {
		for idx := 1; idx <= n; idx++ {
			if t.RawGetInt(idx) == lua.LNil {
				isArray = false
				break
			}
		}
	}

	if isArray {
		out := make([]any, n)
		for idx := 1; idx <= n; idx++ {
			v, err := toGo(t.RawGetInt(idx), depth+1)
			if err != nil {
				return nil, err
			}
			out[idx-1] = v
		}
		return out, nil
	}

	out := make(map[string]any, n)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			convErr = fmt.Errorf("table key of type %s", k.Type())
			return
		}
		out[key], convErr = toGo(v, depth+1)
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

// idFromLua reads an identifier argument: a number is an index (-1 is
// the default sentinel), a string is a pointer token.
func idFromLua(lv lua.LValue) (handle.ID, error) {
	switch v := lv.(type) {
	case lua.LNumber:
		f := float64(v)
		if f != math.Trunc(f) {
			return handle.ID{}, fmt.Errorf("id %v is not integral", f)
		}
		return handle.IDFromWire(int64(f))
	case lua.LString:
		return handle.Pointer(string(v)), nil
	}
	return handle.ID{}, fmt.Errorf("id must be a number or string, got %s", lv.Type())
}

func idToLua(id handle.ID) lua.LValue {
	if id.IsPointer() {
		return lua.LString(id.Token())
	}
	return lua.LNumber(id.Int())
}
