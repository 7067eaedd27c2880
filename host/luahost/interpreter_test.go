// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package luahost

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"testing"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/config"
	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
)

const script = `
names = { ["(MediaTrack*)0x1"] = "Drums", ["(MediaTrack*)0x2"] = "Bass" }

function GetTrackName(track)
    local name = names[handle_id(track)]
    if name == nil then
        error({code = "stale", message = "track is gone"})
    end
    return name
end

function SetTrackName(track, name)
    names[handle_id(track)] = name
end

function DeleteTrack(track)
    names[handle_id(track)] = nil
end

function GetEnvelope(track, index)
    return make_handle(track, "envelope", index)
end

function Describe(h)
    local parent = handle_parent(h)
    return handle_kind(h), handle_id(h), parent ~= nil and handle_kind(parent) or nil
end

function Same(a, b)
    return a == b
end

function Mixed()
    return { count = 2, ratio = 0.5, items = { 1, 2, 3 }, empty = {} }
end

function WithOptions(x, opts)
    if opts and opts.double then
        return x * 2
    end
    return x
end

function Fails()
    error({code = "E_BUSY", message = "project is rendering"})
end

function Crashes()
    local t = nil
    return t.field
end
`

func newInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	i := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { i.Close() })
	if err := i.DoString(script); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	return i
}

func track(t *testing.T, ptr string) handle.Handle {
	t.Helper()
	project := handle.MustMake(nil, handle.Index(0), handle.KindProject)
	return handle.MustMake(&project, handle.Pointer(ptr), handle.KindTrack)
}

func TestHas(t *testing.T) {
	i := newInterpreter(t)
	if !i.Has("GetTrackName") {
		t.Error("GetTrackName not found")
	}
	if i.Has("names") {
		t.Error("a table global is not an operation")
	}
	if i.Has("Missing") {
		t.Error("undefined global reported as operation")
	}
}

func TestInvokeWithHandles(t *testing.T) {
	i := newInterpreter(t)
	ctx := context.Background()
	drums := track(t, "(MediaTrack*)0x1")

	got, err := i.Invoke(ctx, "GetTrackName", host.Args{Positional: []any{drums}})
	if err != nil || got != "Drums" {
		t.Fatalf("GetTrackName = %v, %v", got, err)
	}

	env, err := i.Invoke(ctx, "GetEnvelope", host.Args{Positional: []any{drums, int64(2)}})
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	want := handle.MustMake(&drums, handle.Index(2), handle.KindEnvelope)
	if h, ok := env.(handle.Handle); !ok || !h.Equal(want) {
		t.Errorf("GetEnvelope = %v, want %s", env, want)
	}

	desc, err := i.Invoke(ctx, "Describe", host.Args{Positional: []any{want}})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !reflect.DeepEqual(desc, []any{"envelope", int64(2), "track"}) {
		t.Errorf("Describe = %#v", desc)
	}

	same, err := i.Invoke(ctx, "Same", host.Args{Positional: []any{drums, track(t, "(MediaTrack*)0x1")}})
	if err != nil || same != true {
		t.Errorf("Same = %v, %v", same, err)
	}
}

func TestDefaultSentinelFromLua(t *testing.T) {
	i := newInterpreter(t)
	env := handle.MustMake(nil, handle.Index(0), handle.KindEnvelope)

	got, err := i.Invoke(context.Background(), "GetEnvelope", host.Args{Positional: []any{env, int64(-1)}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if h := got.(handle.Handle); !h.ID().IsDefault() {
		t.Errorf("id -1 should build the default sentinel, got %s", h)
	}

	if _, err := i.Invoke(context.Background(), "GetEnvelope", host.Args{Positional: []any{env, int64(-3)}}); err == nil {
		t.Error("negative id other than -1 accepted")
	}
}

func TestTableResults(t *testing.T) {
	i := newInterpreter(t)
	got, err := i.Invoke(context.Background(), "Mixed", host.Args{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := map[string]any{
		"count": int64(2),
		"ratio": 0.5,
		"items": []any{int64(1), int64(2), int64(3)},
		"empty": []any{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestKeywordArguments(t *testing.T) {
	i := newInterpreter(t)
	got, err := i.Invoke(context.Background(), "WithOptions", host.Args{
		Positional: []any{int64(4)},
		Keyword:    map[string]any{"double": true},
	})
	if err != nil || got != int64(8) {
		t.Errorf("WithOptions = %v, %v", got, err)
	}
}

func TestScriptErrors(t *testing.T) {
	i := newInterpreter(t)
	ctx := context.Background()

	_, err := i.Invoke(ctx, "GetTrackName", host.Args{Positional: []any{track(t, "(MediaTrack*)0x9")}})
	if !errors.Is(err, handle.ErrStale) {
		t.Errorf("missing track: got %v, want stale", err)
	}

	var herr *host.Error
	_, err = i.Invoke(ctx, "Fails", host.Args{})
	if !errors.As(err, &herr) || herr.Code != "E_BUSY" || herr.Message != "project is rendering" {
		t.Errorf("Fails: got %v", err)
	}

	_, err = i.Invoke(ctx, "Crashes", host.Args{})
	if !errors.As(err, &herr) || herr.Code != CodeLua {
		t.Errorf("Crashes: got %v", err)
	}

	// The state is still usable.
	if got, err := i.Invoke(ctx, "GetTrackName", host.Args{Positional: []any{track(t, "(MediaTrack*)0x2")}}); err != nil || got != "Bass" {
		t.Errorf("after errors: %v, %v", got, err)
	}
}

func TestClosed(t *testing.T) {
	i := New()
	i.Close()
	if _, err := i.Invoke(context.Background(), "x", host.Args{}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if err := i.DoString("x = 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestOverTheBridge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := host.NewServer(newInterpreter(t), host.WithLogger(quiet))
	defer srv.Close()
	listener, err := rpc.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	if err := srv.Register(listener); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go listener.Serve(ctx)

	addr, portStr, _ := net.SplitHostPort(listener.Addr())
	cfg := config.Default()
	cfg.Address = addr
	cfg.Port, _ = strconv.Atoi(portStr)
	b, err := rpc.NewBridge(cfg, rpc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	defer b.Close()

	bass := track(t, "(MediaTrack*)0x2")
	if _, err := b.Call(ctx, "SetTrackName", []any{bass, "Sub"}, nil); err != nil {
		t.Fatalf("SetTrackName: %v", err)
	}
	if got, err := b.Call(ctx, "GetTrackName", []any{bass}, nil); err != nil || got != "Sub" {
		t.Errorf("GetTrackName = %v, %v", got, err)
	}

	if _, err := b.Call(ctx, "DeleteTrack", []any{bass}, nil); err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	_, err = b.Call(ctx, "GetTrackName", []any{bass}, nil)
	var stale *rpc.StaleHandleError
	if !errors.As(err, &stale) || !stale.Handle.Equal(bass) {
		t.Errorf("after delete: got %v, want stale error for %s", err, bass)
	}
}
