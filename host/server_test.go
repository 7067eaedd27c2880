// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/config"
	"github.com/reabridge/rpc/handle"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// serve exposes interp on a tcp listener and returns a bridge to it.
func serve(t *testing.T, interp Interpreter) (*rpc.Bridge, *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(interp, WithLogger(quietLogger))
	t.Cleanup(func() { srv.Close() })

	listener, err := rpc.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	if err := srv.Register(listener); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go listener.Serve(ctx)

	host, portStr, _ := net.SplitHostPort(listener.Addr())
	port, _ := strconv.Atoi(portStr)
	cfg := config.Default()
	cfg.Address = host
	cfg.Port = port

	b, err := rpc.NewBridge(cfg, rpc.WithLogger(quietLogger))
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, srv
}

func TestCallRoundTrip(t *testing.T) {
	b, srv := serve(t, Funcs{
		"Add": func(_ context.Context, a Args) (any, error) {
			x, err := a.Float(0)
			if err != nil {
				return nil, err
			}
			y, err := a.Float(1)
			if err != nil {
				return nil, err
			}
			return x + y, nil
		},
	})

	got, err := b.Call(context.Background(), "Add", []any{1.25, 2}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 3.25 {
		t.Errorf("got %v, want 3.25", got)
	}
	if srv.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", srv.Calls())
	}
}

func TestInvocationsAreSerialized(t *testing.T) {
	var inFlight, overlaps atomic.Int32
	counter := 0
	b, _ := serve(t, Funcs{
		"Increment": func(context.Context, Args) (any, error) {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer inFlight.Add(-1)
			counter++
			return counter, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Call(context.Background(), "Increment", nil, nil); err != nil {
				t.Errorf("Call: %v", err)
			}
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Errorf("%d invocation(s) overlapped", overlaps.Load())
	}
	got, err := b.Call(context.Background(), "Increment", nil, nil)
	if err != nil || got != int64(21) {
		t.Errorf("final counter = %v, %v; want 21", got, err)
	}
}

func TestErrorMapping(t *testing.T) {
	track := handle.MustMake(nil, handle.Pointer("(MediaTrack*)0x2"), handle.KindTrack)
	b, _ := serve(t, Funcs{
		"Stale": func(context.Context, Args) (any, error) {
			return nil, &handle.StaleError{Message: "track was deleted"}
		},
		"Reported": func(context.Context, Args) (any, error) {
			return nil, &Error{Code: "X", Message: "Y"}
		},
		"Plain": func(context.Context, Args) (any, error) {
			return nil, errors.New("boom")
		},
		"Panics": func(context.Context, Args) (any, error) {
			panic("interpreter exploded")
		},
		"NeedsArg": func(_ context.Context, a Args) (any, error) {
			return a.Handle(0)
		},
	})
	ctx := context.Background()

	_, err := b.Call(ctx, "Stale", []any{track}, nil)
	var stale *rpc.StaleHandleError
	if !errors.As(err, &stale) || !stale.Handle.Equal(track) || stale.Message != "track was deleted" {
		t.Errorf("Stale: got %v", err)
	}

	_, err = b.Call(ctx, "Reported", nil, nil)
	var reported *rpc.HostReportedError
	if !errors.As(err, &reported) || reported.Code != "X" || reported.Message != "Y" {
		t.Errorf("Reported: got %v", err)
	}

	_, err = b.Call(ctx, "Plain", nil, nil)
	if !errors.As(err, &reported) || reported.Message != "boom" {
		t.Errorf("Plain: got %v", err)
	}

	_, err = b.Call(ctx, "Panics", nil, nil)
	if !errors.As(err, &reported) || reported.Code != CodePanic {
		t.Errorf("Panics: got %v", err)
	}

	_, err = b.Call(ctx, "NeedsArg", []any{"not a handle"}, nil)
	if !errors.As(err, &reported) || reported.Code != CodeArgs {
		t.Errorf("NeedsArg: got %v", err)
	}

	// The interpreter survives all of the above.
	if !b.Ping(ctx) {
		t.Error("host unreachable after errors")
	}
}

func TestUnknownOperation(t *testing.T) {
	b, _ := serve(t, Funcs{})

	_, err := b.Call(context.Background(), "Frobnicate", nil, nil)
	var unroutable *rpc.UnroutableRequestError
	if !errors.As(err, &unroutable) || unroutable.Reason != rpc.KindUnknownOp {
		t.Fatalf("got %v, want unknown-op", err)
	}
}

func decodeFailure(t *testing.T, out []byte) *rpc.WireError {
	t.Helper()
	res, err := rpc.DecodeResult(out)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if res.OK {
		t.Fatalf("result unexpectedly ok: %+v", res)
	}
	return res.Error
}

func TestRequestRejections(t *testing.T) {
	srv := NewServer(Funcs{"Op": func(context.Context, Args) (any, error) { return nil, nil }}, WithLogger(quietLogger))
	defer srv.Close()
	ctx := context.Background()

	out, err := srv.HandleCall(ctx, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("HandleCall: %v", err)
	}
	if werr := decodeFailure(t, out); werr.Kind != rpc.KindBadRequest {
		t.Errorf("garbage: kind %s", werr.Kind)
	}

	payload, _ := rpc.EncodeRequest(rpc.Request{Version: rpc.ProtocolVersion + 1, Op: "Op"})
	out, _ = srv.HandleCall(ctx, payload)
	if werr := decodeFailure(t, out); werr.Kind != rpc.KindVersion {
		t.Errorf("version skew: kind %s", werr.Kind)
	}

	payload, _ = rpc.EncodeRequest(rpc.Request{Version: rpc.ProtocolVersion, Op: "Op", Context: rpc.Local})
	out, _ = srv.HandleCall(ctx, payload)
	if werr := decodeFailure(t, out); werr.Kind != rpc.KindBadRequest {
		t.Errorf("local context: kind %s", werr.Kind)
	}
}

func TestClosedServer(t *testing.T) {
	srv := NewServer(Funcs{"Op": func(context.Context, Args) (any, error) { return nil, nil }}, WithLogger(quietLogger))
	srv.Close()

	payload, _ := rpc.EncodeRequest(rpc.Request{Version: rpc.ProtocolVersion, Op: "Op"})
	if _, err := srv.HandleCall(context.Background(), payload); !errors.Is(err, ErrServerClosed) {
		t.Errorf("got %v, want ErrServerClosed", err)
	}
	// Close is idempotent.
	srv.Close()
}

func TestArgsAccessors(t *testing.T) {
	a := Args{
		Positional: []any{int64(3), 0.5, "name", true, nil},
		Keyword:    map[string]any{"noSort": true, "tension": 0.25},
	}

	if n, err := a.Int(0); err != nil || n != 3 {
		t.Errorf("Int(0) = %v, %v", n, err)
	}
	if f, err := a.Float(1); err != nil || f != 0.5 {
		t.Errorf("Float(1) = %v, %v", f, err)
	}
	if s, err := a.Str(2); err != nil || s != "name" {
		t.Errorf("Str(2) = %v, %v", s, err)
	}
	if v, err := a.Bool(3); err != nil || !v {
		t.Errorf("Bool(3) = %v, %v", v, err)
	}
	if n, err := a.IntOr(4, 7); err != nil || n != 7 {
		t.Errorf("IntOr(nil) = %v, %v", n, err)
	}
	if f, err := a.FloatOr(9, 1.5); err != nil || f != 1.5 {
		t.Errorf("FloatOr(absent) = %v, %v", f, err)
	}
	if v, err := a.KwBool("noSort", false); err != nil || !v {
		t.Errorf("KwBool = %v, %v", v, err)
	}
	if f, err := a.KwFloat("missing", 2); err != nil || f != 2 {
		t.Errorf("KwFloat(missing) = %v, %v", f, err)
	}

	var herr *Error
	if _, err := a.Int(2); !errors.As(err, &herr) || herr.Code != CodeArgs {
		t.Errorf("Int(string) err = %v", err)
	}
	if _, err := a.At(10); !errors.As(err, &herr) || herr.Code != CodeArgs {
		t.Errorf("At(10) err = %v", err)
	}
}
