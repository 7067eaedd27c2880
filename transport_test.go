// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestTransportsRoundTrip(t *testing.T) {
	for _, transport := range []string{TransportTCP, TransportHTTP, TransportGRPC} {
		t.Run(transport, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			server, err := Listen("127.0.0.1:0", WithServerTransport(transport))
			if err != nil {
				t.Fatalf("Listen: %v", err)
			}
			defer server.Close()
			// Dial pings on http and grpc.
			server.RegisterRaw(MethodPing, func(context.Context, []byte) ([]byte, error) {
				return nil, nil
			})
			server.RegisterRaw(MethodCall, func(_ context.Context, payload []byte) ([]byte, error) {
				return payload, nil
			})
			go server.Serve(ctx)

			client, err := Dial(ctx, server.Addr(), WithTransport(transport))
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer client.Close()

			payload := []byte{0x00, 0xff, 0x10, 'c', 'b', 'o', 'r'}
			resp, err := client.CallRaw(ctx, MethodCall, payload)
			if err != nil {
				t.Fatalf("CallRaw: %v", err)
			}
			if !bytes.Equal(resp, payload) {
				t.Errorf("got %v, want %v", resp, payload)
			}
		})
	}
}

func TestHTTPHeadersReachServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen("127.0.0.1:0", WithServerTransport(TransportHTTP))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	server.RegisterRaw(MethodPing, func(context.Context, []byte) ([]byte, error) { return nil, nil })
	server.RegisterRaw(MethodCall, func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte("seen:"), payload...), nil
	})
	go server.Serve(ctx)

	client, err := Dial(ctx, server.Addr(),
		WithTransport(TransportHTTP),
		WithHTTPOptions(WithHeader("X-Session", "abc"), WithQueryParam("client", "test")),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.CallRaw(ctx, MethodCall, []byte("x"))
	if err != nil {
		t.Fatalf("CallRaw: %v", err)
	}
	if string(resp) != "seen:x" {
		t.Errorf("got %q", resp)
	}
}

func TestDialNobodyListening(t *testing.T) {
	// Reserve a port, then free it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	for _, transport := range []string{TransportTCP, TransportHTTP, TransportGRPC} {
		t.Run(transport, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := Dial(ctx, addr, WithTransport(transport))
			if err == nil {
				t.Fatal("dial succeeded with nothing listening")
			}
			if !isRetryableError(err) {
				t.Errorf("refused dial should be retryable: %v", err)
			}
		})
	}
}

func TestUnknownTransport(t *testing.T) {
	if _, err := Dial(context.Background(), "127.0.0.1:1", WithTransport("carrier-pigeon")); err == nil {
		t.Error("Dial with unknown transport succeeded")
	}
	if _, err := Listen("127.0.0.1:0", WithServerTransport("carrier-pigeon")); err == nil {
		t.Error("Listen with unknown transport succeeded")
	}
}

func TestAvailableTransports(t *testing.T) {
	got := AvailableTransports()
	want := []string{TransportGRPC, TransportHTTP, TransportTCP}
	if len(got) < len(want) {
		t.Fatalf("got %v, want at least %v", got, want)
	}
	for _, name := range want {
		if !HasTransport(name) {
			t.Errorf("transport %q not registered", name)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrDialRefused, true},
		{syscall.ECONNREFUSED, true},
		{&net.OpError{Op: "dial", Err: syscall.ECONNRESET}, true},
		{errors.New("write: broken pipe"), true},
		{&net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, true},
		{&net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, true},
		{syscall.ETIMEDOUT, true},
		{&net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "daw.invalid", IsNotFound: true}}, true},
		{errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
