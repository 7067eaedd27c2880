// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/host"
	"github.com/reabridge/rpc/internal/hostsim"
)

// startSim serves a simulated host and returns the flags that reach it.
func startSim(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := host.NewServer(hostsim.New(), host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
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

	addr, port, _ := net.SplitHostPort(listener.Addr())
	return []string{"--address", addr, "--port", port, "--log-level", "error"}
}

func runArgs(t *testing.T, flags []string, cmd ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(append(append([]string{}, flags...), cmd...), &out)
	return out.String(), err
}

func TestPingAndTracks(t *testing.T) {
	flags := startSim(t)

	out, err := runArgs(t, flags, "ping")
	if err != nil || !strings.HasPrefix(out, "ok ") {
		t.Fatalf("ping: %q, %v", out, err)
	}

	if _, err := runArgs(t, flags, "call", "InsertTrackAtIndex", "@project", "0", "true"); err != nil {
		t.Fatalf("call InsertTrackAtIndex: %v", err)
	}
	out, err = runArgs(t, flags, "call", "CountTracks", "@project")
	if err != nil || strings.TrimSpace(out) != "1" {
		t.Errorf("CountTracks: %q, %v", out, err)
	}

	out, err = runArgs(t, flags, "tracks")
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if !strings.Contains(out, "Track 1") || !strings.Contains(out, "(MediaTrack*)0x") {
		t.Errorf("tracks output:\n%s", out)
	}

	out, err = runArgs(t, flags, "call", "DBToAmplitude", "0")
	if err != nil || strings.TrimSpace(out) != "1" {
		t.Errorf("DBToAmplitude: %q, %v", out, err)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"frobnicate"},
		{"call"},
		{"--log-level", "loud", "ping"},
		{"call", "CountTracks", "{not json"},
	}
	for _, args := range tests {
		if _, err := runArgs(t, nil, args...); !errors.Is(err, errUsage) {
			t.Errorf("run(%q) = %v, want usage error", args, err)
		}
	}
}

func TestPingWithoutHost(t *testing.T) {
	_, err := runArgs(t, []string{"--address", "127.0.0.1", "--port", "1", "--retries", "1", "--log-level", "error"}, "ping")
	if !errors.Is(err, rpc.ErrHostUnavailable) {
		t.Errorf("got %v, want host unavailable", err)
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"3", int64(3)},
		{"2.5", 2.5},
		{`"Volume"`, "Volume"},
		{"true", true},
		{"[1, 1.5]", []any{int64(1), 1.5}},
		{`{"n": 2}`, map[string]any{"n": int64(2)}},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.raw)
		if err != nil || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseArg(%s) = %#v, %v; want %#v", tt.raw, got, err, tt.want)
		}
	}
}
