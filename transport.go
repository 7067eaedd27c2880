// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// Transport types
const (
	TransportTCP  = "tcp"  // Length-prefixed frames, default
	TransportHTTP = "http" // JSON-RPC 2.0 over HTTP
	TransportGRPC = "grpc" // gRPC with a raw bytes codec
)

// DefaultTransport is the default transport type (TCP)
const DefaultTransport = TransportTCP

// ErrDialRefused marks a dial failure caused by nobody listening yet.
// Transports that probe reachability wrap their probe failures with it
// so the bridge knows another attempt may succeed.
var ErrDialRefused = errors.New("rpc: host refused connection")

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (Client, error)
type listenFunc func(addr string, o *serverOptions) (Server, error)

type transportFuncs struct {
	dial   dialFunc
	listen listenFunc
}

var (
	transportsMu sync.RWMutex
	transports   = map[string]transportFuncs{
		TransportTCP: {dialFrame, listenFrame},
	}
)

// registerTransport registers a new transport (used by transport files and tests)
func registerTransport(name string, dial dialFunc, listen listenFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = transportFuncs{dial, listen}
}

func unregisterTransport(name string) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	delete(transports, name)
}

func lookupTransport(name string) (transportFuncs, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	return t, ok
}

// AvailableTransports returns list of available transport types
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	_, ok := lookupTransport(name)
	return ok
}

// isRetryableError checks if a dial error is transient and worth retrying.
// A host that is not reachable yet (refused, unroutable, unresolvable)
// counts as transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrDialRefused, io.EOF,
		syscall.ECONNREFUSED, syscall.ECONNRESET,
		syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	errStr := err.Error()
	// EOF errors are often transient connection issues
	if strings.Contains(errStr, "EOF") {
		return true
	}
	// Connection reset/refused are also transient
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "i/o timeout") {
		return true
	}
	return false
}
