// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
)

// Transport-level methods. Every transport and every host listener
// understands both.
const (
	// MethodCall carries an encoded Request and answers with an encoded Result.
	MethodCall = "call"

	// MethodPing carries an empty payload and answers with an empty one.
	MethodPing = "ping"
)

// Client is the transport-agnostic request/response channel to the
// host-side listener. Implementations must be safe for concurrent use.
type Client interface {
	// CallRaw sends payload to method and blocks until the matching
	// reply arrives or ctx is done.
	CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error)

	// Close closes the connection
	Close() error
}

// Server is the listening side of a transport.
type Server interface {
	// RegisterRaw registers a raw byte handler
	RegisterRaw(method string, handler RawHandler) error

	// Serve starts serving requests (blocks until context cancelled)
	Serve(ctx context.Context) error

	// Close stops the server
	Close() error

	// Addr returns the server's listen address
	Addr() string
}

// RawHandler handles one raw request payload.
type RawHandler func(ctx context.Context, payload []byte) ([]byte, error)

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	transport         string
	compressThreshold int
	httpOptions       []Option
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithCompression compresses tcp request frames whose payload exceeds
// threshold bytes. Zero disables compression.
func WithCompression(threshold int) DialOption {
	return func(o *dialOptions) { o.compressThreshold = threshold }
}

// WithHTTPOptions adds headers or query parameters to http transport requests.
func WithHTTPOptions(opts ...Option) DialOption {
	return func(o *dialOptions) { o.httpOptions = append(o.httpOptions, opts...) }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	transport         string
	compressThreshold int
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithServerCompression compresses tcp response frames whose payload
// exceeds threshold bytes.
func WithServerCompression(threshold int) ServerOption {
	return func(o *serverOptions) { o.compressThreshold = threshold }
}
