// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Dial connects to a host listener using the default transport (TCP).
// Use WithTransport for transport selection.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := &dialOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return t.dial(ctx, addr, o)
}

// Listen creates a listener using the default transport (TCP).
func Listen(addr string, opts ...ServerOption) (Server, error) {
	o := &serverOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return t.listen(addr, o)
}

// dialFrame creates a TCP frame client
func dialFrame(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := FrameDial(ctx, addr)
	if err != nil {
		return nil, err
	}
	conn.compressThreshold = o.compressThreshold
	return &frameClient{conn: conn}, nil
}

// listenFrame creates a TCP frame server
func listenFrame(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &frameServer{
		listener: listener,
		handlers: make(map[string]RawHandler),
	}
	s.server = NewFrameServer(listener, FrameHandlerFunc(s.dispatch))
	s.server.compressThreshold = o.compressThreshold
	return s, nil
}

// frameClient implements Client using the TCP frame transport
type frameClient struct {
	conn *FrameConn
}

func (c *frameClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return c.conn.Call(ctx, method, payload)
}

func (c *frameClient) Close() error {
	return c.conn.Close()
}

// frameServer implements Server using the TCP frame transport
type frameServer struct {
	listener net.Listener
	server   *FrameServer

	mu       sync.RWMutex
	handlers map[string]RawHandler
}

func (s *frameServer) RegisterRaw(method string, handler RawHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[method]; exists {
		return fmt.Errorf("method %q already registered", method)
	}
	s.handlers[method] = handler
	return nil
}

func (s *frameServer) dispatch(ctx context.Context, method string, payload []byte) ([]byte, error) {
	s.mu.RLock()
	handler, ok := s.handlers[method]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", method)
	}
	return handler(ctx, payload)
}

func (s *frameServer) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

func (s *frameServer) Close() error {
	return s.server.Close()
}

func (s *frameServer) Addr() string {
	return s.listener.Addr().String()
}
