// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// grpcServiceName is the fully qualified gRPC service. Its methods are
// the transport methods, so a call is /reabridge.Bridge/call.
const grpcServiceName = "reabridge.Bridge"

func init() {
	registerTransport(TransportGRPC, dialGRPC, listenGRPC)
}

// rawCodec passes payloads through gRPC untouched. Messages are already
// CBOR by the time they reach the transport.
type rawCodec struct{}

func (rawCodec) Name() string { return "reabridge-raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		if b == nil {
			return nil, nil
		}
		return *b, nil
	}
	return nil, fmt.Errorf("raw codec: cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func grpcMethod(method string) string {
	return "/" + grpcServiceName + "/" + method
}

// dialGRPC creates the client and pings through it. grpc.NewClient does
// not connect, so without the probe an absent host would only surface
// on the first call.
func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	c := &grpcClient{conn: conn}
	if _, err := c.CallRaw(ctx, MethodPing, nil); err != nil {
		conn.Close()
		switch status.Code(err) {
		case codes.Unavailable:
			return nil, fmt.Errorf("%w: %v", ErrDialRefused, err)
		case codes.DeadlineExceeded:
			return nil, fmt.Errorf("grpc dial: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return c, nil
}

type grpcClient struct {
	conn *grpc.ClientConn
}

func (c *grpcClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if payload == nil {
		payload = []byte{}
	}
	var resp []byte
	if err := c.conn.Invoke(ctx, grpcMethod(method), payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}

func listenGRPC(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &grpcServer{
		listener: listener,
		server:   grpc.NewServer(grpc.ForceServerCodec(rawCodec{})),
		handlers: make(map[string]RawHandler),
	}
	s.server.RegisterService(&grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: MethodCall, Handler: s.unary(MethodCall)},
			{MethodName: MethodPing, Handler: s.unary(MethodPing)},
		},
		Metadata: "reabridge.proto",
	}, s)
	return s, nil
}

// grpcServer implements Server with a hand-built service descriptor, so
// no generated stubs are needed for two byte-in byte-out methods.
type grpcServer struct {
	listener net.Listener
	server   *grpc.Server

	mu       sync.RWMutex
	handlers map[string]RawHandler
}

func (s *grpcServer) unary(method string) grpc.MethodHandler {
	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		var payload []byte
		if err := dec(&payload); err != nil {
			return nil, err
		}
		invoke := func(ctx context.Context, req any) (any, error) {
			return s.dispatch(ctx, method, req.([]byte))
		}
		if interceptor == nil {
			return invoke(ctx, payload)
		}
		info := &grpc.UnaryServerInfo{Server: s, FullMethod: grpcMethod(method)}
		return interceptor(ctx, payload, info, invoke)
	}
}

func (s *grpcServer) dispatch(ctx context.Context, method string, payload []byte) (any, error) {
	s.mu.RLock()
	handler, ok := s.handlers[method]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown method: %s", method)
	}
	out, err := handler(ctx, payload)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func (s *grpcServer) RegisterRaw(method string, handler RawHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[method]; exists {
		return fmt.Errorf("method %q already registered", method)
	}
	s.handlers[method] = handler
	return nil
}

func (s *grpcServer) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.server.Stop()
		case <-stop:
		}
	}()
	return s.server.Serve(s.listener)
}

func (s *grpcServer) Close() error {
	s.server.Stop()
	return nil
}

func (s *grpcServer) Addr() string {
	return s.listener.Addr().String()
}
