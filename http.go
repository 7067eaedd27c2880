// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// httpPath is where the host's JSON-RPC endpoint is mounted.
const httpPath = "/rpc"

// httpServiceName is the JSON-RPC service; methods are Bridge.Call and Bridge.Ping.
const httpServiceName = "Bridge"

func init() {
	registerTransport(TransportHTTP, dialHTTP, listenHTTP)
}

// httpEnvelope carries an opaque payload through JSON-RPC params and results.
type httpEnvelope struct {
	Payload []byte `json:"payload"`
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
// Deadlines come from the request context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	// Drain any remaining data to allow connection reuse
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

func jsonRPCMethod(method string) string {
	if method == "" {
		return httpServiceName + "."
	}
	return httpServiceName + "." + strings.ToUpper(method[:1]) + method[1:]
}

// dialHTTP builds a client and probes the endpoint, since HTTP has no
// connection to establish.
func dialHTTP(ctx context.Context, addr string, o *dialOptions) (Client, error) {
	uri, err := url.Parse("http://" + addr + httpPath)
	if err != nil {
		return nil, fmt.Errorf("http endpoint: %w", err)
	}
	c := &httpClient{
		uri:    uri,
		ops:    NewOptions(o.httpOptions),
		client: newHTTPClient(),
	}
	if _, err := c.CallRaw(ctx, MethodPing, nil); err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: %v", ErrDialRefused, err)
		}
		return nil, err
	}
	return c, nil
}

// httpClient implements Client over JSON-RPC 2.0.
type httpClient struct {
	uri    *url.URL
	ops    *Options
	client *http.Client
}

func (c *httpClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var reply httpEnvelope
	if err := sendJSONRequest(ctx, c.client, c.uri, jsonRPCMethod(method), &httpEnvelope{Payload: payload}, &reply, c.ops); err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// sendJSONRequest performs exactly one JSON-RPC round trip. Retrying is
// the caller's decision; host calls must never be repeated.
func sendJSONRequest(
	ctx context.Context,
	client *http.Client,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
	ops *Options,
) error {
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	target := *uri
	target.RawQuery = ops.QueryParams().Encode()

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		target.String(),
		bytes.NewBuffer(requestBodyBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header = ops.Headers().Clone()
	request.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	defer CleanlyCloseBody(resp.Body)

	// Return an error for any non successful status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return nil
}

func listenHTTP(addr string, o *serverOptions) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &httpServer{
		listener: listener,
		service:  &bridgeService{handlers: make(map[string]RawHandler)},
	}

	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(s.service, httpServiceName); err != nil {
		listener.Close()
		return nil, fmt.Errorf("registering json-rpc service: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(httpPath, rpcServer)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// httpServer implements Server with a gorilla JSON-RPC 2.0 endpoint.
type httpServer struct {
	listener net.Listener
	server   *http.Server
	service  *bridgeService
}

func (s *httpServer) RegisterRaw(method string, handler RawHandler) error {
	return s.service.register(method, handler)
}

func (s *httpServer) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.server.Close()
		case <-stop:
		}
	}()

	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *httpServer) Close() error {
	return s.server.Close()
}

func (s *httpServer) Addr() string {
	return s.listener.Addr().String()
}

// bridgeService is the receiver gorilla/rpc reflects over.
type bridgeService struct {
	mu       sync.RWMutex
	handlers map[string]RawHandler
}

func (b *bridgeService) register(method string, handler RawHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[method]; exists {
		return fmt.Errorf("method %q already registered", method)
	}
	b.handlers[method] = handler
	return nil
}

func (b *bridgeService) dispatch(ctx context.Context, method string, args, reply *httpEnvelope) error {
	b.mu.RLock()
	handler, ok := b.handlers[method]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown method: %s", method)
	}
	out, err := handler(ctx, args.Payload)
	if err != nil {
		return err
	}
	reply.Payload = out
	return nil
}

// Call serves Bridge.Call.
func (b *bridgeService) Call(r *http.Request, args *httpEnvelope, reply *httpEnvelope) error {
	return b.dispatch(r.Context(), MethodCall, args, reply)
}

// Ping serves Bridge.Ping.
func (b *bridgeService) Ping(r *http.Request, args *httpEnvelope, reply *httpEnvelope) error {
	return b.dispatch(r.Context(), MethodPing, args, reply)
}
