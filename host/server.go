// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package host is the listening half of the bridge. It decodes calls,
// runs them on the host's single interpreter goroutine and encodes the
// outcome, translating interpreter failures into wire error kinds.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/handle"
)

// ErrServerClosed is returned for calls arriving after Close.
var ErrServerClosed = errors.New("host: server closed")

// CodePanic is the host error code for an operation that panicked.
const CodePanic = "panic"

// CodeUnencodable is the host error code for a result that cannot be
// put on the wire.
const CodeUnencodable = "unencodable"

type job struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// Server serializes every invocation onto one goroutine, the way a DAW
// host only lets its API be touched from the main thread. Transport
// handlers may run concurrently; the interpreter never does.
type Server struct {
	interp Interpreter
	logger *slog.Logger

	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	calls atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithQueue sets how many calls may wait for the interpreter.
func WithQueue(n int) Option {
	return func(s *Server) { s.jobs = make(chan job, n) }
}

// NewServer starts the interpreter goroutine. Call Close when done.
func NewServer(interp Interpreter, opts ...Option) *Server {
	s := &Server{
		interp: interp,
		logger: slog.Default(),
		jobs:   make(chan job, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Server) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			// A call whose client went away before it started is skipped;
			// once started it runs to completion.
			if j.ctx.Err() != nil {
				continue
			}
			j.fn(j.ctx)
		}
	}
}

// Close stops the interpreter goroutine after the running call returns.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

// Calls is the number of calls handled so far.
func (s *Server) Calls() uint64 { return s.calls.Load() }

// Register installs the call and ping handlers on a transport server.
func (s *Server) Register(srv rpc.Server) error {
	if err := srv.RegisterRaw(rpc.MethodCall, s.HandleCall); err != nil {
		return err
	}
	return srv.RegisterRaw(rpc.MethodPing, s.HandlePing)
}

// HandlePing answers the reachability probe without touching the
// interpreter.
func (s *Server) HandlePing(context.Context, []byte) ([]byte, error) {
	return []byte{}, nil
}

// HandleCall decodes one request, runs it and encodes the result.
// Failures of the operation travel inside the result; the returned error
// is reserved for the server shutting down or the client leaving.
func (s *Server) HandleCall(ctx context.Context, payload []byte) ([]byte, error) {
	s.calls.Add(1)

	req, err := rpc.DecodeRequest(payload)
	if err != nil {
		s.logger.Warn("rejecting undecodable request", "error", err)
		return rpc.EncodeResult(rpc.Failure(rpc.KindBadRequest, "", err.Error()))
	}
	logger := s.logger.With("op", req.Op, "session", req.Session)

	switch {
	case req.Version != rpc.ProtocolVersion:
		logger.Warn("protocol version mismatch", "version", req.Version)
		return rpc.EncodeResult(rpc.Failure(rpc.KindVersion, "",
			fmt.Sprintf("protocol version %d not supported, host speaks %d", req.Version, rpc.ProtocolVersion)))
	case req.Context != rpc.HostInterpreter:
		return rpc.EncodeResult(rpc.Failure(rpc.KindBadRequest, "",
			fmt.Sprintf("operation %s is classified %s", req.Op, req.Context)))
	}

	var result rpc.Result
	start := time.Now()
	err = s.exec(ctx, func(ctx context.Context) {
		if !s.interp.Has(req.Op) {
			result = rpc.Failure(rpc.KindUnknownOp, "", fmt.Sprintf("operation %s is not defined on this host", req.Op))
			return
		}
		result = s.invoke(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if result.OK {
		logger.Debug("call handled", "duration", time.Since(start))
	} else {
		logger.Debug("call failed", "kind", result.Error.Kind, "error", result.Error.Message)
	}

	out, err := rpc.EncodeResult(result)
	if err != nil {
		logger.Error("result not encodable", "error", err)
		return rpc.EncodeResult(rpc.Failure(rpc.KindHost, CodeUnencodable, err.Error()))
	}
	return out, nil
}

// exec runs fn on the interpreter goroutine and waits for it.
func (s *Server) exec(ctx context.Context, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	j := job{ctx: ctx, fn: func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	}}

	select {
	case s.jobs <- j:
	case <-s.quit:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		// The job may already be running; it is left to finish.
		return ctx.Err()
	}
}

func (s *Server) invoke(ctx context.Context, req rpc.Request) (result rpc.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked", "op", req.Op, "panic", r, "stack", string(debug.Stack()))
			result = rpc.Failure(rpc.KindHost, CodePanic, fmt.Sprint(r))
		}
	}()

	v, err := s.interp.Invoke(ctx, req.Op, Args{Positional: req.Args, Keyword: req.Kwargs})
	if err != nil {
		return failureFor(err)
	}
	return rpc.Success(v)
}

// failureFor maps an interpreter error to its wire form.
func failureFor(err error) rpc.Result {
	var herr *Error
	switch {
	case errors.Is(err, handle.ErrStale):
		var stale *handle.StaleError
		if errors.As(err, &stale) {
			return rpc.Failure(rpc.KindStale, "", stale.Message)
		}
		return rpc.Failure(rpc.KindStale, "", err.Error())
	case errors.As(err, &herr):
		return rpc.Failure(rpc.KindHost, herr.Code, herr.Message)
	default:
		return rpc.Failure(rpc.KindHost, "", err.Error())
	}
}
