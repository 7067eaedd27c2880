// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reabridge/rpc/config"
)

// State is the bridge's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// maxBackoffShift caps the exponential connect backoff.
const maxBackoffShift = 10

// Bridge routes operations to the local surface or across the transport
// to the host interpreter. It owns one lazily established connection
// shared by every goroutine in the process.
//
// Calls issued sequentially by one goroutine reach the host in order.
// Host calls are never retried: a call that times out may still have
// run on the host.
type Bridge struct {
	table    *Table
	local    LocalSurface
	logger   *slog.Logger
	session  string
	dialOpts []DialOption
	sleep    func(ctx context.Context, d time.Duration) error

	// mu guards the Disconnected -> Connecting -> Connected transition
	// and the fields below. It is never held across a host call.
	mu     sync.Mutex
	cfg    config.Config
	client Client
	state  atomic.Int32

	// timedOut is the last connection closed because a call timed out.
	timedOut Client
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithTable sets the operation classification table.
func WithTable(t *Table) BridgeOption {
	return func(b *Bridge) { b.table = t }
}

// WithLocal sets the surface that answers Local operations.
func WithLocal(l LocalSurface) BridgeOption {
	return func(b *Bridge) { b.local = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithDialOptions appends transport dial options.
func WithDialOptions(opts ...DialOption) BridgeOption {
	return func(b *Bridge) { b.dialOpts = append(b.dialOpts, opts...) }
}

// NewBridge validates cfg and returns a disconnected bridge. No
// connection is attempted until the first host call.
func NewBridge(cfg config.Config, opts ...BridgeOption) (*Bridge, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	b := &Bridge{
		cfg:     cfg,
		table:   NewTable(),
		local:   LocalFuncs{},
		logger:  slog.Default(),
		session: uuid.NewString(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("session", b.session)
	return b, nil
}

func validateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !HasTransport(cfg.Transport) {
		return fmt.Errorf("%w: unknown transport %q (available: %v)", config.ErrInvalid, cfg.Transport, AvailableTransports())
	}
	return nil
}

// Session identifies this bridge in host logs.
func (b *Bridge) Session() string { return b.session }

// Table returns the classification table consulted before every call.
func (b *Bridge) Table() *Table { return b.table }

// State reports the current connection state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Config returns the active configuration.
func (b *Bridge) Config() config.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Call runs op. Local operations go to the local surface. Host
// operations are encoded, sent, and their result decoded with handles
// rebound to this process.
func (b *Bridge) Call(ctx context.Context, op string, args []any, kwargs map[string]any) (any, error) {
	marker, _ := b.table.Lookup(op)
	if marker.Context == Local {
		return b.local.Invoke(ctx, op, args, kwargs)
	}

	req := Request{
		Version: ProtocolVersion,
		Session: b.session,
		Op:      op,
		Context: HostInterpreter,
		Args:    args,
		Kwargs:  kwargs,
	}
	payload, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	client, cfg, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	resp, err := client.CallRaw(callCtx, MethodCall, payload)
	if err != nil {
		return nil, b.callFailed(ctx, callCtx, client, cfg, marker, err)
	}

	result, err := DecodeResult(resp)
	if err != nil {
		return nil, &MalformedResponseError{Op: op, Err: err}
	}
	if !result.OK {
		return nil, errorFromWire(req, result.Error)
	}
	return result.Value, nil
}

func (b *Bridge) callFailed(ctx, callCtx context.Context, client Client, cfg config.Config, op Operation, err error) error {
	switch {
	case ctx.Err() != nil:
		// The caller abandoned the wait; the host may still run the call.
		return ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		b.logger.Warn("host call timed out",
			"op", op.Name, "timeout", cfg.Timeout(), "mutates", op.Mutates)
		b.drop(client, true)
		return &HostTimeoutError{Op: op.Name, Timeout: cfg.Timeout()}
	default:
		if b.drop(client, false) {
			err = fmt.Errorf("%w: %w", ErrConnectionDropped, err)
		}
		b.logger.Warn("host call failed", "op", op.Name, "error", err)
		return &HostUnavailableError{Addr: cfg.Addr(), Err: err}
	}
}

// Ping performs a minimal round trip and reports reachability. It never
// returns an error.
func (b *Bridge) Ping(ctx context.Context) bool {
	client, cfg, err := b.connect(ctx)
	if err != nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	if _, err := client.CallRaw(pingCtx, MethodPing, nil); err != nil {
		if ctx.Err() == nil {
			b.drop(client, false)
		}
		return false
	}
	return true
}

// connect returns the live client, dialing with bounded attempts if
// there is none. Concurrent callers wait for the single attempt in flight.
func (b *Bridge) connect(ctx context.Context) (Client, config.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg := b.cfg
	if b.client != nil && b.State() == Connected {
		return b.client, cfg, nil
	}
	b.state.Store(int32(Connecting))

	addr := cfg.Addr()
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < cfg.ConnectRetries; attempt++ {
		if attempt > 0 {
			shift := min(attempt-1, maxBackoffShift)
			wait := cfg.RetryBackoff() * time.Duration(1<<shift)
			if err := b.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		client, err := b.dial(dialCtx, addr, cfg)
		cancel()
		if err == nil {
			b.client = client
			b.state.Store(int32(Connected))
			b.logger.Info("connected to host",
				"addr", addr, "transport", cfg.Transport, "attempt", attempts)
			return client, cfg, nil
		}

		lastErr = err
		b.logger.Debug("connect attempt failed",
			"addr", addr, "attempt", attempts, "error", err)
		if ctx.Err() != nil {
			break
		}
		if !isRetryableError(err) && !errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}

	b.state.Store(int32(Disconnected))
	b.logger.Warn("host unavailable", "addr", addr, "attempts", attempts, "error", lastErr)
	return nil, cfg, &HostUnavailableError{Addr: addr, Attempts: attempts, Err: lastErr}
}

func (b *Bridge) dial(ctx context.Context, addr string, cfg config.Config) (Client, error) {
	opts := make([]DialOption, 0, len(b.dialOpts)+2)
	opts = append(opts, WithTransport(cfg.Transport), WithCompression(cfg.CompressThreshold))
	opts = append(opts, b.dialOpts...)
	return Dial(ctx, addr, opts...)
}

// drop tears down client if it is still the current connection, so the
// next call reconnects. It reports whether client was already closed by
// another call's timeout.
func (b *Bridge) drop(client Client, timedOut bool) (closedByTimeout bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != client {
		return b.timedOut == client
	}
	b.client.Close()
	b.client = nil
	b.state.Store(int32(Disconnected))
	if timedOut {
		b.timedOut = client
	}
	return false
}

// Reconfigure validates cfg, tears down the current connection and
// makes cfg active for the next call.
func (b *Bridge) Reconfigure(cfg config.Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	b.cfg = cfg
	return nil
}

// Close tears down the connection. The bridge stays usable; the next
// host call reconnects.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Bridge) closeLocked() error {
	var err error
	if b.client != nil {
		err = b.client.Close()
		b.client = nil
	}
	b.state.Store(int32(Disconnected))
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
