// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrFrameClosed   = errors.New("frame: connection closed")
	ErrFrameTooLarge = errors.New("frame: message too large")
	ErrFrameRemote   = errors.New("frame: remote error")
)

// maxFrameSize bounds a single frame, compressed or not.
const maxFrameSize = 64 * 1024 * 1024

// MessageType identifies frame message types
type MessageType uint8

const (
	MsgRequest  MessageType = 0x01
	MsgResponse MessageType = 0x02
	MsgError    MessageType = 0x03

	// flagCompressed is OR-ed into the type byte when the payload is zstd.
	flagCompressed byte = 0x80
)

// zstdEncoder and zstdDecoder are shared by all connections; both are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("frame: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameSize))
	if err != nil {
		panic("frame: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload returns the zstd form of payload when it exceeds
// threshold and actually shrinks.
func compressPayload(payload []byte, threshold int) ([]byte, bool) {
	if threshold <= 0 || len(payload) <= threshold {
		return payload, false
	}
	compressed := zstdEncoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return payload, false
	}
	return compressed, true
}

func decompressPayload(payload []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// FrameConn is a client connection multiplexing request/response pairs
// over one TCP stream by request ID.
type FrameConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *FrameResponse
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}

	compressThreshold int
}

// FrameResponse holds a response from a frame call
type FrameResponse struct {
	Data []byte
	Err  error
}

// FrameDial connects to a frame server
func FrameDial(ctx context.Context, addr string) (*FrameConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("frame dial: %w", err)
	}

	fc := &FrameConn{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go fc.readLoop()
	return fc, nil
}

// Call sends one request frame and waits for its response. A request
// abandoned through ctx may still be executed by the server.
func (f *FrameConn) Call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrFrameClosed
	}

	requestID := f.nextID.Add(1)
	respCh := make(chan *FrameResponse, 1)
	f.pending.Store(requestID, respCh)
	defer f.pending.Delete(requestID)

	body, compressed := compressPayload(payload, f.compressThreshold)
	typ := byte(MsgRequest)
	if compressed {
		typ |= flagCompressed
	}

	// Encode: [4 len][1 type][4 reqID][2 methodLen][method][payload]
	methodBytes := []byte(method)
	msgLen := 1 + 4 + 2 + len(methodBytes) + len(body)
	if msgLen > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = typ
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(methodBytes)))
	copy(buf[11:], methodBytes)
	copy(buf[11+len(methodBytes):], body)

	f.writeMu.Lock()
	_, err := f.conn.Write(buf)
	f.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("frame write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-f.readDone:
		return nil, ErrFrameClosed
	}
}

func (f *FrameConn) readLoop() {
	defer close(f.readDone)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(f.conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(f.conn, msg); err != nil {
			return
		}

		if len(msg) < 5 {
			continue
		}

		msgType := MessageType(msg[0] &^ flagCompressed)
		requestID := binary.BigEndian.Uint32(msg[1:5])
		payload := msg[5:]

		ch, ok := f.pending.Load(requestID)
		if !ok {
			// Caller gave up on this request.
			continue
		}
		respCh := ch.(chan *FrameResponse)

		if msg[0]&flagCompressed != 0 {
			var err error
			if payload, err = decompressPayload(payload); err != nil {
				respCh <- &FrameResponse{Err: err}
				continue
			}
		}

		switch msgType {
		case MsgResponse:
			respCh <- &FrameResponse{Data: payload}
		case MsgError:
			respCh <- &FrameResponse{Err: fmt.Errorf("%w: %s", ErrFrameRemote, payload)}
		}
	}
}

// Close closes the connection
func (f *FrameConn) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	return f.conn.Close()
}

// FrameServer handles incoming frame requests
type FrameServer struct {
	listener net.Listener
	handler  FrameHandler
	conns    sync.Map
	closed   atomic.Bool

	compressThreshold int
}

// FrameHandler handles frame requests
type FrameHandler interface {
	HandleFrame(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// FrameHandlerFunc is a function adapter for FrameHandler
type FrameHandlerFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

func (fn FrameHandlerFunc) HandleFrame(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return fn(ctx, method, payload)
}

// NewFrameServer creates a new frame server
func NewFrameServer(listener net.Listener, handler FrameHandler) *FrameServer {
	return &FrameServer{
		listener: listener,
		handler:  handler,
	}
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *FrameServer) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *FrameServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	// Handlers observe the client going away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(conn, msg); err != nil {
			return
		}

		if len(msg) < 7 || MessageType(msg[0]&^flagCompressed) != MsgRequest {
			continue
		}
		requestID := binary.BigEndian.Uint32(msg[1:5])
		methodLen := binary.BigEndian.Uint16(msg[5:7])
		if len(msg) < 7+int(methodLen) {
			continue
		}
		method := string(msg[7 : 7+methodLen])
		payload := msg[7+methodLen:]

		if msg[0]&flagCompressed != 0 {
			var err error
			if payload, err = decompressPayload(payload); err != nil {
				s.sendResponse(conn, &writeMu, requestID, nil, err)
				continue
			}
		}

		go func() {
			respData, err := s.handler.HandleFrame(ctx, method, payload)
			s.sendResponse(conn, &writeMu, requestID, respData, err)
		}()
	}
}

func (s *FrameServer) sendResponse(conn net.Conn, writeMu *sync.Mutex, requestID uint32, data []byte, err error) {
	var typ byte
	var payload []byte
	if err != nil {
		typ = byte(MsgError)
		payload = []byte(err.Error())
	} else {
		typ = byte(MsgResponse)
		var compressed bool
		payload, compressed = compressPayload(data, s.compressThreshold)
		if compressed {
			typ |= flagCompressed
		}
	}

	msgLen := 1 + 4 + len(payload)
	if msgLen > maxFrameSize {
		typ = byte(MsgError)
		payload = []byte(ErrFrameTooLarge.Error())
		msgLen = 1 + 4 + len(payload)
	}
	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = typ
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	copy(buf[9:], payload)

	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	conn.Write(buf)
}

// Close closes the server
func (s *FrameServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *FrameServer) Addr() net.Addr {
	return s.listener.Addr()
}
