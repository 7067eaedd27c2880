// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc bridges an external process to the scripting interpreter
// embedded in a DAW host.
//
// A Bridge classifies every operation before dispatch. Operations marked
// Local run in-process; everything else is encoded, sent over the
// configured transport and executed by the host's interpreter. Host
// objects come back as handle.Handle values, which are plain data that
// identify the object and can be re-validated at any time.
//
// # Transport Selection
//
// Three transports are registered:
//
//	tcp   length-prefixed frames, zstd compression above a threshold (default)
//	http  JSON-RPC 2.0 (gorilla/rpc) with the message as a base64 payload
//	grpc  unary gRPC with a raw bytes codec
//
// The message format is the same CBOR encoding on all three, so host
// listeners and clients can be swapped by configuration alone.
//
// # Usage
//
//	cfg := config.Default()
//	b, err := rpc.NewBridge(cfg, rpc.WithTable(table))
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	v, err := b.Call(ctx, "CountTracks", []any{project}, nil)
//
// Host side:
//
//	server, err := rpc.Listen(":2306")
//	server.RegisterRaw(rpc.MethodCall, handler)
//	server.Serve(ctx)
//
// # Architecture
//
//   - client.go: Client and Server interfaces, dial and listen options
//   - transport.go: transport registry
//   - frame.go: tcp frame transport
//   - http.go, grpc.go: alternative transports
//   - codec.go, wire.go: CBOR message encoding and handle tagging
//   - execctx.go: operation classification
//   - bridge.go: connection lifecycle and dispatch
//   - errors.go: the error vocabulary returned by Bridge.Call
package rpc
