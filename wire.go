// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/reabridge/rpc/handle"
)

// ProtocolVersion is bumped on any incompatible wire change. A host
// answers other versions with KindVersion.
const ProtocolVersion = 1

// maxValueDepth bounds nesting of argument and result values.
const maxValueDepth = 32

var (
	// ErrMalformedMessage wraps every decode failure.
	ErrMalformedMessage = errors.New("rpc: malformed message")

	// ErrUnsupportedValue is returned when an argument cannot be encoded.
	ErrUnsupportedValue = errors.New("rpc: unsupported value")
)

// ErrorKind classifies a failure reported in a Result.
type ErrorKind string

const (
	// KindHost is a failure the host's own API produced.
	KindHost ErrorKind = "host"
	// KindStale means a handle argument names an entity that is gone.
	KindStale ErrorKind = "stale"
	// KindUnknownOp means the host build does not know the operation.
	KindUnknownOp ErrorKind = "unknown-op"
	// KindVersion means the request's protocol version is not spoken.
	KindVersion ErrorKind = "version"
	// KindBadRequest means the request could not be decoded or routed.
	KindBadRequest ErrorKind = "bad-request"
)

// Request is one call across the bridge.
type Request struct {
	Version int            `cbor:"v"`
	Session string         `cbor:"sid,omitempty"`
	Op      string         `cbor:"op"`
	Context ExecContext    `cbor:"ctx"`
	Args    []any          `cbor:"args"`
	Kwargs  map[string]any `cbor:"kwargs"`
}

// Result is either a value or a failure descriptor.
type Result struct {
	OK    bool       `cbor:"ok"`
	Value any        `cbor:"value,omitempty"`
	Error *WireError `cbor:"error,omitempty"`
}

// WireError is the failure half of a Result.
type WireError struct {
	Kind    ErrorKind `cbor:"kind"`
	Code    string    `cbor:"code,omitempty"`
	Message string    `cbor:"message"`
}

// Success wraps a value in a Result.
func Success(v any) Result {
	return Result{OK: true, Value: v}
}

// Failure builds a failed Result.
func Failure(kind ErrorKind, code, message string) Result {
	return Result{Error: &WireError{Kind: kind, Code: code, Message: message}}
}

// EncodeRequest encodes r, replacing every embedded handle with its path.
// Nil and empty Args or Kwargs stay distinct: nil travels as null.
func EncodeRequest(r Request) ([]byte, error) {
	args, err := toWireSlice(r.Args, 0)
	if err != nil {
		return nil, fmt.Errorf("encoding args of %s: %w", r.Op, err)
	}
	kwargs, err := toWireMap(r.Kwargs, 0)
	if err != nil {
		return nil, fmt.Errorf("encoding kwargs of %s: %w", r.Op, err)
	}
	r.Args = args
	r.Kwargs = kwargs
	return marshal(r)
}

// DecodeRequest is the inverse of EncodeRequest. Handles come back bound
// to this process's identity model.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if r.Op == "" {
		return Request{}, fmt.Errorf("%w: missing operation", ErrMalformedMessage)
	}
	args, err := fromWireSlice(r.Args, 0)
	if err != nil {
		return Request{}, err
	}
	kwargs, err := fromWireMap(r.Kwargs, 0)
	if err != nil {
		return Request{}, err
	}
	r.Args = args
	r.Kwargs = kwargs
	return r, nil
}

// EncodeResult encodes r.
func EncodeResult(r Result) ([]byte, error) {
	v, err := toWire(r.Value, 0)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	r.Value = v
	return marshal(r)
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !r.OK && r.Error == nil {
		return Result{}, fmt.Errorf("%w: failed result without error", ErrMalformedMessage)
	}
	v, err := fromWire(r.Value, 0)
	if err != nil {
		return Result{}, err
	}
	r.Value = v
	return r, nil
}

func toWireSlice(in []any, depth int) ([]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		w, err := toWire(v, depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

func toWireMap(in map[string]any, depth int) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		w, err := toWire(v, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = w
	}
	return out, nil
}

// toWire normalizes v into the wire value universe.
func toWire(v any, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedValue, maxValueDepth)
	}

	switch x := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		return uintToWire(uint64(x))
	case uint64:
		return uintToWire(x)
	case float32:
		return float64(x), nil
	case handle.Handle:
		return handleToWire(x)
	case *handle.Handle:
		if x == nil {
			return nil, nil
		}
		return handleToWire(*x)
	case []any:
		return toWireSlice(x, depth)
	case map[string]any:
		return toWireMap(x, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return toWire(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			w, err := toWire(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = w
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %s", ErrUnsupportedValue, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			w, err := toWire(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = w
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func uintToWire(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, u)
	}
	return int64(u), nil
}

func handleToWire(h handle.Handle) (any, error) {
	if h.IsZero() {
		return nil, fmt.Errorf("%w: zero handle", ErrUnsupportedValue)
	}
	path := h.Path()
	content := make([]any, len(path))
	for i, seg := range path {
		content[i] = []any{string(seg.Kind), seg.ID.Wire()}
	}
	return cbor.Tag{Number: TagHandle, Content: content}, nil
}

func fromWireSlice(in []any, depth int) ([]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		d, err := fromWire(v, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func fromWireMap(in map[string]any, depth int) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		d, err := fromWire(v, depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

// fromWire rehydrates a decoded value: handle tags become handles and
// integers are normalized to int64.
func fromWire(v any, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedMessage, maxValueDepth)
	}

	switch x := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrMalformedMessage, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case cbor.Tag:
		if x.Number != TagHandle {
			return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformedMessage, x.Number)
		}
		return handleFromWire(x.Content)
	case []any:
		return fromWireSlice(x, depth)
	case map[string]any:
		return fromWireMap(x, depth)
	}
	return nil, fmt.Errorf("%w: unexpected value of type %T", ErrMalformedMessage, v)
}

func handleFromWire(content any) (handle.Handle, error) {
	items, ok := content.([]any)
	if !ok || len(items) == 0 {
		return handle.Handle{}, fmt.Errorf("%w: handle path is not a non-empty array", ErrMalformedMessage)
	}
	path := make([]handle.Segment, len(items))
	for i, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return handle.Handle{}, fmt.Errorf("%w: handle segment %d is not a pair", ErrMalformedMessage, i)
		}
		kind, ok := pair[0].(string)
		if !ok {
			return handle.Handle{}, fmt.Errorf("%w: handle segment %d kind is %T", ErrMalformedMessage, i, pair[0])
		}
		id, err := handle.IDFromWire(pair[1])
		if err != nil {
			return handle.Handle{}, fmt.Errorf("%w: handle segment %d: %v", ErrMalformedMessage, i, err)
		}
		path[i] = handle.Segment{Kind: handle.Kind(kind), ID: id}
	}
	h, err := handle.FromPath(path)
	if err != nil {
		return handle.Handle{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return h, nil
}
