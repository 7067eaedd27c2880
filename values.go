// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"errors"
	"fmt"
	"math"

	"github.com/reabridge/rpc/handle"
)

// ErrValueType is returned by the As* converters on a type mismatch.
var ErrValueType = errors.New("rpc: unexpected value type")

// AsInt converts a decoded value to int. Integral floats are accepted,
// since some hosts report counts as doubles.
func AsInt(v any) (int, error) {
	switch x := v.(type) {
	case int64:
		return int(x), nil
	case int:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrValueType, x)
		}
		return int(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: want integer, got %T", ErrValueType, v)
}

// AsFloat converts a decoded number to float64.
func AsFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case float32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%w: want number, got %T", ErrValueType, v)
}

// AsString converts a decoded value to string.
func AsString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", fmt.Errorf("%w: want string, got %T", ErrValueType, v)
}

// AsBool converts a decoded value to bool. Numbers are true when non-zero.
func AsBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	}
	return false, fmt.Errorf("%w: want bool, got %T", ErrValueType, v)
}

// AsHandle converts a decoded value to a handle.
func AsHandle(v any) (handle.Handle, error) {
	h, ok := v.(handle.Handle)
	if !ok {
		return handle.Handle{}, fmt.Errorf("%w: want handle, got %T", ErrValueType, v)
	}
	return h, nil
}

// AsSlice converts a decoded value to []any. nil is an empty slice.
func AsSlice(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: want sequence, got %T", ErrValueType, v)
}

// AsMap converts a decoded value to map[string]any.
func AsMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: want mapping, got %T", ErrValueType, v)
	}
	return m, nil
}
