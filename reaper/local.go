// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"fmt"
	"math"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/handle"
)

// customColorFlag is set on native colors that override the theme color.
const customColorFlag = 0x1000000

// Local answers the operations that need no host: pure conversions.
var Local = rpc.LocalFuncs{
	OpColorToNative: func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("%s: want 3 arguments, got %d", OpColorToNative, len(args))
		}
		var rgb [3]int
		for i, a := range args {
			n, err := rpc.AsInt(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", OpColorToNative, err)
			}
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("%s: component %d out of range", OpColorToNative, n)
			}
			rgb[i] = n
		}
		return int64(colorToNative(rgb[0], rgb[1], rgb[2])), nil
	},
	OpColorFromNative: func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: want 1 argument, got %d", OpColorFromNative, len(args))
		}
		n, err := rpc.AsInt(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", OpColorFromNative, err)
		}
		r, g, b := colorFromNative(n)
		return []any{int64(r), int64(g), int64(b)}, nil
	},
	OpDBToAmplitude: func(_ context.Context, args []any, _ map[string]any) (any, error) {
		db, err := oneFloat(OpDBToAmplitude, args)
		if err != nil {
			return nil, err
		}
		return math.Pow(10, db/20), nil
	},
	OpAmplitudeToDB: func(_ context.Context, args []any, _ map[string]any) (any, error) {
		amp, err := oneFloat(OpAmplitudeToDB, args)
		if err != nil {
			return nil, err
		}
		if amp <= 0 {
			return math.Inf(-1), nil
		}
		return 20 * math.Log10(amp), nil
	},
}

func oneFloat(op string, args []any) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: want 1 argument, got %d", op, len(args))
	}
	f, err := rpc.AsFloat(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// Native colors pack red in the low byte.
func colorToNative(r, g, b int) int {
	return r | g<<8 | b<<16
}

func colorFromNative(n int) (r, g, b int) {
	return n & 0xFF, (n >> 8) & 0xFF, (n >> 16) & 0xFF
}

// ColorToNative packs an RGB triple into the host's native color value.
func ColorToNative(ctx context.Context, c handle.Caller, r, g, b int) (int, error) {
	return callInt(ctx, c, OpColorToNative, r, g, b)
}

// ColorFromNative unpacks a native color value.
func ColorFromNative(ctx context.Context, c handle.Caller, native int) (r, g, b int, err error) {
	v, err := c.Call(ctx, OpColorFromNative, []any{native}, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	rgb, err := rpc.AsSlice(v)
	if err != nil || len(rgb) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: unexpected result %v", OpColorFromNative, v)
	}
	var out [3]int
	for i := range out {
		if out[i], err = rpc.AsInt(rgb[i]); err != nil {
			return 0, 0, 0, err
		}
	}
	return out[0], out[1], out[2], nil
}

// DBToAmplitude converts decibels to a linear gain.
func DBToAmplitude(ctx context.Context, c handle.Caller, db float64) (float64, error) {
	return callFloat(ctx, c, OpDBToAmplitude, db)
}

// AmplitudeToDB converts a linear gain to decibels. Zero is -Inf.
func AmplitudeToDB(ctx context.Context, c handle.Caller, amp float64) (float64, error) {
	return callFloat(ctx, c, OpAmplitudeToDB, amp)
}
