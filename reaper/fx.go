// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"fmt"
)

// FX is an effect in a track's chain, identified by its chain index.
type FX struct{ entity }

// Name returns the effect name.
func (f FX) Name(ctx context.Context) (string, error) {
	return callString(ctx, f.c, OpFXGetName, f.h)
}

// NumParams counts the effect's parameters.
func (f FX) NumParams(ctx context.Context) (int, error) {
	return callInt(ctx, f.c, OpFXGetNumParams, f.h)
}

// Param returns the normalized value of parameter index.
func (f FX) Param(ctx context.Context, index int) (float64, error) {
	return callFloat(ctx, f.c, OpFXGetParam, f.h, index)
}

// SetParam sets parameter index.
func (f FX) SetParam(ctx context.Context, index int, value float64) error {
	ok, err := callBool(ctx, f.c, OpFXSetParam, f.h, index, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %d: rejected by host", OpFXSetParam, index)
	}
	return nil
}
