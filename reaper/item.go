// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"fmt"

	"github.com/reabridge/rpc/handle"
)

// Media item parameters.
const (
	ParamItemPosition = "D_POSITION"
	ParamItemLength   = "D_LENGTH"
)

// Item is a media item on a track.
type Item struct{ entity }

// Track returns the owning track.
func (i Item) Track() Track {
	parent, _ := i.h.Parent()
	return Track{entity{h: parent, c: i.c}}
}

func (i Item) setInfo(ctx context.Context, param string, v float64) error {
	_, err := call(ctx, i.c, OpSetItemInfo, i.h, param, v)
	return err
}

// Position returns the start time in seconds.
func (i Item) Position(ctx context.Context) (float64, error) {
	return callFloat(ctx, i.c, OpGetItemInfo, i.h, ParamItemPosition)
}

// SetPosition moves the item.
func (i Item) SetPosition(ctx context.Context, pos float64) error {
	return i.setInfo(ctx, ParamItemPosition, pos)
}

// Length returns the duration in seconds.
func (i Item) Length(ctx context.Context) (float64, error) {
	return callFloat(ctx, i.c, OpGetItemInfo, i.h, ParamItemLength)
}

// SetLength resizes the item.
func (i Item) SetLength(ctx context.Context, length float64) error {
	return i.setInfo(ctx, ParamItemLength, length)
}

// ActiveTake returns the active take, or ErrNotFound for an empty item.
func (i Item) ActiveTake(ctx context.Context) (Take, error) {
	v, err := call(ctx, i.c, OpGetActiveTake, i.h)
	if err != nil {
		return Take{}, err
	}
	h, ok := v.(handle.Handle)
	if !ok {
		return Take{}, fmt.Errorf("active take of %s: %w", i.h, ErrNotFound)
	}
	return Take{entity{h: h, c: i.c}}, nil
}

// AddTake appends an empty take and makes it active.
func (i Item) AddTake(ctx context.Context) (Take, error) {
	h, err := callHandle(ctx, i.c, OpAddTake, i.h)
	if err != nil {
		return Take{}, err
	}
	return Take{entity{h: h, c: i.c}}, nil
}

// Delete removes the item from its track.
func (i Item) Delete(ctx context.Context) error {
	_, err := call(ctx, i.c, OpDeleteItem, i.Track().h, i.h)
	return err
}

// Take is one take of a media item.
type Take struct{ entity }

// Name returns the take name.
func (t Take) Name(ctx context.Context) (string, error) {
	return callString(ctx, t.c, OpGetTakeName, t.h)
}

// NumEnvelopes counts the take's envelopes.
func (t Take) NumEnvelopes(ctx context.Context) (int, error) {
	return callInt(ctx, t.c, OpCountTakeEnvelopes, t.h)
}

// Envelope returns the take envelope at index.
func (t Take) Envelope(ctx context.Context, index int) (Envelope, error) {
	h, err := callHandle(ctx, t.c, OpGetTakeEnvelope, t.h, index)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{entity{h: h, c: t.c}}, nil
}
