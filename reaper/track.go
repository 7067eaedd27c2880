// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"fmt"

	"github.com/reabridge/rpc/handle"
)

// Track info parameters accepted by InfoValue and SetInfoValue.
const (
	ParamVolume      = "D_VOL"
	ParamPan         = "D_PAN"
	ParamMute        = "B_MUTE"
	ParamSolo        = "I_SOLO"
	ParamRecArm      = "I_RECARM"
	ParamRecInput    = "I_RECINPUT"
	ParamTrackNumber = "IP_TRACKNUMBER"
)

// Track is a project track. Its id is the host's pointer token.
type Track struct{ entity }

// Equal reports whether t and other name the same track.
func (t Track) Equal(other Track) bool { return t.h.Equal(other.h) }

// Project returns the owning project.
func (t Track) Project() Project {
	parent, _ := t.h.Parent()
	return Project{entity{h: parent, c: t.c}}
}

// Name returns the track name.
func (t Track) Name(ctx context.Context) (string, error) {
	return callString(ctx, t.c, OpGetTrackName, t.h)
}

// SetName renames the track.
func (t Track) SetName(ctx context.Context, name string) error {
	_, err := call(ctx, t.c, OpSetTrackName, t.h, name)
	return err
}

// InfoValue reads a numeric track parameter such as ParamVolume.
func (t Track) InfoValue(ctx context.Context, param string) (float64, error) {
	return callFloat(ctx, t.c, OpGetTrackInfo, t.h, param)
}

// SetInfoValue writes a numeric track parameter.
func (t Track) SetInfoValue(ctx context.Context, param string, value float64) error {
	ok, err := callBool(ctx, t.c, OpSetTrackInfo, t.h, param, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s: rejected by host", OpSetTrackInfo, param)
	}
	return nil
}

// Volume returns the linear volume.
func (t Track) Volume(ctx context.Context) (float64, error) {
	return t.InfoValue(ctx, ParamVolume)
}

// SetVolume sets the linear volume.
func (t Track) SetVolume(ctx context.Context, v float64) error {
	return t.SetInfoValue(ctx, ParamVolume, v)
}

// Pan returns the pan in [-1, 1].
func (t Track) Pan(ctx context.Context) (float64, error) {
	return t.InfoValue(ctx, ParamPan)
}

// SetPan sets the pan.
func (t Track) SetPan(ctx context.Context, v float64) error {
	return t.SetInfoValue(ctx, ParamPan, v)
}

// IsMuted reports the mute state.
func (t Track) IsMuted(ctx context.Context) (bool, error) {
	v, err := t.InfoValue(ctx, ParamMute)
	return v != 0, err
}

func (t Track) Mute(ctx context.Context) error   { return t.SetInfoValue(ctx, ParamMute, 1) }
func (t Track) Unmute(ctx context.Context) error { return t.SetInfoValue(ctx, ParamMute, 0) }

// IsSolo reports whether the track is soloed.
func (t Track) IsSolo(ctx context.Context) (bool, error) {
	v, err := t.InfoValue(ctx, ParamSolo)
	return v != 0, err
}

func (t Track) Solo(ctx context.Context) error   { return t.SetInfoValue(ctx, ParamSolo, 1) }
func (t Track) Unsolo(ctx context.Context) error { return t.SetInfoValue(ctx, ParamSolo, 0) }

// RecArmChange arms or disarms the track for recording.
func (t Track) RecArmChange(ctx context.Context, armed bool) error {
	v := 0
	if armed {
		v = 1
	}
	_, err := call(ctx, t.c, OpRecArmChange, t.h, v)
	return err
}

// Color returns the custom color as RGB. A track without one reports black.
func (t Track) Color(ctx context.Context) (r, g, b int, err error) {
	native, err := callInt(ctx, t.c, OpGetTrackColor, t.h)
	if err != nil {
		return 0, 0, 0, err
	}
	return ColorFromNative(ctx, t.c, native&^customColorFlag)
}

// SetColor sets a custom RGB color.
func (t Track) SetColor(ctx context.Context, r, g, b int) error {
	native, err := ColorToNative(ctx, t.c, r, g, b)
	if err != nil {
		return err
	}
	_, err = call(ctx, t.c, OpSetTrackColor, t.h, native)
	return err
}

// Delete removes the track. The handle is stale afterwards.
func (t Track) Delete(ctx context.Context) error {
	_, err := call(ctx, t.c, OpDeleteTrack, t.h)
	return err
}

// NumEnvelopes counts the track's envelopes.
func (t Track) NumEnvelopes(ctx context.Context) (int, error) {
	return callInt(ctx, t.c, OpCountEnvelopes, t.h)
}

// Envelope returns the envelope at index.
func (t Track) Envelope(ctx context.Context, index int) (Envelope, error) {
	h, err := callHandle(ctx, t.c, OpGetEnvelope, t.h, index)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{entity{h: h, c: t.c}}, nil
}

// EnvelopeByName returns the envelope with the given name, such as
// "Volume", or ErrNotFound.
func (t Track) EnvelopeByName(ctx context.Context, name string) (Envelope, error) {
	v, err := call(ctx, t.c, OpGetEnvelopeByName, t.h, name)
	if err != nil {
		return Envelope{}, err
	}
	h, ok := v.(handle.Handle)
	if !ok {
		return Envelope{}, fmt.Errorf("envelope %q: %w", name, ErrNotFound)
	}
	return Envelope{entity{h: h, c: t.c}}, nil
}

// NumItems counts the media items on the track.
func (t Track) NumItems(ctx context.Context) (int, error) {
	return callInt(ctx, t.c, OpCountItems, t.h)
}

// Items lists the media items on the track.
func (t Track) Items(ctx context.Context) ([]Item, error) {
	n, err := t.NumItems(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		h, err := callHandle(ctx, t.c, OpGetItem, t.h, i)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, Item{entity{h: h, c: t.c}})
	}
	return items, nil
}

// AddItem creates an empty media item on the track.
func (t Track) AddItem(ctx context.Context) (Item, error) {
	h, err := callHandle(ctx, t.c, OpAddItem, t.h)
	if err != nil {
		return Item{}, err
	}
	return Item{entity{h: h, c: t.c}}, nil
}

// NumFX counts the effects in the track's chain.
func (t Track) NumFX(ctx context.Context) (int, error) {
	return callInt(ctx, t.c, OpCountFX, t.h)
}

// FX returns the effect at index without a round trip.
func (t Track) FX(index int) (FX, error) {
	h, err := t.h.Child(handle.KindFX, handle.Index(index))
	if err != nil {
		return FX{}, err
	}
	return FX{entity{h: h, c: t.c}}, nil
}

// AddFX appends an effect by name and returns it.
func (t Track) AddFX(ctx context.Context, name string) (FX, error) {
	index, err := callInt(ctx, t.c, OpAddFX, t.h, name, 1)
	if err != nil {
		return FX{}, err
	}
	if index < 0 {
		return FX{}, fmt.Errorf("fx %q: %w", name, ErrNotFound)
	}
	return t.FX(index)
}
