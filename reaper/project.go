// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"errors"
	"fmt"

	"github.com/reabridge/rpc/handle"
)

// ErrNotFound is returned when a lookup by name or an optional child
// finds nothing.
var ErrNotFound = errors.New("reaper: not found")

// PlayState is the transport state bitmask reported by the host.
type PlayState int

const (
	Playing   PlayState = 1
	Paused    PlayState = 2
	Recording PlayState = 4
)

// IsPlaying reports whether playback or recording is running.
func (s PlayState) IsPlaying() bool { return s&Playing != 0 }

// IsPaused reports whether the transport is paused.
func (s PlayState) IsPaused() bool { return s&Paused != 0 }

// IsRecording reports whether recording is running.
func (s PlayState) IsRecording() bool { return s&Recording != 0 }

func (s PlayState) String() string {
	switch {
	case s.IsRecording():
		return "recording"
	case s.IsPaused():
		return "paused"
	case s.IsPlaying():
		return "playing"
	default:
		return "stopped"
	}
}

// Project is an open project.
type Project struct{ entity }

// CurrentProject returns the project active in the host.
func CurrentProject(ctx context.Context, c handle.Caller) (Project, error) {
	h, err := callHandle(ctx, c, OpGetProject)
	if err != nil {
		return Project{}, err
	}
	return Project{entity{h: h, c: c}}, nil
}

// NumTracks counts the project's tracks.
func (p Project) NumTracks(ctx context.Context) (int, error) {
	return callInt(ctx, p.c, OpCountTracks, p.h)
}

// Track returns the track at index.
func (p Project) Track(ctx context.Context, index int) (Track, error) {
	h, err := callHandle(ctx, p.c, OpGetTrack, p.h, index)
	if err != nil {
		return Track{}, err
	}
	return Track{entity{h: h, c: p.c}}, nil
}

// Tracks lists every track in order. Each is fetched with its own
// round trip, so the list can be inconsistent if tracks change meanwhile.
func (p Project) Tracks(ctx context.Context) ([]Track, error) {
	n, err := p.NumTracks(ctx)
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, n)
	for i := 0; i < n; i++ {
		t, err := p.Track(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// AddTrack inserts a track at index and names it when name is not empty.
func (p Project) AddTrack(ctx context.Context, index int, name string) (Track, error) {
	h, err := callHandle(ctx, p.c, OpInsertTrack, p.h, index, true)
	if err != nil {
		return Track{}, err
	}
	t := Track{entity{h: h, c: p.c}}
	if name != "" {
		if err := t.SetName(ctx, name); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Play starts playback.
func (p Project) Play(ctx context.Context) error {
	_, err := call(ctx, p.c, OpPlay, p.h)
	return err
}

// Stop stops playback or recording.
func (p Project) Stop(ctx context.Context) error {
	_, err := call(ctx, p.c, OpStop, p.h)
	return err
}

// Pause toggles pause.
func (p Project) Pause(ctx context.Context) error {
	_, err := call(ctx, p.c, OpPause, p.h)
	return err
}

// Record starts recording on armed tracks.
func (p Project) Record(ctx context.Context) error {
	_, err := call(ctx, p.c, OpRecord, p.h)
	return err
}

// PlayState returns the transport state.
func (p Project) PlayState(ctx context.Context) (PlayState, error) {
	n, err := callInt(ctx, p.c, OpPlayState, p.h)
	return PlayState(n), err
}

// IsPlaying reports whether the transport is running.
func (p Project) IsPlaying(ctx context.Context) (bool, error) {
	s, err := p.PlayState(ctx)
	return s.IsPlaying(), err
}
