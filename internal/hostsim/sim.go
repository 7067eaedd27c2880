// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hostsim is an in-memory host: one project with tracks,
// envelopes, automation items, media items, takes and effects, served
// through host.Interpreter. It answers every operation reaper.Operations
// routes to the host, so the facades can be exercised without a DAW.
package hostsim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
)

const (
	trackPtrFormat = "(MediaTrack*)0x%016X"
	itemPtrFormat  = "(MediaItem*)0x%016X"

	firstPtr = 0x110A1AD0
	ptrStep  = 0x100
)

// CodeRange is reported for an index outside its collection.
const CodeRange = "range"

// CodeParam is reported for an unknown parameter name.
const CodeParam = "param"

// Play state bits.
const (
	statePlaying   = 1
	statePaused    = 2
	stateRecording = 4
)

const customColor = 0x1000000

type point struct {
	Time     float64
	Value    float64
	Shape    int
	Tension  float64
	Selected bool
}

func (p point) wire() map[string]any {
	return map[string]any{
		"time":     p.Time,
		"value":    p.Value,
		"shape":    int64(p.Shape),
		"tension":  p.Tension,
		"selected": p.Selected,
	}
}

func sortPoints(pts []point) {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Time < pts[j].Time })
}

type autoItem struct {
	pool     int
	position float64
	length   float64
	points   []point
}

type envelope struct {
	h            handle.Handle
	name         string
	defaultValue float64
	points       []point
	items        []*autoItem
}

// pointsOf returns the point list of automation item idx, or of the
// envelope itself for -1.
func (e *envelope) pointsOf(idx int) (*[]point, error) {
	if idx == handle.DefaultIndex {
		return &e.points, nil
	}
	ai, err := e.autoItem(idx)
	if err != nil {
		return nil, err
	}
	return &ai.points, nil
}

// autoItem returns item idx. A missing item is reported stale, the same
// as resolving its handle would.
func (e *envelope) autoItem(idx int) (*autoItem, error) {
	if idx < 0 || idx >= len(e.items) {
		return nil, &handle.StaleError{Message: fmt.Sprintf("automation item %d no longer exists (envelope has %d)", idx, len(e.items))}
	}
	return e.items[idx], nil
}

type take struct {
	h         handle.Handle
	name      string
	envelopes []*envelope
}

type item struct {
	h        handle.Handle
	ptr      string
	position float64
	length   float64
	takes    []*take
	active   int
}

type fx struct {
	h      handle.Handle
	name   string
	params []float64
}

type track struct {
	h         handle.Handle
	ptr       string
	name      string
	color     int
	info      map[string]float64
	envelopes []*envelope
	items     []*item
	fx        []*fx
}

type project struct {
	h         handle.Handle
	tracks    []*track
	playState int
}

// Sim is the simulated host. It is safe for concurrent use, though
// host.Server already serializes every invocation.
type Sim struct {
	mu       sync.Mutex
	project  *project
	nextPtr  uint64
	nextPool int
	funcs    host.Funcs
}

var _ host.Interpreter = (*Sim)(nil)

// New returns a host with an empty project.
func New() *Sim {
	s := &Sim{
		project: &project{h: handle.MustMake(nil, handle.Index(0), handle.KindProject)},
		nextPtr: firstPtr,
	}
	s.funcs = s.operations()
	return s
}

// Has reports whether op is implemented.
func (s *Sim) Has(op string) bool { return s.funcs.Has(op) }

// Invoke runs op under the simulator lock.
func (s *Sim) Invoke(ctx context.Context, op string, args host.Args) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.funcs.Invoke(ctx, op, args)
}

// Operations lists the implemented operation names, sorted.
func (s *Sim) Operations() []string {
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrackNames returns the current track names in order.
func (s *Sim) TrackNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.project.tracks))
	for i, t := range s.project.tracks {
		names[i] = s.trackName(t, i)
	}
	return names
}

func (s *Sim) trackName(t *track, index int) string {
	if t.name == "" {
		return fmt.Sprintf("Track %d", index+1)
	}
	return t.name
}

func (s *Sim) pointer(format string) string {
	p := fmt.Sprintf(format, s.nextPtr)
	s.nextPtr += ptrStep
	return p
}

func newEnvelope(parent handle.Handle, index int, name string, def float64) *envelope {
	return &envelope{
		h:            handle.MustMake(&parent, handle.Index(index), handle.KindEnvelope),
		name:         name,
		defaultValue: def,
	}
}

func (s *Sim) newTrack() *track {
	ptr := s.pointer(trackPtrFormat)
	t := &track{
		ptr: ptr,
		h:   handle.MustMake(&s.project.h, handle.Pointer(ptr), handle.KindTrack),
		info: map[string]float64{
			"D_VOL":      1,
			"D_PAN":      0,
			"B_MUTE":     0,
			"I_SOLO":     0,
			"I_RECARM":   0,
			"I_RECINPUT": 0,
		},
	}
	t.envelopes = []*envelope{
		newEnvelope(t.h, 0, "Volume", 1),
		newEnvelope(t.h, 1, "Pan", 0),
	}
	return t
}

func stale(h handle.Handle, what string) error {
	return &handle.StaleError{Message: fmt.Sprintf("%s %s no longer exists", what, h.ID())}
}

func wrongKind(h handle.Handle, want handle.Kind) error {
	return host.Errorf(host.CodeArgs, "want %s handle, got %s", want, h.Kind())
}

func (s *Sim) lookupProject(h handle.Handle) (*project, error) {
	if h.Kind() != handle.KindProject {
		return nil, wrongKind(h, handle.KindProject)
	}
	if !h.Equal(s.project.h) {
		return nil, stale(h, "project")
	}
	return s.project, nil
}

func (s *Sim) lookupTrack(h handle.Handle) (*track, int, error) {
	if h.Kind() != handle.KindTrack {
		return nil, 0, wrongKind(h, handle.KindTrack)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, 0, stale(h, "track")
	}
	p, err := s.lookupProject(parent)
	if err != nil {
		return nil, 0, err
	}
	for i, t := range p.tracks {
		if t.ptr == h.ID().Token() {
			return t, i, nil
		}
	}
	return nil, 0, stale(h, "track")
}

func (s *Sim) lookupItem(h handle.Handle) (*track, *item, error) {
	if h.Kind() != handle.KindItem {
		return nil, nil, wrongKind(h, handle.KindItem)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, nil, stale(h, "item")
	}
	t, _, err := s.lookupTrack(parent)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range t.items {
		if it.ptr == h.ID().Token() {
			return t, it, nil
		}
	}
	return nil, nil, stale(h, "item")
}

func (s *Sim) lookupTake(h handle.Handle) (*take, error) {
	if h.Kind() != handle.KindTake {
		return nil, wrongKind(h, handle.KindTake)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, stale(h, "take")
	}
	_, it, err := s.lookupItem(parent)
	if err != nil {
		return nil, err
	}
	idx := h.ID().Int()
	if !h.ID().IsIndex() || idx >= len(it.takes) {
		return nil, stale(h, "take")
	}
	return it.takes[idx], nil
}

func (s *Sim) lookupEnvelope(h handle.Handle) (*envelope, error) {
	if h.Kind() != handle.KindEnvelope {
		return nil, wrongKind(h, handle.KindEnvelope)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, stale(h, "envelope")
	}
	var envs []*envelope
	switch parent.Kind() {
	case handle.KindTrack:
		t, _, err := s.lookupTrack(parent)
		if err != nil {
			return nil, err
		}
		envs = t.envelopes
	case handle.KindTake:
		tk, err := s.lookupTake(parent)
		if err != nil {
			return nil, err
		}
		envs = tk.envelopes
	default:
		return nil, host.Errorf(host.CodeArgs, "envelope under %s", parent.Kind())
	}
	idx := h.ID().Int()
	if !h.ID().IsIndex() || idx >= len(envs) {
		return nil, stale(h, "envelope")
	}
	return envs[idx], nil
}

// lookupAutoItem returns the envelope and the item index; Default
// yields -1, the envelope's own points.
func (s *Sim) lookupAutoItem(h handle.Handle) (*envelope, int, error) {
	if h.Kind() != handle.KindAutomationItem {
		return nil, 0, wrongKind(h, handle.KindAutomationItem)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, 0, stale(h, "automation item")
	}
	e, err := s.lookupEnvelope(parent)
	if err != nil {
		return nil, 0, err
	}
	if h.ID().IsDefault() {
		return e, handle.DefaultIndex, nil
	}
	idx := h.ID().Int()
	if !h.ID().IsIndex() || idx >= len(e.items) {
		return nil, 0, stale(h, "automation item")
	}
	return e, idx, nil
}

func (s *Sim) lookupFX(h handle.Handle) (*fx, error) {
	if h.Kind() != handle.KindFX {
		return nil, wrongKind(h, handle.KindFX)
	}
	parent, ok := h.Parent()
	if !ok {
		return nil, stale(h, "fx")
	}
	t, _, err := s.lookupTrack(parent)
	if err != nil {
		return nil, err
	}
	idx := h.ID().Int()
	if !h.ID().IsIndex() || idx >= len(t.fx) {
		return nil, stale(h, "fx")
	}
	return t.fx[idx], nil
}

// describe resolves h and reports its live data.
func (s *Sim) describe(h handle.Handle) (map[string]any, error) {
	out := map[string]any{"kind": string(h.Kind())}
	switch h.Kind() {
	case handle.KindProject:
		p, err := s.lookupProject(h)
		if err != nil {
			return nil, err
		}
		out["tracks"] = int64(len(p.tracks))
		out["play_state"] = int64(p.playState)
	case handle.KindTrack:
		t, idx, err := s.lookupTrack(h)
		if err != nil {
			return nil, err
		}
		out["name"] = s.trackName(t, idx)
		out["index"] = int64(idx)
		out["volume"] = t.info["D_VOL"]
		out["pan"] = t.info["D_PAN"]
		out["muted"] = t.info["B_MUTE"] != 0
	case handle.KindEnvelope:
		e, err := s.lookupEnvelope(h)
		if err != nil {
			return nil, err
		}
		out["name"] = e.name
		out["points"] = int64(len(e.points))
		out["items"] = int64(len(e.items))
	case handle.KindAutomationItem:
		e, idx, err := s.lookupAutoItem(h)
		if err != nil {
			return nil, err
		}
		pts, _ := e.pointsOf(idx)
		out["points"] = int64(len(*pts))
		if idx >= 0 {
			out["position"] = e.items[idx].position
			out["length"] = e.items[idx].length
			out["pool"] = int64(e.items[idx].pool)
		}
	case handle.KindItem:
		_, it, err := s.lookupItem(h)
		if err != nil {
			return nil, err
		}
		out["position"] = it.position
		out["length"] = it.length
		out["takes"] = int64(len(it.takes))
	case handle.KindTake:
		tk, err := s.lookupTake(h)
		if err != nil {
			return nil, err
		}
		out["name"] = tk.name
	case handle.KindFX:
		f, err := s.lookupFX(h)
		if err != nil {
			return nil, err
		}
		out["name"] = f.name
		out["params"] = int64(len(f.params))
	default:
		return nil, host.Errorf(host.CodeArgs, "cannot resolve %s handles", h.Kind())
	}
	return out, nil
}
