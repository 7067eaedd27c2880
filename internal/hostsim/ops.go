// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hostsim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
	"github.com/reabridge/rpc/reaper"
)

func (s *Sim) operations() host.Funcs {
	return host.Funcs{
		reaper.OpGetProject:  s.getProject,
		reaper.OpCountTracks: s.countTracks,
		reaper.OpGetTrack:    s.getTrack,
		reaper.OpInsertTrack: s.insertTrack,
		reaper.OpDeleteTrack: s.deleteTrack,
		reaper.OpPlay:        s.transport(playFrom),
		reaper.OpStop:        s.transport(func(int) int { return 0 }),
		reaper.OpPause:       s.transport(pauseFrom),
		reaper.OpRecord:      s.transport(func(int) int { return statePlaying | stateRecording }),
		reaper.OpPlayState:   s.playState,

		reaper.OpGetTrackName:      s.getTrackName,
		reaper.OpSetTrackName:      s.setTrackName,
		reaper.OpGetTrackInfo:      s.getTrackInfo,
		reaper.OpSetTrackInfo:      s.setTrackInfo,
		reaper.OpGetTrackColor:     s.getTrackColor,
		reaper.OpSetTrackColor:     s.setTrackColor,
		reaper.OpRecArmChange:      s.recArmChange,
		reaper.OpCountEnvelopes:    s.countEnvelopes,
		reaper.OpGetEnvelope:       s.getEnvelope,
		reaper.OpGetEnvelopeByName: s.getEnvelopeByName,
		reaper.OpCountItems:        s.countItems,
		reaper.OpGetItem:           s.getItem,
		reaper.OpAddItem:           s.addItem,
		reaper.OpDeleteItem:        s.deleteItem,
		reaper.OpCountFX:           s.countFX,
		reaper.OpAddFX:             s.addFX,

		reaper.OpGetEnvelopeName:     s.getEnvelopeName,
		reaper.OpCountPoints:         s.countPoints(false),
		reaper.OpCountPointsEx:       s.countPoints(true),
		reaper.OpGetPoint:            s.getPoint(false),
		reaper.OpGetPointEx:          s.getPoint(true),
		reaper.OpInsertPoint:         s.insertPoint(false),
		reaper.OpInsertPointEx:       s.insertPoint(true),
		reaper.OpSetPoint:            s.setPoint(false),
		reaper.OpSetPointEx:          s.setPoint(true),
		reaper.OpDeletePointRange:    s.deletePointRange,
		reaper.OpSortPoints:          s.sortPoints(false),
		reaper.OpSortPointsEx:        s.sortPoints(true),
		reaper.OpEvaluate:            s.evaluate,
		reaper.OpEvaluateDerivatives: s.evaluateDerivatives,
		reaper.OpFormatValue:         s.formatValue,
		reaper.OpCountAutoItems:      s.countAutoItems,
		reaper.OpInsertAutoItem:      s.insertAutoItem,
		reaper.OpGetSetAutoItemInfo:  s.autoItemInfo,

		reaper.OpGetItemInfo:        s.getItemInfo,
		reaper.OpSetItemInfo:        s.setItemInfo,
		reaper.OpGetActiveTake:      s.getActiveTake,
		reaper.OpAddTake:            s.addTake,
		reaper.OpGetTakeName:        s.getTakeName,
		reaper.OpCountTakeEnvelopes: s.countTakeEnvelopes,
		reaper.OpGetTakeEnvelope:    s.getTakeEnvelope,

		reaper.OpFXGetName:      s.fxName,
		reaper.OpFXGetNumParams: s.fxNumParams,
		reaper.OpFXGetParam:     s.fxGetParam,
		reaper.OpFXSetParam:     s.fxSetParam,

		handle.OpValidate: s.validate,
		handle.OpResolve:  s.resolve,
	}
}

// Argument helpers resolve the handle at position 0.

func (s *Sim) projectArg(a host.Args) (*project, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	return s.lookupProject(h)
}

func (s *Sim) trackArg(a host.Args) (*track, int, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, 0, err
	}
	return s.lookupTrack(h)
}

func (s *Sim) envelopeArg(a host.Args) (*envelope, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	return s.lookupEnvelope(h)
}

func (s *Sim) itemArg(a host.Args) (*item, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	_, it, err := s.lookupItem(h)
	return it, err
}

func (s *Sim) takeArg(a host.Args) (*take, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	return s.lookupTake(h)
}

func (s *Sim) fxArg(a host.Args) (*fx, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	return s.lookupFX(h)
}

func rangeCheck(what string, idx, n int) error {
	if idx < 0 || idx >= n {
		return host.Errorf(CodeRange, "%s %d out of range [0, %d)", what, idx, n)
	}
	return nil
}

// Project.

func (s *Sim) getProject(context.Context, host.Args) (any, error) {
	return s.project.h, nil
}

func (s *Sim) countTracks(_ context.Context, a host.Args) (any, error) {
	p, err := s.projectArg(a)
	if err != nil {
		return nil, err
	}
	return len(p.tracks), nil
}

func (s *Sim) getTrack(_ context.Context, a host.Args) (any, error) {
	p, err := s.projectArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if err := rangeCheck("track", idx, len(p.tracks)); err != nil {
		return nil, err
	}
	return p.tracks[idx].h, nil
}

func (s *Sim) insertTrack(_ context.Context, a host.Args) (any, error) {
	p, err := s.projectArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	idx = max(0, min(idx, len(p.tracks)))
	t := s.newTrack()
	p.tracks = slices.Insert(p.tracks, idx, t)
	return t.h, nil
}

func (s *Sim) deleteTrack(_ context.Context, a host.Args) (any, error) {
	_, idx, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	s.project.tracks = slices.Delete(s.project.tracks, idx, idx+1)
	return nil, nil
}

func playFrom(st int) int {
	if st&stateRecording != 0 {
		return st
	}
	return statePlaying
}

// pauseFrom toggles between running and paused, keeping the record bit.
func pauseFrom(st int) int {
	rec := st & stateRecording
	if st&statePaused != 0 {
		return rec | statePlaying
	}
	return rec | statePaused
}

func (s *Sim) transport(next func(int) int) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		p, err := s.projectArg(a)
		if err != nil {
			return nil, err
		}
		p.playState = next(p.playState)
		return nil, nil
	}
}

func (s *Sim) playState(_ context.Context, a host.Args) (any, error) {
	p, err := s.projectArg(a)
	if err != nil {
		return nil, err
	}
	return p.playState, nil
}

// Track.

func (s *Sim) getTrackName(_ context.Context, a host.Args) (any, error) {
	t, idx, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	return s.trackName(t, idx), nil
}

func (s *Sim) setTrackName(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	name, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	t.name = name
	return true, nil
}

func (s *Sim) getTrackInfo(_ context.Context, a host.Args) (any, error) {
	t, idx, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	param, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	if param == reaper.ParamTrackNumber {
		return float64(idx + 1), nil
	}
	v, ok := t.info[param]
	if !ok {
		return nil, host.Errorf(CodeParam, "unknown track parameter %q", param)
	}
	return v, nil
}

func (s *Sim) setTrackInfo(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	param, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	v, err := a.Float(2)
	if err != nil {
		return nil, err
	}
	if _, ok := t.info[param]; !ok {
		return false, nil
	}
	t.info[param] = v
	return true, nil
}

func (s *Sim) getTrackColor(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	return t.color, nil
}

func (s *Sim) setTrackColor(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	c, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	t.color = c | customColor
	return nil, nil
}

func (s *Sim) recArmChange(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	arm, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if arm != 0 {
		t.info[reaper.ParamRecArm] = 1
	} else {
		t.info[reaper.ParamRecArm] = 0
	}
	return true, nil
}

func (s *Sim) countEnvelopes(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	return len(t.envelopes), nil
}

func (s *Sim) getEnvelope(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if err := rangeCheck("envelope", idx, len(t.envelopes)); err != nil {
		return nil, err
	}
	return t.envelopes[idx].h, nil
}

// getEnvelopeByName answers nil when no envelope has the name.
func (s *Sim) getEnvelopeByName(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	name, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	for _, e := range t.envelopes {
		if e.name == name {
			return e.h, nil
		}
	}
	return nil, nil
}

func (s *Sim) countItems(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	return len(t.items), nil
}

func (s *Sim) getItem(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if err := rangeCheck("item", idx, len(t.items)); err != nil {
		return nil, err
	}
	return t.items[idx].h, nil
}

func (s *Sim) addItem(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	ptr := s.pointer(itemPtrFormat)
	it := &item{
		ptr:    ptr,
		h:      handle.MustMake(&t.h, handle.Pointer(ptr), handle.KindItem),
		active: -1,
	}
	t.items = append(t.items, it)
	return it.h, nil
}

func (s *Sim) deleteItem(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	h, err := a.Handle(1)
	if err != nil {
		return nil, err
	}
	owner, it, err := s.lookupItem(h)
	if err != nil {
		return nil, err
	}
	if owner != t {
		return false, nil
	}
	t.items = slices.DeleteFunc(t.items, func(x *item) bool { return x == it })
	return true, nil
}

func (s *Sim) countFX(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	return len(t.fx), nil
}

// fxParamCount is the parameter count every simulated effect exposes.
const fxParamCount = 8

// addFX appends an effect when instantiate is positive; otherwise it
// only looks one up by name, answering -1 if there is none.
func (s *Sim) addFX(_ context.Context, a host.Args) (any, error) {
	t, _, err := s.trackArg(a)
	if err != nil {
		return nil, err
	}
	name, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	instantiate, err := a.IntOr(2, 1)
	if err != nil {
		return nil, err
	}
	if instantiate <= 0 {
		for i, f := range t.fx {
			if f.name == name {
				return i, nil
			}
		}
		return -1, nil
	}
	f := &fx{
		h:      handle.MustMake(&t.h, handle.Index(len(t.fx)), handle.KindFX),
		name:   name,
		params: make([]float64, fxParamCount),
	}
	t.fx = append(t.fx, f)
	return len(t.fx) - 1, nil
}

// Envelope.

func (s *Sim) getEnvelopeName(_ context.Context, a host.Args) (any, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, err
	}
	return e.name, nil
}

// pointsArg resolves the envelope and, for the Ex variants, the
// automation item index at position 1. It returns the position of the
// first argument after them.
func (s *Sim) pointsArg(a host.Args, ex bool) (*envelope, *[]point, int, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, nil, 0, err
	}
	if !ex {
		return e, &e.points, 1, nil
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, nil, 0, err
	}
	pts, err := e.pointsOf(idx)
	if err != nil {
		return nil, nil, 0, err
	}
	return e, pts, 2, nil
}

func (s *Sim) countPoints(ex bool) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		_, pts, _, err := s.pointsArg(a, ex)
		if err != nil {
			return nil, err
		}
		return len(*pts), nil
	}
}

func (s *Sim) getPoint(ex bool) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		_, pts, next, err := s.pointsArg(a, ex)
		if err != nil {
			return nil, err
		}
		idx, err := a.Int(next)
		if err != nil {
			return nil, err
		}
		if err := rangeCheck("point", idx, len(*pts)); err != nil {
			return nil, err
		}
		return (*pts)[idx].wire(), nil
	}
}

// noSort reads the flag from the keyword argument, or from the
// positional slot the ReaScript signature puts it in.
func noSort(a host.Args, pos int) (bool, error) {
	def, err := a.BoolOr(pos, false)
	if err != nil {
		return false, err
	}
	return a.KwBool("noSort", def)
}

func (s *Sim) insertPoint(ex bool) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		_, pts, next, err := s.pointsArg(a, ex)
		if err != nil {
			return nil, err
		}
		var p point
		if p.Time, err = a.Float(next); err != nil {
			return nil, err
		}
		if p.Value, err = a.Float(next + 1); err != nil {
			return nil, err
		}
		if p.Shape, err = a.IntOr(next+2, 0); err != nil {
			return nil, err
		}
		if p.Tension, err = a.FloatOr(next+3, 0); err != nil {
			return nil, err
		}
		if p.Selected, err = a.BoolOr(next+4, false); err != nil {
			return nil, err
		}
		unsorted, err := noSort(a, next+5)
		if err != nil {
			return nil, err
		}
		*pts = append(*pts, p)
		if !unsorted {
			sortPoints(*pts)
		}
		return true, nil
	}
}

// setPoint takes the changed fields as keyword arguments.
func (s *Sim) setPoint(ex bool) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		_, pts, next, err := s.pointsArg(a, ex)
		if err != nil {
			return nil, err
		}
		idx, err := a.Int(next)
		if err != nil {
			return nil, err
		}
		if err := rangeCheck("point", idx, len(*pts)); err != nil {
			return nil, err
		}
		p := (*pts)[idx]
		if p.Time, err = a.KwFloat("time", p.Time); err != nil {
			return nil, err
		}
		if p.Value, err = a.KwFloat("value", p.Value); err != nil {
			return nil, err
		}
		shape, err := a.KwFloat("shape", float64(p.Shape))
		if err != nil {
			return nil, err
		}
		p.Shape = int(shape)
		if p.Tension, err = a.KwFloat("tension", p.Tension); err != nil {
			return nil, err
		}
		if p.Selected, err = a.KwBool("selected", p.Selected); err != nil {
			return nil, err
		}
		unsorted, err := a.KwBool("noSort", false)
		if err != nil {
			return nil, err
		}
		(*pts)[idx] = p
		if !unsorted {
			sortPoints(*pts)
		}
		return true, nil
	}
}

func (s *Sim) deletePointRange(_ context.Context, a host.Args) (any, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, err
	}
	start, err := a.Float(1)
	if err != nil {
		return nil, err
	}
	end, err := a.Float(2)
	if err != nil {
		return nil, err
	}
	e.points = slices.DeleteFunc(e.points, func(p point) bool {
		return p.Time >= start && p.Time < end
	})
	return true, nil
}

func (s *Sim) sortPoints(ex bool) host.Func {
	return func(_ context.Context, a host.Args) (any, error) {
		_, pts, _, err := s.pointsArg(a, ex)
		if err != nil {
			return nil, err
		}
		sortPoints(*pts)
		return true, nil
	}
}

// evaluate interpolates linearly between the envelope's own points;
// square points (shape 1) hold their value until the next point.
func (s *Sim) evaluate(_ context.Context, a host.Args) (any, error) {
	e, at, err := s.evalArgs(a)
	if err != nil {
		return nil, err
	}
	v, _ := e.valueAt(at)
	return v, nil
}

// evaluateDerivatives returns the first three derivatives per second.
// Segments are linear, so only the first can be non-zero.
func (s *Sim) evaluateDerivatives(_ context.Context, a host.Args) (any, error) {
	e, at, err := s.evalArgs(a)
	if err != nil {
		return nil, err
	}
	_, slope := e.valueAt(at)
	return []any{slope, 0.0, 0.0}, nil
}

func (s *Sim) evalArgs(a host.Args) (*envelope, float64, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, 0, err
	}
	at, err := a.Float(1)
	if err != nil {
		return nil, 0, err
	}
	return e, at, nil
}

func (e *envelope) valueAt(at float64) (value, slope float64) {
	pts := slices.Clone(e.points)
	sortPoints(pts)
	switch {
	case len(pts) == 0:
		return e.defaultValue, 0
	case at <= pts[0].Time:
		return pts[0].Value, 0
	case at >= pts[len(pts)-1].Time:
		return pts[len(pts)-1].Value, 0
	}
	for i := 0; i < len(pts)-1; i++ {
		lo, hi := pts[i], pts[i+1]
		if at < lo.Time || at >= hi.Time {
			continue
		}
		if lo.Shape == 1 || hi.Time == lo.Time {
			return lo.Value, 0
		}
		slope = (hi.Value - lo.Value) / (hi.Time - lo.Time)
		return lo.Value + (at-lo.Time)*slope, slope
	}
	return pts[len(pts)-1].Value, 0
}

// formatValue renders value the way the envelope's lane shows it.
func (s *Sim) formatValue(_ context.Context, a host.Args) (any, error) {
	e, v, err := s.evalArgs(a)
	if err != nil {
		return nil, err
	}
	switch e.name {
	case "Volume":
		if v <= 0 {
			return "-inf dB", nil
		}
		return fmt.Sprintf("%+.2fdB", 20*math.Log10(v)), nil
	case "Pan":
		switch pct := math.Round(math.Abs(v) * 100); {
		case pct == 0:
			return "center", nil
		case v < 0:
			return fmt.Sprintf("%.0f%%R", pct), nil
		default:
			return fmt.Sprintf("%.0f%%L", pct), nil
		}
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}

func (s *Sim) countAutoItems(_ context.Context, a host.Args) (any, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, err
	}
	return len(e.items), nil
}

// insertAutoItem creates a new pool when pool is negative.
func (s *Sim) insertAutoItem(_ context.Context, a host.Args) (any, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, err
	}
	pool, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	pos, err := a.Float(2)
	if err != nil {
		return nil, err
	}
	length, err := a.Float(3)
	if err != nil {
		return nil, err
	}
	if pool < 0 {
		pool = s.nextPool
		s.nextPool++
	}
	e.items = append(e.items, &autoItem{pool: pool, position: pos, length: length})
	return len(e.items) - 1, nil
}

func (s *Sim) autoItemInfo(_ context.Context, a host.Args) (any, error) {
	e, err := s.envelopeArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	ai, err := e.autoItem(idx)
	if err != nil {
		return nil, err
	}
	param, err := a.Str(2)
	if err != nil {
		return nil, err
	}
	value, err := a.FloatOr(3, 0)
	if err != nil {
		return nil, err
	}
	set, err := a.BoolOr(4, false)
	if err != nil {
		return nil, err
	}
	var field *float64
	switch param {
	case "D_POSITION":
		field = &ai.position
	case "D_LENGTH":
		field = &ai.length
	case "D_POOL_ID":
		return float64(ai.pool), nil
	default:
		return nil, host.Errorf(CodeParam, "unknown automation item parameter %q", param)
	}
	if set {
		*field = value
	}
	return *field, nil
}

// Items and takes.

func itemField(it *item, param string) (*float64, error) {
	switch param {
	case reaper.ParamItemPosition:
		return &it.position, nil
	case reaper.ParamItemLength:
		return &it.length, nil
	}
	return nil, host.Errorf(CodeParam, "unknown item parameter %q", param)
}

func (s *Sim) getItemInfo(_ context.Context, a host.Args) (any, error) {
	it, err := s.itemArg(a)
	if err != nil {
		return nil, err
	}
	param, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	field, err := itemField(it, param)
	if err != nil {
		return nil, err
	}
	return *field, nil
}

func (s *Sim) setItemInfo(_ context.Context, a host.Args) (any, error) {
	it, err := s.itemArg(a)
	if err != nil {
		return nil, err
	}
	param, err := a.Str(1)
	if err != nil {
		return nil, err
	}
	v, err := a.Float(2)
	if err != nil {
		return nil, err
	}
	field, err := itemField(it, param)
	if err != nil {
		return nil, err
	}
	*field = v
	return true, nil
}

// getActiveTake answers nil for an item without takes.
func (s *Sim) getActiveTake(_ context.Context, a host.Args) (any, error) {
	it, err := s.itemArg(a)
	if err != nil {
		return nil, err
	}
	if it.active < 0 {
		return nil, nil
	}
	return it.takes[it.active].h, nil
}

func (s *Sim) addTake(_ context.Context, a host.Args) (any, error) {
	it, err := s.itemArg(a)
	if err != nil {
		return nil, err
	}
	idx := len(it.takes)
	tk := &take{h: handle.MustMake(&it.h, handle.Index(idx), handle.KindTake)}
	tk.envelopes = []*envelope{newEnvelope(tk.h, 0, "Volume", 1)}
	it.takes = append(it.takes, tk)
	it.active = idx
	return tk.h, nil
}

func (s *Sim) getTakeName(_ context.Context, a host.Args) (any, error) {
	tk, err := s.takeArg(a)
	if err != nil {
		return nil, err
	}
	return tk.name, nil
}

func (s *Sim) countTakeEnvelopes(_ context.Context, a host.Args) (any, error) {
	tk, err := s.takeArg(a)
	if err != nil {
		return nil, err
	}
	return len(tk.envelopes), nil
}

func (s *Sim) getTakeEnvelope(_ context.Context, a host.Args) (any, error) {
	tk, err := s.takeArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if err := rangeCheck("take envelope", idx, len(tk.envelopes)); err != nil {
		return nil, err
	}
	return tk.envelopes[idx].h, nil
}

// Effects.

func (s *Sim) fxName(_ context.Context, a host.Args) (any, error) {
	f, err := s.fxArg(a)
	if err != nil {
		return nil, err
	}
	return f.name, nil
}

func (s *Sim) fxNumParams(_ context.Context, a host.Args) (any, error) {
	f, err := s.fxArg(a)
	if err != nil {
		return nil, err
	}
	return len(f.params), nil
}

func (s *Sim) fxGetParam(_ context.Context, a host.Args) (any, error) {
	f, err := s.fxArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	if err := rangeCheck("parameter", idx, len(f.params)); err != nil {
		return nil, err
	}
	return f.params[idx], nil
}

// fxSetParam answers false for an index out of range, as the host does.
func (s *Sim) fxSetParam(_ context.Context, a host.Args) (any, error) {
	f, err := s.fxArg(a)
	if err != nil {
		return nil, err
	}
	idx, err := a.Int(1)
	if err != nil {
		return nil, err
	}
	v, err := a.Float(2)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(f.params) {
		return false, nil
	}
	f.params[idx] = v
	return true, nil
}

// Built-ins.

func (s *Sim) validate(_ context.Context, a host.Args) (any, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	if _, err := s.describe(h); err != nil {
		if errors.Is(err, handle.ErrStale) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

func (s *Sim) resolve(_ context.Context, a host.Args) (any, error) {
	h, err := a.Handle(0)
	if err != nil {
		return nil, err
	}
	return s.describe(h)
}
