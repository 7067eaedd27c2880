// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper

import (
	"context"
	"errors"
	"fmt"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/handle"
)

// Point is one envelope point.
type Point struct {
	Time     float64
	Value    float64
	Shape    int
	Tension  float64
	Selected bool
}

func pointFromWire(v any) (Point, error) {
	m, err := rpc.AsMap(v)
	if err != nil {
		return Point{}, err
	}
	var p Point
	if p.Time, err = rpc.AsFloat(m["time"]); err != nil {
		return Point{}, fmt.Errorf("time: %w", err)
	}
	if p.Value, err = rpc.AsFloat(m["value"]); err != nil {
		return Point{}, fmt.Errorf("value: %w", err)
	}
	if p.Shape, err = rpc.AsInt(m["shape"]); err != nil {
		return Point{}, fmt.Errorf("shape: %w", err)
	}
	if p.Tension, err = rpc.AsFloat(m["tension"]); err != nil {
		return Point{}, fmt.Errorf("tension: %w", err)
	}
	if p.Selected, err = rpc.AsBool(m["selected"]); err != nil {
		return Point{}, fmt.Errorf("selected: %w", err)
	}
	return p, nil
}

// PointUpdate names the fields SetPoint changes. Nil fields are kept.
type PointUpdate struct {
	Time     *float64
	Value    *float64
	Shape    *int
	Tension  *float64
	Selected *bool
}

func (u PointUpdate) kwargs(sort bool) map[string]any {
	kw := map[string]any{"noSort": !sort}
	if u.Time != nil {
		kw["time"] = *u.Time
	}
	if u.Value != nil {
		kw["value"] = *u.Value
	}
	if u.Shape != nil {
		kw["shape"] = *u.Shape
	}
	if u.Tension != nil {
		kw["tension"] = *u.Tension
	}
	if u.Selected != nil {
		kw["selected"] = *u.Selected
	}
	return kw
}

// EditOption adjusts a point edit.
type EditOption func(*editOptions)

type editOptions struct {
	sort bool
}

// NoSort leaves points unsorted after the edit. Batch edits should pass
// it and call SortPoints once at the end.
func NoSort() EditOption {
	return func(o *editOptions) { o.sort = false }
}

func newEditOptions(opts []EditOption) editOptions {
	o := editOptions{sort: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Envelope is an automation envelope on a track or take.
type Envelope struct{ entity }

// Name returns the envelope name, such as "Volume".
func (e Envelope) Name(ctx context.Context) (string, error) {
	return callString(ctx, e.c, OpGetEnvelopeName, e.h)
}

// NumPoints counts the envelope's own points.
func (e Envelope) NumPoints(ctx context.Context) (int, error) {
	return callInt(ctx, e.c, OpCountPoints, e.h)
}

// NumPointsEx counts the points of automation item autoItem; -1 counts
// the envelope's own points.
func (e Envelope) NumPointsEx(ctx context.Context, autoItem int) (int, error) {
	return callInt(ctx, e.c, OpCountPointsEx, e.h, autoItem)
}

// InsertPoint adds a point. Points are sorted afterwards unless NoSort
// is given.
func (e Envelope) InsertPoint(ctx context.Context, p Point, opts ...EditOption) error {
	o := newEditOptions(opts)
	_, err := e.c.Call(ctx, OpInsertPoint,
		[]any{e.h, p.Time, p.Value, p.Shape, p.Tension, p.Selected},
		map[string]any{"noSort": !o.sort})
	return err
}

// InsertPointEx adds a point to automation item autoItem.
func (e Envelope) InsertPointEx(ctx context.Context, autoItem int, p Point, opts ...EditOption) error {
	o := newEditOptions(opts)
	_, err := e.c.Call(ctx, OpInsertPointEx,
		[]any{e.h, autoItem, p.Time, p.Value, p.Shape, p.Tension, p.Selected},
		map[string]any{"noSort": !o.sort})
	return err
}

// Point returns the point at index.
func (e Envelope) Point(ctx context.Context, index int) (Point, error) {
	v, err := call(ctx, e.c, OpGetPoint, e.h, index)
	if err != nil {
		return Point{}, err
	}
	p, err := pointFromWire(v)
	if err != nil {
		return Point{}, fmt.Errorf("%s: %w", OpGetPoint, err)
	}
	return p, nil
}

// PointEx returns point index of automation item autoItem.
func (e Envelope) PointEx(ctx context.Context, autoItem, index int) (Point, error) {
	v, err := call(ctx, e.c, OpGetPointEx, e.h, autoItem, index)
	if err != nil {
		return Point{}, err
	}
	p, err := pointFromWire(v)
	if err != nil {
		return Point{}, fmt.Errorf("%s: %w", OpGetPointEx, err)
	}
	return p, nil
}

// SetPoint changes the fields of point index that u names.
func (e Envelope) SetPoint(ctx context.Context, index int, u PointUpdate, opts ...EditOption) error {
	o := newEditOptions(opts)
	_, err := e.c.Call(ctx, OpSetPoint, []any{e.h, index}, u.kwargs(o.sort))
	return err
}

// SetPointEx is SetPoint on automation item autoItem.
func (e Envelope) SetPointEx(ctx context.Context, autoItem, index int, u PointUpdate, opts ...EditOption) error {
	o := newEditOptions(opts)
	_, err := e.c.Call(ctx, OpSetPointEx, []any{e.h, autoItem, index}, u.kwargs(o.sort))
	return err
}

// DeletePointsInRange removes the points with start <= time < end.
func (e Envelope) DeletePointsInRange(ctx context.Context, start, end float64) error {
	_, err := call(ctx, e.c, OpDeletePointRange, e.h, start, end)
	return err
}

// SortPoints sorts the envelope's points by time.
func (e Envelope) SortPoints(ctx context.Context) error {
	_, err := call(ctx, e.c, OpSortPoints, e.h)
	return err
}

// SortPointsEx sorts the points of automation item autoItem.
func (e Envelope) SortPointsEx(ctx context.Context, autoItem int) error {
	_, err := call(ctx, e.c, OpSortPointsEx, e.h, autoItem)
	return err
}

// Value evaluates the envelope at time.
func (e Envelope) Value(ctx context.Context, time float64) (float64, error) {
	return callFloat(ctx, e.c, OpEvaluate, e.h, time)
}

// Derivatives returns the first, second and third derivatives at time.
func (e Envelope) Derivatives(ctx context.Context, time float64) (d1, d2, d3 float64, err error) {
	v, err := call(ctx, e.c, OpEvaluateDerivatives, e.h, time)
	if err != nil {
		return 0, 0, 0, err
	}
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return 0, 0, 0, fmt.Errorf("%s: want 3 derivatives, got %v", OpEvaluateDerivatives, v)
	}
	var ds [3]float64
	for i, x := range list {
		if ds[i], err = rpc.AsFloat(x); err != nil {
			return 0, 0, 0, fmt.Errorf("%s: %w", OpEvaluateDerivatives, err)
		}
	}
	return ds[0], ds[1], ds[2], nil
}

// FormatValue renders value as the host displays it on this envelope,
// such as "-6.02dB" or "51%R".
func (e Envelope) FormatValue(ctx context.Context, value float64) (string, error) {
	return callString(ctx, e.c, OpFormatValue, e.h, value)
}

// FormattedValue is Value rendered by FormatValue.
func (e Envelope) FormattedValue(ctx context.Context, time float64) (string, error) {
	v, err := e.Value(ctx, time)
	if err != nil {
		return "", err
	}
	return e.FormatValue(ctx, v)
}

// FormattedDerivatives is Derivatives rendered by FormatValue.
func (e Envelope) FormattedDerivatives(ctx context.Context, time float64) ([3]string, error) {
	var out [3]string
	d1, d2, d3, err := e.Derivatives(ctx, time)
	if err != nil {
		return out, err
	}
	for i, d := range []float64{d1, d2, d3} {
		if out[i], err = e.FormatValue(ctx, d); err != nil {
			return out, err
		}
	}
	return out, nil
}

// NumItems counts the automation items on the envelope.
func (e Envelope) NumItems(ctx context.Context) (int, error) {
	return callInt(ctx, e.c, OpCountAutoItems, e.h)
}

// Items lists the automation items.
func (e Envelope) Items(ctx context.Context) ([]AutomationItem, error) {
	n, err := e.NumItems(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]AutomationItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := e.AutomationItem(handle.Index(i))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// AutomationItem returns the automation item with id without a round
// trip. handle.Default names the envelope's own points.
func (e Envelope) AutomationItem(id handle.ID) (AutomationItem, error) {
	h, err := e.h.Child(handle.KindAutomationItem, id)
	if err != nil {
		return AutomationItem{}, err
	}
	return AutomationItem{entity{h: h, c: e.c}}, nil
}

// AddItem inserts an automation item. A negative pool creates a new pool.
func (e Envelope) AddItem(ctx context.Context, pool int, position, length float64) (AutomationItem, error) {
	index, err := callInt(ctx, e.c, OpInsertAutoItem, e.h, pool, position, length)
	if err != nil {
		return AutomationItem{}, err
	}
	return e.AutomationItem(handle.Index(index))
}

// AutomationItem is an automation item on an envelope.
type AutomationItem struct{ entity }

// Automation item parameters.
const (
	autoItemPosition = "D_POSITION"
	autoItemLength   = "D_LENGTH"
)

// Envelope returns the owning envelope.
func (a AutomationItem) Envelope() Envelope {
	parent, _ := a.h.Parent()
	return Envelope{entity{h: parent, c: a.c}}
}

func (a AutomationItem) index() int { return a.h.ID().Int() }

// owned attributes a stale error to the item. The host calls name the
// item by envelope and index, so the host can only blame the envelope.
func (a AutomationItem) owned(err error) error {
	var stale *rpc.StaleHandleError
	if errors.As(err, &stale) && !stale.Handle.Equal(a.h) {
		return &rpc.StaleHandleError{Handle: a.h, Message: stale.Message}
	}
	return err
}

func (a AutomationItem) info(ctx context.Context, param string, value float64, set bool) (float64, error) {
	v, err := callFloat(ctx, a.c, OpGetSetAutoItemInfo, a.Envelope().h, a.index(), param, value, set)
	return v, a.owned(err)
}

// Position returns the start time.
func (a AutomationItem) Position(ctx context.Context) (float64, error) {
	return a.info(ctx, autoItemPosition, 0, false)
}

// SetPosition moves the item.
func (a AutomationItem) SetPosition(ctx context.Context, pos float64) error {
	_, err := a.info(ctx, autoItemPosition, pos, true)
	return err
}

// Length returns the duration.
func (a AutomationItem) Length(ctx context.Context) (float64, error) {
	return a.info(ctx, autoItemLength, 0, false)
}

// SetLength resizes the item.
func (a AutomationItem) SetLength(ctx context.Context, length float64) error {
	_, err := a.info(ctx, autoItemLength, length, true)
	return err
}

// NumPoints counts the item's points.
func (a AutomationItem) NumPoints(ctx context.Context) (int, error) {
	n, err := a.Envelope().NumPointsEx(ctx, a.index())
	return n, a.owned(err)
}

// InsertPoint adds a point to the item.
func (a AutomationItem) InsertPoint(ctx context.Context, p Point, opts ...EditOption) error {
	return a.owned(a.Envelope().InsertPointEx(ctx, a.index(), p, opts...))
}
