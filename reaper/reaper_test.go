// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reaper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"strconv"
	"testing"

	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/config"
	"github.com/reabridge/rpc/handle"
	"github.com/reabridge/rpc/host"
	"github.com/reabridge/rpc/internal/hostsim"
	"github.com/reabridge/rpc/reaper"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// connect serves a fresh simulated host over tcp and returns a bridge
// wired with the facade table.
func connect(t *testing.T) (*rpc.Bridge, *hostsim.Sim) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim := hostsim.New()
	srv := host.NewServer(sim, host.WithLogger(quiet))
	t.Cleanup(func() { srv.Close() })

	listener, err := rpc.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	if err := srv.Register(listener); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go listener.Serve(ctx)

	addr, portStr, _ := net.SplitHostPort(listener.Addr())
	cfg := config.Default()
	cfg.Address = addr
	cfg.Port, _ = strconv.Atoi(portStr)

	b, err := reaper.Connect(cfg, rpc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, sim
}

func newProject(t *testing.T) (reaper.Project, *hostsim.Sim) {
	t.Helper()
	b, sim := connect(t)
	p, err := reaper.CurrentProject(context.Background(), b)
	if err != nil {
		t.Fatalf("CurrentProject: %v", err)
	}
	return p, sim
}

func TestInsertEnvelopePoint(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)

	track, err := p.AddTrack(ctx, 0, "Drums")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	env, err := track.EnvelopeByName(ctx, "Volume")
	if err != nil {
		t.Fatalf("EnvelopeByName: %v", err)
	}
	before, err := env.NumPoints(ctx)
	if err != nil {
		t.Fatalf("NumPoints: %v", err)
	}

	if err := env.InsertPoint(ctx, reaper.Point{Time: 1, Value: 0.5}); err != nil {
		t.Fatalf("InsertPoint: %v", err)
	}

	after, err := env.NumPoints(ctx)
	if err != nil {
		t.Fatalf("NumPoints: %v", err)
	}
	if after != before+1 {
		t.Errorf("NumPoints = %d, want %d", after, before+1)
	}
	pt, err := env.Point(ctx, 0)
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	if pt.Time != 1 || pt.Value != 0.5 {
		t.Errorf("Point(0) = %+v", pt)
	}
}

func TestDeletedTrackIsStale(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)

	track, err := p.AddTrack(ctx, 0, "Vocals")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if ok, err := track.HasValidID(ctx); !ok || err != nil {
		t.Fatalf("HasValidID before delete = %v, %v", ok, err)
	}
	if err := track.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = track.Name(ctx)
	var stale *rpc.StaleHandleError
	if !errors.As(err, &stale) || !stale.Handle.Equal(track.Handle()) {
		t.Errorf("Name after delete: got %v, want stale error for %s", err, track)
	}
	if _, err := track.Resolve(ctx); !errors.Is(err, handle.ErrStale) {
		t.Errorf("Resolve after delete: got %v", err)
	}
	if ok, err := track.HasValidID(ctx); ok || err != nil {
		t.Errorf("HasValidID after delete = %v, %v; want false, nil", ok, err)
	}
}

func TestTrackIdentitySurvivesReordering(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)

	bass, err := p.AddTrack(ctx, 0, "Bass")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if _, err := p.AddTrack(ctx, 0, "Kick"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	second, err := p.Track(ctx, 1)
	if err != nil {
		t.Fatalf("Track(1): %v", err)
	}
	if !second.Equal(bass) {
		t.Errorf("Track(1) = %s, want %s", second, bass)
	}
	if second.Handle().Hash() != bass.Handle().Hash() {
		t.Error("equal handles hash differently")
	}
	number, err := bass.InfoValue(ctx, reaper.ParamTrackNumber)
	if err != nil || number != 2 {
		t.Errorf("track number = %v, %v; want 2", number, err)
	}

	tracks, err := p.Tracks(ctx)
	if err != nil || len(tracks) != 2 {
		t.Fatalf("Tracks = %v, %v", tracks, err)
	}
	name, err := tracks[0].Name(ctx)
	if err != nil || name != "Kick" {
		t.Errorf("first track name = %q, %v", name, err)
	}

	var reported *rpc.HostReportedError
	if _, err := p.Track(ctx, 5); !errors.As(err, &reported) || reported.Code != hostsim.CodeRange {
		t.Errorf("Track(5): got %v, want range error", err)
	}
}

func TestTrackProperties(t *testing.T) {
	ctx := context.Background()
	p, sim := newProject(t)
	track, err := p.AddTrack(ctx, 0, "")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	if err := track.SetName(ctx, "Guitar"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if names := sim.TrackNames(); len(names) != 1 || names[0] != "Guitar" {
		t.Errorf("host sees %v", names)
	}

	if err := track.SetVolume(ctx, 0.5); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if v, err := track.Volume(ctx); err != nil || v != 0.5 {
		t.Errorf("Volume = %v, %v", v, err)
	}
	if err := track.SetPan(ctx, -0.25); err != nil {
		t.Fatalf("SetPan: %v", err)
	}
	if v, err := track.Pan(ctx); err != nil || v != -0.25 {
		t.Errorf("Pan = %v, %v", v, err)
	}

	if err := track.Mute(ctx); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if muted, err := track.IsMuted(ctx); err != nil || !muted {
		t.Errorf("IsMuted = %v, %v", muted, err)
	}
	if err := track.Unmute(ctx); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if muted, _ := track.IsMuted(ctx); muted {
		t.Error("still muted")
	}
	if err := track.Solo(ctx); err != nil {
		t.Fatalf("Solo: %v", err)
	}
	if solo, err := track.IsSolo(ctx); err != nil || !solo {
		t.Errorf("IsSolo = %v, %v", solo, err)
	}

	if err := track.SetColor(ctx, 255, 128, 0); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	r, g, b, err := track.Color(ctx)
	if err != nil || r != 255 || g != 128 || b != 0 {
		t.Errorf("Color = %d,%d,%d, %v", r, g, b, err)
	}

	if err := track.SetInfoValue(ctx, "NOT_A_PARAM", 1); err == nil {
		t.Error("unknown parameter accepted")
	}
	entity, err := track.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entity["name"] != "Guitar" || entity["volume"] != 0.5 {
		t.Errorf("Resolve = %v", entity)
	}
}

func TestRecordOnArmedTrack(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)

	track, err := p.AddTrack(ctx, 0, "Mic")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := track.RecArmChange(ctx, true); err != nil {
		t.Fatalf("RecArmChange: %v", err)
	}
	if err := track.SetInfoValue(ctx, reaper.ParamRecInput, 1); err != nil {
		t.Fatalf("SetInfoValue: %v", err)
	}
	if armed, err := track.InfoValue(ctx, reaper.ParamRecArm); err != nil || armed != 1 {
		t.Errorf("I_RECARM = %v, %v", armed, err)
	}

	if err := p.Record(ctx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	state, err := p.PlayState(ctx)
	if err != nil || !state.IsRecording() || !state.IsPlaying() {
		t.Errorf("PlayState after Record = %v, %v", state, err)
	}
	if err := p.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if playing, _ := p.IsPlaying(ctx); playing {
		t.Error("playing while paused")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if state, _ := p.PlayState(ctx); state.String() != "stopped" {
		t.Errorf("PlayState after Stop = %s", state)
	}
	if err := p.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if playing, _ := p.IsPlaying(ctx); !playing {
		t.Error("not playing after Play")
	}
}

func TestEnvelopeEditing(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Pad")
	env, err := track.Envelope(ctx, 1)
	if err != nil {
		t.Fatalf("Envelope(1): %v", err)
	}
	if name, err := env.Name(ctx); err != nil || name != "Pan" {
		t.Errorf("Name = %q, %v", name, err)
	}

	// Batch inserts without sorting, then sort once.
	for _, at := range []float64{3, 1, 2} {
		if err := env.InsertPoint(ctx, reaper.Point{Time: at, Value: at / 10}, reaper.NoSort()); err != nil {
			t.Fatalf("InsertPoint: %v", err)
		}
	}
	if first, _ := env.Point(ctx, 0); first.Time != 3 {
		t.Errorf("unsorted first point at %v, want 3", first.Time)
	}
	if err := env.SortPoints(ctx); err != nil {
		t.Fatalf("SortPoints: %v", err)
	}
	if first, _ := env.Point(ctx, 0); first.Time != 1 {
		t.Errorf("sorted first point at %v, want 1", first.Time)
	}

	v, err := env.Value(ctx, 1.5)
	if err != nil || math.Abs(v-0.15) > 1e-12 {
		t.Errorf("Value(1.5) = %v, %v", v, err)
	}

	selected := true
	value := 0.9
	if err := env.SetPoint(ctx, 2, reaper.PointUpdate{Value: &value, Selected: &selected}); err != nil {
		t.Fatalf("SetPoint: %v", err)
	}
	pt, err := env.Point(ctx, 2)
	if err != nil || pt.Value != 0.9 || !pt.Selected || pt.Time != 3 {
		t.Errorf("Point(2) = %+v, %v", pt, err)
	}

	if err := env.DeletePointsInRange(ctx, 0, 2.5); err != nil {
		t.Fatalf("DeletePointsInRange: %v", err)
	}
	if n, _ := env.NumPoints(ctx); n != 1 {
		t.Errorf("NumPoints after delete = %d, want 1", n)
	}

	if _, err := track.EnvelopeByName(ctx, "Width"); !errors.Is(err, reaper.ErrNotFound) {
		t.Errorf("EnvelopeByName(Width): got %v", err)
	}
}

func TestAutomationItems(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Synth")
	env, err := track.EnvelopeByName(ctx, "Volume")
	if err != nil {
		t.Fatalf("EnvelopeByName: %v", err)
	}

	item, err := env.AddItem(ctx, -1, 2, 4)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if pos, err := item.Position(ctx); err != nil || pos != 2 {
		t.Errorf("Position = %v, %v", pos, err)
	}
	if err := item.SetLength(ctx, 8); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if length, err := item.Length(ctx); err != nil || length != 8 {
		t.Errorf("Length = %v, %v", length, err)
	}
	if err := item.SetPosition(ctx, 3); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}

	if err := item.InsertPoint(ctx, reaper.Point{Time: 3.5, Value: 0.2}); err != nil {
		t.Fatalf("InsertPoint: %v", err)
	}
	if n, err := item.NumPoints(ctx); err != nil || n != 1 {
		t.Errorf("item NumPoints = %d, %v", n, err)
	}
	if n, _ := env.NumPoints(ctx); n != 0 {
		t.Errorf("envelope NumPoints = %d, want 0", n)
	}

	// The default id addresses the envelope's own points.
	whole, err := env.AutomationItem(handle.Default)
	if err != nil {
		t.Fatalf("AutomationItem(Default): %v", err)
	}
	if err := whole.InsertPoint(ctx, reaper.Point{Time: 0, Value: 1}); err != nil {
		t.Fatalf("InsertPoint via default: %v", err)
	}
	if n, _ := env.NumPoints(ctx); n != 1 {
		t.Errorf("envelope NumPoints = %d, want 1", n)
	}
	if n, _ := env.NumPointsEx(ctx, handle.DefaultIndex); n != 1 {
		t.Errorf("NumPointsEx(-1) = %d, want 1", n)
	}

	items, err := env.Items(ctx)
	if err != nil || len(items) != 1 || !items[0].Handle().Equal(item.Handle()) {
		t.Errorf("Items = %v, %v", items, err)
	}
	if pt, err := env.PointEx(ctx, 0, 0); err != nil || pt.Time != 3.5 {
		t.Errorf("PointEx = %+v, %v", pt, err)
	}
}

func TestEnvelopeDerivativesAndFormatting(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Lead")
	vol, _ := track.EnvelopeByName(ctx, "Volume")
	pan, _ := track.EnvelopeByName(ctx, "Pan")

	for _, pt := range []reaper.Point{{Time: 0, Value: 1}, {Time: 2, Value: 0}} {
		if err := vol.InsertPoint(ctx, pt); err != nil {
			t.Fatalf("InsertPoint: %v", err)
		}
	}
	d1, d2, d3, err := vol.Derivatives(ctx, 1)
	if err != nil {
		t.Fatalf("Derivatives: %v", err)
	}
	if d1 != -0.5 || d2 != 0 || d3 != 0 {
		t.Errorf("Derivatives(1) = %v, %v, %v; want -0.5, 0, 0", d1, d2, d3)
	}

	if s, err := vol.FormattedValue(ctx, 0); err != nil || s != "+0.00dB" {
		t.Errorf("FormattedValue(0) = %q, %v", s, err)
	}
	if s, err := vol.FormatValue(ctx, 0); err != nil || s != "-inf dB" {
		t.Errorf("FormatValue(0) = %q, %v", s, err)
	}
	if s, err := pan.FormatValue(ctx, -0.5145); err != nil || s != "51%R" {
		t.Errorf("pan FormatValue = %q, %v", s, err)
	}
	got, err := pan.FormattedDerivatives(ctx, 3)
	if err != nil || got != [3]string{"center", "center", "center"} {
		t.Errorf("pan FormattedDerivatives = %v, %v", got, err)
	}
}

func TestMissingAutomationItemIsStale(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Pad")
	env, err := track.EnvelopeByName(ctx, "Volume")
	if err != nil {
		t.Fatalf("EnvelopeByName: %v", err)
	}
	missing, err := env.AutomationItem(handle.Index(3))
	if err != nil {
		t.Fatalf("AutomationItem: %v", err)
	}

	if ok, err := missing.HasValidID(ctx); err != nil || ok {
		t.Fatalf("HasValidID = %v, %v; want false", ok, err)
	}
	calls := map[string]func() error{
		"Position":  func() error { _, err := missing.Position(ctx); return err },
		"SetLength": func() error { return missing.SetLength(ctx, 2) },
		"NumPoints": func() error { _, err := missing.NumPoints(ctx); return err },
		"InsertPoint": func() error {
			return missing.InsertPoint(ctx, reaper.Point{Time: 1, Value: 0.5})
		},
	}
	for name, call := range calls {
		err := call()
		var stale *rpc.StaleHandleError
		if !errors.As(err, &stale) {
			t.Errorf("%s: got %v, want stale handle error", name, err)
			continue
		}
		if !stale.Handle.Equal(missing.Handle()) {
			t.Errorf("%s: stale error names %s, want %s", name, stale.Handle, missing.Handle())
		}
	}

	// Once the item exists the same handle works.
	if _, err := env.AddItem(ctx, -1, 0, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	first, _ := env.AutomationItem(handle.Index(0))
	if ok, err := first.HasValidID(ctx); err != nil || !ok {
		t.Errorf("HasValidID(item 0) = %v, %v", ok, err)
	}
}

func TestMediaItems(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Loops")

	item, err := track.AddItem(ctx)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := item.ActiveTake(ctx); !errors.Is(err, reaper.ErrNotFound) {
		t.Errorf("ActiveTake on empty item: got %v", err)
	}
	take, err := item.AddTake(ctx)
	if err != nil {
		t.Fatalf("AddTake: %v", err)
	}
	active, err := item.ActiveTake(ctx)
	if err != nil || !active.Handle().Equal(take.Handle()) {
		t.Errorf("ActiveTake = %v, %v", active, err)
	}
	if n, err := take.NumEnvelopes(ctx); err != nil || n != 1 {
		t.Errorf("take NumEnvelopes = %d, %v", n, err)
	}
	if _, err := take.Envelope(ctx, 0); err != nil {
		t.Errorf("take Envelope(0): %v", err)
	}

	if err := item.SetPosition(ctx, 4); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if pos, err := item.Position(ctx); err != nil || pos != 4 {
		t.Errorf("Position = %v, %v", pos, err)
	}

	items, err := track.Items(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("Items = %v, %v", items, err)
	}
	if err := items[0].Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := track.NumItems(ctx); n != 0 {
		t.Errorf("NumItems after delete = %d", n)
	}
	if _, err := take.Name(ctx); !errors.Is(err, handle.ErrStale) {
		t.Errorf("take of deleted item: got %v, want stale", err)
	}
}

func TestFX(t *testing.T) {
	ctx := context.Background()
	p, _ := newProject(t)
	track, _ := p.AddTrack(ctx, 0, "Bus")

	eq, err := track.AddFX(ctx, "ReaEQ")
	if err != nil {
		t.Fatalf("AddFX: %v", err)
	}
	if n, err := track.NumFX(ctx); err != nil || n != 1 {
		t.Errorf("NumFX = %d, %v", n, err)
	}
	if name, err := eq.Name(ctx); err != nil || name != "ReaEQ" {
		t.Errorf("Name = %q, %v", name, err)
	}
	if err := eq.SetParam(ctx, 0, 0.3); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	if v, err := eq.Param(ctx, 0); err != nil || v != 0.3 {
		t.Errorf("Param(0) = %v, %v", v, err)
	}
	if n, err := eq.NumParams(ctx); err != nil {
		t.Errorf("NumParams: %v", err)
	} else if err := eq.SetParam(ctx, n, 1); err == nil {
		t.Error("out-of-range parameter accepted")
	}

	ghost, err := track.FX(3)
	if err != nil {
		t.Fatalf("FX(3): %v", err)
	}
	if ok, err := ghost.HasValidID(ctx); ok || err != nil {
		t.Errorf("HasValidID of absent fx = %v, %v", ok, err)
	}
}

func TestLocalOperationsNeedNoHost(t *testing.T) {
	cfg := config.Default()
	cfg.Address = "127.0.0.1"
	cfg.Port = 1
	cfg.ConnectRetries = 1
	b, err := reaper.Connect(cfg, rpc.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	native, err := reaper.ColorToNative(ctx, b, 0x12, 0x34, 0x56)
	if err != nil || native != 0x563412 {
		t.Errorf("ColorToNative = %#x, %v", native, err)
	}
	r, g, bl, err := reaper.ColorFromNative(ctx, b, native)
	if err != nil || r != 0x12 || g != 0x34 || bl != 0x56 {
		t.Errorf("ColorFromNative = %d,%d,%d, %v", r, g, bl, err)
	}
	if _, err := reaper.ColorToNative(ctx, b, 256, 0, 0); err == nil {
		t.Error("component 256 accepted")
	}

	amp, err := reaper.DBToAmplitude(ctx, b, -6)
	if err != nil || math.Abs(amp-0.501187) > 1e-6 {
		t.Errorf("DBToAmplitude(-6) = %v, %v", amp, err)
	}
	db, err := reaper.AmplitudeToDB(ctx, b, 1)
	if err != nil || db != 0 {
		t.Errorf("AmplitudeToDB(1) = %v, %v", db, err)
	}
	if db, _ := reaper.AmplitudeToDB(ctx, b, 0); !math.IsInf(db, -1) {
		t.Errorf("AmplitudeToDB(0) = %v, want -Inf", db)
	}

	if b.State() != rpc.Disconnected {
		t.Errorf("state = %s, local operations must not connect", b.State())
	}
}

func TestOperationsTable(t *testing.T) {
	for _, op := range []string{reaper.OpColorToNative, reaper.OpColorFromNative, reaper.OpDBToAmplitude, reaper.OpAmplitudeToDB} {
		if reaper.Operations.Classify(op) != rpc.Local {
			t.Errorf("%s should be local", op)
		}
	}
	for _, op := range []string{reaper.OpInsertPoint, reaper.OpDeleteTrack, reaper.OpAddFX} {
		marker, ok := reaper.Operations.Lookup(op)
		if !ok || marker.Context != rpc.HostInterpreter || !marker.Mutates {
			t.Errorf("%s = %+v, want host mutation", op, marker)
		}
	}
	if marker, _ := reaper.Operations.Lookup(reaper.OpCountTracks); marker.Mutates {
		t.Error("CountTracks marked as mutation")
	}
	if reaper.Operations.Classify("SomethingNew") != rpc.HostInterpreter {
		t.Error("unknown operation should default to the host")
	}
}
