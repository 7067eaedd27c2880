// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reaper is the typed surface over the bridge: projects, tracks,
// envelopes and their children as values holding a handle.
//
// Every method is a fresh round trip; nothing is cached. A method called
// on a handle whose entity is gone fails with *rpc.StaleHandleError.
//
//	b, err := reaper.Connect(config.Default())
//	project, err := reaper.CurrentProject(ctx, b)
//	track, err := project.AddTrack(ctx, 0, "Drums")
//	env, err := track.EnvelopeByName(ctx, "Volume")
//	err = env.InsertPoint(ctx, reaper.Point{Time: 1, Value: 0.5})
package reaper

import (
	"github.com/reabridge/rpc"
	"github.com/reabridge/rpc/config"
	"github.com/reabridge/rpc/handle"
)

// Host operation names. Most mirror the ReaScript function of the same
// name, with handles in place of raw pointers.
const (
	OpGetProject  = "GetProject"
	OpCountTracks = "CountTracks"
	OpGetTrack    = "GetTrack"
	OpInsertTrack = "InsertTrackAtIndex"
	OpDeleteTrack = "DeleteTrack"
	OpPlay        = "OnPlayButtonEx"
	OpStop        = "OnStopButtonEx"
	OpPause       = "OnPauseButtonEx"
	OpRecord      = "CSurf_OnRecord"
	OpPlayState   = "GetPlayStateEx"

	OpGetTrackName      = "GetTrackName"
	OpSetTrackName      = "SetTrackName"
	OpGetTrackInfo      = "GetMediaTrackInfo_Value"
	OpSetTrackInfo      = "SetMediaTrackInfo_Value"
	OpGetTrackColor     = "GetTrackColor"
	OpSetTrackColor     = "SetTrackColor"
	OpRecArmChange      = "CSurf_OnRecArmChange"
	OpCountEnvelopes    = "CountTrackEnvelopes"
	OpGetEnvelope       = "GetTrackEnvelope"
	OpGetEnvelopeByName = "GetTrackEnvelopeByName"
	OpCountItems        = "CountTrackMediaItems"
	OpGetItem           = "GetTrackMediaItem"
	OpAddItem           = "AddMediaItemToTrack"
	OpDeleteItem        = "DeleteTrackMediaItem"
	OpCountFX           = "TrackFX_GetCount"
	OpAddFX             = "TrackFX_AddByName"

	OpGetEnvelopeName     = "GetEnvelopeName"
	OpCountPoints         = "CountEnvelopePoints"
	OpCountPointsEx       = "CountEnvelopePointsEx"
	OpGetPoint            = "GetEnvelopePoint"
	OpGetPointEx          = "GetEnvelopePointEx"
	OpInsertPoint         = "InsertEnvelopePoint"
	OpInsertPointEx       = "InsertEnvelopePointEx"
	OpSetPoint            = "SetEnvelopePoint"
	OpSetPointEx          = "SetEnvelopePointEx"
	OpDeletePointRange    = "DeleteEnvelopePointRange"
	OpSortPoints          = "Envelope_SortPoints"
	OpSortPointsEx        = "Envelope_SortPointsEx"
	OpEvaluate            = "Envelope_Evaluate"
	OpEvaluateDerivatives = "Envelope_EvaluateDerivatives"
	OpFormatValue         = "Envelope_FormatValue"
	OpCountAutoItems      = "CountAutomationItems"
	OpInsertAutoItem      = "InsertAutomationItem"
	OpGetSetAutoItemInfo  = "GetSetAutomationItemInfo"
	OpGetItemInfo         = "GetMediaItemInfo_Value"
	OpSetItemInfo         = "SetMediaItemInfo_Value"
	OpGetActiveTake       = "GetActiveTake"
	OpAddTake             = "AddTakeToMediaItem"
	OpGetTakeName         = "GetTakeName"
	OpCountTakeEnvelopes  = "CountTakeEnvelopes"
	OpGetTakeEnvelope     = "GetTakeEnvelope"
	OpFXGetName           = "TrackFX_GetFXName"
	OpFXGetNumParams      = "TrackFX_GetNumParams"
	OpFXGetParam          = "TrackFX_GetParam"
	OpFXSetParam          = "TrackFX_SetParam"
	OpValidate            = handle.OpValidate
	OpResolve             = handle.OpResolve
)

// Local operation names, answered in-process by Local.
const (
	OpColorToNative   = "ColorToNative"
	OpColorFromNative = "ColorFromNative"
	OpDBToAmplitude   = "DBToAmplitude"
	OpAmplitudeToDB   = "AmplitudeToDB"
)

// Operations classifies every operation the facades use. Mutating host
// operations carry Mutates: a client-side timeout on one of them may
// still leave the change applied, and the bridge never repeats it.
var Operations = rpc.NewTable(
	rpc.Host(OpGetProject),
	rpc.Host(OpCountTracks),
	rpc.Host(OpGetTrack),
	rpc.HostMutation(OpInsertTrack),
	rpc.HostMutation(OpDeleteTrack),
	rpc.HostMutation(OpPlay),
	rpc.HostMutation(OpStop),
	rpc.HostMutation(OpPause),
	rpc.HostMutation(OpRecord),
	rpc.Host(OpPlayState),

	rpc.Host(OpGetTrackName),
	rpc.HostMutation(OpSetTrackName),
	rpc.Host(OpGetTrackInfo),
	rpc.HostMutation(OpSetTrackInfo),
	rpc.Host(OpGetTrackColor),
	rpc.HostMutation(OpSetTrackColor),
	rpc.HostMutation(OpRecArmChange),
	rpc.Host(OpCountEnvelopes),
	rpc.Host(OpGetEnvelope),
	rpc.Host(OpGetEnvelopeByName),
	rpc.Host(OpCountItems),
	rpc.Host(OpGetItem),
	rpc.HostMutation(OpAddItem),
	rpc.HostMutation(OpDeleteItem),
	rpc.Host(OpCountFX),
	rpc.HostMutation(OpAddFX),

	rpc.Host(OpGetEnvelopeName),
	rpc.Host(OpCountPoints),
	rpc.Host(OpCountPointsEx),
	rpc.Host(OpGetPoint),
	rpc.Host(OpGetPointEx),
	rpc.HostMutation(OpInsertPoint),
	rpc.HostMutation(OpInsertPointEx),
	rpc.HostMutation(OpSetPoint),
	rpc.HostMutation(OpSetPointEx),
	rpc.HostMutation(OpDeletePointRange),
	rpc.HostMutation(OpSortPoints),
	rpc.HostMutation(OpSortPointsEx),
	rpc.Host(OpEvaluate),
	rpc.Host(OpEvaluateDerivatives),
	rpc.Host(OpFormatValue),
	rpc.Host(OpCountAutoItems),
	rpc.HostMutation(OpInsertAutoItem),
	rpc.HostMutation(OpGetSetAutoItemInfo),
	rpc.Host(OpGetItemInfo),
	rpc.HostMutation(OpSetItemInfo),
	rpc.Host(OpGetActiveTake),
	rpc.HostMutation(OpAddTake),
	rpc.Host(OpGetTakeName),
	rpc.Host(OpCountTakeEnvelopes),
	rpc.Host(OpGetTakeEnvelope),
	rpc.Host(OpFXGetName),
	rpc.Host(OpFXGetNumParams),
	rpc.Host(OpFXGetParam),
	rpc.HostMutation(OpFXSetParam),
	rpc.Host(OpValidate),
	rpc.Host(OpResolve),

	rpc.LocalOp(OpColorToNative),
	rpc.LocalOp(OpColorFromNative),
	rpc.LocalOp(OpDBToAmplitude),
	rpc.LocalOp(OpAmplitudeToDB),
)

// HostOperations lists the operations a host must implement.
func HostOperations() []string {
	var names []string
	for _, op := range Operations.Operations() {
		if op.Context == rpc.HostInterpreter {
			names = append(names, op.Name)
		}
	}
	return names
}

// Connect builds a bridge wired with Operations and Local. Extra options
// are applied after those.
func Connect(cfg config.Config, opts ...rpc.BridgeOption) (*rpc.Bridge, error) {
	base := []rpc.BridgeOption{rpc.WithTable(Operations), rpc.WithLocal(Local)}
	return rpc.NewBridge(cfg, append(base, opts...)...)
}
