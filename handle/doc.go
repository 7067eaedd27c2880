// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handle is the identity model for host-side entities.
//
// A Handle is a weak reference: an immutable (parent chain, identifier)
// path that is reconstructed independently on each side of the bridge.
// The host may delete or reorder the entity at any time, so handles never
// cache state and liveness is always re-derived with Validate or Resolve.
//
// Identifiers are only unique within their parent's scope, so equality
// and hashing walk the whole chain:
//
//	project := handle.MustMake(nil, handle.Pointer("(ReaProject*)0x1"), handle.KindProject)
//	track, _ := project.Child(handle.KindTrack, handle.Pointer("(MediaTrack*)0x2"))
//	env, _ := track.Child(handle.KindEnvelope, handle.Index(0))
//	underlying, _ := env.Child(handle.KindAutomationItem, handle.Default)
package handle
