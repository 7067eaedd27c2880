// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// TagHandle is the CBOR tag number wrapping an encoded handle path.
const TagHandle = 48000

// encMode uses Core Deterministic Encoding: sorted map keys, smallest
// integer encoding, and the shortest float width that preserves the
// value exactly, so float64 values round-trip bit for bit.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any. Maps with non-text
// keys fail to decode and surface as malformed messages.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose renders an encoded message in CBOR diagnostic notation, for
// logging protocol errors.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
