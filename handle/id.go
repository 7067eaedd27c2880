// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handle

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidID is returned when an identifier cannot name an entity.
var ErrInvalidID = errors.New("handle: invalid identifier")

type idForm uint8

const (
	formIndex idForm = iota
	formPointer
	formDefault
)

// ID is a host-assigned identifier, unique only within its parent's scope.
// It is either a non-negative index, an opaque pointer token, or Default.
type ID struct {
	form idForm
	n    int64
	ptr  string
}

// DefaultIndex is the wire value of Default.
const DefaultIndex = -1

// Default names the parent's underlying entity rather than one of its
// children (e.g. the envelope itself instead of one of its automation items).
var Default = ID{form: formDefault, n: DefaultIndex}

// Index returns an index identifier. Negative values produce an ID that
// Make rejects; use Default for the sentinel.
func Index(n int) ID {
	return ID{form: formIndex, n: int64(n)}
}

// Pointer returns an opaque pointer-token identifier such as
// "(MediaTrack*)0x00000000110A1AD0".
func Pointer(token string) ID {
	return ID{form: formPointer, ptr: token}
}

// IsIndex reports whether id is a plain index.
func (id ID) IsIndex() bool { return id.form == formIndex }

// IsPointer reports whether id is a pointer token.
func (id ID) IsPointer() bool { return id.form == formPointer }

// IsDefault reports whether id is the Default sentinel.
func (id ID) IsDefault() bool { return id.form == formDefault }

// Int returns the index value. Default reports DefaultIndex; pointers report 0.
func (id ID) Int() int {
	return int(id.n)
}

// Token returns the pointer token, or "" for index identifiers.
func (id ID) Token() string {
	return id.ptr
}

// Validate reports whether id can name an entity.
func (id ID) Validate() error {
	switch id.form {
	case formIndex:
		if id.n < 0 {
			return fmt.Errorf("%w: negative index %d", ErrInvalidID, id.n)
		}
	case formPointer:
		if id.ptr == "" {
			return fmt.Errorf("%w: empty pointer token", ErrInvalidID)
		}
	case formDefault:
	default:
		return fmt.Errorf("%w: unknown form %d", ErrInvalidID, id.form)
	}
	return nil
}

// Wire returns the identifier as it travels in an encoded handle path:
// int64 for indexes and Default, string for pointers.
func (id ID) Wire() any {
	if id.form == formPointer {
		return id.ptr
	}
	return id.n
}

// IDFromWire is the inverse of ID.Wire.
func IDFromWire(v any) (ID, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return ID{}, fmt.Errorf("%w: empty pointer token", ErrInvalidID)
		}
		return Pointer(val), nil
	case int64:
		return idFromInt(val)
	case int:
		return idFromInt(int64(val))
	case uint64:
		if val > 1<<62 {
			return ID{}, fmt.Errorf("%w: index %d out of range", ErrInvalidID, val)
		}
		return idFromInt(int64(val))
	default:
		return ID{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}
}

func idFromInt(n int64) (ID, error) {
	switch {
	case n == DefaultIndex:
		return Default, nil
	case n < 0:
		return ID{}, fmt.Errorf("%w: negative index %d", ErrInvalidID, n)
	default:
		return ID{form: formIndex, n: n}, nil
	}
}

func (id ID) String() string {
	switch id.form {
	case formPointer:
		return id.ptr
	case formDefault:
		return "default"
	default:
		return "#" + strconv.FormatInt(id.n, 10)
	}
}
