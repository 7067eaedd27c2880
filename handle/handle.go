// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrInvalidKind is returned for an empty kind or one containing a
// reserved separator.
var ErrInvalidKind = errors.New("handle: invalid kind")

// Kind tags the entity a handle names.
type Kind string

const (
	KindProject        Kind = "project"
	KindTrack          Kind = "track"
	KindItem           Kind = "item"
	KindTake           Kind = "take"
	KindEnvelope       Kind = "envelope"
	KindAutomationItem Kind = "automation_item"
	KindFX             Kind = "fx"
	KindSend           Kind = "send"
	KindWindow         Kind = "window"
)

func (k Kind) validate() error {
	if k == "" || strings.ContainsAny(string(k), "/=") {
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
	return nil
}

// Handle is an immutable (parent chain, identifier) reference to a
// host-side entity. It never owns or caches entity state.
//
// Handles hold a pointer to their parent, so == compares the chain by
// address. Use Equal, or Key as a map key.
type Handle struct {
	kind   Kind
	id     ID
	parent *Handle
	key    string
}

// Segment is one (kind, id) step of a handle's path.
type Segment struct {
	Kind Kind
	ID   ID
}

// Make builds a handle for id under parent. A nil parent anchors the
// handle at the root context.
func Make(parent *Handle, id ID, kind Kind) (Handle, error) {
	if err := kind.validate(); err != nil {
		return Handle{}, err
	}
	if err := id.Validate(); err != nil {
		return Handle{}, err
	}
	h := Handle{kind: kind, id: id}
	seg := segmentKey(kind, id)
	if parent != nil && !parent.IsZero() {
		p := *parent
		h.parent = &p
		h.key = p.key + "/" + seg
	} else {
		h.key = seg
	}
	return h, nil
}

// MustMake is like Make but panics on error. Intended for constants in
// tests and examples.
func MustMake(parent *Handle, id ID, kind Kind) Handle {
	h, err := Make(parent, id, kind)
	if err != nil {
		panic(err)
	}
	return h
}

// Child builds a handle one level below h.
func (h Handle) Child(kind Kind, id ID) (Handle, error) {
	return Make(&h, id, kind)
}

func segmentKey(kind Kind, id ID) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte('=')
	switch {
	case id.IsPointer():
		b.WriteByte('p')
		b.WriteString(strconv.Quote(id.ptr))
	case id.IsDefault():
		b.WriteByte('d')
	default:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(id.n, 10))
	}
	return b.String()
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.key == "" }

// Kind returns the entity kind.
func (h Handle) Kind() Kind { return h.kind }

// ID returns the leaf identifier.
func (h Handle) ID() ID { return h.id }

// Parent returns the parent handle, or false at the root.
func (h Handle) Parent() (Handle, bool) {
	if h.parent == nil {
		return Handle{}, false
	}
	return *h.parent, true
}

// Ancestor returns the nearest ancestor of the given kind.
func (h Handle) Ancestor(kind Kind) (Handle, bool) {
	for p := h.parent; p != nil; p = p.parent {
		if p.kind == kind {
			return *p, true
		}
	}
	return Handle{}, false
}

// Depth is the number of segments in the chain, 1 for a root handle.
func (h Handle) Depth() int {
	n := 0
	for p := &h; p != nil && !p.IsZero(); p = p.parent {
		n++
	}
	return n
}

// Path returns the chain from the root down to h.
func (h Handle) Path() []Segment {
	if h.IsZero() {
		return nil
	}
	path := make([]Segment, h.Depth())
	i := len(path) - 1
	for p := &h; p != nil; p = p.parent {
		path[i] = Segment{Kind: p.kind, ID: p.id}
		i--
	}
	return path
}

// FromPath rebuilds a handle from a root-to-leaf path.
func FromPath(path []Segment) (Handle, error) {
	if len(path) == 0 {
		return Handle{}, fmt.Errorf("%w: empty path", ErrInvalidID)
	}
	var (
		h   Handle
		err error
	)
	for i, seg := range path {
		var parent *Handle
		if i > 0 {
			parent = &h
		}
		if h, err = Make(parent, seg.ID, seg.Kind); err != nil {
			return Handle{}, fmt.Errorf("path segment %d: %w", i, err)
		}
	}
	return h, nil
}

// Key is a canonical encoding of the full chain. Two handles are Equal
// iff their keys are identical.
func (h Handle) Key() string { return h.key }

// Hash is consistent with Equal.
func (h Handle) Hash() uint64 {
	sum := blake3.Sum256([]byte(h.key))
	return binary.LittleEndian.Uint64(sum[:8])
}

// Equal compares kind, identifier and the whole parent chain.
func Equal(a, b Handle) bool {
	return a.key == b.key
}

// Equal reports whether h and other name the same entity path.
func (h Handle) Equal(other Handle) bool { return Equal(h, other) }

func (h Handle) String() string {
	if h.IsZero() {
		return "<nil handle>"
	}
	var b strings.Builder
	for i, seg := range h.Path() {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(string(seg.Kind))
		b.WriteByte(':')
		b.WriteString(seg.ID.String())
	}
	return b.String()
}
