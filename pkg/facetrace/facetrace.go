// Package facetrace traces boundary-face membership across resolutions of
// the H3 hierarchical grid.
//
// Every cell has up to six boundary faces, numbered 1..6 by the grid's
// child-position convention rather than geographic direction. Static
// parity-indexed tables describe how a child's faces correspond to its
// parent's faces and back again; tracing and descent are pure table walks,
// no coordinate geometry is evaluated.
package facetrace

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MaxResolution is the finest H3 resolution.
const MaxResolution = 15

// ErrResolution reports a resolution argument outside the range valid for
// the requested operation.
var ErrResolution = errors.New("facetrace: invalid resolution")

// Face identifies one boundary edge of a cell, 1..6.
type Face int

// Valid reports whether f is in 1..6.
func (f Face) Valid() bool { return f >= 1 && f <= 6 }

// FaceSet is a set of faces packed into a bitmask. The zero value is the
// empty set.
type FaceSet uint8

// AllFaces holds every face 1..6.
const AllFaces FaceSet = 0x7e

// NewFaceSet builds a set from the given faces, ignoring values outside 1..6.
func NewFaceSet(faces ...Face) FaceSet {
	var s FaceSet
	for _, f := range faces {
		s = s.Add(f)
	}
	return s
}

// Add returns s with f included. Faces outside 1..6 are dropped.
func (s FaceSet) Add(f Face) FaceSet {
	if !f.Valid() {
		return s
	}
	return s | 1<<f
}

// Has reports whether f is in the set.
func (s FaceSet) Has(f Face) bool { return f.Valid() && s&(1<<f) != 0 }

// Union returns the union of both sets.
func (s FaceSet) Union(o FaceSet) FaceSet { return s | o }

// Empty reports whether no face is set.
func (s FaceSet) Empty() bool { return s == 0 }

// Count returns the number of faces in the set.
func (s FaceSet) Count() int { return bits.OnesCount8(uint8(s)) }

// Faces returns the members in ascending order.
func (s FaceSet) Faces() []Face {
	out := make([]Face, 0, s.Count())
	for f := Face(1); f <= 6; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// String renders the set as comma-separated face numbers, e.g. "1,4,5".
// The empty set renders as "".
func (s FaceSet) String() string {
	b := make([]byte, 0, 11)
	for f := Face(1); f <= 6; f++ {
		if !s.Has(f) {
			continue
		}
		if len(b) > 0 {
			b = append(b, ',')
		}
		b = append(b, '0'+byte(f))
	}
	return string(b)
}

// ParseFaceSet parses comma-separated face numbers as produced by String.
// An empty string parses to the empty set.
func ParseFaceSet(s string) (FaceSet, error) {
	var out FaceSet
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, fmt.Errorf("parse face %q: %w", part, err)
		}
		f := Face(n)
		if !f.Valid() {
			return 0, fmt.Errorf("face %d out of range 1..6", n)
		}
		out = out.Add(f)
	}
	return out, nil
}
