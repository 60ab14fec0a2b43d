package facetrace

import (
	"reflect"
	"testing"
)

func TestFaceSet_AddHasCount(t *testing.T) {
	var s FaceSet
	if !s.Empty() {
		t.Fatalf("zero value must be empty")
	}
	s = s.Add(1).Add(4).Add(4).Add(6)
	if s.Count() != 3 {
		t.Fatalf("expected 3 faces, got %d", s.Count())
	}
	for _, f := range []Face{1, 4, 6} {
		if !s.Has(f) {
			t.Fatalf("expected face %d present", f)
		}
	}
	for _, f := range []Face{2, 3, 5} {
		if s.Has(f) {
			t.Fatalf("did not expect face %d", f)
		}
	}
}

func TestFaceSet_AddOutOfRangeIsDropped(t *testing.T) {
	s := NewFaceSet(0, 1, 7, -3, 6)
	if got := s.Faces(); !reflect.DeepEqual(got, []Face{1, 6}) {
		t.Fatalf("expected [1 6], got %v", got)
	}
}

func TestFaceSet_Union(t *testing.T) {
	a := NewFaceSet(1, 2)
	b := NewFaceSet(2, 5)
	u := a.Union(b)
	if got := u.Faces(); !reflect.DeepEqual(got, []Face{1, 2, 5}) {
		t.Fatalf("expected [1 2 5], got %v", got)
	}
}

func TestFaceSet_AllFaces(t *testing.T) {
	if AllFaces.Count() != 6 {
		t.Fatalf("AllFaces must hold six faces, got %d", AllFaces.Count())
	}
	if got := AllFaces.Faces(); !reflect.DeepEqual(got, []Face{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected face order: %v", got)
	}
}

func TestFaceSet_StringParseRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want FaceSet
	}{
		{"", 0},
		{"1", NewFaceSet(1)},
		{"1,2,3,4,5,6", AllFaces},
		{"6, 2", NewFaceSet(2, 6)},
		{"3,3,3", NewFaceSet(3)},
	}
	for _, tc := range cases {
		got, err := ParseFaceSet(tc.in)
		if err != nil {
			t.Fatalf("ParseFaceSet(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFaceSet(%q) = %v, want %v", tc.in, got, tc.want)
		}
		back, err := ParseFaceSet(got.String())
		if err != nil || back != got {
			t.Fatalf("round trip of %q failed: %v (%v)", tc.in, back, err)
		}
	}
}

func TestFaceSet_ParseRejectsJunk(t *testing.T) {
	for _, in := range []string{"0", "7", "x", "1,,2", "1;2", "-1"} {
		if _, err := ParseFaceSet(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
