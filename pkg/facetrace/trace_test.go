package facetrace

import (
	"errors"
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

func cellAt(t *testing.T, lat, lng float64, res int) h3.Cell {
	t.Helper()
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, res)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	return c
}

// Base cell 4, the first of the twelve res-0 pentagons.
func pentagonRes0(t *testing.T) h3.Cell {
	t.Helper()
	var c h3.Cell
	if err := c.UnmarshalText([]byte("8009fffffffffff")); err != nil {
		t.Fatalf("parse pentagon index: %v", err)
	}
	if !c.IsPentagon() {
		t.Fatalf("fixture cell is not a pentagon")
	}
	return c
}

func TestToAncestor_FacesStayInRange(t *testing.T) {
	cells := []h3.Cell{
		cellAt(t, 59.3293, 18.0686, 9),  // Stockholm
		cellAt(t, 55.6050, 13.0038, 7),  // Malmo
		cellAt(t, 57.7089, 11.9746, 12), // Gothenburg
	}
	for _, c := range cells {
		for p := 0; p < c.Resolution(); p++ {
			got, err := ToAncestor(c, AllFaces, p)
			if err != nil {
				t.Fatalf("ToAncestor(%s, %d): %v", c, p, err)
			}
			for _, f := range got.Faces() {
				if !f.Valid() {
					t.Fatalf("face %d out of range for %s at %d", f, c, p)
				}
			}
		}
	}
}

func TestToParent_EqualsOneLevelAncestor(t *testing.T) {
	c := cellAt(t, 59.3293, 18.0686, 8)
	subsets := []FaceSet{NewFaceSet(1), NewFaceSet(2, 5), NewFaceSet(3, 4, 6), AllFaces}
	for _, fs := range subsets {
		viaParent, err := ToParent(c, fs)
		if err != nil {
			t.Fatalf("ToParent: %v", err)
		}
		viaAncestor, err := ToAncestor(c, fs, c.Resolution()-1)
		if err != nil {
			t.Fatalf("ToAncestor: %v", err)
		}
		if viaParent != viaAncestor {
			t.Fatalf("faces %v: parent trace %v != one-level ancestor trace %v",
				fs.Faces(), viaParent.Faces(), viaAncestor.Faces())
		}
	}
}

func TestToAncestor_ComposesAcrossLevels(t *testing.T) {
	// Tracing level by level must agree with tracing in one call.
	c := cellAt(t, 55.6050, 13.0038, 9)
	stepwise := AllFaces
	cur := c
	for res := c.Resolution(); res > 4 && !stepwise.Empty(); res-- {
		up, err := ToParent(cur, stepwise)
		if err != nil {
			t.Fatalf("ToParent at res %d: %v", res, err)
		}
		parent, err := cur.Parent(res - 1)
		if err != nil {
			t.Fatalf("Parent: %v", err)
		}
		cur, stepwise = parent, up
	}
	direct, err := ToAncestor(c, AllFaces, 4)
	if err != nil {
		t.Fatalf("ToAncestor: %v", err)
	}
	if direct != stepwise {
		t.Fatalf("direct trace %v != stepwise trace %v", direct.Faces(), stepwise.Faces())
	}
}

func TestToAncestor_EmptyFaces(t *testing.T) {
	c := cellAt(t, 57.7089, 11.9746, 6)
	got, err := ToAncestor(c, 0, 2)
	if err != nil {
		t.Fatalf("ToAncestor: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("expected empty result, got %v", got.Faces())
	}
}

func TestToAncestor_ResolutionErrors(t *testing.T) {
	c := cellAt(t, 59.3293, 18.0686, 6)
	for _, p := range []int{6, 7, 15, -1} {
		if _, err := ToAncestor(c, AllFaces, p); !errors.Is(err, ErrResolution) {
			t.Fatalf("ancestor res %d: expected ErrResolution, got %v", p, err)
		}
	}
	base := cellAt(t, 59.3293, 18.0686, 0)
	if _, err := ToParent(base, AllFaces); !errors.Is(err, ErrResolution) {
		t.Fatalf("ToParent at res 0: expected ErrResolution, got %v", err)
	}
}

func TestToParent_PentagonChildren(t *testing.T) {
	pent := pentagonRes0(t)
	children, err := pent.Children(1)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 6 {
		t.Fatalf("expected 6 pentagon children, got %d", len(children))
	}

	// Odd-parity pentagon table, whole-set traces per child digit.
	want := map[int]FaceSet{
		2: NewFaceSet(1, 2),
		3: NewFaceSet(3, 4),
		4: NewFaceSet(2, 4),
		5: NewFaceSet(3, 5),
		6: 0,
	}
	for _, child := range children {
		got, err := ToParent(child, AllFaces)
		if err != nil {
			t.Fatalf("ToParent(%s): %v", child, err)
		}
		if child.IsPentagon() {
			// The center child is itself a pentagon and aborts the trace.
			if !got.Empty() {
				t.Fatalf("pentagon center child traced to %v", got.Faces())
			}
			continue
		}
		d := childDigit(uint64(child), 1)
		if got != want[d] {
			t.Fatalf("digit %d: traced %v, want %v", d, got.Faces(), want[d].Faces())
		}
	}
}

func TestCoarsestAncestor_AtResZero(t *testing.T) {
	base := cellAt(t, 59.3293, 18.0686, 0)
	got, err := CoarsestAncestor(base, AllFaces)
	if err != nil {
		t.Fatalf("CoarsestAncestor: %v", err)
	}
	if got != base {
		t.Fatalf("expected the base cell back, got %s", got)
	}
}

func TestCoarsestAncestor_PentagonStopsImmediately(t *testing.T) {
	pent := pentagonRes0(t)
	children, err := pent.Children(1)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	for _, child := range children {
		if !child.IsPentagon() {
			continue
		}
		got, err := CoarsestAncestor(child, AllFaces)
		if err != nil {
			t.Fatalf("CoarsestAncestor: %v", err)
		}
		if got != child {
			t.Fatalf("expected the pentagon itself, got %s", got)
		}
	}
}

func TestCoarsestAncestor_StopCondition(t *testing.T) {
	c := cellAt(t, 57.7089, 11.9746, 9)
	anc, err := CoarsestAncestor(c, AllFaces)
	if err != nil {
		t.Fatalf("CoarsestAncestor: %v", err)
	}
	ancRes := anc.Resolution()
	if ancRes > c.Resolution() {
		t.Fatalf("ancestor resolution %d above cell resolution", ancRes)
	}
	if ancRes < c.Resolution() {
		parent, err := c.Parent(ancRes)
		if err != nil {
			t.Fatalf("Parent: %v", err)
		}
		if parent != anc {
			t.Fatalf("%s is not an ancestor of %s", anc, c)
		}
		onAnc, err := ToAncestor(c, AllFaces, ancRes)
		if err != nil {
			t.Fatalf("ToAncestor: %v", err)
		}
		if onAnc.Empty() {
			t.Fatalf("cell does not touch any face of the reported ancestor")
		}
	}
	if ancRes > 0 {
		// One level further up the trace must die out.
		beyond, err := ToAncestor(c, AllFaces, ancRes-1)
		if err != nil {
			t.Fatalf("ToAncestor: %v", err)
		}
		if !beyond.Empty() {
			t.Fatalf("trace survives past the reported coarsest ancestor: %v", beyond.Faces())
		}
	}
}
