package facetrace

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// ToAncestor reports which faces of the ancestor at ancestorRes the cell
// lies on, starting from the given candidate faces. The trace walks one
// level at a time, mapping the working set through the forward table of
// each step. An empty result means the cell traced off every requested
// face, or the ascent crossed a pentagon or a center child; the two are
// not distinguished.
func ToAncestor(cell h3.Cell, faces FaceSet, ancestorRes int) (FaceSet, error) {
	res := cell.Resolution()
	if ancestorRes >= res {
		return 0, fmt.Errorf("%w: ancestor resolution %d must be below cell resolution %d", ErrResolution, ancestorRes, res)
	}
	if ancestorRes < 0 {
		return 0, fmt.Errorf("%w: ancestor resolution %d is negative", ErrResolution, ancestorRes)
	}
	if faces.Empty() {
		return 0, nil
	}

	cur := cell
	for r := res; r > ancestorRes; r-- {
		if cur.IsPentagon() {
			return 0, nil
		}
		parent, err := cur.Parent(r - 1)
		if err != nil {
			return 0, fmt.Errorf("h3 parent: %w", err)
		}
		pos := childDigit(uint64(cur), r)
		if pos == 0 || pos > 6 {
			return 0, nil
		}
		faces = mappingFor(r, parent.IsPentagon()).forwardFaces(pos, faces)
		if faces.Empty() {
			return 0, nil
		}
		cur = parent
	}
	return faces, nil
}

// ToParent is ToAncestor for the immediate parent resolution.
func ToParent(cell h3.Cell, faces FaceSet) (FaceSet, error) {
	return ToAncestor(cell, faces, cell.Resolution()-1)
}

// CoarsestAncestor ascends from cell one resolution at a time for as long
// as the traced face set stays non-empty and returns the coarsest ancestor
// still touching any of the requested faces. It returns cell itself when
// already at resolution 0 or when the first one-level trace comes up empty.
func CoarsestAncestor(cell h3.Cell, faces FaceSet) (h3.Cell, error) {
	cur, cf := cell, faces
	for res := cur.Resolution(); res > 0; res-- {
		up, err := ToAncestor(cur, cf, res-1)
		if err != nil {
			return cur, err
		}
		if up.Empty() {
			return cur, nil
		}
		parent, err := cur.Parent(res - 1)
		if err != nil {
			return cur, fmt.Errorf("h3 parent: %w", err)
		}
		cur, cf = parent, up
	}
	return cur, nil
}
