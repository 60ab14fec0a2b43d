package facetrace

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// ChildrenOnFaces returns the descendants of ancestor at targetRes that lie
// on the given ancestor faces. Subtrees whose face sets map to nothing are
// pruned through the reverse tables, so the visited cell count tracks the
// boundary rather than the full 7^depth expansion. Results come back in
// depth-first traversal order.
func ChildrenOnFaces(ancestor h3.Cell, targetRes int, faces FaceSet) ([]h3.Cell, error) {
	res := ancestor.Resolution()
	if targetRes <= res {
		return nil, fmt.Errorf("%w: target resolution %d must exceed ancestor resolution %d", ErrResolution, targetRes, res)
	}
	if targetRes > MaxResolution {
		return nil, fmt.Errorf("%w: target resolution %d exceeds %d", ErrResolution, targetRes, MaxResolution)
	}
	return descend(ancestor, res, targetRes, faces, nil)
}

// descend recurses one level of children at a time, accumulating cells at
// the target resolution into acc.
func descend(cell h3.Cell, res, targetRes int, faces FaceSet, acc []h3.Cell) ([]h3.Cell, error) {
	if res == targetRes {
		return append(acc, cell), nil
	}
	children, err := cell.Children(res + 1)
	if err != nil {
		return nil, fmt.Errorf("h3 children: %w", err)
	}
	// The reverse walk runs children of pentagons through the hexagon
	// tables as well.
	m := mappingFor(res+1, false)
	for _, child := range children {
		pos := childDigit(uint64(child), res+1)
		if pos == 0 || pos > 6 {
			continue
		}
		mapped := m.reverseFaces(pos, faces)
		if mapped.Empty() {
			continue
		}
		acc, err = descend(child, res+1, targetRes, mapped, acc)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
