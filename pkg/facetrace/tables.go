package facetrace

// Face correspondence tables, indexed by the parity of the child resolution
// and then by the child's position digit within its parent (0 is the center
// child and touches no parent face). Forward tables map a child face to the
// parent face it continues; reverse tables map a parent face to the child
// faces that originate from it. Both are partial: a face without an entry
// simply drops out of the trace.
//
// The parity split exists because alternating resolutions rotate the
// subdivision in opposite senses; the pentagon variants cover children of
// the twelve base pentagons, which have no position-1 child.

var forwardHex = [2][7]map[Face]Face{
	{ // even child resolutions
		1: {2: 3, 3: 1, 1: 1},
		2: {4: 6, 2: 2, 6: 2},
		3: {6: 2, 2: 3, 3: 3},
		4: {1: 5, 4: 4, 5: 4},
		5: {1: 5, 3: 1, 5: 5},
		6: {4: 6, 5: 4, 6: 6},
	},
	{ // odd child resolutions
		1: {3: 3, 1: 3, 5: 1},
		2: {2: 6, 6: 6, 3: 2},
		3: {2: 2, 1: 3, 3: 2},
		4: {4: 5, 5: 5, 6: 4},
		5: {1: 1, 4: 5, 5: 1},
		6: {4: 4, 2: 6, 6: 4},
	},
}

var reverseHex = [2][7]map[Face]FaceSet{
	{ // even child resolutions
		1: {1: set(1, 3), 3: set(2)},
		2: {2: set(2, 6), 6: set(4)},
		3: {2: set(6), 3: set(2, 3)},
		4: {4: set(4, 5), 5: set(1)},
		5: {5: set(1, 5), 1: set(3)},
		6: {4: set(5), 6: set(4, 6)},
	},
	{ // odd child resolutions
		1: {3: set(1, 3), 1: set(5)},
		2: {6: set(2, 6), 2: set(3)},
		3: {2: set(2, 3), 3: set(1)},
		4: {5: set(4, 5), 4: set(6)},
		5: {1: set(1, 5), 5: set(4)},
		6: {4: set(4, 6), 6: set(2)},
	},
}

var forwardPent = [2][7]map[Face]Face{
	{ // even child resolutions
		1: {4: 5, 2: 1, 6: 1},
		2: {6: 1, 3: 2, 2: 2},
		3: {5: 2, 4: 2, 6: 4},
		4: {3: 2, 5: 4, 1: 2},
		5: {5: 3, 6: 5, 4: 5},
	},
	{ // odd child resolutions
		1: {2: 5, 6: 5, 3: 1},
		2: {3: 1, 2: 1, 1: 2},
		3: {1: 4, 4: 3, 5: 3},
		4: {1: 2, 5: 2, 4: 4},
		5: {2: 5, 4: 3, 6: 3},
	},
}

var reversePent = [2][7]map[Face]FaceSet{
	{ // even child resolutions
		1: {1: set(2, 6), 5: set(4)},
		2: {1: set(6), 2: set(2, 3)},
		3: {4: set(1), 3: set(4, 5)},
		4: {4: set(5), 2: set(1, 3)},
		5: {5: set(4, 6), 3: set(5)},
	},
	{ // odd child resolutions
		1: {5: set(2, 6), 1: set(3)},
		2: {2: set(1), 1: set(2, 3)},
		3: {3: set(6), 4: set(4, 5)},
		4: {4: set(4), 2: set(1, 5)},
		5: {5: set(2), 3: set(4, 6)},
	},
}

func set(faces ...Face) FaceSet { return NewFaceSet(faces...) }

// mapping pairs the forward and reverse tables selected for one combination
// of child resolution parity and parent pentagon-ness.
type mapping struct {
	forward [7]map[Face]Face
	reverse [7]map[Face]FaceSet
}

// mappingFor selects the tables for children at childRes under a hexagon or
// pentagon parent.
func mappingFor(childRes int, pentagonParent bool) mapping {
	p := childRes & 1
	if pentagonParent {
		return mapping{forward: forwardPent[p], reverse: reversePent[p]}
	}
	return mapping{forward: forwardHex[p], reverse: reverseHex[p]}
}

// forwardFaces maps each face through the child-to-parent entry for the
// given child position, dropping faces without an entry.
func (m mapping) forwardFaces(pos int, faces FaceSet) FaceSet {
	t := m.forward[pos]
	var out FaceSet
	for f := Face(1); f <= 6; f++ {
		if !faces.Has(f) {
			continue
		}
		if pf, ok := t[f]; ok {
			out = out.Add(pf)
		}
	}
	return out
}

// reverseFaces maps each parent face to the child faces originating from it
// for the given child position and unions the results.
func (m mapping) reverseFaces(pos int, faces FaceSet) FaceSet {
	t := m.reverse[pos]
	var out FaceSet
	for f := Face(1); f <= 6; f++ {
		if faces.Has(f) {
			out = out.Union(t[f])
		}
	}
	return out
}

// childDigit returns the subdivision digit of c at the given resolution:
// 0 for the center child of its parent one level up, 1..6 for edge
// children. Children of pentagons have no digit 1.
func childDigit(c uint64, res int) int {
	return int(c>>(3*(MaxResolution-res))) & 0x7
}
