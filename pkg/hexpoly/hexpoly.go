// Package hexpoly assembles H3 cells into enclosing polygons and buffers
// them by metric distances.
//
// Rings are ordered (lon, lat) pairs in degrees with the first vertex
// repeated as the last. Assembly merges the native boundaries of a cell
// set through polygon union or a convex hull; the buffer engine expands a
// ring outward with round joins after converting meters to degrees with a
// flat-earth approximation. Antimeridian-crossing and polar cells are not
// handled, and disjoint union results collapse to their first part.
package hexpoly

// Point is one ring vertex in degrees.
type Point struct {
	Lon float64
	Lat float64
}

// Ring is an ordered closed sequence of vertices without holes.
type Ring []Point

// Closed reports whether the first vertex repeats at the end.
func (r Ring) Closed() bool {
	return len(r) >= 2 && r[0] == r[len(r)-1]
}

// Mode selects how a cell set is assembled into one ring.
type Mode int

const (
	// Union merges native cell boundaries through polygon union,
	// preserving concave detail.
	Union Mode = iota
	// Hull collects every boundary vertex and takes the convex hull;
	// cheaper, loses concavity.
	Hull
)

func (m Mode) String() string {
	if m == Hull {
		return "convex_hull"
	}
	return "union"
}

// CellBuffer is the product of buffering a single cell's native ring.
type CellBuffer struct {
	Ring   Ring
	Meters float64 // resolved buffer distance
}

// BoundaryBuffer is the product of the child-assembly buffer pipeline.
type BoundaryBuffer struct {
	Ring            Ring
	Meters          float64 // resolved buffer distance, zero on the fallback path
	IntermediateRes int     // descent resolution after clamping
	BoundaryCells   int     // boundary descendants assembled
	Hull            bool
}
