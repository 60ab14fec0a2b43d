package hexpoly

import (
	"fmt"
	"slices"

	"github.com/ctessum/geom"
	h3 "github.com/uber/h3-go/v4"
)

// CellRing returns the native boundary of cell as a closed ring.
func CellRing(cell h3.Cell) (Ring, error) {
	b, err := cell.Boundary()
	if err != nil {
		return nil, fmt.Errorf("h3 boundary: %w", err)
	}
	ring := make(Ring, 0, len(b)+1)
	for _, v := range b {
		ring = append(ring, Point{Lon: v.Lng, Lat: v.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

// ringAvgLat averages latitude over the ring vertices, skipping the
// closing duplicate.
func ringAvgLat(r Ring) float64 {
	pts := r
	if r.Closed() {
		pts = r[:len(r)-1]
	}
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Lat
	}
	return sum / float64(len(pts))
}

// toGeom converts a ring to a single-ring geom polygon, dropping the
// closing duplicate and normalizing to counterclockwise winding.
func toGeom(r Ring) geom.Polygon {
	pts := r
	if r.Closed() {
		pts = r[:len(r)-1]
	}
	out := make([]geom.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, geom.Point{X: p.Lon, Y: p.Lat})
	}
	if signedDoubleArea(out) < 0 {
		slices.Reverse(out)
	}
	return geom.Polygon{out}
}

// fromGeom extracts the outer ring of the first polygon as a closed ring.
// Holes and additional parts are dropped.
func fromGeom(pg geom.Polygonal) Ring {
	polys := pg.Polygons()
	if len(polys) == 0 || len(polys[0]) == 0 {
		return nil
	}
	outer := polys[0][0]
	ring := make(Ring, 0, len(outer)+1)
	for _, p := range outer {
		ring = append(ring, Point{Lon: p.X, Lat: p.Y})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// signedDoubleArea is twice the shoelace area, positive for
// counterclockwise rings.
func signedDoubleArea(pts []geom.Point) float64 {
	var sum float64
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum
}
