package hexpoly

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/golang/geo/s2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

// RingFromCells merges the native boundaries of the given cells into one
// ring. An empty cell set yields an empty ring.
func RingFromCells(cells []h3.Cell, mode Mode) (Ring, error) {
	var (
		ring Ring
		err  error
	)
	if mode == Hull {
		ring, _, _, err = assembleHull(cells)
	} else {
		ring, _, _, err = assembleUnion(cells)
	}
	return ring, err
}

// RingFromChildren assembles the merged boundary of every descendant of
// ancestor at targetRes lying on any face. When the descent comes back
// empty the ancestor's own ring is returned.
func RingFromChildren(ancestor h3.Cell, targetRes int) (Ring, error) {
	cells, err := facetrace.ChildrenOnFaces(ancestor, targetRes, facetrace.AllFaces)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return CellRing(ancestor)
	}
	ring, _, _, err := assembleUnion(cells)
	return ring, err
}

// assembleUnion merges cell boundaries through incremental polygon union
// and keeps the first ring of the merged result. It also accumulates the
// latitude sum and count of every native vertex seen, shared vertices
// counted once per cell.
func assembleUnion(cells []h3.Cell) (Ring, float64, int, error) {
	var (
		merged geom.Polygonal
		latSum float64
		count  int
	)
	for _, cell := range cells {
		ring, err := CellRing(cell)
		if err != nil {
			return nil, 0, 0, err
		}
		pts := ring
		if ring.Closed() {
			pts = ring[:len(ring)-1]
		}
		for _, p := range pts {
			latSum += p.Lat
			count++
		}
		poly := toGeom(ring)
		if merged == nil {
			merged = poly
		} else {
			merged = merged.Union(poly)
		}
	}
	if merged == nil {
		return nil, 0, 0, nil
	}
	return fromGeom(merged), latSum, count, nil
}

// assembleHull pools every boundary vertex of every cell and takes the
// convex hull.
func assembleHull(cells []h3.Cell) (Ring, float64, int, error) {
	q := s2.NewConvexHullQuery()
	var (
		latSum float64
		count  int
	)
	for _, cell := range cells {
		b, err := cell.Boundary()
		if err != nil {
			return nil, 0, 0, fmt.Errorf("h3 boundary: %w", err)
		}
		for _, v := range b {
			q.AddPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lng)))
			latSum += v.Lat
			count++
		}
	}
	if count == 0 {
		return nil, 0, 0, nil
	}
	loop := q.ConvexHull()
	verts := loop.Vertices()
	ring := make(Ring, 0, len(verts)+1)
	for _, p := range verts {
		ll := s2.LatLngFromPoint(p)
		ring = append(ring, Point{Lon: ll.Lng.Degrees(), Lat: ll.Lat.Degrees()})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring, latSum, count, nil
}
