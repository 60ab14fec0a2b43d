package hexpoly

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

// smoothSegments is the arc resolution for round joins and point caps.
const smoothSegments = 32

// BufferRing expands a closed ring outward by the given distance in
// degrees. The expansion is the union of the ring with a band along every
// edge and a 32-gon disc at every vertex, which yields round joins and
// caps. Zero or negative distances return the ring unchanged.
func BufferRing(r Ring, degrees float64) Ring {
	if degrees <= 0 || len(r) == 0 {
		return r
	}
	base := toGeom(r)
	pts := base[0]
	acc := geom.Polygonal(base)
	for i, p := range pts {
		acc = acc.Union(edgeBand(p, pts[(i+1)%len(pts)], degrees))
		acc = acc.Union(disc(p, degrees))
	}
	return fromGeom(acc)
}

// BufferedCellPolygon buffers the native ring of a single cell. A negative
// meters asks for the automatic distance: the average hexagon edge length
// four resolutions finer, capped at the finest resolution. A distance of
// exactly zero skips the expansion.
func BufferedCellPolygon(cell h3.Cell, meters float64) (CellBuffer, error) {
	ring, err := CellRing(cell)
	if err != nil {
		return CellBuffer{}, err
	}
	if meters < 0 {
		res := cell.Resolution() + 4
		if res > facetrace.MaxResolution {
			res = facetrace.MaxResolution
		}
		meters, err = h3.HexagonEdgeLengthAvgM(res)
		if err != nil {
			return CellBuffer{}, fmt.Errorf("h3 edge length: %w", err)
		}
	}
	out := CellBuffer{Ring: ring, Meters: meters}
	if meters == 0 {
		return out, nil
	}
	out.Ring = BufferRing(ring, metersToDegrees(meters, ringAvgLat(ring)))
	return out, nil
}

// BufferedBoundaryPolygon assembles the boundary descendants of cell at
// intermediateRes into one ring and buffers it so that the result encloses
// every finer child. intermediateRes is clamped to (cell resolution, 15].
// A negative meters derives the distance from the average hexagon edge
// length at the intermediate resolution. Buffering is skipped when the
// distance is exactly zero or the intermediate resolution is already the
// finest. With no boundary descendants the cell's own ring is returned
// unbuffered.
func BufferedBoundaryPolygon(cell h3.Cell, intermediateRes int, meters float64, hull bool) (BoundaryBuffer, error) {
	cellRes := cell.Resolution()
	if intermediateRes <= cellRes {
		intermediateRes = cellRes + 1
	}
	if intermediateRes > facetrace.MaxResolution {
		intermediateRes = facetrace.MaxResolution
	}

	children, err := facetrace.ChildrenOnFaces(cell, intermediateRes, facetrace.AllFaces)
	if err != nil {
		return BoundaryBuffer{}, err
	}
	out := BoundaryBuffer{IntermediateRes: intermediateRes, BoundaryCells: len(children), Hull: hull}
	if len(children) == 0 {
		out.Ring, err = CellRing(cell)
		return out, err
	}

	var (
		ring   Ring
		latSum float64
		count  int
	)
	if hull {
		ring, latSum, count, err = assembleHull(children)
	} else {
		ring, latSum, count, err = assembleUnion(children)
	}
	if err != nil {
		return BoundaryBuffer{}, err
	}

	if meters < 0 {
		meters, err = h3.HexagonEdgeLengthAvgM(intermediateRes)
		if err != nil {
			return BoundaryBuffer{}, fmt.Errorf("h3 edge length: %w", err)
		}
	}
	out.Meters = meters
	out.Ring = ring
	if meters == 0 || intermediateRes >= facetrace.MaxResolution {
		return out, nil
	}
	out.Ring = BufferRing(ring, metersToDegrees(meters, latSum/float64(count)))
	return out, nil
}

// metersToDegrees converts a metric distance to angular degrees with a
// flat-earth approximation around the given latitude. Not valid near the
// poles or across the antimeridian.
func metersToDegrees(meters, avgLatDeg float64) float64 {
	const metersPerDegLat = 111320.0
	metersPerDegLon := metersPerDegLat * math.Abs(math.Cos(avgLatDeg*math.Pi/180))
	return meters / ((metersPerDegLat + metersPerDegLon) / 2)
}

// disc approximates a radius-r disc around c with a 32-gon.
func disc(c geom.Point, r float64) geom.Polygon {
	pts := make([]geom.Point, 0, smoothSegments)
	for k := 0; k < smoothSegments; k++ {
		a := 2 * math.Pi * float64(k) / smoothSegments
		pts = append(pts, geom.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
	return geom.Polygon{pts}
}

// edgeBand covers both sides of the segment pq with a rectangle of
// half-width r. The inner half is absorbed by the base polygon on union.
func edgeBand(p, q geom.Point, r float64) geom.Polygon {
	dx, dy := q.X-p.X, q.Y-p.Y
	n := math.Hypot(dx, dy)
	if n == 0 {
		return disc(p, r)
	}
	ux, uy := -dy/n*r, dx/n*r
	return geom.Polygon{{
		{X: p.X - ux, Y: p.Y - uy},
		{X: q.X - ux, Y: q.Y - uy},
		{X: q.X + ux, Y: q.Y + uy},
		{X: p.X + ux, Y: p.Y + uy},
	}}
}
