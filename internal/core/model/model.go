// Package model defines core domain types shared across the service.
package model

import "fmt"

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching the x1,y1,x2,y2,SRID query format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

type Polygon struct {
	GeoJSON string
}

type Cells []string

// PolygonOp names one polygon product served by the strategies.
type PolygonOp string

const (
	OpCell     PolygonOp = "cell"     // native cell boundary ring
	OpChildren PolygonOp = "children" // merged ring of boundary descendants
	OpBuffered PolygonOp = "buffered" // buffered native ring
	OpBoundary PolygonOp = "boundary" // buffered merged ring (full pipeline)
)

// PolygonRequest is a validated request for a single polygon product.
// Res < 0 means "use the server default"; Meters < 0 means "auto distance".
type PolygonRequest struct {
	Op       PolygonOp
	Cell     string
	Res      int
	Meters   float64
	Hull     bool
	Format   string
	Strategy string
}

// BatchRequest computes the boundary pipeline for many cells at once.
type BatchRequest struct {
	Cells  Cells
	Res    int
	Meters float64
	Hull   bool
	Format string
}

// CoverRequest polyfills a footprint and reports its edge cells. Exactly one
// of Polygon or BBox is set; the router prefers Polygon when both arrive.
type CoverRequest struct {
	Polygon *Polygon
	BBox    *BBox
	Res     int
}
