// Package feature builds GeoJSON Features for polygon products.
package feature

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/spatialkit/h3-boundary/pkg/hexpoly"
)

type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Collection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// RingGeometry converts a closed ring into a single-ring GeoJSON Polygon.
func RingGeometry(r hexpoly.Ring) Geometry {
	coords := make([][]float64, 0, len(r))
	for _, p := range r {
		coords = append(coords, []float64{p.Lon, p.Lat})
	}
	return Geometry{Type: "Polygon", Coordinates: [][][]float64{coords}}
}

func Cell(cell string, ring hexpoly.Ring) Feature {
	return Feature{
		Type:     "Feature",
		Geometry: RingGeometry(ring),
		Properties: map[string]any{
			"h3_index": cell,
		},
	}
}

func Merged(cell string, ring hexpoly.Ring, childRes, numCells int) Feature {
	return Feature{
		Type:     "Feature",
		Geometry: RingGeometry(ring),
		Properties: map[string]any{
			"h3_index":           cell,
			"child_resolution":   childRes,
			"num_boundary_cells": numCells,
		},
	}
}

func BufferedCell(cell string, b hexpoly.CellBuffer) Feature {
	return Feature{
		Type:     "Feature",
		Geometry: RingGeometry(b.Ring),
		Properties: map[string]any{
			"h3_index":      cell,
			"buffer_meters": b.Meters,
		},
	}
}

func BufferedBoundary(cell string, b hexpoly.BoundaryBuffer) Feature {
	method := hexpoly.Union
	if b.Hull {
		method = hexpoly.Hull
	}
	return Feature{
		Type:     "Feature",
		Geometry: RingGeometry(b.Ring),
		Properties: map[string]any{
			"h3_index":           cell,
			"intermediate_res":   b.IntermediateRes,
			"buffer_meters":      b.Meters,
			"num_boundary_cells": b.BoundaryCells,
			"method":             method.String(),
		},
	}
}

func NewCollection(fs []Feature) Collection {
	if fs == nil {
		fs = []Feature{}
	}
	return Collection{Type: "FeatureCollection", Features: fs}
}

func (f Feature) MarshalJSONBytes() ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal feature: %w", err)
	}
	return b, nil
}

func (c Collection) MarshalJSONBytes() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal collection: %w", err)
	}
	return b, nil
}
