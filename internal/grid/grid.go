// Package grid converts between geometric footprints and H3 cells.
package grid

import (
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/core/model"
)

type Interface interface {
	// Cell parses a textual H3 index and validates it.
	Cell(s string) (h3.Cell, error)
	CellsForBBox(bb model.BBox, res int) (model.Cells, error)
	CellsForPolygon(poly model.Polygon, res int) (model.Cells, error)
	// EdgeCells returns the cells of the fill that have at least one
	// immediate neighbor outside the fill.
	EdgeCells(cells model.Cells) (model.Cells, error)
	EdgeLengthM(res int) (float64, error)
}
