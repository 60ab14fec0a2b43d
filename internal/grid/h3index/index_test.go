package h3index

import (
	"reflect"
	"sort"
	"testing"

	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/core/model"
)

func TestCell_ParseAndValidate(t *testing.T) {
	ix := New()

	c, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	got, err := ix.Cell(c.String())
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	if got != c {
		t.Fatalf("round-trip mismatch: %s != %s", got, c)
	}

	if _, err := ix.Cell("not-a-cell"); err == nil {
		t.Fatalf("expected error for junk input")
	}
	if _, err := ix.Cell("ffffffffffffffff"); err == nil {
		t.Fatalf("expected error for invalid index")
	}
}

func TestBBox_HappyPath_SortedUnique(t *testing.T) {
	ix := New()
	bb := model.BBox{X1: 17.95, Y1: 59.30, X2: 18.15, Y2: 59.40, SRID: "EPSG:4326"}

	cells, err := ix.CellsForBBox(bb, 8)
	if err != nil {
		t.Fatalf("CellsForBBox err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bbox")
	}
	if !sort.StringsAreSorted([]string(cells)) {
		t.Fatalf("cells must be sorted")
	}
	if hasDups(cells) {
		t.Fatalf("cells must be de-duplicated")
	}
}

func TestPolygon_SubsetOfBBoxAndDeterministic(t *testing.T) {
	ix := New()
	bb := model.BBox{X1: 17.95, Y1: 59.30, X2: 18.15, Y2: 59.40, SRID: "EPSG:4326"}

	polyJSON := `{"type":"Polygon","coordinates":[[
		[18.00,59.32],[18.12,59.32],[18.12,59.38],[18.00,59.38],[18.00,59.32]
	]]}`
	res := 9
	cp, err := ix.CellsForPolygon(model.Polygon{GeoJSON: polyJSON}, res)
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	cb, err := ix.CellsForBBox(bb, res)
	if err != nil {
		t.Fatalf("bbox: %v", err)
	}
	if len(cp) == 0 {
		t.Fatalf("expected non-empty polygon coverage")
	}
	if !sort.StringsAreSorted([]string(cp)) || hasDups(cp) {
		t.Fatalf("polygon cells must be sorted + unique")
	}
	cp2, err := ix.CellsForPolygon(model.Polygon{GeoJSON: polyJSON}, res)
	if err != nil {
		t.Fatalf("polygon second call: %v", err)
	}
	if !reflect.DeepEqual(cp, cp2) {
		t.Fatalf("expected identical output for identical input")
	}
	if len(cp) > len(cb) {
		t.Fatalf("polygon coverage larger than bbox coverage (unexpected)")
	}
}

func TestBounds_InvalidResolutionAndDegeneratePolygon(t *testing.T) {
	ix := New()
	bb := model.BBox{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:4326"}

	if _, err := ix.CellsForBBox(bb, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := ix.CellsForBBox(bb, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}

	p := model.Polygon{GeoJSON: `{"type":"Polygon","coordinates":[[]]}`}
	if _, err := ix.CellsForPolygon(p, 8); err == nil {
		t.Fatalf("expected error for degenerate polygon")
	}
	if _, err := ix.CellsForPolygon(model.Polygon{GeoJSON: `{"type":"Point"}`}, 8); err == nil {
		t.Fatalf("expected error for unsupported geometry type")
	}
}

func TestEdgeCells_DiskFill(t *testing.T) {
	ix := New()

	center, err := h3.LatLngToCell(h3.LatLng{Lat: 57.7089, Lng: 11.9746}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	disk, err := h3.GridDisk(center, 2)
	if err != nil {
		t.Fatalf("GridDisk: %v", err)
	}
	fill := make(model.Cells, 0, len(disk))
	for _, c := range disk {
		fill = append(fill, c.String())
	}

	edges, err := ix.EdgeCells(fill)
	if err != nil {
		t.Fatalf("EdgeCells: %v", err)
	}
	// For a k=2 disk around a hexagon the outermost ring has 12 cells and
	// everything inside it is fully surrounded.
	if len(edges) != 12 {
		t.Fatalf("edge count = %d, want 12", len(edges))
	}
	for _, e := range edges {
		if e == center.String() {
			t.Fatalf("center cell must not be an edge cell")
		}
	}
	if !sort.StringsAreSorted([]string(edges)) {
		t.Fatalf("edges must be sorted")
	}

	// A single cell is all edge.
	solo, err := ix.EdgeCells(model.Cells{center.String()})
	if err != nil {
		t.Fatalf("EdgeCells solo: %v", err)
	}
	if len(solo) != 1 || solo[0] != center.String() {
		t.Fatalf("single-cell fill should be its own edge, got %v", solo)
	}

	if got, err := ix.EdgeCells(nil); err != nil || got != nil {
		t.Fatalf("empty fill: got %v, %v", got, err)
	}
}

func TestEdgeLengthM_ShrinksWithResolution(t *testing.T) {
	ix := New()

	prev, err := ix.EdgeLengthM(0)
	if err != nil {
		t.Fatalf("EdgeLengthM(0): %v", err)
	}
	for res := 1; res <= 15; res++ {
		cur, err := ix.EdgeLengthM(res)
		if err != nil {
			t.Fatalf("EdgeLengthM(%d): %v", res, err)
		}
		if cur >= prev {
			t.Fatalf("edge length must shrink: res %d: %f >= %f", res, cur, prev)
		}
		prev = cur
	}
	if _, err := ix.EdgeLengthM(16); err == nil {
		t.Fatalf("expected error for res=16")
	}
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
