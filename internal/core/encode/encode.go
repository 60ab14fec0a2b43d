// Package encode renders polygon features as GeoJSON or WKT.
package encode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spatialkit/h3-boundary/internal/feature"
)

type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatWKT     Format = "wkt"
)

// ParseFormat resolves a format query value; empty means GeoJSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "geojson", "json":
		return FormatGeoJSON, nil
	case "wkt":
		return FormatWKT, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

func ContentType(f Format) string {
	if f == FormatWKT {
		return "text/plain; charset=utf-8"
	}
	return "application/geo+json"
}

// Feature renders a single feature in the requested format.
func Feature(f feature.Feature, fm Format) ([]byte, string, error) {
	if fm == FormatWKT {
		wkt, err := polygonWKT(f.Geometry)
		if err != nil {
			return nil, "", err
		}
		return []byte(wkt), ContentType(fm), nil
	}
	b, err := f.MarshalJSONBytes()
	if err != nil {
		return nil, "", err
	}
	return b, ContentType(fm), nil
}

// Collection renders a feature collection; WKT output is a MULTIPOLYGON
// over every feature geometry.
func Collection(c feature.Collection, fm Format) ([]byte, string, error) {
	if fm == FormatWKT {
		wkt, err := multiPolygonWKT(c.Features)
		if err != nil {
			return nil, "", err
		}
		return []byte(wkt), ContentType(fm), nil
	}
	b, err := c.MarshalJSONBytes()
	if err != nil {
		return nil, "", err
	}
	return b, ContentType(fm), nil
}

func polygonWKT(g feature.Geometry) (string, error) {
	if g.Type != "Polygon" {
		return "", fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	if len(g.Coordinates) == 0 {
		return "", errors.New("empty polygon")
	}
	outRings := make([]string, 0, len(g.Coordinates))
	for _, ring := range g.Coordinates {
		if len(ring) < 4 {
			return "", errors.New("polygon ring has <4 points")
		}
		var pts []string
		for _, xy := range ring {
			if len(xy) != 2 {
				return "", errors.New("coordinate must be [x,y]")
			}
			pts = append(pts, fmt.Sprintf("%.8f %.8f", xy[0], xy[1]))
		}
		outRings = append(outRings, fmt.Sprintf("(%s)", strings.Join(pts, ", ")))
	}
	return fmt.Sprintf("POLYGON(%s)", strings.Join(outRings, ", ")), nil
}

func multiPolygonWKT(fs []feature.Feature) (string, error) {
	if len(fs) == 0 {
		return "", errors.New("empty collection")
	}
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		wkt, err := polygonWKT(f.Geometry)
		if err != nil {
			return "", err
		}
		// strip "POLYGON" wrapper to embed into MULTIPOLYGON
		body := strings.TrimPrefix(wkt, "POLYGON")
		parts = append(parts, body)
	}
	return fmt.Sprintf("MULTIPOLYGON(%s)", strings.Join(parts, ", ")), nil
}
