package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/spatialkit/h3-boundary/internal/core/model"
)

func boundaryReq() model.PolygonRequest {
	return model.PolygonRequest{
		Op:     model.OpBoundary,
		Cell:   "881f1d4815fffff",
		Res:    9,
		Meters: 150,
		Format: "geojson",
	}
}

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Polygon(3, boundaryReq())
	k2 := Polygon(3, boundaryReq())
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNormalization_DefaultsAlias(t *testing.T) {
	a := boundaryReq()
	a.Res = -1
	a.Meters = -1
	b := boundaryReq()
	b.Res = -5
	b.Meters = -0.25
	b.Cell = " 881F1D4815FFFFF "
	b.Format = ""

	k1 := Polygon(3, a)
	k2 := Polygon(3, b)
	if k1 != k2 {
		t.Fatalf("default-selecting requests must share a key:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=\-\.]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestDifference_ParamsAndEpoch(t *testing.T) {
	base := boundaryReq()

	hull := base
	hull.Hull = true
	if Polygon(3, base) == Polygon(3, hull) {
		t.Fatalf("hull flag must change the key")
	}

	wkt := base
	wkt.Format = "wkt"
	if Polygon(3, base) == Polygon(3, wkt) {
		t.Fatalf("format must change the key")
	}

	if Polygon(3, base) == Polygon(4, base) {
		t.Fatalf("epoch must change the key")
	}

	other := base
	other.Op = model.OpChildren
	if Polygon(3, base) == Polygon(3, other) {
		t.Fatalf("op must change the key")
	}
}

func TestSafety_JunkInputStaysASCII(t *testing.T) {
	req := boundaryReq()
	req.Cell = "88:1f 雪\nfff"
	k := Polygon(1, req)

	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if strings.Count(k, ":") != 4 {
		t.Fatalf("cell sanitization must not add segments: %s", k)
	}

	m := regexp.MustCompile(`:p=([0-9a-f]{16})$`).FindStringSubmatch(k)
	if len(m) != 2 {
		t.Fatalf("missing or invalid :p=<hex64> suffix in key: %s", k)
	}
}

func TestIndexKeys_Layout(t *testing.T) {
	if got := ResIndex(2, 9); got != "idx:e2:res:9" {
		t.Fatalf("ResIndex = %s", got)
	}
	if got := CellIndex(2, " 881F1D4815FFFFF "); got != "idx:e2:cell:881f1d4815fffff" {
		t.Fatalf("CellIndex = %s", got)
	}
	if Epoch != "polygon:epoch" {
		t.Fatalf("Epoch = %s", Epoch)
	}
}
