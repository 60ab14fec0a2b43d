// Package keys builds Redis keys for cached polygon products.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/spatialkit/h3-boundary/internal/core/model"
)

// Epoch is the counter key the invalidation path bumps to drop every
// cached polygon at once.
const Epoch = "polygon:epoch"

// Polygon builds the payload key for one polygon request under the given
// cache epoch. Negative res and meters both mean "server default" and
// normalize to the same key.
func Polygon(epoch uint64, req model.PolygonRequest) string {
	op := sanitizeToken(strings.TrimSpace(string(req.Op)))
	cell := sanitizeToken(strings.ToLower(strings.TrimSpace(req.Cell)))
	params := paramText(req)
	paramSafe := sanitizeForKey(params)

	const maxParamTextLen = 160
	if len(paramSafe) > maxParamTextLen {
		paramSafe = paramSafe[:maxParamTextLen]
	}

	sum := xxhash.Sum64String(params)

	return fmt.Sprintf("%s:e%d:%s:%s:p=%016x", op, epoch, cell, paramSafe, sum)
}

// ResIndex is the set of payload keys cached for one resolution.
func ResIndex(epoch uint64, res int) string {
	return fmt.Sprintf("idx:e%d:res:%d", epoch, res)
}

// CellIndex is the set of payload keys cached for one cell.
func CellIndex(epoch uint64, cell string) string {
	return fmt.Sprintf("idx:e%d:cell:%s", epoch, sanitizeToken(strings.ToLower(strings.TrimSpace(cell))))
}

func paramText(req model.PolygonRequest) string {
	res := "auto"
	if req.Res >= 0 {
		res = strconv.Itoa(req.Res)
	}
	meters := "auto"
	if req.Meters >= 0 {
		meters = strconv.FormatFloat(req.Meters, 'g', -1, 64)
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "geojson"
	}
	return fmt.Sprintf("res=%s meters=%s hull=%t format=%s", res, meters, req.Hull, format)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// sanitizeToken keeps op and cell segments free of the ':' separator.
func sanitizeToken(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
