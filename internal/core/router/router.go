// Package router parses and validates the HTTP API and hands validated
// requests to the serving strategy.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/core/config"
	"github.com/spatialkit/h3-boundary/internal/core/encode"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/grid"
	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

// request bodies on the POST endpoints are capped at 1 MiB
const maxBodyBytes = 1 << 20

// PolygonHandler receives validated polygon requests and serves them.
type PolygonHandler interface {
	HandlePolygon(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.PolygonRequest)
	HandleBatch(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.BatchRequest)
}

// CoverEngine computes footprint covers and carries the default descent
// resolution used when a request leaves res unset.
type CoverEngine interface {
	Cover(ctx context.Context, req model.CoverRequest) (model.Cells, model.Cells, error)
	IntermediateRes() int
}

type Router struct {
	log      zerolog.Logger
	cfg      config.Config
	grid     grid.Interface
	eng      CoverEngine
	polygons PolygonHandler
}

func New(log zerolog.Logger, cfg config.Config, g grid.Interface, eng CoverEngine, h PolygonHandler) *Router {
	return &Router{log: log, cfg: cfg, grid: g, eng: eng, polygons: h}
}

// Routes mounts every versioned endpoint; the caller mounts the result
// under /v1.
func (rt *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/faces/trace", rt.observe("/v1/faces/trace", rt.facesTrace))
	r.Get("/faces/parent", rt.observe("/v1/faces/parent", rt.facesParent))
	r.Get("/faces/ancestor", rt.observe("/v1/faces/ancestor", rt.facesAncestor))
	r.Get("/cells/boundary-children", rt.observe("/v1/cells/boundary-children", rt.boundaryChildren))
	r.Get("/polygon/cell", rt.observe("/v1/polygon/cell", rt.polygonOp(model.OpCell)))
	r.Get("/polygon/children", rt.observe("/v1/polygon/children", rt.polygonOp(model.OpChildren)))
	r.Get("/polygon/buffered", rt.observe("/v1/polygon/buffered", rt.polygonOp(model.OpBuffered)))
	r.Get("/polygon/boundary", rt.observe("/v1/polygon/boundary", rt.polygonOp(model.OpBoundary)))
	r.Post("/polygon/cover", rt.observe("/v1/polygon/cover", rt.cover))
	r.Post("/polygon/batch", rt.observe("/v1/polygon/batch", rt.batch))
	return r
}

// observe wraps a handler with status capture and request metrics.
func (rt *Router) observe(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type traceResponse struct {
	Cell  string           `json:"cell"`
	Res   int              `json:"res"`
	Faces []facetrace.Face `json:"faces"`
}

func (rt *Router) facesTrace(w http.ResponseWriter, r *http.Request) {
	cell, canonical, err := rt.cellParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	faces, err := requiredFaces(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, ok, err := resParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		http.Error(w, "missing required parameter: res", http.StatusBadRequest)
		return
	}
	out, err := facetrace.ToAncestor(cell, faces, res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, traceResponse{Cell: canonical, Res: res, Faces: out.Faces()})
}

type parentResponse struct {
	Cell  string           `json:"cell"`
	Faces []facetrace.Face `json:"faces"`
}

func (rt *Router) facesParent(w http.ResponseWriter, r *http.Request) {
	cell, canonical, err := rt.cellParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	faces, err := requiredFaces(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := facetrace.ToParent(cell, faces)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, parentResponse{Cell: canonical, Faces: out.Faces()})
}

type ancestorResponse struct {
	Cell     string `json:"cell"`
	Ancestor string `json:"ancestor"`
	Res      int    `json:"res"`
}

func (rt *Router) facesAncestor(w http.ResponseWriter, r *http.Request) {
	cell, canonical, err := rt.cellParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	faces, err := facesParam(r, facetrace.AllFaces)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	anc, err := facetrace.CoarsestAncestor(cell, faces)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, ancestorResponse{Cell: canonical, Ancestor: anc.String(), Res: anc.Resolution()})
}

type childrenResponse struct {
	Cells model.Cells `json:"cells"`
	Count int         `json:"count"`
}

func (rt *Router) boundaryChildren(w http.ResponseWriter, r *http.Request) {
	cell, _, err := rt.cellParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	faces, err := facesParam(r, facetrace.AllFaces)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, ok, err := resParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		res = rt.eng.IntermediateRes()
		if res <= cell.Resolution() {
			res = cell.Resolution() + 1
		}
	}
	cells, err := facetrace.ChildrenOnFaces(cell, res, faces)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := childrenResponse{Cells: make(model.Cells, 0, len(cells)), Count: len(cells)}
	for _, c := range cells {
		out.Cells = append(out.Cells, c.String())
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) polygonOp(op model.PolygonOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := rt.ParsePolygonRequest(r, op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rt.polygons.HandlePolygon(r.Context(), w, r, req)
	}
}

// ParsePolygonRequest validates the query surface shared by the polygon
// endpoints. Parameters the operation ignores are reset afterwards so
// equal products share one cache key.
func (rt *Router) ParsePolygonRequest(r *http.Request, op model.PolygonOp) (model.PolygonRequest, error) {
	_, cell, err := rt.cellParam(r)
	if err != nil {
		return model.PolygonRequest{}, err
	}
	res, _, err := resParam(r)
	if err != nil {
		return model.PolygonRequest{}, err
	}
	meters, err := metersParam(r)
	if err != nil {
		return model.PolygonRequest{}, err
	}
	hull, err := hullParam(r)
	if err != nil {
		return model.PolygonRequest{}, err
	}
	format, err := formatParam(r)
	if err != nil {
		return model.PolygonRequest{}, err
	}

	req := model.PolygonRequest{
		Op:       op,
		Cell:     cell,
		Res:      res,
		Meters:   meters,
		Hull:     hull,
		Format:   string(format),
		Strategy: strings.TrimSpace(r.URL.Query().Get("strategy")),
	}
	switch op {
	case model.OpCell:
		req.Res, req.Meters, req.Hull = -1, -1, false
	case model.OpChildren:
		req.Meters = -1
	case model.OpBuffered:
		req.Res, req.Hull = -1, false
	}
	return req, nil
}

type coverBody struct {
	Polygon json.RawMessage `json:"polygon,omitempty"`
	BBox    string          `json:"bbox,omitempty"`
	Res     *int            `json:"res"`
}

type coverCell struct {
	Cell  string           `json:"cell"`
	Faces []facetrace.Face `json:"faces"`
}

type coverResponse struct {
	Res    int         `json:"res"`
	Filled int         `json:"filled"`
	Count  int         `json:"count"`
	Cells  []coverCell `json:"cells"`
}

func (rt *Router) cover(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body coverBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Res == nil {
		http.Error(w, "missing required field: res", http.StatusBadRequest)
		return
	}
	res := *body.Res
	if res < 0 || res > facetrace.MaxResolution {
		http.Error(w, fmt.Sprintf("res must be in [0,%d]", facetrace.MaxResolution), http.StatusBadRequest)
		return
	}

	rawPoly := strings.TrimSpace(string(body.Polygon))
	if rawPoly == "null" {
		rawPoly = ""
	}
	rawBBox := strings.TrimSpace(body.BBox)

	// drop bbox if polygon is given (polygon wins)
	if rawPoly != "" && rawBBox != "" {
		rt.log.Warn().Msg("both bbox and polygon supplied; preferring polygon")
		rawBBox = ""
	}

	req := model.CoverRequest{Res: res}
	switch {
	case rawPoly != "":
		p, err := parsePolygon(rawPoly)
		if err != nil {
			http.Error(w, "invalid polygon: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Polygon = &p
	case rawBBox != "":
		bb, err := parseBBOX(rawBBox)
		if err != nil {
			http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.BBox = &bb
	default:
		http.Error(w, "polygon or bbox required", http.StatusBadRequest)
		return
	}

	fill, edges, err := rt.eng.Cover(r.Context(), req)
	if err != nil {
		rt.log.Error().Err(err).Msg("cover mapping failed")
		http.Error(w, "failed to map cover footprint", http.StatusBadRequest)
		return
	}
	out := coverResponse{Res: res, Filled: len(fill), Count: len(edges), Cells: make([]coverCell, 0, len(edges))}
	for _, c := range edges {
		out.Cells = append(out.Cells, coverCell{Cell: c, Faces: facetrace.AllFaces.Faces()})
	}
	writeJSON(w, http.StatusOK, out)
}

type batchBody struct {
	Cells  []string `json:"cells"`
	Res    *int     `json:"res,omitempty"`
	Meters *float64 `json:"meters,omitempty"`
	Hull   bool     `json:"hull,omitempty"`
	Format string   `json:"format,omitempty"`
}

func (rt *Router) batch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body.Cells) == 0 {
		http.Error(w, "missing required field: cells", http.StatusBadRequest)
		return
	}
	if limit := rt.cfg.BatchMaxCells; limit > 0 && len(body.Cells) > limit {
		http.Error(w, fmt.Sprintf("too many cells: %d > %d", len(body.Cells), limit), http.StatusRequestEntityTooLarge)
		return
	}

	req := model.BatchRequest{Res: -1, Meters: -1, Hull: body.Hull}
	if body.Res != nil {
		if *body.Res < 0 || *body.Res > facetrace.MaxResolution {
			http.Error(w, fmt.Sprintf("res must be in [0,%d]", facetrace.MaxResolution), http.StatusBadRequest)
			return
		}
		req.Res = *body.Res
	}
	if body.Meters != nil {
		if *body.Meters < 0 {
			http.Error(w, "meters must be >= 0", http.StatusBadRequest)
			return
		}
		req.Meters = *body.Meters
	}
	fm, err := encode.ParseFormat(body.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Format = string(fm)

	req.Cells = make(model.Cells, 0, len(body.Cells))
	for _, s := range body.Cells {
		c, err := rt.grid.Cell(s)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid cell %q: %v", s, err), http.StatusBadRequest)
			return
		}
		req.Cells = append(req.Cells, c.String())
	}

	rt.polygons.HandleBatch(r.Context(), w, r, req)
}

// cellParam parses the required cell query parameter and returns its
// canonical lowercase form.
func (rt *Router) cellParam(r *http.Request) (h3.Cell, string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("cell"))
	if raw == "" {
		return 0, "", errors.New("missing required parameter: cell")
	}
	c, err := rt.grid.Cell(raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid cell: %w", err)
	}
	return c, c.String(), nil
}

// resParam reports whether res was supplied and validates its range.
func resParam(r *http.Request) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("res"))
	if raw == "" {
		return -1, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid res: %w", err)
	}
	if n < 0 || n > facetrace.MaxResolution {
		return 0, false, fmt.Errorf("res must be in [0,%d]", facetrace.MaxResolution)
	}
	return n, true, nil
}

func metersParam(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("meters"))
	if raw == "" {
		return -1, nil
	}
	f, err := parseFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid meters: %w", err)
	}
	if f < 0 {
		return 0, errors.New("meters must be >= 0")
	}
	return f, nil
}

func hullParam(r *http.Request) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("hull"))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid hull: %w", err)
	}
	return b, nil
}

func facesParam(r *http.Request, def facetrace.FaceSet) (facetrace.FaceSet, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("faces"))
	if raw == "" {
		return def, nil
	}
	fs, err := facetrace.ParseFaceSet(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid faces: %w", err)
	}
	return fs, nil
}

func requiredFaces(r *http.Request) (facetrace.FaceSet, error) {
	fs, err := facesParam(r, 0)
	if err != nil {
		return 0, err
	}
	if fs.Empty() {
		return 0, errors.New("missing required parameter: faces")
	}
	return fs, nil
}

// formatParam resolves the output format from the query with an Accept
// header fallback.
func formatParam(r *http.Request) (encode.Format, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("format"))
	if raw != "" {
		return encode.ParseFormat(raw)
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		return encode.FormatWKT, nil
	}
	return encode.FormatGeoJSON, nil
}

func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 5 {
		return model.BBox{}, errors.New("expected 5 comma-separated values: x1,y1,x2,y2,EPSG:4326")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := strings.ToUpper(strings.TrimSpace(parts[4]))
	if srid != "EPSG:4326" {
		return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported at this stage (got %q)", srid)
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func parsePolygon(raw string) (model.Polygon, error) {
	var tmp struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return model.Polygon{}, fmt.Errorf("parse json: %w", err)
	}
	t := strings.TrimSpace(tmp.Type)
	switch t {
	case "Polygon", "MultiPolygon":
		return model.Polygon{GeoJSON: raw}, nil
	default:
		return model.Polygon{}, fmt.Errorf(`unsupported GeoJSON "type": %q (must be Polygon or MultiPolygon)`, t)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
