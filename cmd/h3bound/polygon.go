package main

import (
	"fmt"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spatialkit/h3-boundary/internal/core/encode"
	"github.com/spatialkit/h3-boundary/internal/core/model"
)

var boundaryOpts struct {
	res    int
	meters float64
	hull   bool
	format string
	out    string
}

var boundaryCmd = &cobra.Command{
	Use:   "boundary <cell>",
	Short: "Compute the buffered boundary polygon for a cell",
	Long: `boundary descends the cell to the intermediate resolution, keeps the
descendants on its boundary faces, merges their rings and buffers the
result outward. This is the full pipeline served by the boundary
endpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runBoundary,
}

var bufferOpts struct {
	meters float64
	hull   bool
	format string
	out    string
}

var bufferCmd = &cobra.Command{
	Use:   "buffer <cell>",
	Short: "Buffer the native cell ring outward",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuffer,
}

func init() {
	rootCmd.AddCommand(boundaryCmd, bufferCmd)

	fl := boundaryCmd.Flags()
	fl.IntVar(&boundaryOpts.res, "res", -1, "child resolution for the descent (-1 uses --intermediate-res)")
	fl.Float64Var(&boundaryOpts.meters, "meters", -1, "buffer distance in meters (-1 sizes from the cell edge length)")
	fl.BoolVar(&boundaryOpts.hull, "hull", false, "return the convex hull instead of the ring union")
	fl.StringVar(&boundaryOpts.format, "format", "geojson", "output format (geojson, wkt)")
	fl.StringVarP(&boundaryOpts.out, "out", "o", "", "write output to a file instead of stdout")

	fl = bufferCmd.Flags()
	fl.Float64Var(&bufferOpts.meters, "meters", -1, "buffer distance in meters (-1 sizes from the cell edge length)")
	fl.BoolVar(&bufferOpts.hull, "hull", false, "return the convex hull instead of the buffered ring")
	fl.StringVar(&bufferOpts.format, "format", "geojson", "output format (geojson, wkt)")
	fl.StringVarP(&bufferOpts.out, "out", "o", "", "write output to a file instead of stdout")
}

func runBoundary(cmd *cobra.Command, args []string) error {
	return runPolygon(cmd, model.PolygonRequest{
		Op:     model.OpBoundary,
		Cell:   args[0],
		Res:    boundaryOpts.res,
		Meters: boundaryOpts.meters,
		Hull:   boundaryOpts.hull,
		Format: boundaryOpts.format,
	}, boundaryOpts.out)
}

func runBuffer(cmd *cobra.Command, args []string) error {
	return runPolygon(cmd, model.PolygonRequest{
		Op:     model.OpBuffered,
		Cell:   args[0],
		Res:    -1,
		Meters: bufferOpts.meters,
		Hull:   bufferOpts.hull,
		Format: bufferOpts.format,
	}, bufferOpts.out)
}

func runPolygon(cmd *cobra.Command, req model.PolygonRequest, out string) error {
	fm, err := encode.ParseFormat(req.Format)
	if err != nil {
		return err
	}

	f, st, err := newEngine().Polygon(cmd.Context(), req)
	if err != nil {
		return err
	}
	body, _, err := encode.Feature(f, fm)
	if err != nil {
		return err
	}
	if err := writeOut(out, body); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s cells, %s vertices in %s\n",
		humanize.Comma(int64(st.Cells)), humanize.Comma(int64(st.Vertices)),
		st.Dur.Round(time.Microsecond))
	return nil
}
