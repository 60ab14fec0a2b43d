package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/destel/rill"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spatialkit/h3-boundary/internal/core/encode"
	"github.com/spatialkit/h3-boundary/internal/core/model"
	"github.com/spatialkit/h3-boundary/internal/feature"
)

var batchOpts struct {
	res         int
	meters      float64
	hull        bool
	format      string
	out         string
	concurrency int
}

var batchCmd = &cobra.Command{
	Use:   "batch [<file>]",
	Short: "Compute boundary polygons for many cells at once",
	Long: `batch reads cell indexes from the file or stdin, one or more per
line, computes the boundary pipeline for each with bounded concurrency
and writes a single feature collection. Lines starting with # are
skipped. The first failing cell aborts the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	fl := batchCmd.Flags()
	fl.IntVar(&batchOpts.res, "res", -1, "child resolution for the descent (-1 uses --intermediate-res)")
	fl.Float64Var(&batchOpts.meters, "meters", -1, "buffer distance in meters (-1 sizes from the cell edge length)")
	fl.BoolVar(&batchOpts.hull, "hull", false, "return convex hulls instead of ring unions")
	fl.StringVar(&batchOpts.format, "format", "geojson", "output format (geojson, wkt)")
	fl.StringVarP(&batchOpts.out, "out", "o", "", "write output to a file instead of stdout")
	fl.IntVarP(&batchOpts.concurrency, "concurrency", "c", runtime.GOMAXPROCS(-1), "cells resolved in parallel")
}

func runBatch(cmd *cobra.Command, args []string) error {
	fm, err := encode.ParseFormat(batchOpts.format)
	if err != nil {
		return err
	}
	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	workers := batchOpts.concurrency
	if workers < 1 {
		workers = 1
	}

	eng := newEngine()
	start := time.Now()
	var traced, verts atomic.Int64

	cells := rill.FromSlice(readCells(in))
	feats, err := rill.ToSlice(rill.OrderedMap(cells, workers, func(cell string) (feature.Feature, error) {
		f, st, err := eng.Polygon(cmd.Context(), model.PolygonRequest{
			Op:     model.OpBoundary,
			Cell:   cell,
			Res:    batchOpts.res,
			Meters: batchOpts.meters,
			Hull:   batchOpts.hull,
			Format: batchOpts.format,
		})
		if err != nil {
			return feature.Feature{}, fmt.Errorf("cell %s: %w", cell, err)
		}
		traced.Add(int64(st.Cells))
		verts.Add(int64(st.Vertices))
		return f, nil
	}))
	if err != nil {
		return err
	}
	if len(feats) == 0 {
		return errors.New("no cells to process")
	}

	body, _, err := encode.Collection(feature.NewCollection(feats), fm)
	if err != nil {
		return err
	}
	if err := writeOut(batchOpts.out, body); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s polygons from %s traced cells, %s vertices, %s written in %s\n",
		humanize.Comma(int64(len(feats))), humanize.Comma(traced.Load()),
		humanize.Comma(verts.Load()), humanize.IBytes(uint64(len(body))),
		time.Since(start).Round(time.Millisecond))
	return nil
}

// readCells collects whitespace or comma separated cell indexes,
// skipping blanks and # comments.
func readCells(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var cells []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells = append(cells, strings.Fields(strings.ReplaceAll(line, ",", " "))...)
	}
	return cells, sc.Err()
}
