// Command h3bound runs the boundary toolkit without a server: face
// traces, descendant listings and polygon products computed locally,
// plus operator access to the cache invalidation topic.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	h3 "github.com/uber/h3-go/v4"

	"github.com/spatialkit/h3-boundary/internal/engine"
	"github.com/spatialkit/h3-boundary/internal/grid/h3index"
	"github.com/spatialkit/h3-boundary/internal/logger"
	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

var rootOpts struct {
	json            bool
	verbose         bool
	intermediateRes int
}

var rootCmd = &cobra.Command{
	Use:   "h3bound",
	Short: "Face tracing and boundary polygons for H3 cells",
	Long: `h3bound computes hierarchical face traces and boundary polygons for
H3 cells on the command line, using the same engine boundaryd serves
over HTTP. Polygon output goes to stdout so it can be piped straight
into GIS tooling; summaries and logs go to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&rootOpts.json, "json", "j", false, "emit JSON instead of text output")
	pf.BoolVarP(&rootOpts.verbose, "verbose", "v", false, "log engine progress to stderr")
	pf.IntVar(&rootOpts.intermediateRes, "intermediate-res", engine.DefaultIntermediateRes, "descent resolution for boundary merging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "h3bound:", err)
		os.Exit(1)
	}
}

func cliLogger() zerolog.Logger {
	lvl := "warn"
	if rootOpts.verbose {
		lvl = "debug"
	}
	return logger.Build(logger.Config{Level: lvl, Console: true, Component: "h3bound"}, os.Stderr)
}

func newEngine() *engine.Engine {
	return engine.New(cliLogger(), h3index.New(), rootOpts.intermediateRes)
}

func parseCell(s string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse cell %q: %w", s, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid cell %q", s)
	}
	return c, nil
}

// parseFaces resolves the --faces flag; "all" selects every face.
func parseFaces(s string) (facetrace.FaceSet, error) {
	if s == "all" {
		return facetrace.AllFaces, nil
	}
	return facetrace.ParseFaceSet(s)
}

func writeOut(path string, body []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(body, '\n'))
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
