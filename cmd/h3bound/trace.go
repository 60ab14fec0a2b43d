package main

import (
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/spatialkit/h3-boundary/pkg/facetrace"
)

var traceOpts struct {
	res   int
	faces string
}

var traceCmd = &cobra.Command{
	Use:   "trace <cell>",
	Short: "Trace boundary faces from a cell up to an ancestor resolution",
	Long: `trace walks the ancestor chain one resolution at a time and reports
which of the starting faces the cell still lies on at each level. The
walk stops early when the face set empties or a pentagon is crossed.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

var ancestorOpts struct {
	faces string
}

var ancestorCmd = &cobra.Command{
	Use:   "ancestor <cell>",
	Short: "Find the coarsest ancestor still touching the traced faces",
	Args:  cobra.ExactArgs(1),
	RunE:  runAncestor,
}

var childOpts struct {
	res   int
	faces string
}

var childrenCmd = &cobra.Command{
	Use:   "children <cell>",
	Short: "List descendants lying on the traced boundary faces",
	Args:  cobra.ExactArgs(1),
	RunE:  runChildren,
}

func init() {
	rootCmd.AddCommand(traceCmd, ancestorCmd, childrenCmd)

	traceCmd.Flags().IntVar(&traceOpts.res, "res", 0, "ancestor resolution to stop at")
	traceCmd.Flags().StringVar(&traceOpts.faces, "faces", "all", `starting face set, comma separated (or "all")`)

	ancestorCmd.Flags().StringVar(&ancestorOpts.faces, "faces", "all", `starting face set, comma separated (or "all")`)

	childrenCmd.Flags().IntVar(&childOpts.res, "res", -1, "child resolution (-1 means one level below the cell)")
	childrenCmd.Flags().StringVar(&childOpts.faces, "faces", "all", `boundary face set, comma separated (or "all")`)
}

type traceStep struct {
	Res   int    `json:"res"`
	Cell  string `json:"cell"`
	Faces []int  `json:"faces"`
}

func runTrace(cmd *cobra.Command, args []string) error {
	cell, err := parseCell(args[0])
	if err != nil {
		return err
	}
	faces, err := parseFaces(traceOpts.faces)
	if err != nil {
		return err
	}
	if traceOpts.res < 0 {
		return fmt.Errorf("res %d is negative", traceOpts.res)
	}
	if traceOpts.res >= cell.Resolution() {
		return fmt.Errorf("res %d must be below the cell resolution %d", traceOpts.res, cell.Resolution())
	}

	var steps []traceStep
	cur, cf := cell, faces
	for res := cell.Resolution(); res > traceOpts.res && !cf.Empty(); res-- {
		up, err := facetrace.ToParent(cur, cf)
		if err != nil {
			return err
		}
		parent, err := cur.Parent(res - 1)
		if err != nil {
			return fmt.Errorf("h3 parent: %w", err)
		}
		cur, cf = parent, up
		steps = append(steps, traceStep{Res: res - 1, Cell: cur.String(), Faces: faceInts(cf)})
	}

	if rootOpts.json {
		return printJSON(struct {
			Cell  string      `json:"cell"`
			Res   int         `json:"res"`
			Faces []int       `json:"faces"`
			Steps []traceStep `json:"steps"`
		}{cell.String(), cell.Resolution(), faceInts(faces), steps})
	}
	fmt.Printf("cell %s res %d faces %s\n", cell.String(), cell.Resolution(), facesLabel(faces))
	for _, st := range steps {
		fmt.Printf("res %2d %s faces %s\n", st.Res, st.Cell, intsLabel(st.Faces))
	}
	return nil
}

func runAncestor(cmd *cobra.Command, args []string) error {
	cell, err := parseCell(args[0])
	if err != nil {
		return err
	}
	faces, err := parseFaces(ancestorOpts.faces)
	if err != nil {
		return err
	}

	anc, err := facetrace.CoarsestAncestor(cell, faces)
	if err != nil {
		return err
	}
	surviving := faces
	if anc != cell {
		surviving, err = facetrace.ToAncestor(cell, faces, anc.Resolution())
		if err != nil {
			return err
		}
	}

	if rootOpts.json {
		return printJSON(struct {
			Cell     string `json:"cell"`
			Ancestor string `json:"ancestor"`
			Res      int    `json:"res"`
			Faces    []int  `json:"faces"`
		}{cell.String(), anc.String(), anc.Resolution(), faceInts(surviving)})
	}
	fmt.Printf("ancestor %s\n", anc.String())
	fmt.Printf("res      %d\n", anc.Resolution())
	fmt.Printf("faces    %s\n", facesLabel(surviving))
	return nil
}

func runChildren(cmd *cobra.Command, args []string) error {
	cell, err := parseCell(args[0])
	if err != nil {
		return err
	}
	faces, err := parseFaces(childOpts.faces)
	if err != nil {
		return err
	}
	res := childOpts.res
	if res < 0 {
		res = cell.Resolution() + 1
	}

	cells, err := facetrace.ChildrenOnFaces(cell, res, faces)
	if err != nil {
		return err
	}

	if rootOpts.json {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = c.String()
		}
		if err := printJSON(struct {
			Cell     string   `json:"cell"`
			Res      int      `json:"res"`
			Count    int      `json:"count"`
			Children []string `json:"children"`
		}{cell.String(), res, len(cells), out}); err != nil {
			return err
		}
	} else {
		for _, c := range cells {
			fmt.Println(c.String())
		}
	}
	fmt.Fprintf(os.Stderr, "%s cells at res %d\n", humanize.Comma(int64(len(cells))), res)
	return nil
}

func printJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func faceInts(s facetrace.FaceSet) []int {
	fs := s.Faces()
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = int(f)
	}
	return out
}

func facesLabel(s facetrace.FaceSet) string {
	if s.Empty() {
		return "(none)"
	}
	return s.String()
}

func intsLabel(fs []int) string {
	if len(fs) == 0 {
		return "(none)"
	}
	out := ""
	for i, f := range fs {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", f)
	}
	return out
}
