package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/heatmap"
	"github.com/matzehuels/clustermap/pkg/pipeline"
	"github.com/matzehuels/clustermap/pkg/report"
)

const (
	formatSVG  = "svg"
	formatJSON = "json"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	pipeline.Options

	center    string // colorscale center; empty means sequential scale
	noCluster bool
	scratch   string
	noCache   bool
	maxLeaves int

	// output optionally receives the bare figure in addition to the report.
	output string
	format string
}

func newRenderOpts() renderOpts {
	opts := renderOpts{}
	opts.TopPercent = pipeline.DefaultTopPercent
	opts.DistMetric = pipeline.DefaultDistMetric
	opts.LinkageMethod = pipeline.DefaultLinkageMethod
	return opts
}

// addPipelineFlags registers the flags shared by render and view.
func addPipelineFlags(cmd *cobra.Command, opts *renderOpts) {
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.noCluster, "no-cluster", false, "keep the input order of rows and columns")
	cmd.Flags().BoolVar(&opts.SortBySum, "sort-by-sum", false, "rank rows by their sum before selecting")
	cmd.Flags().Float64Var(&opts.TopPercent, "top-percent", opts.TopPercent, "percent of rows to keep, in (0, 100]")
	cmd.Flags().StringVar(&opts.center, "center", "", "center of a diverging colorscale")
	cmd.Flags().StringVar(&opts.DistMetric, "metric", opts.DistMetric, "distance metric: euclidean, cityblock, cosine, correlation, ...")
	cmd.Flags().StringVar(&opts.LinkageMethod, "method", opts.LinkageMethod, "linkage method: ward, average, complete, single, ...")
	cmd.Flags().BoolVar(&opts.Dendrogram, "dendrogram", false, "draw dendrograms along both axes")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail instead of keeping the input order when clustering fails")
	cmd.Flags().IntVar(&opts.maxLeaves, "max-leaves", 0, "largest axis that may be clustered (0: default)")
}

func (c *CLI) renderCommand() *cobra.Command {
	opts := newRenderOpts()

	cmd := &cobra.Command{
		Use:   "render [matrix.tsv|matrix.xlsx]",
		Short: "Cluster a matrix and write a heatmap report",
		Long: `Cluster a matrix and write a heatmap report.

The input is a delimited text file (tab, comma or semicolon) or a spreadsheet
whose first column holds row labels and whose header row holds column labels.
Rows and columns are reordered by hierarchical clustering and the report is
written to a new directory under --scratch, which is printed on success.

Cluster trees and payloads are cached locally for faster subsequent runs.`,
		Example: `  # Cluster and render with defaults (euclidean, ward)
  clustermap render counts.tsv

  # Keep the top 10% of rows by sum, with dendrograms
  clustermap render counts.tsv --top-percent 10 --dendrogram

  # Diverging colors centered on zero, and a standalone SVG
  clustermap render log2fc.tsv --center 0 -o figure.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.resolve(args[0])
			if err != nil {
				return err
			}
			return c.runRender(cmd.Context(), o, &opts)
		},
	}

	// Common flags
	cmd.Flags().StringVar(&opts.scratch, "scratch", "", "directory receiving report directories (default: $TMPDIR/clustermap)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "also write the bare figure to this file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "figure format: svg, json (default: from --output extension)")

	addPipelineFlags(cmd, &opts)

	// Report flags
	cmd.Flags().StringVar(&opts.Title, "title", "", "report title")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "markdown shown above the figure")

	return cmd
}

// resolve turns the flags into validated pipeline options for input.
func (o *renderOpts) resolve(input string) (pipeline.Options, error) {
	opts := o.Options
	opts.TSVFilePath = input
	opts.SkipCluster = o.noCluster

	if s := strings.TrimSpace(o.center); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return pipeline.Options{}, errors.New(errors.ErrCodeInvalidParameter, "--center must be numeric, got %q", o.center)
		}
		opts.CenteredBy = &v
	}

	if o.output != "" {
		format, err := figureFormat(o.format, o.output)
		if err != nil {
			return pipeline.Options{}, err
		}
		o.format = format
	}

	if err := opts.ValidateAndSetDefaults(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// figureFormat returns the explicit format, or the one implied by path.
func figureFormat(format, path string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case formatSVG, formatJSON:
		return format, nil
	}
	return "", errors.New(errors.ErrCodeInvalidParameter, "invalid format %q (must be 'svg' or 'json')", format)
}

// runRender executes the pipeline and reports where the output went.
func (c *CLI) runRender(ctx context.Context, opts pipeline.Options, ro *renderOpts) error {
	runner, err := c.newRunner(ro.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	if ro.scratch != "" {
		runner.ScratchDir = ro.scratch
	}
	if ro.maxLeaves > 0 {
		runner.WithMaxLeaves(ro.maxLeaves)
	}

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, os.Stderr, fmt.Sprintf("Clustering %s...", filepath.Base(opts.TSVFilePath)))
	spinner.Start()

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.StopWithError("Render failed")
		return err
	}
	spinner.Stop()
	prog.done("Rendered heatmap")

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if ro.output != "" {
		if err := writeFigure(result.Payload, ro.format, ro.output); err != nil {
			return fmt.Errorf("write %s: %w", ro.output, err)
		}
	}

	w := c.out()
	for _, warning := range result.Warnings {
		printWarning(w, "%s", warning)
	}

	printSuccess(w, "Report written")
	htmlPath, dataPath, err := report.Files(result.Dir)
	if err != nil {
		return err
	}
	printFile(w, htmlPath)
	if dataPath != "" {
		printFile(w, dataPath)
	}
	if ro.output != "" {
		printFile(w, ro.output)
	}
	printStats(w, result.Stats.Rows, result.Stats.Cols, result.Stats.InputRows, result.Stats.InputCols,
		result.Payload.HasDendrograms(), result.CacheInfo.PayloadHit)
	if opts.ShouldCluster() {
		printKeyValue(w, "Clustering", opts.DistMetric+" / "+opts.LinkageMethod)
	}
	fmt.Fprintln(w)
	printNextStep(w, "Browse in the terminal", appName+" view "+opts.TSVFilePath)
	fmt.Fprintln(w, result.Dir)

	return nil
}

func writeFigure(p heatmap.Payload, format, path string) error {
	var data []byte
	switch format {
	case formatJSON:
		var err error
		if data, err = report.RenderJSON(p); err != nil {
			return err
		}
	default:
		data = report.RenderSVG(p)
	}
	return os.WriteFile(path, data, 0o644)
}
