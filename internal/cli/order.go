package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/loader"
	"github.com/matzehuels/clustermap/pkg/pipeline"
)

const (
	axisRows = "rows"
	axisCols = "cols"
)

type orderOpts struct {
	axis      string
	metric    string
	method    string
	links     bool
	maxLeaves int
}

// orderCommand prints the clustered leaf order of one axis.
func (c *CLI) orderCommand() *cobra.Command {
	opts := orderOpts{
		axis:   axisRows,
		metric: pipeline.DefaultDistMetric,
		method: pipeline.DefaultLinkageMethod,
	}

	cmd := &cobra.Command{
		Use:   "order [matrix.tsv]",
		Short: "Print the clustered order of rows or columns (debug tool)",
		Long: `Print the clustered order of rows or columns, one label per line.

With --links the merge steps of the cluster tree are printed as well, in
linkage-matrix form: the two merged cluster ids, their distance and the size
of the new cluster. Leaves are numbered in input order starting at 0.`,
		Example: `  clustermap order counts.tsv
  clustermap order counts.tsv --axis cols --metric correlation --method average --links`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.axis != axisRows && opts.axis != axisCols {
				return errors.New(errors.ErrCodeInvalidParameter, "invalid axis %q (must be 'rows' or 'cols')", opts.axis)
			}
			return c.runOrder(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.axis, "axis", opts.axis, "axis to order: rows, cols")
	cmd.Flags().StringVar(&opts.metric, "metric", opts.metric, "distance metric")
	cmd.Flags().StringVar(&opts.method, "method", opts.method, "linkage method")
	cmd.Flags().BoolVar(&opts.links, "links", false, "print the merge steps")
	cmd.Flags().IntVar(&opts.maxLeaves, "max-leaves", 0, "largest axis that may be clustered (0: default)")

	return cmd
}

func (c *CLI) runOrder(ctx context.Context, input string, opts orderOpts) error {
	m, err := loader.Load(input)
	if err != nil {
		return err
	}

	req := cluster.Request{Metric: opts.metric, Method: opts.method}
	if opts.axis == axisRows {
		req.Labels, req.Vectors = m.RowLabels, m.RowVectors()
	} else {
		req.Labels, req.Vectors = m.ColLabels, m.ColVectors()
	}

	h := cluster.NewHierarchical(c.Logger)
	if opts.maxLeaves > 0 {
		h.MaxLeaves = opts.maxLeaves
	}

	w := c.out()
	if len(req.Labels) == 1 || !opts.links {
		order, err := cluster.Order(ctx, h, req)
		if err != nil {
			return err
		}
		for _, label := range order {
			fmt.Fprintln(w, label)
		}
		return nil
	}

	tree, err := h.Tree(ctx, req)
	if err != nil {
		return err
	}
	for _, label := range tree.Leaves() {
		fmt.Fprintln(w, label)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, linkTable(tree))
	return nil
}

// linkTable renders the merge steps of t.
func linkTable(t *cluster.Tree) string {
	rows := make([][]string, len(t.Links))
	for k, l := range t.Links {
		rows[k] = []string{
			strconv.Itoa(t.N() + k),
			clusterName(t, l.A),
			clusterName(t, l.B),
			strconv.FormatFloat(l.Distance, 'g', 6, 64),
			strconv.Itoa(l.Size),
		}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Cluster", "A", "B", "Distance", "Size").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 0 {
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

// clusterName shows leaves by label and merged clusters by id.
func clusterName(t *cluster.Tree, id int) string {
	if id < t.N() {
		return t.Labels[id]
	}
	return strconv.Itoa(id)
}
