package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/clustermap/pkg/heatmap"
	"github.com/matzehuels/clustermap/pkg/pipeline"
)

const (
	viewCellWidth  = 2
	viewLabelWidth = 16
	// viewChrome is the number of lines used by header and footer.
	viewChrome = 6
)

var (
	viewLabelStyle  = lipgloss.NewStyle().Foreground(colorGray).Width(viewLabelWidth)
	viewActiveStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Width(viewLabelWidth)
	viewDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// HeatmapModel - Scrollable terminal heatmap
// =============================================================================

// HeatmapModel is the bubbletea model for browsing a payload cell by cell.
type HeatmapModel struct {
	Payload heatmap.Payload
	Title   string

	// Row and Col are the cursor position.
	Row, Col int
	// RowOffset and ColOffset are the first visible cell.
	RowOffset, ColOffset int
	// Height and Width are the number of visible rows and columns.
	Height, Width int
}

// NewHeatmapModel creates a model showing p from its top-left cell.
func NewHeatmapModel(p heatmap.Payload, title string) HeatmapModel {
	return HeatmapModel{Payload: p, Title: title, Height: 20, Width: 30}
}

func (m HeatmapModel) Init() tea.Cmd {
	return nil
}

func (m HeatmapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.Row--
		case "down", "j":
			m.Row++
		case "left", "h":
			m.Col--
		case "right", "l":
			m.Col++
		case "pgup":
			m.Row -= m.Height
		case "pgdown":
			m.Row += m.Height
		case "home", "g":
			m.Row, m.Col = 0, 0
		case "end", "G":
			m.Row, m.Col = m.Payload.Rows()-1, m.Payload.Cols()-1
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-viewChrome, 3)
		m.Width = max((msg.Width-viewLabelWidth-1)/viewCellWidth, 3)
	}
	m.clamp()
	return m, nil
}

// clamp keeps the cursor inside the matrix and the viewport around it.
func (m *HeatmapModel) clamp() {
	m.Row = min(max(m.Row, 0), max(m.Payload.Rows()-1, 0))
	m.Col = min(max(m.Col, 0), max(m.Payload.Cols()-1, 0))

	if m.Row < m.RowOffset {
		m.RowOffset = m.Row
	}
	if m.Row >= m.RowOffset+m.Height {
		m.RowOffset = m.Row - m.Height + 1
	}
	if m.Col < m.ColOffset {
		m.ColOffset = m.Col
	}
	if m.Col >= m.ColOffset+m.Width {
		m.ColOffset = m.Col - m.Width + 1
	}
}

func (m HeatmapModel) View() string {
	p := m.Payload
	var b strings.Builder

	title := m.Title
	if title == "" {
		title = "Heatmap"
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("  ")
	b.WriteString(viewDimStyle.Render(fmt.Sprintf("%d×%d", p.Rows(), p.Cols())))
	b.WriteString("\n")
	b.WriteString(viewDimStyle.Render("←↑↓→ move  pgup/pgdn page  g/G ends  q quit"))
	b.WriteString("\n\n")

	rowEnd := min(m.RowOffset+m.Height, p.Rows())
	colEnd := min(m.ColOffset+m.Width, p.Cols())
	for i := m.RowOffset; i < rowEnd; i++ {
		label := truncate(p.YLabels[i], viewLabelWidth-1)
		if i == m.Row {
			b.WriteString(viewActiveStyle.Render(label))
		} else {
			b.WriteString(viewLabelStyle.Render(label))
		}
		for j := m.ColOffset; j < colEnd; j++ {
			b.WriteString(m.cell(i, j))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if p.Rows() > 0 && p.Cols() > 0 {
		b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s",
			viewDimStyle.Render("row"), StyleValue.Render(p.YLabels[m.Row]),
			viewDimStyle.Render("col"), StyleValue.Render(p.XLabels[m.Col]),
			viewDimStyle.Render("value"), StyleValue.Render(strconv.FormatFloat(p.Values[m.Row][m.Col], 'g', 6, 64))))
	}
	b.WriteString("\n")
	b.WriteString(viewDimStyle.Render(fmt.Sprintf("  [%d/%d, %d/%d]", m.Row+1, p.Rows(), m.Col+1, p.Cols())))

	return b.String()
}

func (m HeatmapModel) cell(i, j int) string {
	color := m.Payload.ColorScale.ColorAt(m.Payload.Values[i][j])
	style := lipgloss.NewStyle().Background(lipgloss.Color(color))
	text := strings.Repeat(" ", viewCellWidth)
	if i == m.Row && j == m.Col {
		style = style.Foreground(lipgloss.Color("0")).Bold(true)
		text = "◆ "
	}
	return style.Render(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// =============================================================================
// view command
// =============================================================================

func (c *CLI) viewCommand() *cobra.Command {
	opts := newRenderOpts()

	cmd := &cobra.Command{
		Use:   "view [matrix.tsv|matrix.xlsx]",
		Short: "Browse the clustered heatmap in the terminal",
		Long: `Browse the clustered heatmap in the terminal.

The matrix goes through the same selection and clustering as 'render', but
nothing is written to disk. Cells are colored with the report's colorscale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := opts.resolve(args[0])
			if err != nil {
				return err
			}
			return c.runView(cmd.Context(), o, &opts)
		},
	}

	addPipelineFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.Title, "title", "", "title shown above the heatmap")

	return cmd
}

func (c *CLI) runView(ctx context.Context, opts pipeline.Options, ro *renderOpts) error {
	p, err := c.buildPayload(ctx, opts, ro)
	if err != nil {
		return err
	}

	title := opts.Title
	if title == "" {
		title = opts.TSVFilePath
	}
	_, err = tea.NewProgram(NewHeatmapModel(p, title), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// buildPayload runs the pipeline up to the payload.
func (c *CLI) buildPayload(ctx context.Context, opts pipeline.Options, ro *renderOpts) (heatmap.Payload, error) {
	runner, err := c.newRunner(ro.noCache)
	if err != nil {
		return heatmap.Payload{}, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()
	if ro.maxLeaves > 0 {
		runner.WithMaxLeaves(ro.maxLeaves)
	}

	result, err := runner.Build(ctx, opts)
	if err != nil {
		return heatmap.Payload{}, err
	}
	for _, w := range result.Warnings {
		c.Logger.Warn(w)
	}
	return result.Payload, nil
}
