// Package report renders axis results, heap comparisons and diff reports
// for terminals or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/vjranagit/editmetrics/pkg/storage"
	"github.com/vjranagit/editmetrics/pkg/types"
)

// Format selects the output encoding
type Format string

// Supported formats
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d62728"))
)

// Emitter writes reports to w
type Emitter struct {
	w       io.Writer
	styles  StyleTable
	format  Format
	showAll bool
}

// Option configures an Emitter
type Option func(*Emitter)

// WithFormat sets the output format
func WithFormat(f Format) Option {
	return func(e *Emitter) { e.format = f }
}

// WithAll also renders normalized series with no non-zero value
func WithAll(all bool) Option {
	return func(e *Emitter) { e.showAll = all }
}

// NewEmitter creates an emitter. A nil style table uses DefaultStyles.
func NewEmitter(w io.Writer, styles StyleTable, opts ...Option) *Emitter {
	if styles == nil {
		styles = DefaultStyles()
	}
	e := &Emitter{w: w, styles: styles, format: FormatTable}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Axis renders the normalized series of one axis result, one row per key
func (e *Emitter) Axis(res *types.AxisResult) error {
	if e.format == FormatJSON {
		return e.json(res)
	}

	var metrics []string
	for _, m := range res.Metrics {
		n, ok := res.Normalized[m]
		if !ok {
			continue
		}
		if !e.showAll && !n.Visible() {
			continue
		}
		metrics = append(metrics, m)
	}

	title := res.Label
	if res.Variant != "" {
		title += " (" + res.Variant + ")"
	}
	fmt.Fprintln(e.w, titleStyle.Render(title))

	if len(metrics) == 0 {
		fmt.Fprintln(e.w, mutedStyle.Render("no series to show"))
		e.failures(res)
		return nil
	}

	headers := []string{res.Label}
	for _, m := range metrics {
		headers = append(headers, e.styles.Lookup(m).Name)
	}

	rows := make([][]string, len(res.Keys))
	for i, k := range res.Keys {
		row := []string{strconv.FormatInt(int64(k), 10)}
		for _, m := range metrics {
			row = append(row, fmt.Sprintf("%.3f (%s)", res.Normalized[m].Values[i], humanize.Commaf(res.Series[m].Values[i])))
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return headerStyle
				}
				return headerStyle.Foreground(e.styles.Lookup(metrics[col-1]).TermColor())
			}
			return cellStyle
		})
	fmt.Fprintln(e.w, t.Render())

	e.legend(metrics)
	e.failures(res)
	return nil
}

func (e *Emitter) legend(names []string) {
	for _, name := range names {
		s := e.styles.Lookup(name)
		stroke := lipgloss.NewStyle().Foreground(s.TermColor()).Render(s.Stroke())
		fmt.Fprintf(e.w, "  %s %s\n", stroke, s.Name)
	}
}

func (e *Emitter) failures(res *types.AxisResult) {
	for _, path := range res.Skipped {
		fmt.Fprintln(e.w, mutedStyle.Render("skipped "+path))
	}

	failed := make([]string, 0, len(res.Failed))
	for m := range res.Failed {
		failed = append(failed, m)
	}
	sort.Strings(failed)
	for _, m := range failed {
		fmt.Fprintln(e.w, errorStyle.Render(fmt.Sprintf("%s: %s", m, res.Failed[m])))
	}
}

// Heap renders an aligned heap-size comparison. Rows present in the
// reference column carry a commit marker.
func (e *Emitter) Heap(cmp *types.Comparison) error {
	if e.format == FormatJSON {
		return e.json(cmp)
	}
	e.comparison("Document Size", cmp, formatBytes)
	return nil
}

// History renders archived runs of one metric side by side
func (e *Emitter) History(cmp *types.Comparison) error {
	if e.format == FormatJSON {
		return e.json(cmp)
	}
	e.comparison("History of "+cmp.Label, cmp, formatNumber)
	return nil
}

func (e *Emitter) comparison(title string, cmp *types.Comparison, format func(*float64) string) {
	fmt.Fprintln(e.w, titleStyle.Render(title))

	headers := []string{cmp.Label}
	names := make([]string, len(cmp.Columns))
	for i, col := range cmp.Columns {
		names[i] = col.Source
		headers = append(headers, e.styles.Lookup(col.Source).Name)
	}
	marked := cmp.Reference != ""
	if marked {
		headers = append(headers, "commit")
	}

	rows := make([][]string, len(cmp.Keys))
	for i, k := range cmp.Keys {
		row := []string{strconv.FormatInt(int64(k), 10)}
		for _, col := range cmp.Columns {
			row = append(row, format(col.Values[i]))
		}
		if marked {
			marker := ""
			if cmp.Marked(i) {
				marker = "●"
			}
			row = append(row, marker)
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 || col > len(names) {
					return headerStyle
				}
				return headerStyle.Foreground(e.styles.Lookup(names[col-1]).TermColor())
			}
			if col > 0 && col <= len(names) {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	fmt.Fprintln(e.w, t.Render())

	e.legend(names)
}

func formatBytes(v *float64) string {
	if v == nil {
		return ""
	}
	if *v < 0 {
		return humanize.Commaf(*v)
	}
	return humanize.Bytes(uint64(*v))
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return humanize.Commaf(*v)
}

// Diff renders the per-document interleaving counts and their mean
func (e *Emitter) Diff(r types.DiffReport) error {
	if e.format == FormatJSON {
		return e.json(r)
	}

	fmt.Fprintln(e.w, titleStyle.Render("Interleaving against "+r.Reference))

	docs := make([]string, 0, len(r.Entries))
	for name := range r.Entries {
		docs = append(docs, name)
	}
	sort.Strings(docs)

	rows := make([][]string, 0, len(docs))
	for _, name := range docs {
		rows = append(rows, []string{name, humanize.Comma(int64(r.Entries[name]))})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("document", "differing lines").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	fmt.Fprintln(e.w, t.Render())

	fmt.Fprintf(e.w, "%d documents, average %.2f\n", r.Count, r.Mean)
	return nil
}

// Error renders a failed axis or comparison without aborting the report
func (e *Emitter) Error(name string, err error) {
	fmt.Fprintln(e.w, errorStyle.Render(fmt.Sprintf("%s: %v", name, err)))
}

func (e *Emitter) json(v any) error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSON writes v as indented JSON to path
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// Runs renders the archived run history
func (e *Emitter) Runs(runs []storage.Run) error {
	if e.format == FormatJSON {
		return e.json(runs)
	}

	fmt.Fprintln(e.w, titleStyle.Render("Archived runs"))
	if len(runs) == 0 {
		fmt.Fprintln(e.w, mutedStyle.Render("no runs archived"))
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.Axis,
			r.Variant,
			humanize.Comma(int64(r.Points)),
			strconv.Itoa(len(r.Metrics)),
			humanize.Time(r.CreatedAt),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("run", "axis", "variant", "points", "metrics", "created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(e.w, t.Render())
	return nil
}
