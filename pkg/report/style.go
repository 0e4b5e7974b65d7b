package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Style is the display metadata for one metric or heap source
type Style struct {
	Name      string  `json:"name" yaml:"name"`
	Color     string  `json:"color" yaml:"color"`
	LineStyle string  `json:"linestyle,omitempty" yaml:"linestyle,omitempty"`
	LineWidth float64 `json:"linewidth,omitempty" yaml:"linewidth,omitempty"`
}

// StyleTable maps metric or source names to their display metadata
type StyleTable map[string]Style

// DefaultStyles returns the stock display table for the built-in metrics
// and heap variants.
func DefaultStyles() StyleTable {
	return StyleTable{
		"delete_stash_counter":             {Name: "Delete stash activate", Color: "#03071e", LineStyle: "-"},
		"delete_valid_counter":             {Name: "Valid delete messages", Color: "#370617", LineStyle: "--"},
		"insert_distance_greater_than_one": {Name: "Insert messages ahead of local clock", Color: "#7209b7", LineStyle: "--", LineWidth: 1},
		"insert_valid_counter":             {Name: "Valid insert messages", Color: "#9d0208", LineStyle: "-"},
		"byzantine_delete_counter":         {Name: "Delete messages Distrusted nodes", Color: "#e85d04", LineStyle: "-.", LineWidth: 1},
		"byzantine_insert_counter":         {Name: "Insert messages Distrusted nodes", Color: "#3d405b", LineStyle: ":", LineWidth: 1.2},
		"delete_requeue_counter":           {Name: "Delete messages requeued", Color: "#e85d04", LineStyle: ":", LineWidth: 2},
		"delete_requeue_limit":             {Name: "Delete messages reach requeue limit", Color: "#ff006e", LineStyle: ":", LineWidth: 1},
		"insert_request_limit_counter":     {Name: "Insert messages reach request limit", Color: "#d00000", LineStyle: "-."},
		"insert_stash_fail_counter":        {Name: "Insert messages fail stash", Color: "#081c15", LineStyle: "-"},

		"fugue":           {Name: "Fugue", Color: "blue", LineStyle: "-", LineWidth: 2},
		"syncordian":      {Name: "Syncordian", Color: "green", LineStyle: "--", LineWidth: 2},
		"logoot":          {Name: "Logoot", Color: "orange", LineStyle: "-.", LineWidth: 2},
		"Original README": {Name: "Original README", Color: "red", LineStyle: ":", LineWidth: 2},
	}
}

// Lookup returns the style for name. Unknown names render under their raw
// name, in black, with a solid line of width 1.
func (t StyleTable) Lookup(name string) Style {
	s, ok := t[name]
	if !ok {
		return Style{Name: name, Color: "black", LineStyle: "-", LineWidth: 1}
	}
	if s.Name == "" {
		s.Name = name
	}
	if s.Color == "" {
		s.Color = "black"
	}
	if s.LineStyle == "" {
		s.LineStyle = "-"
	}
	if s.LineWidth == 0 {
		s.LineWidth = 1
	}
	return s
}

// Merge returns a copy of t with the entries of other layered on top
func (t StyleTable) Merge(other StyleTable) StyleTable {
	out := make(StyleTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

var namedColors = map[string]string{
	"black":     "#000000",
	"blue":      "#1f77b4",
	"green":     "#2ca02c",
	"orange":    "#ff7f0e",
	"red":       "#d62728",
	"lightgray": "#d3d3d3",
	"gray":      "#808080",
}

// TermColor resolves the style colour for terminal output
func (s Style) TermColor() lipgloss.Color {
	if hex, ok := namedColors[strings.ToLower(s.Color)]; ok {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(s.Color)
}

// Stroke draws a short legend sample of the line style
func (s Style) Stroke() string {
	switch s.LineStyle {
	case "--", "dashed":
		return "╌╌╌"
	case "-.", "dashdot":
		return "─·─"
	case ":", "dotted":
		return "┈┈┈"
	default:
		if s.LineWidth >= 2 {
			return "━━━"
		}
		return "───"
	}
}
