// Package axis recovers ordering keys from snapshot filenames.
//
// Every experiment axis has one fixed pattern with a single integer capture
// group. A filename that does not match, or whose digits overflow, has no key
// and must be left out of the ordering rather than sorted as zero.
package axis

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Axis describes one experiment dimension
type Axis struct {
	Name      string
	Label     string
	Extension string
	Metrics   []string
	pattern   *regexp.Regexp
}

// Built-in axes
var (
	Commit = MustNew("commit", "Commit Number", `commit_(\d+)_`, ".json",
		"delete_stash_counter",
		"delete_valid_counter",
		"insert_distance_greater_than_one",
		"insert_valid_counter",
	)

	Byzantine = MustNew("byzantine_nodes", "Number of Distrusted Nodes", `byzantine_nodes_(\d+)_`, ".json",
		"byzantine_delete_counter",
		"byzantine_insert_counter",
		"delete_requeue_limit",
		"insert_distance_greater_than_one",
		"insert_request_limit_counter",
		"insert_stash_fail_counter",
		"insert_valid_counter",
		"delete_valid_counter",
	)

	Edit = MustNew("edit", "Edit Number", `edit_(\d+)\.json`, ".json", "heap_size")
)

// Builtin returns the built-in axes in a stable order
func Builtin() []Axis {
	return []Axis{Commit, Byzantine, Edit}
}

// New compiles an axis. The pattern must contain exactly one capture group.
func New(name, label, pattern, ext string, metrics ...string) (Axis, error) {
	if name == "" {
		return Axis{}, fmt.Errorf("axis name is required")
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Axis{}, fmt.Errorf("axis %s: invalid pattern: %w", name, err)
	}
	if re.NumSubexp() != 1 {
		return Axis{}, fmt.Errorf("axis %s: pattern %q must have exactly one capture group", name, pattern)
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return Axis{
		Name:      name,
		Label:     label,
		Extension: ext,
		Metrics:   append([]string(nil), metrics...),
		pattern:   re,
	}, nil
}

// MustNew is like New but panics on error
func MustNew(name, label, pattern, ext string, metrics ...string) Axis {
	a, err := New(name, label, pattern, ext, metrics...)
	if err != nil {
		panic(err)
	}
	return a
}

// Pattern returns the source of the axis pattern
func (a Axis) Pattern() string {
	if a.pattern == nil {
		return ""
	}
	return a.pattern.String()
}

// WithMetrics returns a copy of the axis requesting a different metric set
func (a Axis) WithMetrics(metrics ...string) Axis {
	a.Metrics = append([]string(nil), metrics...)
	return a
}

// Extract returns the first integer matched by the axis pattern in name.
// The boolean is false when the name carries no key.
func (a Axis) Extract(name string) (types.OrderingKey, bool) {
	if a.pattern == nil {
		return 0, false
	}

	m := a.pattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return types.OrderingKey(n), true
}

// Accepts reports whether a file belongs to the axis by extension. The match
// is case-sensitive.
func (a Axis) Accepts(name string) bool {
	if a.Extension == "" {
		return true
	}
	return strings.HasSuffix(name, a.Extension)
}

// Lookup finds a built-in axis by name
func Lookup(name string) (Axis, bool) {
	for _, a := range Builtin() {
		if a.Name == name {
			return a, true
		}
	}
	return Axis{}, false
}
