// Package interleave measures how far a document drifted from a reference
// at line granularity.
//
// The count is the number of lines in a minimal line-level edit script that
// appear only in the candidate or only in the reference. Lines common to both
// in order are not counted, so order and multiplicity matter:
//
//	Count([a b], [b a]) == 2
//	Count(D, D)         == 0
//	Count(D1, D2)       == len(D1) + len(D2)   when D1 and D2 share no line
package interleave

import (
	"context"
	"fmt"
	"runtime"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/editmetrics/pkg/snapshot"
	"github.com/vjranagit/editmetrics/pkg/types"
)

// Engine computes interleaving counts
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	workers int
}

// NewEngine creates a new engine comparing up to workers documents at once.
// workers <= 0 means one per CPU.
func NewEngine(workers int) *Engine {
	dmp := diffmatchpatch.New()
	// no deadline: a timed-out diff is not minimal
	dmp.DiffTimeout = 0

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{dmp: dmp, workers: workers}
}

// DefaultEngine is shared by the package-level helpers
var DefaultEngine = NewEngine(0)

// Count is a convenience function using the default engine
func Count(candidate, reference []string) int {
	return DefaultEngine.Count(candidate, reference)
}

// Count returns the number of lines only in candidate or only in reference.
func (e *Engine) Count(candidate, reference []string) int {
	if len(candidate) == 0 || len(reference) == 0 {
		return len(candidate) + len(reference)
	}

	a, b, ok := encodeLines(candidate, reference)
	if !ok {
		return lcsCount(candidate, reference)
	}

	diffs := e.dmp.DiffMainRunes(a, b, false)

	count := 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete, diffmatchpatch.DiffInsert:
			count += utf8.RuneCountInString(d.Text)
		}
	}
	return count
}

// Compare counts every document against the reference and aggregates the
// counts into a report. Documents are compared in parallel; the report is
// built only once every comparison has finished.
func (e *Engine) Compare(ctx context.Context, reference string, refLines []string, docs []snapshot.Document) (types.DiffReport, error) {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.Name] {
			return types.DiffReport{}, fmt.Errorf("%w: document %q listed twice", types.ErrDuplicateKey, d.Name)
		}
		seen[d.Name] = true
	}

	counts := make([]int, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[i] = e.Count(docs[i].Lines, refLines)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return types.DiffReport{}, err
	}

	entries := make(map[string]int, len(docs))
	for i, d := range docs {
		entries[d.Name] = counts[i]
	}
	return types.NewDiffReport(reference, entries), nil
}

// encodeLines maps every distinct line to one rune so the character diff
// becomes a line diff. Surrogate code points are skipped because they do not
// survive a round trip through string.
func encodeLines(a, b []string) ([]rune, []rune, bool) {
	ids := make(map[string]rune, len(a)+len(b))
	next := rune(1)

	encode := func(lines []string) ([]rune, bool) {
		out := make([]rune, len(lines))
		for i, line := range lines {
			r, ok := ids[line]
			if !ok {
				if next >= 0xD800 && next <= 0xDFFF {
					next = 0xE000
				}
				if next > utf8.MaxRune {
					return nil, false
				}
				r = next
				ids[line] = r
				next++
			}
			out[i] = r
		}
		return out, true
	}

	ra, ok := encode(a)
	if !ok {
		return nil, nil, false
	}
	rb, ok := encode(b)
	if !ok {
		return nil, nil, false
	}
	return ra, rb, true
}
