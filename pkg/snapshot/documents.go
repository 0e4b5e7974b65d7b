package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Document is a plain-text document split into lines
type Document struct {
	Name  string
	Lines []string
}

// SplitLines splits text after every newline, keeping the terminator on each
// line. A trailing line without a newline is kept as is.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ReadDocument reads a text file into lines
func ReadDocument(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.InputError{Op: "read document", Path: path, Err: types.ErrNotFound}
		}
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return SplitLines(string(data)), nil
}

// ReadDocuments reads every regular file in dir, sorted by name
func ReadDocuments(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.InputError{Op: "read documents", Path: dir, Err: types.ErrNotFound}
		}
		return nil, fmt.Errorf("failed to read document directory %s: %w", dir, err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		lines, err := ReadDocument(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: entry.Name(), Lines: lines})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
