// File path: internal/dataset/registry.go
package dataset

import (
	"sort"
	"strings"
	"sync"
)

// ColumnRegistry is the set of column names seen across every structured
// dataset ingested so far. It is append-only: datasets are uploaded
// dynamically, so the filter matches against the live set instead of a fixed
// schema. Concurrent readers may miss a column added mid-read, which at worst
// skips a constraint for that one question.
type ColumnRegistry struct {
	mu      sync.RWMutex
	columns map[string]struct{}
}

func NewColumnRegistry() *ColumnRegistry {
	return &ColumnRegistry{columns: make(map[string]struct{})}
}

// Add registers column names. Blank names are ignored; duplicates are a
// no-op. Columns are never removed.
func (r *ColumnRegistry) Add(names ...string) {
	if r == nil || len(names) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		r.columns[trimmed] = struct{}{}
	}
}

// Columns returns a sorted copy of the registered names. Sorting keeps
// constraint extraction deterministic across calls.
func (r *ColumnRegistry) Columns() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.columns))
	for name := range r.columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *ColumnRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.columns)
}
