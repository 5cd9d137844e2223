// Package restore reverses redaction: it substitutes every literal
// placeholder found in a text with its original value from a mapping
// store. Downstream AI output may omit, reorder, or paraphrase
// placeholders, so unmatched placeholder-like tokens are left verbatim
// rather than treated as errors.
package restore

import (
	"sort"
	"strings"

	"github.com/dativo-io/cloak/internal/mapping"
)

// Source provides the full placeholder → original table. A frozen
// mapping.Store satisfies it and is safe for concurrent reads.
type Source interface {
	Restorations() []mapping.Restoration
}

// Restorer substitutes placeholders back to originals.
type Restorer struct {
	source Source
}

// New creates a Restorer over a live or loaded mapping store.
func New(source Source) *Restorer {
	return &Restorer{source: source}
}

// Restore replaces every occurrence of every known placeholder in text and
// returns the restored text with the number of replacements made.
// Substitution proceeds longest placeholder first so a placeholder that is
// a prefix of another can never clobber it.
func (r *Restorer) Restore(text string) (string, int) {
	pairs := r.source.Restorations()
	if len(pairs) == 0 {
		return text, 0
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if len(pairs[i].Placeholder) != len(pairs[j].Placeholder) {
			return len(pairs[i].Placeholder) > len(pairs[j].Placeholder)
		}
		return pairs[i].Placeholder < pairs[j].Placeholder
	})

	count := 0
	for _, p := range pairs {
		if p.Placeholder == "" {
			continue
		}
		if n := strings.Count(text, p.Placeholder); n > 0 {
			text = strings.ReplaceAll(text, p.Placeholder, p.Original)
			count += n
		}
	}
	return text, count
}
