// Package query turns a user question plus an optional profile snapshot
// into the retrieval query strings. The dense and lexical paths get
// different strings: synonym expansion helps term matching but would
// only dilute an embedding, so it is applied to the lexical string only.
package query

import (
	"sort"
	"strings"

	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// Query holds the built retrieval strings and the intermediate parts
// kept for logging and explanations.
type Query struct {
	Dense    string
	Lexical  string
	Hints    []string
	Synonyms []string
}

// genericMarkers are snapshot values that carry no signal and are
// skipped when mining hints.
var genericMarkers = map[string]struct{}{
	"nao informado": {},
	"n/a":           {},
	"nenhum":        {},
	"none":          {},
}

// Builder constructs retrieval queries from user input and snapshots.
type Builder struct {
	cfg config.QueryConfig
}

// NewBuilder creates a Builder with the given query configuration.
func NewBuilder(cfg config.QueryConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build assembles the dense and lexical query strings. Blocks are the
// cleaned question, the snapshot hints joined by "; ", and the extra
// context, joined with " || ". Identical inputs always produce
// identical output.
func (b *Builder) Build(question string, snapshot map[string]any, extra string) Query {
	q := Query{}

	blocks := make([]string, 0, 3)
	cleaned := textnorm.Clean(question)
	if cleaned != "" {
		blocks = append(blocks, cleaned)
	}

	if !b.cfg.DisableSnapshotHints && snapshot != nil {
		q.Hints = b.mineHints(snapshot)
		if len(q.Hints) > 0 {
			blocks = append(blocks, strings.Join(q.Hints, "; "))
		}
	}

	if extra = textnorm.Clean(extra); extra != "" {
		blocks = append(blocks, extra)
	}

	base := strings.Join(blocks, " || ")

	q.Dense = b.truncate(base)

	lex := base
	if !b.cfg.DisableSynonyms {
		q.Synonyms = b.expandSynonyms(cleaned)
		if len(q.Synonyms) > 0 {
			lex = base + " || " + strings.Join(q.Synonyms, " ")
		}
	}
	q.Lexical = b.truncate(lex)

	return q
}

// mineHints walks the configured snapshot paths in order and collects
// up to SnapshotMaxHints usable string values.
func (b *Builder) mineHints(snapshot map[string]any) []string {
	var hints []string
	for _, path := range b.cfg.HintPaths {
		for _, v := range resolvePath(snapshot, strings.Split(path, ".")) {
			hint := textnorm.Clean(v)
			if !usableHint(hint) {
				continue
			}
			hints = append(hints, hint)
			if len(hints) >= b.cfg.SnapshotMaxHints {
				return hints
			}
		}
	}
	return hints
}

// resolvePath walks nested maps along a dotted path. A trailing "*"
// expands all values of the current map, sorted by key so output order
// is stable. Leaves may be strings or lists of strings.
func resolvePath(node any, segments []string) []string {
	if len(segments) == 0 {
		return leafStrings(node)
	}

	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}

	seg := segments[0]
	if seg == "*" {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, resolvePath(m[k], segments[1:])...)
		}
		return out
	}

	child, ok := m[seg]
	if !ok {
		return nil
	}
	return resolvePath(child, segments[1:])
}

func leafStrings(node any) []string {
	switch v := node.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func usableHint(hint string) bool {
	if len(hint) < 3 {
		return false
	}
	_, generic := genericMarkers[textnorm.Fold(hint)]
	return !generic
}

// expandSynonyms looks up each question token longer than three
// characters in the synonym table, in first-occurrence order, deduping
// expansions by folded form.
func (b *Builder) expandSynonyms(question string) []string {
	if len(b.cfg.Synonyms) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range textnorm.Tokenize(question) {
		if len(tok) <= 3 {
			continue
		}
		for _, syn := range b.cfg.Synonyms[tok] {
			key := textnorm.Fold(syn)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, syn)
			if len(out) >= b.cfg.MaxSynonyms {
				return out
			}
		}
	}
	return out
}

func (b *Builder) truncate(s string) string {
	if b.cfg.MaxLength <= 0 {
		return s
	}
	return textnorm.Truncate(s, b.cfg.MaxLength)
}
