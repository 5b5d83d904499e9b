// Package catalog fetches raw trail records and normalizes them into
// ranked-ready candidates.
package catalog

import (
	"sort"

	"go.uber.org/zap"

	"github.com/leve-labs/trailmatch/internal/domain"
	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// ToCandidates converts raw records into candidates. Invalid records
// are skipped with a diagnostic; the whole batch fails only when no
// valid candidate remains.
func ToCandidates(raw []map[string]any, log *zap.Logger) ([]trail.Candidate, error) {
	if log == nil {
		log = zap.NewNop()
	}

	candidates := make([]trail.Candidate, 0, len(raw))
	for i, record := range raw {
		c, err := trail.FromSource(record)
		if err != nil {
			log.Warn("skipping invalid catalog record",
				zap.Int("position", i),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, domain.ErrNoValidCandidates
	}
	return candidates, nil
}

// DedupeByID keeps one candidate per identifier, preferring the more
// complete record; ties keep the first occurrence. Output is sorted by
// folded title, folded slug, then ID so downstream processing is
// deterministic.
func DedupeByID(candidates []trail.Candidate) []trail.Candidate {
	best := make(map[string]trail.Candidate, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		id := c.ID.String()
		existing, ok := best[id]
		if !ok {
			best[id] = c
			order = append(order, id)
			continue
		}
		if c.Completeness() > existing.Completeness() {
			best[id] = c
		}
	}

	out := make([]trail.Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := textnorm.Fold(out[i].Title), textnorm.Fold(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		si, sj := textnorm.Fold(out[i].Slug), textnorm.Fold(out[j].Slug)
		if si != sj {
			return si < sj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// FilterByStatus keeps only candidates whose status is on the allow
// list, compared case-insensitively. Candidates without a status are
// dropped. Emits a diagnostic when the filter empties a non-empty set.
func FilterByStatus(candidates []trail.Candidate, allowed []string, log *zap.Logger) []trail.Candidate {
	if log == nil {
		log = zap.NewNop()
	}

	allowSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowSet[textnorm.Fold(s)] = struct{}{}
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Status == "" {
			continue
		}
		if _, ok := allowSet[textnorm.Fold(string(c.Status))]; ok {
			out = append(out, c)
		}
	}

	if len(candidates) > 0 && len(out) == 0 {
		log.Warn("status filter removed every candidate",
			zap.Int("input", len(candidates)),
			zap.Strings("allowed_statuses", allowed))
	}
	return out
}
