package retriever

import (
	"sort"

	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

// fuseRRF merges the two streams via Reciprocal Rank Fusion:
// score(d) = sum of 1/(k + rank_i(d)) for each ranking where d appears.
// Raw stream scores are preserved on the result for explainability.
func (f *Fuser) fuseRRF(semantic []vectorindex.Match, lexical map[string]float64, topK int) []Result {
	k := f.cfg.RRFK

	merged := make(map[string]*Result, len(semantic)+len(lexical))

	for rank, m := range semantic {
		merged[m.ID] = &Result{
			ID:         m.ID,
			Semantic:   m.Score,
			Combined:   1.0 / float64(k+rank+1),
			InSemantic: true,
		}
	}

	for rank, id := range lexicalRanking(lexical) {
		s := 1.0 / float64(k+rank+1)
		if existing, ok := merged[id]; ok {
			existing.Combined += s
			existing.Lexical = lexical[id]
			existing.InLexical = true
		} else {
			merged[id] = &Result{
				ID:        id,
				Lexical:   lexical[id],
				Combined:  s,
				InLexical: true,
			}
		}
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}

	return sortAndCut(results, topK)
}

// lexicalRanking orders IDs by lexical score descending, ties by ID,
// so RRF ranks are deterministic.
func lexicalRanking(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
