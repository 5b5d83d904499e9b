package retriever

import (
	"math"
	"sort"

	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

// Result is a fused per-candidate score. Semantic and Lexical hold the
// normalized stream scores; a candidate absent from a stream
// contributes 0 there and the In* flags record which streams saw it.
type Result struct {
	ID         string
	Semantic   float64
	Lexical    float64
	Combined   float64
	InSemantic bool
	InLexical  bool
}

// Fuser merges the dense and lexical score streams into one combined
// ranking.
type Fuser struct {
	cfg config.FusionConfig
}

// NewFuser creates a Fuser with the given fusion configuration.
func NewFuser(cfg config.FusionConfig) *Fuser {
	return &Fuser{cfg: cfg}
}

// Fuse normalizes each stream independently, then blends by the
// configured weights (or reciprocal-rank fusion when selected).
// Output is sorted by combined score descending, ties broken by ID, and
// cut to topK when topK is positive.
func (f *Fuser) Fuse(semantic []vectorindex.Match, lexical map[string]float64, topK int) []Result {
	if f.cfg.RankFusion {
		return f.fuseRRF(semantic, lexical, topK)
	}

	semScores := make(map[string]float64, len(semantic))
	for _, m := range semantic {
		semScores[m.ID] = m.Score
	}
	normalizeStream(semScores, f.cfg.Normalization)

	lexScores := make(map[string]float64, len(lexical))
	for id, s := range lexical {
		lexScores[id] = s
	}
	normalizeStream(lexScores, f.cfg.Normalization)

	wSum := f.cfg.SemanticWeight + f.cfg.LexicalWeight
	wSem := f.cfg.SemanticWeight / wSum
	wLex := f.cfg.LexicalWeight / wSum

	results := make([]Result, 0, len(semScores)+len(lexScores))
	seen := make(map[string]struct{}, len(semScores)+len(lexScores))
	for id := range semScores {
		seen[id] = struct{}{}
	}
	for id := range lexScores {
		seen[id] = struct{}{}
	}

	for id := range seen {
		sem, inSem := semScores[id]
		lex, inLex := lexScores[id]
		results = append(results, Result{
			ID:         id,
			Semantic:   sem,
			Lexical:    lex,
			Combined:   clamp01(wSem*sem + wLex*lex),
			InSemantic: inSem,
			InLexical:  inLex,
		})
	}

	return sortAndCut(results, topK)
}

// normalizeStream rescales scores in place. Min-max stretches to [0,1]
// when more than one distinct value exists; z-score centers then maps
// through a logistic so blended output stays within [0,1]. Degenerate
// streams (empty, single value, all equal) pass through unchanged.
func normalizeStream(scores map[string]float64, mode string) {
	if len(scores) < 2 {
		return
	}

	switch mode {
	case "zscore":
		var sum float64
		for _, v := range scores {
			sum += v
		}
		mean := sum / float64(len(scores))
		var variance float64
		for _, v := range scores {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(scores)))
		if std == 0 {
			return
		}
		for id, v := range scores {
			scores[id] = 1 / (1 + math.Exp(-(v-mean)/std))
		}

	default: // minmax
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range scores {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi == lo {
			return
		}
		for id, v := range scores {
			scores[id] = (v - lo) / (hi - lo)
		}
	}
}

func sortAndCut(results []Result, topK int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].ID < results[j].ID
	})
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
