// Package ranker applies business rules on top of retrieval scores:
// named additive boosts, per-collection thresholds, deduplication,
// deterministic ordering and the dominance fallback.
package ranker

import (
	"sort"
	"strings"

	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// Collection selects the threshold profile for a ranking run.
type Collection string

const (
	// CollectionTrails ranks learning trails.
	CollectionTrails Collection = "trilhas"
	// CollectionJobs ranks job postings.
	CollectionJobs Collection = "vagas"
)

// Boost names recorded on scored candidates for explainability.
const (
	BoostTitleDesc = "title_desc_match"
	BoostTag       = "tag_match"
	BoostBeginner  = "beginner_boost"
)

// HybridScores carries the per-path scores of a hybrid retrieval run.
// Nil fields mean the candidate was absent from that path.
type HybridScores struct {
	Semantic *float64
	Lexical  *float64
	Combined *float64
}

// Input is one candidate entering the ranker, either with a single
// legacy score or with hybrid per-path scores. Exactly one of Single
// and Hybrid should be set; a candidate with neither ranks from 0.
type Input struct {
	Candidate trail.Candidate
	Single    *float64
	Hybrid    *HybridScores
}

// ScoredCandidate is a ranked candidate with its final score and the
// boosts that contributed to it.
type ScoredCandidate struct {
	Candidate     trail.Candidate
	MatchScore    float64
	BaseScore     float64
	AppliedBoosts []string
	Semantic      float64
	Lexical       float64
}

// Ranker scores and orders candidates.
type Ranker struct {
	cfg config.RankingConfig
}

// New creates a Ranker with the given ranking configuration.
func New(cfg config.RankingConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank scores every input against the query, filters by the
// collection's threshold, deduplicates, orders deterministically and
// cuts to at most maxResults (bounded by the configured maximum). An
// empty threshold survivor set falls back to the single dominant
// candidate when it clears the dominance floor.
func (r *Ranker) Rank(inputs []Input, queryText string, collection Collection, maxResults int) []ScoredCandidate {
	queryTokens := textnorm.Tokenize(queryText)

	scored := make([]ScoredCandidate, 0, len(inputs))
	for i := range inputs {
		scored = append(scored, r.score(&inputs[i], queryTokens))
	}

	scored = dedupe(scored)
	sortCandidates(scored)

	threshold := r.threshold(collection)
	kept := scored[:0:0]
	for _, sc := range scored {
		if sc.MatchScore >= threshold {
			kept = append(kept, sc)
		}
	}

	// Dominance fallback: surface the clear winner even below the
	// collection threshold, but never a weak one.
	if len(kept) == 0 {
		if len(scored) > 0 && scored[0].MatchScore >= r.cfg.DominanceMinAccept {
			kept = scored[:1]
		} else {
			return nil
		}
	}

	n := r.cfg.MaxSuggestions
	if maxResults > 0 && maxResults < n {
		n = maxResults
	}
	if len(kept) > n {
		kept = kept[:n]
	}
	return kept
}

func (r *Ranker) score(in *Input, queryTokens []string) ScoredCandidate {
	c := in.Candidate
	sc := ScoredCandidate{Candidate: c, BaseScore: baseScore(in)}

	if b := in.Hybrid; b != nil {
		if b.Semantic != nil {
			sc.Semantic = *b.Semantic
		}
		if b.Lexical != nil {
			sc.Lexical = *b.Lexical
		}
	}

	score := sc.BaseScore

	if matchesTitleDesc(c, queryTokens) {
		score += r.cfg.TitleDescBoost
		sc.AppliedBoosts = append(sc.AppliedBoosts, BoostTitleDesc)
	}
	if len(MatchedTags(c, queryTokens)) > 0 {
		score += r.cfg.TagBoost
		sc.AppliedBoosts = append(sc.AppliedBoosts, BoostTag)
	}
	if c.Difficulty == trail.DifficultyBeginner {
		score += r.cfg.BeginnerBoost
		sc.AppliedBoosts = append(sc.AppliedBoosts, BoostBeginner)
	}

	if score > r.cfg.ScoreCap {
		score = r.cfg.ScoreCap
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	sc.MatchScore = score
	return sc
}

// baseScore resolves the tagged input into one canonical base score:
// combined when present, else the single legacy score, else whichever
// hybrid path produced a value, else 0.
func baseScore(in *Input) float64 {
	if in.Hybrid != nil && in.Hybrid.Combined != nil {
		return *in.Hybrid.Combined
	}
	if in.Single != nil {
		return *in.Single
	}
	if in.Hybrid != nil {
		if in.Hybrid.Semantic != nil {
			return *in.Hybrid.Semantic
		}
		if in.Hybrid.Lexical != nil {
			return *in.Hybrid.Lexical
		}
	}
	return 0
}

func (r *Ranker) threshold(collection Collection) float64 {
	if collection == CollectionJobs {
		return r.cfg.MatchThresholdJobs
	}
	return r.cfg.MatchThresholdTrails
}

// matchesTitleDesc reports whether any query token longer than two
// characters occurs in the folded title, description or combined text.
func matchesTitleDesc(c trail.Candidate, queryTokens []string) bool {
	haystack := textnorm.Fold(c.Title + " " + c.Description + " " + c.CombinedText)
	for _, tok := range queryTokens {
		if len(tok) <= 2 {
			continue
		}
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}

// MatchedTags returns the candidate's tags whose tokens intersect the
// query tokens, in the candidate's tag order with verbatim casing.
// Shared with the explainer, which quotes matched tags back to the user.
func MatchedTags(c trail.Candidate, queryTokens []string) []string {
	if len(queryTokens) == 0 {
		return nil
	}
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	var matched []string
	for _, tag := range c.Tags {
		for _, tagTok := range textnorm.Tokenize(tag) {
			if _, ok := querySet[tagTok]; ok {
				matched = append(matched, tag)
				break
			}
		}
	}
	return matched
}

// dedupe keeps one entry per candidate ID, preferring the higher score.
// Input order is preserved for the survivors.
func dedupe(scored []ScoredCandidate) []ScoredCandidate {
	best := make(map[string]int, len(scored))
	out := scored[:0:0]
	for _, sc := range scored {
		id := sc.Candidate.ID.String()
		if idx, ok := best[id]; ok {
			if sc.MatchScore > out[idx].MatchScore {
				out[idx] = sc
			}
			continue
		}
		best[id] = len(out)
		out = append(out, sc)
	}
	return out
}

func sortCandidates(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].MatchScore != scored[j].MatchScore {
			return scored[i].MatchScore > scored[j].MatchScore
		}
		ti := textnorm.Fold(scored[i].Candidate.Title)
		tj := textnorm.Fold(scored[j].Candidate.Title)
		if ti != tj {
			return ti < tj
		}
		return scored[i].Candidate.ID.String() < scored[j].Candidate.ID.String()
	})
}
