// Package lexical scores candidates against a query with TF-IDF cosine
// similarity over unigrams and bigrams. The vocabulary is rebuilt per
// request from the candidate corpus, so scores always reflect the
// catalog actually being ranked.
package lexical

import (
	"math"

	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// Scorer computes lexical relevance scores. The zero value is not
// usable; construct with NewScorer.
type Scorer struct {
	minDF int
}

// NewScorer returns a Scorer keeping every term that appears in at
// least one document.
func NewScorer() *Scorer {
	return &Scorer{minDF: 1}
}

// Scores returns one similarity per document, aligned with docs, in
// [0,1]. An empty query, an empty corpus, or a query sharing no terms
// with the corpus yields all zeros rather than an error. When more
// than one distinct raw similarity exists, scores are min-max rescaled
// to use the full [0,1] range; otherwise raw cosines are returned
// unchanged so a single or uniform corpus is not inflated to 1.0.
func (s *Scorer) Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores
	}

	queryTerms := analyze(query)
	if len(queryTerms) == 0 {
		return scores
	}

	docTerms := make([][]string, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		docTerms[i] = analyze(doc)
		for _, t := range distinct(docTerms[i]) {
			df[t]++
		}
	}

	// Smooth IDF over the document corpus only, then weight both the
	// documents and the query with it.
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for t, f := range df {
		if f < s.minDF {
			continue
		}
		idf[t] = math.Log((1+n)/(1+float64(f))) + 1
	}

	qv := vectorize(queryTerms, idf)
	if len(qv) == 0 {
		return scores
	}

	for i := range docs {
		scores[i] = cosine(qv, vectorize(docTerms[i], idf))
	}

	return rescale(scores)
}

// analyze folds, tokenizes and emits unigrams plus adjacent bigrams.
func analyze(text string) []string {
	tokens := textnorm.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, 0, len(tokens)*2-1)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

// vectorize builds a sublinear-TF, IDF-weighted, L2-normalized vector.
func vectorize(terms []string, idf map[string]float64) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range terms {
		if _, ok := idf[t]; ok {
			tf[t]++
		}
	}
	if len(tf) == 0 {
		return nil
	}

	var norm float64
	for t, count := range tf {
		w := (1 + math.Log(count)) * idf[t]
		tf[t] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for t := range tf {
		tf[t] /= norm
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for t, w := range a {
		sum += w * b[t]
	}
	if sum < 0 {
		return 0
	}
	if sum > 1 {
		return 1
	}
	return sum
}

// rescale stretches scores to [0,1] via min-max. Applied only when at
// least two distinct values exist; degenerate distributions pass
// through untouched.
func rescale(scores []float64) []float64 {
	if len(scores) < 2 {
		return scores
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return scores
	}
	out := make([]float64, len(scores))
	for i, v := range scores {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
