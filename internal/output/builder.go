// Package output assembles the final recommendation envelope and
// enforces the coherence rules between status and payload. JSON field
// names follow the product contract, which mixes Portuguese and
// English.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leve-labs/trailmatch/internal/ranker"
	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// Status values of the envelope.
const (
	StatusOK         = "ok"
	StatusOutOfScope = "fora_do_escopo"
)

// Fixed user-facing strings.
const (
	DefaultEmptyMessage = "No momento não encontrei trilhas publicadas que combinem com a sua dúvida. " +
		"Você pode tentar reformular com uma palavra-chave (ex.: 'programação', 'carreira')."
	shortAnswerEmpty = "Ainda não encontrei trilhas publicadas que combinem com a sua dúvida."
	shortAnswerOK    = "Boa! Encontrei algumas trilhas que combinam com o que você buscou. " +
		"Dá pra começar pelo básico e ir testando o ritmo."
	ctaOK            = "Começar trilha"
	ctaEmpty         = "Tentar de novo"
	defaultWhyMatch  = "Combina com o que você buscou."
	minWhyMatchChars = 5
	maxKeywords      = 5
)

// SuggestedTrail is one recommendation in the envelope.
type SuggestedTrail struct {
	PublicID   string  `json:"publicId"`
	Slug       string  `json:"slug,omitempty"`
	Title      string  `json:"title"`
	WhyMatch   string  `json:"why_match"`
	MatchScore float64 `json:"match_score"`
}

// QueryUnderstanding is lightweight observability metadata about the
// interpreted query.
type QueryUnderstanding struct {
	Theme    string   `json:"tema"`
	Keywords []string `json:"palavras_chave"`
}

// Envelope is the full recommendation response.
type Envelope struct {
	Status             string             `json:"status"`
	ShortAnswer        string             `json:"short_answer"`
	SuggestedTrails    []SuggestedTrail   `json:"suggested_trails,omitempty"`
	FallbackMessage    string             `json:"mensagem_padrao,omitempty"`
	CTA                string             `json:"cta"`
	QueryUnderstanding QueryUnderstanding `json:"query_understanding"`
}

// Build assembles the envelope from the ranked candidates and their
// per-id justifications. An empty ranked list yields the out-of-scope
// envelope with fixed fallback texts.
func Build(ranked []ranker.ScoredCandidate, queryText string, reasonsByID map[string]string) Envelope {
	qu := QueryUnderstanding{
		Theme:    inferTheme(queryText),
		Keywords: keywords(queryText),
	}

	if len(ranked) == 0 {
		return Envelope{
			Status:             StatusOutOfScope,
			ShortAnswer:        shortAnswerEmpty,
			FallbackMessage:    DefaultEmptyMessage,
			CTA:                ctaEmpty,
			QueryUnderstanding: qu,
		}
	}

	suggestions := make([]SuggestedTrail, 0, len(ranked))
	for _, sc := range ranked {
		id := sc.Candidate.ID.String()
		reason := strings.TrimSpace(reasonsByID[id])
		if len(reason) < minWhyMatchChars {
			reason = defaultWhyMatch
		}
		suggestions = append(suggestions, SuggestedTrail{
			PublicID:   id,
			Slug:       sc.Candidate.Slug,
			Title:      sc.Candidate.Title,
			WhyMatch:   reason,
			MatchScore: sc.MatchScore,
		})
	}

	return Envelope{
		Status:             StatusOK,
		ShortAnswer:        shortAnswerOK,
		SuggestedTrails:    suggestions,
		CTA:                ctaOK,
		QueryUnderstanding: qu,
	}
}

// Validate enforces the status/payload coherence rules in place. An
// "ok" envelope without suggestions is demoted to out-of-scope with the
// fixed fallback texts; an out-of-scope envelope is stripped of any
// suggestions and guaranteed a fallback message. Scores outside [0,1]
// and missing justifications fail validation after these repairs.
func (e *Envelope) Validate(maxSuggestions int) error {
	switch e.Status {
	case StatusOK:
		if len(e.SuggestedTrails) == 0 {
			e.Status = StatusOutOfScope
			e.ShortAnswer = shortAnswerEmpty
			e.CTA = ctaEmpty
			if e.FallbackMessage == "" {
				e.FallbackMessage = DefaultEmptyMessage
			}
		}
	case StatusOutOfScope:
		e.SuggestedTrails = nil
		e.ShortAnswer = shortAnswerEmpty
		e.CTA = ctaEmpty
		if e.FallbackMessage == "" {
			e.FallbackMessage = DefaultEmptyMessage
		}
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}

	if maxSuggestions > 0 && len(e.SuggestedTrails) > maxSuggestions {
		return fmt.Errorf("%d suggestions exceed the limit of %d", len(e.SuggestedTrails), maxSuggestions)
	}

	for i := range e.SuggestedTrails {
		s := &e.SuggestedTrails[i]
		if s.MatchScore < 0 || s.MatchScore > 1 {
			return fmt.Errorf("suggestion %s: match_score %v outside [0,1]", s.PublicID, s.MatchScore)
		}
		s.WhyMatch = strings.TrimSpace(s.WhyMatch)
		if len(s.WhyMatch) < minWhyMatchChars {
			s.WhyMatch = defaultWhyMatch
		}
	}

	return nil
}

// inferTheme picks the longest token of at least four characters, or
// the longest token overall when none qualifies.
func inferTheme(queryText string) string {
	tokens := textnorm.Tokenize(queryText)
	if len(tokens) == 0 {
		return "não informado"
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
	for _, t := range tokens {
		if len(t) >= 4 {
			return t
		}
	}
	return tokens[0]
}

// keywords returns the first distinct tokens in occurrence order.
func keywords(queryText string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range textnorm.Tokenize(queryText) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
