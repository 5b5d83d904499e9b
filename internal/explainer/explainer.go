// Package explainer produces the short user-facing justification shown
// next to each suggested trail. Messages are in Portuguese, matching
// the product surface.
package explainer

import (
	"strings"

	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/ranker"
	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// MaxLength bounds the justification string.
const MaxLength = 180

const maxCues = 2

// contentCues maps substring markers in the candidate text to the cue
// phrase appended to the justification.
var contentCues = []struct {
	marker string
	phrase string
}{
	{"curt", "aulas curtas"},
	{"exerc", "conteúdos práticos"},
	{"pratic", "conteúdos práticos"},
	{"video", "tem vídeos"},
	{"quiz", "tem quizzes"},
}

// Explain builds the justification for one scored candidate. Priority:
// matched tag plus beginner level, matched tag alone, beginner alone,
// then a generic message. Up to two content cues are appended, and the
// result is truncated with an ellipsis when over MaxLength.
func Explain(sc ranker.ScoredCandidate, queryText string) string {
	c := sc.Candidate
	queryTokens := textnorm.Tokenize(queryText)

	var reason string
	beginner := c.Difficulty == trail.DifficultyBeginner
	if tags := ranker.MatchedTags(c, queryTokens); len(tags) > 0 {
		if beginner {
			reason = "Conecta com " + tags[0] + " e é nível iniciante"
		} else {
			reason = "Conecta com " + tags[0]
		}
	} else if beginner {
		reason = "Boa porta de entrada (nível iniciante)"
	} else {
		reason = "Combina com o que você buscou"
	}

	if cues := detectCues(c); len(cues) > 0 {
		reason += ". " + strings.Join(cues, ", ")
	}

	return textnorm.Truncate(reason, MaxLength)
}

// detectCues scans the folded description and combined text for
// content markers, deduplicating phrases and keeping at most two.
func detectCues(c trail.Candidate) []string {
	text := textnorm.Fold(c.Description + " " + c.CombinedText)

	var cues []string
	seen := make(map[string]struct{}, maxCues)
	for _, cue := range contentCues {
		if !strings.Contains(text, cue.marker) {
			continue
		}
		if _, dup := seen[cue.phrase]; dup {
			continue
		}
		seen[cue.phrase] = struct{}{}
		cues = append(cues, cue.phrase)
		if len(cues) == maxCues {
			break
		}
	}
	return cues
}
