// Package trail holds the candidate type for one catalog trail and its
// raw-record conversion rules.
package trail

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leve-labs/trailmatch/internal/textnorm"
)

// Difficulty of a trail, normalized to the catalog's canonical values.
type Difficulty string

const (
	DifficultyUnknown      Difficulty = ""
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// ParseDifficulty maps raw difficulty strings, case- and accent-insensitively,
// accepting the pt-BR catalog spellings.
func ParseDifficulty(s string) Difficulty {
	switch textnorm.Fold(strings.TrimSpace(s)) {
	case "beginner", "iniciante":
		return DifficultyBeginner
	case "intermediate", "intermediario":
		return DifficultyIntermediate
	case "advanced", "avancado":
		return DifficultyAdvanced
	}
	return DifficultyUnknown
}

// Status is the publication status of a trail.
type Status string

const (
	StatusUnknown   Status = ""
	StatusPublished Status = "Published"
	StatusDraft     Status = "Draft"
	StatusArchived  Status = "Archived"
)

// ParseStatus maps raw status strings case-insensitively.
func ParseStatus(s string) Status {
	switch textnorm.Fold(strings.TrimSpace(s)) {
	case "published":
		return StatusPublished
	case "draft":
		return StatusDraft
	case "archived":
		return StatusArchived
	}
	return StatusUnknown
}

// Candidate is one catalog trail eligible for recommendation.
type Candidate struct {
	ID           uuid.UUID
	Slug         string
	Title        string
	Subtitle     string
	Description  string
	Tags         []string
	Topics       []string
	Difficulty   Difficulty
	Status       Status
	CombinedText string
}

// FromSource converts a raw catalog record into a Candidate.
// publicId (or id) is mandatory and must parse as a UUID; a failure
// rejects this record only, never the batch.
func FromSource(item map[string]any) (Candidate, error) {
	rawID := stringField(item, "publicId")
	if rawID == "" {
		rawID = stringField(item, "id")
	}
	if rawID == "" {
		return Candidate{}, fmt.Errorf("publicId is required")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Candidate{}, fmt.Errorf("parse publicId %q: %w", rawID, err)
	}

	desc := stringField(item, "description")
	if desc == "" {
		desc = stringField(item, "summary")
	}

	c := Candidate{
		ID:           id,
		Slug:         strings.TrimSpace(stringField(item, "slug")),
		Title:        strings.TrimSpace(stringField(item, "title")),
		Subtitle:     strings.TrimSpace(stringField(item, "subtitle")),
		Description:  strings.TrimSpace(desc),
		Tags:         stringList(item, "tags"),
		Topics:       stringList(item, "topics"),
		Difficulty:   ParseDifficulty(stringField(item, "difficulty")),
		Status:       ParseStatus(stringField(item, "status")),
		CombinedText: strings.TrimSpace(stringField(item, "combined_text")),
	}
	if c.CombinedText == "" {
		c.CombinedText = c.BuildCombinedText()
	}
	return c, nil
}

// BuildCombinedText concatenates the textual fields used by both
// retrieval paths. Empty parts are omitted.
func (c Candidate) BuildCombinedText() string {
	parts := make([]string, 0, 4+len(c.Tags))
	for _, p := range []string{c.Title, c.Subtitle} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, c.Tags...)
	if len(c.Topics) > 0 {
		parts = append(parts, strings.Join(c.Topics, " "))
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, " | ")
}

// VectorText is the text embedded for the dense path. Kept coherent
// with the combined text used by the lexical path.
func (c Candidate) VectorText() string {
	if c.CombinedText != "" {
		return c.CombinedText
	}
	return c.BuildCombinedText()
}

// Completeness counts the non-empty fields used to break dedup ties:
// slug, title, difficulty, description, at least one tag, combined text.
func (c Candidate) Completeness() int {
	score := 0
	if c.Slug != "" {
		score++
	}
	if c.Title != "" {
		score++
	}
	if c.Difficulty != DifficultyUnknown {
		score++
	}
	if c.Description != "" {
		score++
	}
	if len(c.Tags) > 0 {
		score++
	}
	if c.CombinedText != "" {
		score++
	}
	return score
}

func stringField(item map[string]any, key string) string {
	if v, ok := item[key].(string); ok {
		return v
	}
	return ""
}

func stringList(item map[string]any, key string) []string {
	raw, ok := item[key].([]any)
	if !ok {
		if ss, ok := item[key].([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
