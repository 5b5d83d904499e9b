package retriever

import (
	"math"
	"testing"

	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

func defaultFusion() config.FusionConfig {
	cfg := config.Default().Fusion
	cfg.UseHybrid = true
	return cfg
}

func TestFuse_WeightedBlend(t *testing.T) {
	cfg := defaultFusion()
	f := NewFuser(cfg)

	semantic := []vectorindex.Match{
		{ID: "a", Score: 1.0},
		{ID: "b", Score: 0.0},
	}
	lexical := map[string]float64{
		"a": 0.0,
		"b": 1.0,
	}

	got := f.Fuse(semantic, lexical, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	// Weights 0.65/0.35: the candidate strong in the semantic stream wins.
	if got[0].ID != "a" {
		t.Fatalf("expected semantic winner first, got %s", got[0].ID)
	}
	if math.Abs(got[0].Combined-0.65) > 1e-9 {
		t.Errorf("Combined[a] = %v, want 0.65", got[0].Combined)
	}
	if math.Abs(got[1].Combined-0.35) > 1e-9 {
		t.Errorf("Combined[b] = %v, want 0.35", got[1].Combined)
	}
}

func TestFuse_StreamMembershipFlags(t *testing.T) {
	f := NewFuser(defaultFusion())

	semantic := []vectorindex.Match{{ID: "semonly", Score: 0.9}, {ID: "both", Score: 0.5}}
	lexical := map[string]float64{"lexonly": 0.8, "both": 0.4}

	byID := map[string]Result{}
	for _, r := range f.Fuse(semantic, lexical, 0) {
		byID[r.ID] = r
	}

	if r := byID["semonly"]; !r.InSemantic || r.InLexical {
		t.Errorf("semonly flags = %+v", r)
	}
	if r := byID["lexonly"]; r.InSemantic || !r.InLexical {
		t.Errorf("lexonly flags = %+v", r)
	}
	if r := byID["both"]; !r.InSemantic || !r.InLexical {
		t.Errorf("both flags = %+v", r)
	}
	// A candidate absent from a stream contributes zero there.
	if r := byID["lexonly"]; r.Semantic != 0 {
		t.Errorf("lexonly.Semantic = %v, want 0", r.Semantic)
	}
}

func TestFuse_MinMaxStretchesStream(t *testing.T) {
	f := NewFuser(defaultFusion())

	semantic := []vectorindex.Match{
		{ID: "a", Score: 0.80},
		{ID: "b", Score: 0.70},
		{ID: "c", Score: 0.60},
	}
	got := f.Fuse(semantic, nil, 0)

	byID := map[string]Result{}
	for _, r := range got {
		byID[r.ID] = r
	}
	if byID["a"].Semantic != 1 || byID["c"].Semantic != 0 {
		t.Errorf("minmax did not stretch stream: a=%v c=%v", byID["a"].Semantic, byID["c"].Semantic)
	}
	if math.Abs(byID["b"].Semantic-0.5) > 1e-9 {
		t.Errorf("midpoint = %v, want 0.5", byID["b"].Semantic)
	}
}

func TestFuse_DegenerateStreamsPassThrough(t *testing.T) {
	f := NewFuser(defaultFusion())

	// Single entry: no rescale.
	got := f.Fuse([]vectorindex.Match{{ID: "only", Score: 0.42}}, nil, 0)
	if math.Abs(got[0].Semantic-0.42) > 1e-9 {
		t.Errorf("single-entry stream rescaled: %v", got[0].Semantic)
	}

	// All equal: no rescale.
	got = f.Fuse([]vectorindex.Match{
		{ID: "a", Score: 0.42},
		{ID: "b", Score: 0.42},
	}, nil, 0)
	for _, r := range got {
		if math.Abs(r.Semantic-0.42) > 1e-9 {
			t.Errorf("uniform stream rescaled: %v", r.Semantic)
		}
	}
}

func TestFuse_ZScoreStaysInUnitInterval(t *testing.T) {
	cfg := defaultFusion()
	cfg.Normalization = "zscore"
	f := NewFuser(cfg)

	semantic := []vectorindex.Match{
		{ID: "a", Score: 0.99},
		{ID: "b", Score: 0.50},
		{ID: "c", Score: 0.01},
	}
	lexical := map[string]float64{"a": 0.2, "b": 0.9, "c": 0.1}

	for _, r := range f.Fuse(semantic, lexical, 0) {
		if r.Combined < 0 || r.Combined > 1 {
			t.Errorf("Combined[%s] = %v outside [0,1]", r.ID, r.Combined)
		}
		if r.Semantic < 0 || r.Semantic > 1 || r.Lexical < 0 || r.Lexical > 1 {
			t.Errorf("stream scores for %s outside [0,1]: %+v", r.ID, r)
		}
	}
}

func TestFuse_SortAndCutDeterministic(t *testing.T) {
	f := NewFuser(defaultFusion())

	lexical := map[string]float64{"b": 0.5, "a": 0.5, "c": 0.5, "d": 1.0}
	got := f.Fuse(nil, lexical, 3)

	if len(got) != 3 {
		t.Fatalf("expected topK cut to 3, got %d", len(got))
	}
	if got[0].ID != "d" {
		t.Errorf("expected d first, got %s", got[0].ID)
	}
	if got[1].ID != "a" || got[2].ID != "b" {
		t.Errorf("ties not broken by ID: %s %s", got[1].ID, got[2].ID)
	}
}

func TestFuse_CustomWeightsNormalized(t *testing.T) {
	cfg := defaultFusion()
	cfg.SemanticWeight = 2
	cfg.LexicalWeight = 2
	f := NewFuser(cfg)

	got := f.Fuse(
		[]vectorindex.Match{{ID: "a", Score: 0.4}},
		map[string]float64{"a": 0.8},
		0,
	)
	// Weights normalize to 0.5/0.5.
	if math.Abs(got[0].Combined-0.6) > 1e-9 {
		t.Errorf("Combined = %v, want 0.6", got[0].Combined)
	}
}

func TestFuseRRF(t *testing.T) {
	cfg := defaultFusion()
	cfg.RankFusion = true
	f := NewFuser(cfg)

	semantic := []vectorindex.Match{
		{ID: "a", Score: 0.9}, // semantic rank 0
		{ID: "b", Score: 0.8}, // semantic rank 1
	}
	lexical := map[string]float64{
		"b": 0.9, // lexical rank 0
		"c": 0.1, // lexical rank 1
	}

	got := f.Fuse(semantic, lexical, 0)
	byID := map[string]Result{}
	for _, r := range got {
		byID[r.ID] = r
	}

	k := float64(cfg.RRFK)
	wantA := 1 / (k + 1)
	wantB := 1/(k+2) + 1/(k+1)
	wantC := 1 / (k + 2)

	if math.Abs(byID["a"].Combined-wantA) > 1e-12 {
		t.Errorf("Combined[a] = %v, want %v", byID["a"].Combined, wantA)
	}
	if math.Abs(byID["b"].Combined-wantB) > 1e-12 {
		t.Errorf("Combined[b] = %v, want %v", byID["b"].Combined, wantB)
	}
	if math.Abs(byID["c"].Combined-wantC) > 1e-12 {
		t.Errorf("Combined[c] = %v, want %v", byID["c"].Combined, wantC)
	}

	// Appearing in both rankings beats either single stream.
	if got[0].ID != "b" {
		t.Errorf("expected b first, got %s", got[0].ID)
	}
	if r := byID["b"]; r.Semantic != 0.8 || r.Lexical != 0.9 {
		t.Errorf("raw stream scores not preserved: %+v", r)
	}
}

func TestFuseRRF_LexicalRankingDeterministic(t *testing.T) {
	scores := map[string]float64{"b": 0.5, "a": 0.5, "z": 0.9}
	got := lexicalRanking(scores)
	want := []string{"z", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lexicalRanking = %v, want %v", got, want)
		}
	}
}
