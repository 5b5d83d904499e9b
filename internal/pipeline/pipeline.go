// Package pipeline orchestrates one recommendation run: normalize the
// catalog, build the retrieval queries, score both paths, fuse, rank,
// explain and assemble the envelope.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leve-labs/trailmatch/internal/catalog"
	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/domain"
	"github.com/leve-labs/trailmatch/internal/domain/trail"
	"github.com/leve-labs/trailmatch/internal/explainer"
	"github.com/leve-labs/trailmatch/internal/lexical"
	"github.com/leve-labs/trailmatch/internal/logger"
	"github.com/leve-labs/trailmatch/internal/metrics"
	"github.com/leve-labs/trailmatch/internal/output"
	"github.com/leve-labs/trailmatch/internal/query"
	"github.com/leve-labs/trailmatch/internal/ranker"
	"github.com/leve-labs/trailmatch/internal/retriever"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
)

// Input length bounds.
const (
	minQuestionLen = 8
	maxQuestionLen = 500
	minContextLen  = 3
	maxContextLen  = 500
)

// Request is one recommendation request.
type Request struct {
	UserQuestion string
	UserID       *uuid.UUID
	ExtraContext string
	MaxResults   int
	Snapshot     map[string]any
}

// Validate checks request bounds. Fields are trimmed first and length
// limits count characters, not bytes.
func (r *Request) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(r.UserQuestion)); n < minQuestionLen || n > maxQuestionLen {
		return fmt.Errorf("%w: user_question must be %d-%d characters, got %d",
			domain.ErrInvalidInput, minQuestionLen, maxQuestionLen, n)
	}
	if c := strings.TrimSpace(r.ExtraContext); c != "" {
		if n := utf8.RuneCountInString(c); n < minContextLen || n > maxContextLen {
			return fmt.Errorf("%w: contexto_extra must be %d-%d characters, got %d",
				domain.ErrInvalidInput, minContextLen, maxContextLen, n)
		}
	}
	if r.MaxResults < 0 || r.MaxResults > config.MaxSuggestionsHardCap {
		return fmt.Errorf("%w: max_results must be between 1 and %d",
			domain.ErrInvalidInput, config.MaxSuggestionsHardCap)
	}
	return nil
}

// CatalogSource supplies raw trail records.
type CatalogSource interface {
	Fetch(ctx context.Context) ([]map[string]any, error)
}

// IndexFactory builds a fresh vector index for one run.
type IndexFactory func(ctx context.Context) (vectorindex.Index, error)

// Pipeline wires the recommendation stages together. Construct once,
// safe for concurrent Run calls: each run builds its own index.
type Pipeline struct {
	cfg           config.Config
	source        CatalogSource
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	indexFactory  IndexFactory
	queryBuilder  *query.Builder
	scorer        *lexical.Scorer
	fuser         *retriever.Fuser
	ranker        *ranker.Ranker
}

// New creates a Pipeline. Document and query embedders may be the same
// instance when the model takes symmetric input.
func New(cfg config.Config, source CatalogSource, docEmbedder, queryEmbedder domain.Embedder, indexFactory IndexFactory) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		source:        source,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		indexFactory:  indexFactory,
		queryBuilder:  query.NewBuilder(cfg.Query),
		scorer:        lexical.NewScorer(),
		fuser:         retriever.NewFuser(cfg.Fusion),
		ranker:        ranker.New(cfg.Ranking),
	}
}

// Run executes one full recommendation pass. An emptied candidate set
// produces the out-of-scope envelope rather than an error; retrieval
// and provider failures surface as errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (output.Envelope, error) {
	log := logger.FromContext(ctx)

	if err := req.Validate(); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return output.Envelope{}, err
	}

	candidates, err := p.loadCandidates(ctx, log)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return output.Envelope{}, err
	}

	q := p.queryBuilder.Build(req.UserQuestion, req.Snapshot, req.ExtraContext)
	log.Debug("built retrieval queries",
		zap.Int("hints", len(q.Hints)),
		zap.Int("synonyms", len(q.Synonyms)))

	if len(candidates) == 0 {
		env := output.Build(nil, q.Dense, nil)
		metrics.PipelineRunsTotal.WithLabelValues(env.Status).Inc()
		return env, nil
	}

	inputs, err := p.retrieve(ctx, q, candidates)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return output.Envelope{}, err
	}

	rankStart := time.Now()
	ranked := p.ranker.Rank(inputs, q.Lexical, ranker.CollectionTrails, req.MaxResults)
	metrics.PipelineStageDuration.WithLabelValues("rank").Observe(time.Since(rankStart).Seconds())
	metrics.PipelineCandidates.WithLabelValues("ranked").Observe(float64(len(ranked)))

	reasons := make(map[string]string, len(ranked))
	for _, sc := range ranked {
		reasons[sc.Candidate.ID.String()] = explainer.Explain(sc, q.Lexical)
	}

	env := output.Build(ranked, q.Dense, reasons)
	if err := env.Validate(p.cfg.Ranking.MaxSuggestions); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return output.Envelope{}, fmt.Errorf("assemble output: %w", err)
	}

	metrics.PipelineRunsTotal.WithLabelValues(env.Status).Inc()
	return env, nil
}

// loadCandidates fetches, normalizes, deduplicates and status-filters
// the catalog.
func (p *Pipeline) loadCandidates(ctx context.Context, log *zap.Logger) ([]trail.Candidate, error) {
	start := time.Now()
	raw, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	candidates, err := catalog.ToCandidates(raw, log)
	if err != nil {
		return nil, err
	}
	metrics.PipelineCandidates.WithLabelValues("normalized").Observe(float64(len(candidates)))

	candidates = catalog.DedupeByID(candidates)
	candidates = catalog.FilterByStatus(candidates, p.cfg.Ranking.AllowedStatuses, log)
	metrics.PipelineCandidates.WithLabelValues("filtered").Observe(float64(len(candidates)))
	metrics.PipelineStageDuration.WithLabelValues("catalog").Observe(time.Since(start).Seconds())

	return candidates, nil
}

// retrieve runs the lexical and dense paths concurrently and resolves
// the configured fusion mode into ranker inputs.
func (p *Pipeline) retrieve(ctx context.Context, q query.Query, candidates []trail.Candidate) ([]ranker.Input, error) {
	byID := make(map[string]trail.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID.String()] = c
	}

	runLexical := p.cfg.Fusion.UseHybrid || p.cfg.Fusion.SinglePath == "lexical"
	runDense := p.cfg.Fusion.UseHybrid || p.cfg.Fusion.SinglePath == "semantic"

	var (
		lexScores map[string]float64
		denseHits []vectorindex.Match
	)

	g, gctx := errgroup.WithContext(ctx)

	if runLexical {
		g.Go(func() error {
			start := time.Now()
			docs := make([]string, len(candidates))
			for i := range candidates {
				docs[i] = candidates[i].CombinedText
			}
			scores := p.scorer.Scores(q.Lexical, docs)
			lexScores = make(map[string]float64, len(scores))
			for i, s := range scores {
				lexScores[candidates[i].ID.String()] = s
			}
			metrics.PipelineStageDuration.WithLabelValues("lexical").Observe(time.Since(start).Seconds())
			return nil
		})
	}

	if runDense {
		g.Go(func() error {
			start := time.Now()
			index, err := p.indexFactory(gctx)
			if err != nil {
				return fmt.Errorf("build vector index: %w", err)
			}

			dense := retriever.NewDense(p.docEmbedder, p.queryEmbedder, index)
			if err := dense.IndexCorpus(gctx, candidates); err != nil {
				return err
			}

			denseHits, err = dense.Search(gctx, q.Dense, p.cfg.Index.TopK, vectorindex.Filters{
				"status": p.cfg.Ranking.AllowedStatuses,
			})
			if err != nil {
				return fmt.Errorf("dense search: %w", err)
			}
			metrics.PipelineStageDuration.WithLabelValues("dense").Observe(time.Since(start).Seconds())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !p.cfg.Fusion.UseHybrid {
		return p.singlePathInputs(byID, lexScores, denseHits), nil
	}

	fused := p.fuser.Fuse(denseHits, lexScores, p.cfg.Index.TopK)
	inputs := make([]ranker.Input, 0, len(fused))
	for _, r := range fused {
		c, ok := byID[r.ID]
		if !ok {
			continue
		}
		sem, lex, combined := r.Semantic, r.Lexical, r.Combined
		hybrid := &ranker.HybridScores{Combined: &combined}
		if r.InSemantic {
			hybrid.Semantic = &sem
		}
		if r.InLexical {
			hybrid.Lexical = &lex
		}
		inputs = append(inputs, ranker.Input{Candidate: c, Hybrid: hybrid})
	}
	return inputs, nil
}

func (p *Pipeline) singlePathInputs(byID map[string]trail.Candidate, lexScores map[string]float64, denseHits []vectorindex.Match) []ranker.Input {
	if p.cfg.Fusion.SinglePath == "lexical" {
		inputs := make([]ranker.Input, 0, len(lexScores))
		for id, score := range lexScores {
			c, ok := byID[id]
			if !ok {
				continue
			}
			s := score
			inputs = append(inputs, ranker.Input{Candidate: c, Single: &s})
		}
		return inputs
	}

	inputs := make([]ranker.Input, 0, len(denseHits))
	for _, m := range denseHits {
		c, ok := byID[m.ID]
		if !ok {
			continue
		}
		s := m.Score
		inputs = append(inputs, ranker.Input{Candidate: c, Single: &s})
	}
	return inputs
}
