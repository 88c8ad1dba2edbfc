package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/models"
)

// depthPolicy is the canonical per-depth parameter set. Initial generation
// always resolves citations leniently; revisions are always strict.
type depthPolicy struct {
	minSources int
}

var depthPolicies = map[models.Depth]depthPolicy{
	models.DepthQuick: {minSources: 10},
	models.DepthDeep:  {minSources: 15},
}

// Orchestrator sequences the pipeline for one research invocation:
// search -> format -> generate -> resolve -> render. It performs no retries
// of its own beyond what each component already does internally, and
// surfaces exactly one typed outcome per call.
type Orchestrator struct {
	searcher  *SearchAggregator
	generator *ContentGenerator
	renderer  *HTMLRenderer
	logger    *zap.Logger
}

func NewOrchestrator(searcher *SearchAggregator, generator *ContentGenerator, renderer *HTMLRenderer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		searcher:  searcher,
		generator: generator,
		renderer:  renderer,
		logger:    logger.Named("orchestrator"),
	}
}

// Run executes the full pipeline for query at the given depth.
func (o *Orchestrator) Run(ctx context.Context, query string, depth models.Depth) (*models.ResearchResult, error) {
	policy := depthPolicies[depth]

	hits, err := o.searcher.Search(ctx, query, policy.minSources)
	if err != nil {
		return nil, err
	}

	sources := FormatSources(hits)
	if len(sources) == 0 {
		return nil, ErrSearchUnavailable
	}
	o.logger.Info("sources gathered",
		zap.String("query", query),
		zap.String("depth", string(depth)),
		zap.Int("sources", len(sources)))

	report, err := o.generator.Generate(ctx, query, sources, depth)
	if err != nil {
		return nil, err
	}

	index, citeMeta := ResolveLenient(report.Text, sources)

	content, err := o.renderer.Render(report.Text, index)
	if err != nil {
		return nil, err
	}

	return &models.ResearchResult{
		Content:  content,
		Markdown: report.Text,
		Sources:  sources,
		Metadata: models.ResearchMetadata{
			SourceCount:        len(sources),
			TotalCitations:     citeMeta.TotalCitations,
			DistinctSources:    citeMeta.DistinctSources,
			SourceUsagePercent: citeMeta.SourceUsagePercent,
			WordCount:          report.WordCount,
			Model:              o.generator.llm.Model(),
			Depth:              depth,
		},
	}, nil
}

// Revise rewrites an existing report under a natural-language instruction.
// The source set is fixed; citation resolution is strict, so an LLM that
// invents a source id fails the revision with *InvalidCitationError.
func (o *Orchestrator) Revise(ctx context.Context, current, instruction string, sources []models.Source, depth models.Depth) (*models.ResearchResult, error) {
	report, err := o.generator.Revise(ctx, current, instruction, sources)
	if err != nil {
		return nil, err
	}

	index, citeMeta, err := ResolveStrict(report.Text, sources)
	if err != nil {
		return nil, err
	}

	content, err := o.renderer.Render(report.Text, index)
	if err != nil {
		return nil, err
	}

	return &models.ResearchResult{
		Content:  content,
		Markdown: report.Text,
		Sources:  sources,
		Metadata: models.ResearchMetadata{
			SourceCount:        len(sources),
			TotalCitations:     citeMeta.TotalCitations,
			DistinctSources:    citeMeta.DistinctSources,
			SourceUsagePercent: citeMeta.SourceUsagePercent,
			WordCount:          report.WordCount,
			Model:              o.generator.llm.Model(),
			Depth:              depth,
		},
	}, nil
}
