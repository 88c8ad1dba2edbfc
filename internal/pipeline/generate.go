package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/models"
)

// GenOptions are the per-call LLM parameters.
type GenOptions struct {
	Temperature   float32
	TopP          float32
	MaxTokens     int32
	StopSequences []string
}

// TextGenerator is the outbound LLM contract. Implementations classify
// upstream failures into *GenerationError reasons; the pipeline never sees
// raw provider errors.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenOptions) (string, error)
	Model() string
}

// GeneratedReport is the accepted output of one generation run. Reports
// below their word-count floor are never returned; they are retried and
// ultimately rejected.
type GeneratedReport struct {
	Text         string
	WordCount    int
	SectionWords map[string]int // deep mode only
}

const (
	quickMinWords    = 500
	quickTargetWords = 800
	deepMinWords     = 1500
	deepTargetWords  = 2500

	sectionAttempts = 3

	baseTemperature  = 0.7
	retryTemperature = 0.9
)

type reportSection struct {
	title    string
	focus    string
	minWords int
	target   int
}

var deepSections = []reportSection{
	{"Introduction", "introduce the topic, its significance, and the scope of the analysis", 250, 400},
	{"Literature Review & Analysis", "analyze what the gathered sources say, comparing and contrasting their findings", 300, 600},
	{"Methodology", "describe how the question can be investigated and how the cited evidence was produced", 250, 400},
	{"Findings & Discussion", "present the key findings supported by the sources and discuss their implications", 300, 600},
	{"Conclusion", "summarize the analysis and state open questions", 200, 350},
}

// ContentGenerator drives the LLM under word-count and citation-format
// constraints, retrying violations up to a fixed cap per call.
type ContentGenerator struct {
	llm    TextGenerator
	logger *zap.Logger
}

func NewContentGenerator(llm TextGenerator, logger *zap.Logger) *ContentGenerator {
	return &ContentGenerator{llm: llm, logger: logger.Named("generate")}
}

// Generate produces the report for query against sources. Quick mode is a
// single call; deep mode chains the five fixed sections, each prompt
// carrying the previously generated text so the narrative stays continuous.
// A single failed section fails the whole report.
func (g *ContentGenerator) Generate(ctx context.Context, query string, sources []models.Source, depth models.Depth) (*GeneratedReport, error) {
	if depth == models.DepthDeep {
		return g.generateDeep(ctx, query, sources)
	}
	return g.generateQuick(ctx, query, sources)
}

func (g *ContentGenerator) generateQuick(ctx context.Context, query string, sources []models.Source) (*GeneratedReport, error) {
	prompt := buildQuickPrompt(query, sources)
	text, words, err := g.generateWithFloor(ctx, prompt, quickMinWords, quickTargetWords)
	if err != nil {
		return nil, err
	}
	return &GeneratedReport{Text: text, WordCount: words}, nil
}

func (g *ContentGenerator) generateDeep(ctx context.Context, query string, sources []models.Source) (*GeneratedReport, error) {
	var (
		parts        []string
		sectionWords = make(map[string]int, len(deepSections))
		total        int
	)

	for _, sec := range deepSections {
		previous := strings.Join(parts, "\n\n")
		prompt := buildSectionPrompt(query, sources, sec, previous)
		text, words, err := g.generateWithFloor(ctx, prompt, sec.minWords, sec.target)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", sec.title, err)
		}
		parts = append(parts, "## "+sec.title+"\n\n"+text)
		sectionWords[sec.title] = words
		total += words
	}

	if total < deepMinWords {
		return nil, &ContentTooShortError{Actual: total, Minimum: deepMinWords}
	}
	return &GeneratedReport{
		Text:         strings.Join(parts, "\n\n"),
		WordCount:    total,
		SectionWords: sectionWords,
	}, nil
}

// generateWithFloor calls the LLM up to sectionAttempts times until the
// stripped output clears minWords, widening the sampling temperature on
// retries. Upstream rate-limit and quota failures are not worth retrying
// locally and fail immediately.
func (g *ContentGenerator) generateWithFloor(ctx context.Context, prompt string, minWords, target int) (string, int, error) {
	var lastWords int
	for attempt := 1; attempt <= sectionAttempts; attempt++ {
		opts := GenOptions{
			Temperature: baseTemperature,
			TopP:        0.95,
			MaxTokens:   8192,
		}
		if attempt > 1 {
			opts.Temperature = retryTemperature
		}

		text, err := g.llm.Generate(ctx, prompt, opts)
		if err != nil {
			var genErr *GenerationError
			if errors.As(err, &genErr) {
				switch genErr.Reason {
				case ReasonRateLimited, ReasonQuota:
					return "", 0, err
				}
				g.logger.Warn("llm call failed",
					zap.Int("attempt", attempt),
					zap.String("reason", string(genErr.Reason)),
					zap.Error(err))
				if attempt == sectionAttempts {
					return "", 0, err
				}
				continue
			}
			return "", 0, &GenerationError{Reason: ReasonUpstream, Err: err}
		}

		text = stripTrailingReferences(text)
		lastWords = countWords(text)
		if lastWords >= minWords {
			return text, lastWords, nil
		}
		g.logger.Warn("content below word floor",
			zap.Int("attempt", attempt),
			zap.Int("words", lastWords),
			zap.Int("minimum", minWords),
			zap.Int("target", target))
	}
	return "", 0, &ContentTooShortError{Actual: lastWords, Minimum: minWords}
}

// Revise rewrites an existing report under a user instruction, keeping the
// same source numbering. The caller validates citations strictly afterward.
func (g *ContentGenerator) Revise(ctx context.Context, current, instruction string, sources []models.Source) (*GeneratedReport, error) {
	prompt := buildRevisePrompt(current, instruction, sources)
	text, words, err := g.generateWithFloor(ctx, prompt, 200, quickTargetWords)
	if err != nil {
		return nil, err
	}
	return &GeneratedReport{Text: text, WordCount: words}, nil
}

// referencesRe matches the heading of a trailing references section, which
// models keep emitting despite being told not to.
var referencesRe = regexp.MustCompile(`(?mi)^(?:#{1,6}\s*|\*\*)?(references|sources|bibliography)\b[:*\s]*$`)

func stripTrailingReferences(text string) string {
	locs := referencesRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text)
	}
	last := locs[len(locs)-1]
	if last[0] < len(text)/2 {
		// A references heading in the first half is part of the body, not a
		// trailing section.
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:last[0]])
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// --- prompt builders --------------------------------------------------------

func sourceCatalog(sources []models.Source) string {
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "[%s] %s — %s\n", s.ID, s.Title, s.URL)
		if s.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", s.Snippet)
		}
	}
	return b.String()
}

func citationRules(minWords, target int) string {
	return fmt.Sprintf(`Requirements:
- Write at least %d words, aiming for about %d.
- Cite sources inline using bracketed numbers only, e.g. [1] or [2, 4] or [6-8], referring to the numbered source list.
- Do NOT add a References, Sources, or Bibliography section; citations are inline only.
- Finish every sentence; never stop mid-sentence.
- Use markdown headings, bold, and lists where they help.`, minWords, target)
}

func buildQuickPrompt(query string, sources []models.Source) string {
	return fmt.Sprintf(`You are a research analyst. Write a cited analytical report on the following topic.

Topic: %s

Numbered sources:
%s
%s`, query, sourceCatalog(sources), citationRules(quickMinWords, quickTargetWords))
}

func buildSectionPrompt(query string, sources []models.Source, sec reportSection, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a research analyst writing one section of a long-form report on:

Topic: %s

Numbered sources:
%s
`, query, sourceCatalog(sources))
	if previous != "" {
		fmt.Fprintf(&b, "Report so far (do not repeat it, continue from it):\n%s\n\n", previous)
	}
	fmt.Fprintf(&b, "Now write ONLY the %q section. In it, %s.\n\n%s\n- Do not write a heading; the section title is added separately.\n",
		sec.title, sec.focus, citationRules(sec.minWords, sec.target))
	return b.String()
}

func buildRevisePrompt(current, instruction string, sources []models.Source) string {
	return fmt.Sprintf(`You are a research analyst revising an existing cited report.

Current report:
%s

Numbered sources (the ONLY sources you may cite):
%s
Instruction: %s

Rewrite the full report applying the instruction. Keep the bracketed citation numbers consistent with the source list above and do not invent new ones. Do NOT add a References, Sources, or Bibliography section. Finish every sentence.`,
		current, sourceCatalog(sources), instruction)
}
