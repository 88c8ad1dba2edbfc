package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/models"
)

// scriptedLLM replays canned responses (or errors) in call order and
// records the prompts and options it saw.
type scriptedLLM struct {
	responses []string
	errs      []error
	prompts   []string
	opts      []GenOptions
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, opts GenOptions) (string, error) {
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	if call < len(s.errs) && s.errs[call] != nil {
		return "", s.errs[call]
	}
	if call < len(s.responses) {
		return s.responses[call], nil
	}
	return "", errors.New("no scripted response available")
}

func (s *scriptedLLM) Model() string { return "test-model" }

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("lorem ", n))
}

func TestGenerateQuickAcceptsReportAboveFloor(t *testing.T) {
	llm := &scriptedLLM{responses: []string{words(600)}}
	gen := NewContentGenerator(llm, zap.NewNop())

	report, err := gen.Generate(context.Background(), "test query", sourcesN(10), models.DepthQuick)
	require.NoError(t, err)
	assert.Equal(t, 600, report.WordCount)
	assert.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "[1] Source 1")
}

func TestGenerateRetriesBelowFloorThenFails(t *testing.T) {
	short := words(480)
	llm := &scriptedLLM{responses: []string{short, short, short}}
	gen := NewContentGenerator(llm, zap.NewNop())

	_, err := gen.Generate(context.Background(), "test query", sourcesN(10), models.DepthQuick)

	var shortErr *ContentTooShortError
	require.True(t, errors.As(err, &shortErr))
	assert.Equal(t, 480, shortErr.Actual)
	assert.Equal(t, 500, shortErr.Minimum)

	require.Len(t, llm.opts, 3, "retry cap is three attempts")
	assert.InDelta(t, 0.7, float64(llm.opts[0].Temperature), 0.001)
	assert.InDelta(t, 0.9, float64(llm.opts[1].Temperature), 0.001, "retries widen sampling")
}

func TestGenerateRetrySucceedsSecondAttempt(t *testing.T) {
	llm := &scriptedLLM{responses: []string{words(480), words(550)}}
	gen := NewContentGenerator(llm, zap.NewNop())

	report, err := gen.Generate(context.Background(), "q", sourcesN(10), models.DepthQuick)
	require.NoError(t, err)
	assert.Equal(t, 550, report.WordCount)
	assert.Len(t, llm.prompts, 2)
}

func TestGenerateStripsTrailingReferences(t *testing.T) {
	body := words(600) + "\n\nReferences\n[1] Source 1, https://example.com/1\n[2] Source 2"
	llm := &scriptedLLM{responses: []string{body}}
	gen := NewContentGenerator(llm, zap.NewNop())

	report, err := gen.Generate(context.Background(), "q", sourcesN(10), models.DepthQuick)
	require.NoError(t, err)
	assert.NotContains(t, report.Text, "References")
	assert.Equal(t, 600, report.WordCount)
}

func TestGenerateDeepChainsSections(t *testing.T) {
	responses := make([]string, len(deepSections))
	for i := range responses {
		responses[i] = "section-" + deepSections[i].title + " " + words(320)
	}
	llm := &scriptedLLM{responses: responses}
	gen := NewContentGenerator(llm, zap.NewNop())

	report, err := gen.Generate(context.Background(), "q", sourcesN(15), models.DepthDeep)
	require.NoError(t, err)
	require.Len(t, llm.prompts, len(deepSections))

	// Every prompt after the first carries the previously generated text.
	assert.Contains(t, llm.prompts[1], "section-Introduction")
	assert.Contains(t, llm.prompts[4], "section-Findings & Discussion")

	for _, sec := range deepSections {
		assert.Contains(t, report.Text, "## "+sec.title)
		assert.GreaterOrEqual(t, report.SectionWords[sec.title], sec.minWords)
	}
	assert.GreaterOrEqual(t, report.WordCount, deepMinWords)
}

func TestGenerateDeepFailedSectionFailsReport(t *testing.T) {
	short := words(100)
	llm := &scriptedLLM{responses: []string{short, short, short}}
	gen := NewContentGenerator(llm, zap.NewNop())

	_, err := gen.Generate(context.Background(), "q", sourcesN(15), models.DepthDeep)
	var shortErr *ContentTooShortError
	require.True(t, errors.As(err, &shortErr))
	assert.Len(t, llm.prompts, 3, "first section exhausts its attempts, later sections never run")
}

func TestGenerateQuotaFailsImmediately(t *testing.T) {
	llm := &scriptedLLM{errs: []error{&GenerationError{Reason: ReasonQuota, Err: errors.New("quota exhausted")}}}
	gen := NewContentGenerator(llm, zap.NewNop())

	_, err := gen.Generate(context.Background(), "q", sourcesN(10), models.DepthQuick)
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ReasonQuota, genErr.Reason)
	assert.Len(t, llm.prompts, 1, "quota errors are not retried")
}

func TestGenerateTimeoutRetriedThenSurfaced(t *testing.T) {
	timeout := &GenerationError{Reason: ReasonTimeout, Err: context.DeadlineExceeded}
	llm := &scriptedLLM{errs: []error{timeout, timeout, timeout}}
	gen := NewContentGenerator(llm, zap.NewNop())

	_, err := gen.Generate(context.Background(), "q", sourcesN(10), models.DepthQuick)
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ReasonTimeout, genErr.Reason)
	assert.Len(t, llm.prompts, 3)
}

func TestStripTrailingReferencesKeepsBodyHeading(t *testing.T) {
	text := "## Sources\n" + words(400)
	assert.Equal(t, strings.TrimSpace(text), stripTrailingReferences(text))
}

func TestReviseUsesInstructionAndSources(t *testing.T) {
	llm := &scriptedLLM{responses: []string{words(300)}}
	gen := NewContentGenerator(llm, zap.NewNop())

	report, err := gen.Revise(context.Background(), "old report text", "make it shorter", sourcesN(5))
	require.NoError(t, err)
	assert.Equal(t, 300, report.WordCount)
	assert.Contains(t, llm.prompts[0], "make it shorter")
	assert.Contains(t, llm.prompts[0], "old report text")
}
