package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchdesk/backend/internal/models"
)

func sourcesN(n int) []models.Source {
	sources := make([]models.Source, n)
	for i := range sources {
		id := strconv.Itoa(i + 1)
		sources[i] = models.Source{
			ID:    id,
			Title: "Source " + id,
			URL:   fmt.Sprintf("https://example.com/%s", id),
		}
	}
	return sources
}

func TestResolveExpandsListsAndRanges(t *testing.T) {
	text := "Early work [1] was extended [2, 4] and later surveyed [6-8]."
	index, meta := ResolveLenient(text, sourcesN(10))

	assert.Equal(t, 6, meta.TotalCitations)
	assert.Equal(t, 6, meta.DistinctSources)
	assert.Equal(t, 60, meta.SourceUsagePercent)

	for _, id := range []string{"1", "2", "4", "6", "7", "8"} {
		assert.Contains(t, index, id)
	}
	assert.NotContains(t, index, "3")
	assert.NotContains(t, index, "5")
}

func TestResolveCountsRepeatsInTotalOnly(t *testing.T) {
	text := "Claim [1]. Same claim again [1]. Another [2]."
	_, meta := ResolveLenient(text, sourcesN(10))

	assert.Equal(t, 3, meta.TotalCitations)
	assert.Equal(t, 2, meta.DistinctSources)
	assert.Equal(t, 20, meta.SourceUsagePercent)
}

func TestResolveStrictRejectsUnknownIDs(t *testing.T) {
	text := "Known [3] but fabricated [99]."
	_, _, err := ResolveStrict(text, sourcesN(10))

	var citeErr *InvalidCitationError
	require.True(t, errors.As(err, &citeErr))
	assert.Equal(t, []string{"99"}, citeErr.IDs)
}

func TestResolveLenientIgnoresUnknownIDs(t *testing.T) {
	text := "Known [3] but fabricated [99]."
	index, meta := ResolveLenient(text, sourcesN(10))

	assert.Contains(t, index, "3")
	assert.NotContains(t, index, "99")
	assert.Equal(t, 1, meta.TotalCitations)
	assert.Equal(t, 1, meta.DistinctSources)
}

func TestResolveZeroSourcesGuard(t *testing.T) {
	_, meta := ResolveLenient("No sources exist [1].", nil)
	assert.Equal(t, 0, meta.SourceUsagePercent)
	assert.Equal(t, 0, meta.TotalCitations)
}

func TestResolveIgnoresDegenerateRanges(t *testing.T) {
	// Reversed and oversized ranges are not expanded; their ids are unknown
	// and therefore invalid in strict mode.
	_, _, err := ResolveStrict("bad range [8-6]", sourcesN(10))
	var citeErr *InvalidCitationError
	require.True(t, errors.As(err, &citeErr))

	index, _ := ResolveLenient("bad range [8-6]", sourcesN(10))
	assert.Empty(t, index)
}
