package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchdesk/backend/internal/models"
)

func TestFormatSourcesAssignsSequentialIDs(t *testing.T) {
	hits := []models.SearchHit{
		{Title: "First", URL: "https://a.example.com/1"},
		{Title: "Second", URL: "https://b.example.com/2"},
		{Title: "Third", URL: "https://c.example.com/3"},
	}

	sources := FormatSources(hits)
	require.Len(t, sources, 3)
	assert.Equal(t, "1", sources[0].ID)
	assert.Equal(t, "2", sources[1].ID)
	assert.Equal(t, "3", sources[2].ID)
}

func TestFormatSourcesDropsIncompleteHits(t *testing.T) {
	hits := []models.SearchHit{
		{Title: "", URL: "https://a.example.com"},
		{Title: "Good", URL: "https://b.example.com"},
		{Title: "No URL", URL: "  "},
	}

	sources := FormatSources(hits)
	require.Len(t, sources, 1)
	assert.Equal(t, "1", sources[0].ID)
	assert.Equal(t, "Good", sources[0].Title)
}

func TestFormatSourcesFaviconChain(t *testing.T) {
	hits := []models.SearchHit{
		{Title: "Has image", URL: "https://a.example.com/x", ImageURL: "https://a.example.com/icon.png"},
		{Title: "Host fallback", URL: "https://b.example.com/y"},
	}

	sources := FormatSources(hits)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://a.example.com/icon.png", sources[0].Favicon)
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=b.example.com&sz=64", sources[1].Favicon)
}

func TestFormatSourcesIdempotent(t *testing.T) {
	hits := []models.SearchHit{
		{Title: "A", URL: "https://a.example.com", Snippet: "alpha"},
		{Title: "B", URL: "https://b.example.com", Snippet: "beta"},
	}

	first := FormatSources(hits)
	second := FormatSources(hits)
	assert.Equal(t, first, second)
}
