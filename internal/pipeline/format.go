package pipeline

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/researchdesk/backend/internal/models"
)

// faviconServiceURL is the icon-resolution fallback, keyed by hostname.
const faviconServiceURL = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// FormatSources turns raw hits into citable sources: 1-based string ids in
// input order, hits missing title or URL dropped, favicon resolved via
// provider metadata then the icon service. Pure and idempotent; downstream
// components only ever read the resolved favicon, never re-derive it.
func FormatSources(hits []models.SearchHit) []models.Source {
	sources := make([]models.Source, 0, len(hits))
	for _, hit := range hits {
		title := strings.TrimSpace(hit.Title)
		rawURL := strings.TrimSpace(hit.URL)
		if title == "" || rawURL == "" {
			continue
		}
		sources = append(sources, models.Source{
			ID:      strconv.Itoa(len(sources) + 1),
			Title:   title,
			URL:     rawURL,
			Snippet: strings.TrimSpace(hit.Snippet),
			Favicon: resolveFavicon(hit),
		})
	}
	return sources
}

func resolveFavicon(hit models.SearchHit) string {
	if hit.ImageURL != "" {
		return hit.ImageURL
	}
	u, err := url.Parse(strings.TrimSpace(hit.URL))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return fmt.Sprintf(faviconServiceURL, u.Hostname())
}
