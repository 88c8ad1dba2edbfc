package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/models"
)

// SearchProvider is the outbound web-search contract. Implementations live
// outside the pipeline (internal/websearch); tests supply fakes.
type SearchProvider interface {
	Search(ctx context.Context, query string, count int) ([]models.SearchHit, error)
}

// academicDomains is the tier-1 allow-list, OR-joined into a site: filter.
var academicDomains = []string{
	"arxiv.org",
	"nature.com",
	"sciencedirect.com",
	"ieee.org",
	"springer.com",
	"acm.org",
	".edu",
}

// lowSignalDomains are excluded from the tier-2 general query.
var lowSignalDomains = []string{
	"reddit.com",
	"quora.com",
	"pinterest.com",
	"facebook.com",
	"answers.com",
}

const resultsPerTier = 10

// SearchAggregator escalates through prioritized search tiers until the
// minimum source count is satisfied, deduplicating by normalized URL.
type SearchAggregator struct {
	provider SearchProvider
	limiter  *RateLimiter
	retry    RetryPolicy
	logger   *zap.Logger
}

func NewSearchAggregator(provider SearchProvider, limiter *RateLimiter, logger *zap.Logger) *SearchAggregator {
	return &SearchAggregator{
		provider: provider,
		limiter:  limiter,
		retry:    DefaultRetryPolicy,
		logger:   logger.Named("search"),
	}
}

// Search runs the academic, general, and fallback tiers in order,
// short-circuiting once minSources unique hits have accumulated. A failed
// tier contributes zero hits; only all tiers failing (or producing nothing)
// is fatal.
func (a *SearchAggregator) Search(ctx context.Context, query string, minSources int) ([]models.SearchHit, error) {
	tiers := []struct {
		name  string
		query string
	}{
		{"academic", academicQuery(query)},
		{"general", generalQuery(query)},
		{"fallback", query + " research paper"},
	}

	var (
		hits     []models.SearchHit
		seen     = map[string]bool{}
		failures int
	)

	for _, tier := range tiers {
		if len(hits) >= minSources {
			break
		}

		results, err := a.searchTier(ctx, tier.query)
		if err != nil {
			var rle *RateLimitError
			if errors.As(err, &rle) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("search %s tier: %w", tier.name, ctx.Err())
			}
			failures++
			a.logger.Warn("search tier failed",
				zap.String("tier", tier.name),
				zap.Error(err))
			continue
		}

		added := 0
		for _, hit := range results {
			key := normalizeURL(hit.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, hit)
			added++
		}
		a.logger.Info("search tier complete",
			zap.String("tier", tier.name),
			zap.Int("returned", len(results)),
			zap.Int("added", added),
			zap.Int("total", len(hits)))
	}

	if len(hits) == 0 {
		a.logger.Error("no usable results from any tier", zap.Int("failed_tiers", failures))
		return nil, ErrSearchUnavailable
	}
	return hits, nil
}

// searchTier issues one tier query with bounded retries. The limiter sits
// inside the retry closure so retried attempts consume window budget like
// any other outbound call; a denied window aborts the retries.
func (a *SearchAggregator) searchTier(ctx context.Context, query string) ([]models.SearchHit, error) {
	var results []models.SearchHit
	err := a.retry.Do(ctx, func() error {
		if err := a.limiter.Acquire(ctx); err != nil {
			return Permanent(err)
		}
		var err error
		results, err = a.provider.Search(ctx, query, resultsPerTier)
		return err
	})
	return results, err
}

func academicQuery(query string) string {
	sites := make([]string, len(academicDomains))
	for i, d := range academicDomains {
		sites[i] = "site:" + d
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}

func generalQuery(query string) string {
	var b strings.Builder
	b.WriteString(query)
	for _, d := range lowSignalDomains {
		b.WriteString(" -site:")
		b.WriteString(d)
	}
	return b.String()
}

// normalizeURL lowercases scheme and host and strips the trailing slash so
// duplicates differing only in those survive exactly once. Unparseable URLs
// normalize to "" and are dropped.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	s := u.String()
	return strings.TrimSuffix(s, "/")
}
