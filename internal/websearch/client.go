// Package websearch implements the outbound search-provider contract
// against a Programmable Search-style JSON API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/researchdesk/backend/internal/models"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Client calls the search provider over HTTP.
type Client struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, engineID string) *Client {
	return NewClientWithHTTP(apiKey, engineID, defaultBaseURL, &http.Client{Timeout: 15 * time.Second})
}

// NewClientWithHTTP constructs a client against a custom endpoint and HTTP
// client. Useful for tests and for overriding the default timeout.
func NewClientWithHTTP(apiKey, engineID, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		apiKey:     apiKey,
		engineID:   engineID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// searchResponse is the provider's wire shape. Only the fields we consume
// are decoded.
type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		PageMap struct {
			CseImage []struct {
				Src string `json:"src"`
			} `json:"cse_image"`
		} `json:"pagemap"`
	} `json:"items"`
}

// Search runs one provider query and maps results to raw hits. Non-2xx
// responses include the upstream body in the returned error for logs; the
// caller never forwards it to users.
func (c *Client) Search(ctx context.Context, query string, count int) ([]models.SearchHit, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("websearch: provider returned %d: %s", resp.StatusCode, string(body))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("websearch: decode: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(payload.Items))
	for _, item := range payload.Items {
		hit := models.SearchHit{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		}
		if len(item.PageMap.CseImage) > 0 {
			hit.ImageURL = item.PageMap.CseImage[0].Src
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
