package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchMapsProviderResults(t *testing.T) {
	var gotQuery, gotNum string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotNum = r.URL.Query().Get("num")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [
				{
					"title": "Quantum Error Correction",
					"link": "https://arxiv.org/abs/1234.5678",
					"snippet": "A survey of QEC codes.",
					"pagemap": {"cse_image": [{"src": "https://arxiv.org/icon.png"}]}
				},
				{
					"title": "Plain Result",
					"link": "https://example.com/page",
					"snippet": "No image metadata."
				}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP("key", "cx", srv.URL, &http.Client{Timeout: time.Second})
	hits, err := client.Search(context.Background(), "quantum error correction", 10)
	require.NoError(t, err)

	assert.Equal(t, "quantum error correction", gotQuery)
	assert.Equal(t, "10", gotNum)

	require.Len(t, hits, 2)
	assert.Equal(t, "Quantum Error Correction", hits[0].Title)
	assert.Equal(t, "https://arxiv.org/abs/1234.5678", hits[0].URL)
	assert.Equal(t, "https://arxiv.org/icon.png", hits[0].ImageURL)
	assert.Empty(t, hits[1].ImageURL)
}

func TestSearchErrorIncludesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"daily quota exceeded"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClientWithHTTP("key", "cx", srv.URL, &http.Client{Timeout: time.Second})
	_, err := client.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "daily quota exceeded")
}

func TestSearchEmptyResultSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClientWithHTTP("key", "cx", srv.URL, &http.Client{Timeout: time.Second})
	hits, err := client.Search(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
