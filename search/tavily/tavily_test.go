package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hupe1980/deepresearch/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_StubMode(t *testing.T) {
	client := NewClient("")
	assert.True(t, client.StubMode())

	results, err := client.Search(context.Background(), "quantum computing trends", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEmpty(t, r.Title)
		assert.NotEmpty(t, r.URL)
		assert.NotEmpty(t, r.Content)
	}
}

func TestClient_StubMode_MultiByteQuery(t *testing.T) {
	client := NewClient("")

	// 3-byte runes straddle the 30/40/45/50-byte truncation points
	query := strings.Repeat("量子計算", 8)
	results, err := client.Search(context.Background(), query, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, utf8.ValidString(r.Title), "title %q splits a rune", r.Title)
		assert.True(t, utf8.ValidString(r.URL), "url %q splits a rune", r.URL)
	}
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "go concurrency", req.Query)
		assert.Equal(t, 2, req.MaxResults)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Go Blog", "url": "https://go.dev/blog/pipelines", "content": "Pipelines and cancellation."},
				{"title": "", "url": "https://example.com/untitled", "content": "No title."},
				{"title": "Broken", "url": "", "content": "Dropped, no url."},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", func(o *Options) { o.BaseURL = srv.URL })
	assert.False(t, client.StubMode())

	results, err := client.Search(context.Background(), "go concurrency", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Go Blog", results[0].Title)
	assert.Equal(t, "Untitled", results[1].Title, "missing titles are defaulted")
}

func TestClient_Search_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", func(o *Options) { o.BaseURL = srv.URL })

	_, err := client.Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.True(t, search.IsSearchError(err))
	assert.Contains(t, err.Error(), "429")
}

func TestClient_Search_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient("test-key", func(o *Options) { o.BaseURL = srv.URL })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "anything", 3)
	require.Error(t, err)
	assert.True(t, search.IsSearchError(err))
}
