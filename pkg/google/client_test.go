package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lifecycle-cli/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-cx", q.Get("cx"))
		assert.Equal(t, `"MR33-HW" Cisco Meraki "end of life"`, q.Get("q"))
		assert.Equal(t, "10", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Items: []Item{
				{
					Title:   "MR33 End-of-Sale Announcement",
					Link:    "https://documentation.meraki.com/eol/mr33",
					Snippet: "End-of-Sale Date: 14-Jul-2022. End of Support Date: 21-Jul-2026.",
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), `"MR33-HW" Cisco Meraki "end of life"`)

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "https://documentation.meraki.com/eol/mr33", resp.Items[0].Link)
	assert.Contains(t, resp.Items[0].Snippet, "14-Jul-2022")
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "nonexistent product")

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestSearch_PermanentOn403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "invalid API key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "test query")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "403")
	assert.True(t, resilience.IsPermanent(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestSearch_TransientOn503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "backend unavailable"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "test query")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_TransientOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "test query")

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := client.Search(ctx, "test")

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestSearch_TimeoutOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx",
		WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	resp, err := client.Search(context.Background(), "test")

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestSearch_MaxResultsOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-cx", WithBaseURL(srv.URL), WithMaxResults(5))
	_, err := client.Search(context.Background(), "test")
	require.NoError(t, err)
}
