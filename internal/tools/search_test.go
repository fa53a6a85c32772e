package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSearchTool(t *testing.T, handler http.HandlerFunc) *SearchTool {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tool := NewSearchTool("test-key", 5*time.Second)
	tool.baseURL = srv.URL
	return tool
}

func TestSearchFormatsTopResults(t *testing.T) {
	tool := testSearchTool(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "go heaps", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"results":[
			{"title":"container/heap","url":"https://pkg.go.dev/container/heap","description":"Heap operations"},
			{"title":"Binary heap","url":"https://example.com/heap","description":"Data structure"}
		]}`)
	})

	out, err := tool.Execute(context.Background(), `{"query":"go heaps"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Search results for 'go heaps':")
	assert.Contains(t, out, "1. container/heap")
	assert.Contains(t, out, "URL: https://pkg.go.dev/container/heap")
	assert.Contains(t, out, "2. Binary heap")
}

func TestSearchCapsResultCount(t *testing.T) {
	tool := testSearchTool(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[`)
		for i := 0; i < 8; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"title":"r%d","url":"https://e.com/%d","description":"d"}`, i, i)
		}
		fmt.Fprint(w, `]}`)
	})

	out, err := tool.Execute(context.Background(), `{"query":"q"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "5. r4")
	assert.NotContains(t, out, "6. r5")
}

func TestSearchNoResults(t *testing.T) {
	tool := testSearchTool(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	})

	out, err := tool.Execute(context.Background(), `{"query":"gibberish"}`)
	require.NoError(t, err)
	assert.Equal(t, "No results found.", out)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	tool := NewSearchTool("test-key", 5*time.Second)

	_, err := tool.Execute(context.Background(), `{"query":" "}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorValidationFailed, te.Kind)
}

func TestSearchAPIFailure(t *testing.T) {
	tool := testSearchTool(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := tool.Execute(context.Background(), `{"query":"q"}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorExecutionFailed, te.Kind)
}
