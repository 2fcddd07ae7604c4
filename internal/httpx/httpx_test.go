package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quoteengine/internal/httpx"
)

func TestDo_SetsDefaultHeaders(t *testing.T) {
	t.Parallel()

	// Arrange: echo the headers the server saw
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-UA", r.UserAgent())
		w.Header().Set("X-Env", r.Header.Get("X-Env"))
		w.Header().Set("X-Keep", r.Header.Get("X-Keep"))
	}))
	defer srv.Close()
	c := httpx.New(time.Second)
	c.Headers = map[string]string{"X-Env": "test", "X-Keep": "default"}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("X-Keep", "caller")

	// Act
	res, err := c.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	// Assert: defaults fill gaps but never override the caller
	require.Equal(t, "quoteengine/1.0", res.Header.Get("X-UA"))
	require.Equal(t, "test", res.Header.Get("X-Env"))
	require.Equal(t, "caller", res.Header.Get("X-Keep"))
}
