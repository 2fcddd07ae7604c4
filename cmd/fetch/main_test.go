package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quoteengine/internal/config"
	"quoteengine/internal/quote"
)

func upstream(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = fmt.Fprintf(w, `{"symbol":%q,"price":"12.5","change":"0.5","timestamp":1735808400}`, r.URL.Query().Get("symbol"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewFlags_OverrideViper(t *testing.T) {
	t.Parallel()

	v := config.NewViper()
	o, err := newFlags(v, []string{"--symbols=005930,AAPL", "--concurrency=7", "--timeout=750ms", "MSFT"})
	require.NoError(t, err)

	cfg, err := config.LoadWith(v, filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	require.Equal(t, []string{"005930", "AAPL", "MSFT"}, o.symbols)
	require.Equal(t, 7, cfg.Engine.Concurrency)
	require.Equal(t, 750*time.Millisecond, cfg.Engine.FetchTimeout)
	require.Equal(t, config.Default().Cache, cfg.Cache)
}

func TestRun_PrintsBatchJSON(t *testing.T) {
	t.Parallel()

	// Arrange
	dom := upstream(t, http.StatusOK)
	intl := upstream(t, http.StatusTooManyRequests)
	var out bytes.Buffer

	// Act
	err := run([]string{
		"--config=" + filepath.Join(t.TempDir(), "none.json"),
		"--domestic-endpoint=" + dom.URL,
		"--international-endpoint=" + intl.URL,
		"--symbols=005930,AAPL",
	}, &out)

	// Assert: the rate-limited symbol fails after its retry, the batch still prints
	require.NoError(t, err)
	var b quote.Batch
	require.NoError(t, json.Unmarshal(out.Bytes(), &b))
	require.Equal(t, 2, b.Requested)
	require.Equal(t, quote.StatusSuccess, b.Results[0].Status)
	require.Equal(t, quote.StatusFailed, b.Results[1].Status)
	require.Equal(t, "RateLimited", string(b.Results[1].Reason))
}

func TestRun_Table(t *testing.T) {
	t.Parallel()

	dom := upstream(t, http.StatusOK)
	var out bytes.Buffer

	err := run([]string{
		"--config=" + filepath.Join(t.TempDir(), "none.json"),
		"--domestic-endpoint=" + dom.URL,
		"--table",
		"000660",
	}, &out)

	require.NoError(t, err)
	require.Contains(t, out.String(), "000660")
	require.Contains(t, out.String(), "12.5")
	require.Contains(t, out.String(), "1 requested, 1 ok, 0 failed, 0 cached")
}

func TestRun_NoSymbols(t *testing.T) {
	t.Parallel()

	err := run([]string{"--config=" + filepath.Join(t.TempDir(), "none.json")}, &bytes.Buffer{})
	require.ErrorContains(t, err, "no symbols")
}
