package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quoteengine/internal/app"
	"quoteengine/internal/config"
	"quoteengine/internal/provider"
	"quoteengine/internal/provider/providermock"
	"quoteengine/internal/quote"
)

func TestBuild_EndToEndOverHTTP(t *testing.T) {
	t.Parallel()

	// Arrange: a healthy domestic upstream and a broken international one
	var domesticHits atomic.Int32
	domestic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		domesticHits.Add(1)
		sym := r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"symbol":%q,"price":"71000","timestamp":1735808400}`, sym)
	}))
	t.Cleanup(domestic.Close)
	international := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(international.Close)

	cfg := config.Default()
	cfg.Domestic.Endpoint = domestic.URL
	cfg.Domestic.MinInterval = 10 * time.Millisecond
	cfg.International.Endpoint = international.URL
	reg := prometheus.NewRegistry()

	eng, err := app.Build(cfg, nil, reg)
	require.NoError(t, err)

	// Act
	b, err := eng.Orchestrator.FetchBatch(t.Context(), []string{"005930", "AAPL", "005930"})

	// Assert
	require.NoError(t, err)
	require.Len(t, b.Results, 3)
	require.Equal(t, quote.StatusSuccess, b.Results[0].Status)
	require.True(t, decimal.NewFromInt(71000).Equal(b.Results[0].Quote.Price))
	require.Equal(t, quote.StatusFailed, b.Results[1].Status)
	require.Equal(t, provider.ReasonProviderError, b.Results[1].Reason)
	require.True(t, b.Results[2].FromCache)
	require.Equal(t, int32(1), domesticHits.Load())
	require.Equal(t, 1, eng.Cache.Len())
	require.Equal(t, 1, eng.LKG.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(eng.Metrics.Failures.WithLabelValues(string(provider.ReasonProviderError))))
}

func TestBuild_WithClientsSharesLimiter(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	dom := providermock.NewMockClient(ctrl)
	intl := providermock.NewMockClient(ctrl)
	dom.EXPECT().Fetch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sym string) (provider.Quote, error) {
			return provider.Quote{Symbol: sym, Price: decimal.NewFromInt(1)}, nil
		}).Times(3)

	cfg := config.Default()
	cfg.Domestic.MinInterval = 50 * time.Millisecond
	eng, err := app.Build(cfg, nil, nil, app.WithClients(dom, intl))
	require.NoError(t, err)
	require.Nil(t, eng.Metrics)

	// Act
	start := time.Now()
	b, err := eng.Orchestrator.FetchBatch(t.Context(), []string{"000001", "000002", "000003"})

	// Assert: three domestic calls need at least two full intervals
	require.NoError(t, err)
	require.Equal(t, 3, b.Succeeded)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBuild_UpstreamRequestsCarryConfiguredQueryAndHeaders(t *testing.T) {
	t.Parallel()

	// Arrange: the upstream echoes what it received back into the quote
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Clone(r.Context()))
		_, _ = fmt.Fprintf(w, `{"symbol":%q,"price":"1"}`, r.URL.Query().Get("symbol"))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.International.Endpoint = srv.URL
	cfg.International.Query = map[string]string{"api_key": "k-123"}
	cfg.HTTP.UserAgent = "desk-tool/2"
	cfg.HTTP.Headers = map[string]string{"X-Desk": "seoul"}
	eng, err := app.Build(cfg, nil, nil)
	require.NoError(t, err)

	// Act
	b, err := eng.Orchestrator.FetchBatch(t.Context(), []string{"AAPL"})

	// Assert
	require.NoError(t, err)
	require.Equal(t, quote.StatusSuccess, b.Results[0].Status)
	req, ok := seen.Load().(*http.Request)
	require.True(t, ok)
	require.Equal(t, "k-123", req.URL.Query().Get("api_key"))
	require.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
	require.Equal(t, "desk-tool/2", req.UserAgent())
	require.Equal(t, "seoul", req.Header.Get("X-Desk"))
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.Concurrency = 0
	_, err := app.Build(cfg, nil, nil)
	require.ErrorContains(t, err, "engine.concurrency")
}
