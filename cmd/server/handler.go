package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quoteengine/internal/aggregate"
	"quoteengine/internal/quote"
)

const maxBody = 1 << 20 // 1MB

// Quoter is the engine surface the handlers need. *batch.Orchestrator implements it.
type Quoter interface {
	FetchBatch(ctx context.Context, symbols []string) (*quote.Batch, error)
	FetchOne(ctx context.Context, symbol string) (quote.Result, error)
}

type quotesResponse struct {
	*quote.Batch
	Rows []aggregate.Row `json:"rows"`
}

type symbolResponse struct {
	Result quote.Result  `json:"result"`
	Row    aggregate.Row `json:"row"`
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

type quoteHandler struct {
	engine         Quoter
	log            *zap.Logger
	maxSymbols     int
	requestTimeout time.Duration
}

func (h *quoteHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/quotes", h.GetQuotes)
	r.POST("/quotes", h.PostQuotes)
	r.GET("/quotes/:symbol", h.GetQuote)
}

func (h *quoteHandler) GetQuotes(c *gin.Context) {
	q := c.Query("symbols")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing symbols query param"})
		return
	}
	h.writeBatch(c, splitCSV(q))
}

func (h *quoteHandler) PostQuotes(c *gin.Context) {
	var b postBody
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(b.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols cannot be empty"})
		return
	}
	h.writeBatch(c, b.Symbols)
}

func (h *quoteHandler) GetQuote(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	res, err := h.engine.FetchOne(ctx, symbol)
	if err != nil {
		h.log.Error("fetch one", zap.String("symbol", symbol), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, symbolResponse{Result: res, Row: aggregate.Display([]quote.Result{res})[0]})
}

// writeBatch always answers 200 once the engine ran: per-symbol failures live in the results.
func (h *quoteHandler) writeBatch(c *gin.Context, symbols []string) {
	if len(symbols) > h.maxSymbols {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many symbols (max %d)", h.maxSymbols)})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	b, err := h.engine.FetchBatch(ctx, symbols)
	if err != nil {
		h.log.Error("fetch batch", zap.Int("symbols", len(symbols)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quotesResponse{Batch: b, Rows: aggregate.Display(b.Results)})
}

// limitBody caps request body size to avoid memory abuse.
func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		c.Next()
	}
}

func withCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// accessLog logs one line per request.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// recovery turns handler panics into a 500 and logs them.
func recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("panic in handler", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func newRouter(engine Quoter, log *zap.Logger, maxSymbols int, requestTimeout time.Duration, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(recovery(log), accessLog(log), withCORS(), limitBody())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	h := &quoteHandler{engine: engine, log: log, maxSymbols: maxSymbols, requestTimeout: requestTimeout}
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
