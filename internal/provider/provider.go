package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote is the normalized snapshot returned by every upstream client.
// Prices are decimals to avoid float rounding.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Open          decimal.Decimal `json:"open"`
	PrevClose     decimal.Decimal `json:"prev_close"`
	// Timestamp is the observation time in seconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

// Client fetches a single symbol from one upstream provider.
// Errors must be *Error values carrying a Reason.
//
//go:generate mockgen -destination=providermock/client.go -package=providermock -source=provider.go Client
type Client interface {
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

// Reason is the closed failure taxonomy shared by providers and the batch engine.
type Reason string

const (
	ReasonTimeout       Reason = "Timeout"
	ReasonRateLimited   Reason = "RateLimited"
	ReasonParseError    Reason = "ParseError"
	ReasonProviderError Reason = "ProviderError"
	ReasonUnknown       Reason = "Unknown"
)

// Retryable reports whether a failure of this class may be retried.
// Only rate limiting is.
func Retryable(r Reason) bool { return r == ReasonRateLimited }

// Error is a tagged provider failure.
type Error struct {
	Reason Reason
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by reason so errors.Is(err, &Error{Reason: ReasonParseError}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason && (t.Symbol == "" || t.Symbol == e.Symbol)
}

// Errorf builds a tagged error with a formatted cause.
func Errorf(reason Reason, symbol, format string, args ...any) *Error {
	return &Error{Reason: reason, Symbol: symbol, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with reason. A nil err yields nil.
func Wrap(reason Reason, symbol string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Reason: reason, Symbol: symbol, Err: err}
}

// ReasonOf returns the failure class of err.
// Context expiry is a timeout; anything untagged is Unknown.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonTimeout
	}
	return ReasonUnknown
}
