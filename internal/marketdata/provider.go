// Package marketdata supplies the option chain snapshots the engine analyzes.
package marketdata

import (
	"context"
	"errors"
	"strings"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// Provider returns one market snapshot per symbol.
//
// Implementations must be safe for concurrent use; the scanner calls
// Snapshot from several goroutines at once.
type Provider interface {
	Snapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error)
}

var (
	// ErrSymbolNotFound is returned when a provider has no data for a symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrTransient marks an upstream failure worth retrying
	ErrTransient = errors.New("transient market data failure")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrSymbolNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
