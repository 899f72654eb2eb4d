// Package provider implements Ethereum JSON-RPC providers.
//
// This package contains:
//   - Provider interface: core abstraction for an RPC endpoint
//   - HTTPProvider: JSON-RPC 2.0 over HTTP with rate limiting and a response size cap
//   - ProviderMonitor: health and throttle tracking
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HeaderSizeLimit is added to every response size estimate to account for HTTP headers.
const HeaderSizeLimit = 2 * 1024

// ErrResponseTooLarge is returned when a response does not fit the size estimate
// of the request, or when the provider refuses a query for being too large.
var ErrResponseTooLarge = errors.New("response too large")

// Request is a single JSON-RPC call.
type Request struct {
	Method string
	Params []any

	// ResponseSizeEstimate bounds the response body, in bytes, headers excluded.
	// Zero means no limit.
	ResponseSizeEstimate int64
}

// MaxResponseBytes returns the effective body limit of the request.
func (r Request) MaxResponseBytes() int64 {
	if r.ResponseSizeEstimate <= 0 {
		return 0
	}
	return r.ResponseSizeEstimate + HeaderSizeLimit
}

// Provider defines the interface of a JSON-RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "alchemy", "ankr")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Call performs the request and decodes the result into result
	Call(ctx context.Context, req Request, result any) error

	// Close cleans up resources
	Close() error
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Messages nodes use to reject eth_getLogs queries that would return too much.
var tooLargePatterns = []string{
	"response size exceeded",
	"response size should not greater than",
	"query returned more than",
	"log response size exceeded",
	"exceed maximum block range",
	"block range is too wide",
	"too many blocks",
}

// IsResponseTooLarge reports whether err means the query should be retried on a
// smaller block range.
func IsResponseTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		for _, p := range tooLargePatterns {
			if strings.Contains(msg, p) {
				return true
			}
		}
	}
	return false
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
