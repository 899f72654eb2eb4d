package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vietddude/minter/internal/indexing/metrics"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name    string
	URL     string
	Network string
	Timeout time.Duration

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// HTTPProvider implements Provider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	network    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &HTTPProvider{
		name:     cfg.Name,
		endpoint: cfg.URL,
		network:  cfg.Network,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      string `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     string          `json:"id"`
}

// Call makes a single JSON-RPC call. The request id is a fresh UUID, also sent
// as the X-Request-Id header so that node logs can be correlated.
func (p *HTTPProvider) Call(ctx context.Context, r Request, result any) error {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(p.network, p.name, r.Method).Inc()

	err := p.call(ctx, r, result)
	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(p.network, p.name, r.Method).Observe(latency.Seconds())

	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(p.network, p.name, errorType(err)).Inc()
		p.recordFailure()
		return err
	}
	p.Monitor.RecordRequest(latency)
	p.recordSuccess(latency)
	return nil
}

func (p *HTTPProvider) call(ctx context.Context, r Request, result any) error {
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		return fmt.Errorf("provider throttled, retry after: %v", p.Monitor.GetRetryAfter())
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	id := uuid.NewString()
	params := r.Params
	if params == nil {
		params = []any{}
	}
	jsonData, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: r.Method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", id)

	slog.Debug("RPC request", "provider", p.name, "method", r.Method, "request_id", id)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(http.StatusTooManyRequests, retryAfter)
		return fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(http.StatusForbidden, "")
		return fmt.Errorf("ip blocked (403)")
	}

	body, err := readBody(resp.Body, r.MaxResponseBytes())
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		if p.Monitor.DetectThrottlePattern(string(body)) {
			return fmt.Errorf("throttle detected in response: %s", string(body))
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.ID != "" && rpcResp.ID != id {
		return fmt.Errorf("response id %q does not match request id %q", rpcResp.ID, id)
	}
	if rpcResp.Error != nil {
		if p.Monitor.DetectThrottlePattern(rpcResp.Error.Message) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests, "")
		}
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode result of %s: %w", r.Method, err)
	}
	return nil
}

// readBody reads at most limit bytes; a longer body fails with ErrResponseTooLarge.
func readBody(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return b, nil
	}
	b, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}
	return b, nil
}

func errorType(err error) string {
	var rpcErr *RPCError
	switch {
	case IsResponseTooLarge(err):
		return "response_too_large"
	case errors.As(err, &rpcErr):
		return "rpc"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "transport"
	}
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// IsAvailable checks if the provider is available.
func (p *HTTPProvider) IsAvailable() bool {
	status := p.Monitor.CheckProviderStatus()
	return status == StatusHealthy || status == StatusDegraded
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}

var _ Provider = (*HTTPProvider)(nil)
