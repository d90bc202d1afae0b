// Package supabase provides a client for Supabase (PostgREST + Auth).
// It is the default chat store and identity resolver.
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST and Auth APIs.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	anonKey        string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, anonKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		metrics:        metrics,
		logger:         logger,
	}
}

// apiError is a non-2xx answer from Supabase.
type apiError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// ClientFault reports a 4xx: PostgREST rejected the request (malformed id,
// row-level security), the gateway itself is fine.
func (e *apiError) ClientFault() bool {
	return e.Status < 500
}

// fail counts a failed call against service and wraps err for the caller.
func (c *Client) fail(service string, err error) error {
	c.metrics.IncrExternalError(service)
	return &domain.ErrExternalService{Service: service, Err: err}
}

// bearer picks the credential a request runs under. The caller's own
// token keeps row-level security in force; the service role is only used
// when auth was bypassed and there is no token.
func (c *Client) bearer(owner domain.Identity) string {
	if owner.Token != "" {
		return owner.Token
	}
	return c.serviceRoleKey
}

func (c *Client) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	req.Header.Set("Content-Type", "application/json")
}

// doGet executes an authenticated GET against PostgREST.
func (c *Client) doGet(ctx context.Context, table string, query url.Values, bearer string) ([]byte, error) {
	path := table + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL(path), nil)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", http.MethodGet),
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	c.setHeaders(req, bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", http.MethodGet),
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", http.MethodGet),
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &apiError{Method: http.MethodGet, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: request OK",
		zap.String("table", table),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// Ping checks that the Supabase gateway answers. Used by /readyz.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ErrExternalService{Service: "supabase", Err: fmt.Errorf("health returned %d", resp.StatusCode)}
	}
	return nil
}

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
}
