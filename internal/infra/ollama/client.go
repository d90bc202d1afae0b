// Package ollama is the inference client. It talks to an Ollama server's
// /api/chat endpoint in non-streaming mode.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/infra/resilience"

	"github.com/ollama/ollama/api"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ollama")

// Client calls the Ollama chat API.
type Client struct {
	api     *api.Client
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewClient creates an Ollama client for host. A host without a scheme is
// treated as plain http, the way the ollama CLI reads OLLAMA_HOST.
func NewClient(host string, httpClient *http.Client, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) (*Client, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	recorded := *httpClient
	recorded.Transport = statusRecorder{base: httpClient.Transport}

	return &Client{
		api:     api.NewClient(base, &recorded),
		cb:      cb,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Chat sends the conversation to model and waits for the full reply.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "Ollama.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	)

	start := time.Now()

	completion, err := resilience.Execute(ctx, c.cb, func() (*domain.Completion, error) {
		req := &api.ChatRequest{
			Model:    model,
			Messages: toAPIMessages(messages),
			Stream:   new(bool),
		}

		var (
			resp   api.ChatResponse
			status int
		)
		err := c.api.Chat(withStatus(ctx, &status), req, func(r api.ChatResponse) error {
			resp = r
			return nil
		})
		if err != nil {
			if isClientStatus(err, status) {
				return nil, resilience.ClientFault(err)
			}
			return nil, err
		}

		return &domain.Completion{
			Message: domain.ChatMessage{
				Role:    domain.Role(resp.Message.Role),
				Content: resp.Message.Content,
			},
			CreatedAt:        resp.CreatedAt,
			Model:            resp.Model,
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
		}, nil
	})

	c.metrics.RecordRequestDuration("inference", time.Since(start))

	if err != nil {
		c.metrics.IncrExternalError("ollama")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("ollama chat failed",
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "ollama", Err: cause(err)}
	}

	c.metrics.RecordTokens(completion.PromptTokens, completion.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.completion_tokens", completion.CompletionTokens),
	)

	c.logger.Debug("ollama chat completed",
		zap.String("model", model),
		zap.Int("prompt_tokens", completion.PromptTokens),
		zap.Int("completion_tokens", completion.CompletionTokens),
		zap.Duration("latency", time.Since(start)),
	)

	return completion, nil
}

// Ping checks that the Ollama server answers. Used by /readyz.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Version(ctx); err != nil {
		return &domain.ErrExternalService{Service: "ollama", Err: err}
	}
	return nil
}

func toAPIMessages(messages []domain.ChatMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

type statusKey struct{}

// withStatus asks statusRecorder to store the response status in dst.
func withStatus(ctx context.Context, dst *int) context.Context {
	return context.WithValue(ctx, statusKey{}, dst)
}

// statusRecorder keeps the HTTP status of a call. The ollama client turns
// an error body into a plain error, so the status is not otherwise visible.
type statusRecorder struct {
	base http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil {
		if dst, ok := req.Context().Value(statusKey{}).(*int); ok {
			*dst = resp.StatusCode
		}
	}
	return resp, err
}

// isClientStatus reports a 4xx answer such as an unknown model: the
// request was wrong, the server is up.
func isClientStatus(err error, status int) bool {
	var se api.StatusError
	if errors.As(err, &se) {
		status = se.StatusCode
	}
	return status >= 400 && status < 500
}

// cause reduces a server-side error to the message Ollama sent, which is
// what callers see in the response body.
func cause(err error) error {
	var se api.StatusError
	if errors.As(err, &se) && se.ErrorMessage != "" {
		return errors.New(se.ErrorMessage)
	}
	return err
}
