package service

import (
	"context"
	"fmt"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Readiness probes every dependency a chat turn needs.
type Readiness struct {
	probes  map[string]port.Pinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewReadiness creates a readiness checker over the named dependencies.
func NewReadiness(probes map[string]port.Pinger, timeout time.Duration, logger *zap.Logger) *Readiness {
	return &Readiness{probes: probes, timeout: timeout, logger: logger}
}

// Check pings all dependencies concurrently and reports the first failure.
func (r *Readiness) Check(ctx context.Context) *domain.ReadinessStatus {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	g, gCtx := errgroup.WithContext(ctx)
	for name, p := range r.probes {
		g.Go(func() error {
			if err := p.Ping(gCtx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn("readiness check failed", zap.Error(err))
		return &domain.ReadinessStatus{Status: "not ready", Error: err.Error()}
	}
	return &domain.ReadinessStatus{Status: "ready"}
}
