// Package chaos injects seeded drops and delays into gRPC calls so client
// retry and idempotency behavior can be exercised against a live gateway.
package chaos

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Chaos provides deterministic failure injection
type Chaos struct {
	cfg    *Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Chaos instance
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.Error(err))
		} else {
			if dropPct > 0 {
				cfg.DropPct = dropPct
			}
			if delayMin > 0 || delayMax > 0 {
				cfg.DelayMsMin = delayMin
				cfg.DelayMsMax = delayMax
			}
		}
	}

	return c
}

// EnabledFor checks if chaos applies to a full gRPC method name
func (c *Chaos) EnabledFor(method string) bool {
	if !c.cfg.Enabled {
		return false
	}

	if c.cfg.WindowMs > 0 && time.Since(c.start).Milliseconds() > int64(c.cfg.WindowMs) {
		return false
	}

	return c.cfg.TargetMethod == "" || strings.HasPrefix(method, c.cfg.TargetMethod)
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, method string) error {
	if !c.EnabledFor(method) {
		return nil
	}
	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	delayMs := c.cfg.DelayMsMin
	if c.cfg.DelayMsMax > c.cfg.DelayMsMin {
		delayMs += c.rng.Intn(c.cfg.DelayMsMax - c.cfg.DelayMsMin + 1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}
	c.logger.Info("chaos delay injected",
		zap.String("method", method),
		zap.Int("delay_ms", delayMs),
	)

	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaybeDrop returns true if the call should be dropped
func (c *Chaos) MaybeDrop(method string) bool {
	if !c.EnabledFor(method) || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected", zap.String("method", method))
	}
	return drop
}

func (c *Chaos) inject(ctx context.Context, method string) error {
	if c.MaybeDrop(method) {
		return status.Errorf(codes.Unavailable, "chaos: %s dropped", method)
	}
	if err := c.MaybeDelay(ctx, method); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

// UnaryServerInterceptor drops or delays unary calls before the handler runs
func (c *Chaos) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := c.inject(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor drops or delays stream setup
func (c *Chaos) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := c.inject(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
