package agent

import (
	"context"
	"sync"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// Context cache defaults.
const (
	DefaultCacheTTL          = 30 * time.Minute
	DefaultCacheSafetyMargin = 60 * time.Second
)

// ContextCache maintains the provider-side cached context holding the
// static instruction text and the full tool-schema list for one model. The
// cached payload never contains time-varying context (current time,
// timezone, locale); that rides on each user turn, keeping the payload
// byte-stable for its full TTL.
type ContextCache struct {
	provider    ports.Provider
	instruction string
	tools       []ports.ToolSpec
	ttl         time.Duration
	safety      time.Duration
	clock       ports.Clock
	logger      zerolog.Logger

	mu     sync.Mutex
	handle ports.CacheHandle
}

// NewContextCache builds a cache around the provider's cached-content API.
func NewContextCache(provider ports.Provider, instruction string, tools []ports.ToolSpec, ttl, safety time.Duration, clock ports.Clock, logger zerolog.Logger) *ContextCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if safety <= 0 {
		safety = DefaultCacheSafetyMargin
	}
	return &ContextCache{
		provider:    provider,
		instruction: instruction,
		tools:       tools,
		ttl:         ttl,
		safety:      safety,
		clock:       clock,
		logger:      logger.With().Str("component", "contextcache").Logger(),
	}
}

// Ensure returns a handle bound to modelID with more than the safety margin
// of life left, creating a fresh provider-side cache when the current one
// is missing, expired, or bound to a different model.
func (c *ContextCache) Ensure(ctx context.Context, modelID string) (ports.CacheHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.handle.Name != "" && c.handle.Model == modelID && now.Before(c.handle.ExpiresAt.Add(-c.safety)) {
		return c.handle, nil
	}

	handle, err := c.provider.CreateCachedContext(ctx, ports.CacheRequest{
		Model:       modelID,
		Instruction: c.instruction,
		Tools:       c.tools,
		TTL:         c.ttl,
	})
	if err != nil {
		return ports.CacheHandle{}, err
	}
	if handle.ExpiresAt.IsZero() {
		handle.ExpiresAt = now.Add(c.ttl)
	}
	if handle.Model == "" {
		handle.Model = modelID
	}
	c.logger.Debug().
		Str("model", modelID).
		Str("cache", handle.Name).
		Time("expires_at", handle.ExpiresAt).
		Msg("created cached context")
	c.handle = handle
	return handle, nil
}

// Invalidate drops the current handle so the next Ensure rebuilds it.
func (c *ContextCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = ports.CacheHandle{}
}
