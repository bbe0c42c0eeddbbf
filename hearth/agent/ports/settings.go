package agentports

import (
	"context"
)

// Settings is the persistent key-value store consumed by the engine. It
// holds the scheduler's command map under one well-known key and the
// credentials/model selection read at construction time.
type Settings interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
