// Package store defines the Store interface common to both cache-store
// variants (spec.md §4.G): an in-process local store (pkg/store/local) and
// a hybrid L1/L2 store backed by Redis (pkg/store/hybrid).
package store

import (
	"context"
	"time"

	"github.com/cuemby/stash/pkg/resultset"
)

// Store is the key->entry map with TTL, sliding expiration, tag-indexed
// invalidation, and generation-based bulk invalidate. Both implementations
// must be safe for concurrent Get/Set/InvalidateByTags/InvalidateAll.
type Store interface {
	// Get returns the cached Set for key. ok is false on a miss (including
	// a miss caused by a stale generation); err is non-nil only on a
	// genuine store failure (e.g. the L2 backend is unreachable).
	Get(ctx context.Context, key string) (set *resultset.Set, ok bool, err error)

	// Set admits set under key with the given absolute deadline and
	// optional sliding window (zero means "no sliding"), indexed under
	// tags for later InvalidateByTags calls.
	Set(ctx context.Context, key string, set *resultset.Set, absolute time.Duration, sliding time.Duration, tags []string) error

	// InvalidateByTags removes every entry indexed under any of tags.
	InvalidateByTags(ctx context.Context, tags []string) error

	// InvalidateKey removes a single entry by its exact key.
	InvalidateKey(ctx context.Context, key string) error

	// InvalidateAll bumps the store generation so every previously
	// admitted entry is treated as absent on its next Get.
	InvalidateAll(ctx context.Context) error
}
