// Package ttlstore provides the shared key/value store used as the
// coordination medium between worker processes. Entries expire after
// their TTL; writes unconditionally overwrite and reset the expiry.
package ttlstore

import (
	"context"
	"time"
)

type Store interface {
	// Get returns the value stored under key, or domain.ErrNotFound when
	// the key is absent or expired. Transport failures wrap
	// domain.ErrStoreUnavailable.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value under key and resets its expiry, whether
	// or not the key already existed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
