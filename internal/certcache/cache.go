// Package certcache implements the write-once certificate cache shared
// between workers. Entries never change for a given key: the architecture
// label is content-derived, so re-deriving a certificate under the same
// (architecture, label) pair always yields equivalent content. That is
// why the local layer is never invalidated from the outside.
package certcache

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/ttlstore"
)

// Cache is scoped to a single architecture. It reads through a bounded
// local LRU layer into the shared TTL store.
type Cache struct {
	store  ttlstore.Store
	arch   domain.ArchLabel
	ttl    time.Duration
	local  *lru.Cache[domain.CertLabel, *x509.Certificate]
	logger *slog.Logger
}

// New builds a cache for one architecture. localSize 0 disables the
// local layer; lookups then always round-trip to the shared store.
func New(store ttlstore.Store, arch domain.ArchLabel, ttl time.Duration, localSize int, logger *slog.Logger) *Cache {
	c := &Cache{
		store:  store,
		arch:   arch,
		ttl:    ttl,
		logger: logger,
	}
	if localSize > 0 {
		// lru.New only fails for non-positive sizes.
		c.local, _ = lru.New[domain.CertLabel, *x509.Certificate](localSize)
	}
	return c
}

func (c *Cache) key(label domain.CertLabel) string {
	return fmt.Sprintf("certomancer_%s_cert_%s", c.arch, label)
}

// Get returns the cached certificate, or domain.ErrNotFound when it has
// not been derived yet. The builder treats ErrNotFound as "derive now".
func (c *Cache) Get(ctx context.Context, label domain.CertLabel) (*x509.Certificate, error) {
	if c.local != nil {
		if cert, ok := c.local.Get(label); ok {
			return cert, nil
		}
	}

	raw, err := c.store.Get(ctx, c.key(label))
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt cache entry for cert %q in arch %q: %w", label, c.arch, err)
	}

	c.logger.Debug("cert retrieved from shared cache", "arch", c.arch, "cert", label)

	if c.local != nil {
		c.local.Add(label, cert)
	}
	return cert, nil
}

// Put writes the certificate to the shared store with the configured TTL,
// then populates the local layer.
func (c *Cache) Put(ctx context.Context, label domain.CertLabel, cert *x509.Certificate) error {
	if err := c.store.Set(ctx, c.key(label), cert.Raw, c.ttl); err != nil {
		return err
	}
	if c.local != nil {
		c.local.Add(label, cert)
	}
	return nil
}
