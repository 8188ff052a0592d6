package archstore

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/certomancer/caas/internal/certcache"
	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/ttlstore"
)

// Store resolves architecture labels. Statically configured
// architectures take precedence and are never shadowed by dynamic ones;
// dynamic architectures are memoized in a bounded local cache and
// rebuilt from the shared store on a local miss.
type Store struct {
	static      map[domain.ArchLabel]*domain.BuiltArchitecture
	local       *lru.Cache[domain.ArchLabel, *domain.BuiltArchitecture]
	store       ttlstore.Store
	builder     domain.ArchBuilder
	certTTL     time.Duration
	certLRUSize int
	logger      *slog.Logger
}

func NewStore(store ttlstore.Store, builder domain.ArchBuilder, static map[domain.ArchLabel]*domain.BuiltArchitecture,
	localSize int, certTTL time.Duration, certLRUSize int, logger *slog.Logger) *Store {

	s := &Store{
		static:      static,
		store:       store,
		builder:     builder,
		certTTL:     certTTL,
		certLRUSize: certLRUSize,
		logger:      logger,
	}
	if s.static == nil {
		s.static = make(map[domain.ArchLabel]*domain.BuiltArchitecture)
	}
	if localSize > 0 {
		s.local, _ = lru.New[domain.ArchLabel, *domain.BuiltArchitecture](localSize)
	}
	return s
}

// Resolve walks the lookup chain: static set, local cache, shared store.
// A label absent from all three is ErrNotFound; a shared-store transport
// failure is ErrStoreUnavailable, never a miss.
func (s *Store) Resolve(ctx context.Context, label domain.ArchLabel) (*domain.BuiltArchitecture, error) {
	if arch, ok := s.static[label]; ok {
		return arch, nil
	}

	if s.local != nil {
		if arch, ok := s.local.Get(label); ok {
			return arch, nil
		}
	}

	rawConfig, err := s.store.Get(ctx, ConfigKey(label))
	if err != nil {
		return nil, err
	}

	cache := certcache.New(s.store, label, s.certTTL, s.certLRUSize, s.logger)
	arch, err := s.builder.Build(ctx, label, rawConfig, cache)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("architecture rebuilt from shared store", "arch", label)

	if s.local != nil {
		s.local.Add(label, arch)
	}
	return arch, nil
}
