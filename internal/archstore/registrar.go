// Package archstore holds the two surfaces over the architecture cache:
// the Registrar, which admits dynamically submitted configurations, and
// the Store, which resolves architecture labels through the static set,
// the local cache and the shared store, in that order.
package archstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/certomancer/caas/internal/certcache"
	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/ttlstore"
)

// ConfigKey is the shared-store key holding the raw configuration of a
// dynamic architecture.
func ConfigKey(arch domain.ArchLabel) string {
	return fmt.Sprintf("certomancer_%s_config", arch)
}

// DigestLabel derives the content-addressed label for a submitted
// configuration. Identical bytes always map to the same label, which is
// what makes unconditional re-registration safe. The digest is a dedup
// bucketing choice, not a security boundary.
func DigestLabel(rawConfig []byte) domain.ArchLabel {
	digest := sha1.Sum(rawConfig)
	return domain.ArchLabel(hex.EncodeToString(digest[:]))
}

type Registrar struct {
	store       ttlstore.Store
	builder     domain.ArchBuilder
	archTTL     time.Duration
	certTTL     time.Duration
	certLRUSize int
	logger      *slog.Logger
}

func NewRegistrar(store ttlstore.Store, builder domain.ArchBuilder, archTTL, certTTL time.Duration, certLRUSize int, logger *slog.Logger) *Registrar {
	return &Registrar{
		store:       store,
		builder:     builder,
		archTTL:     archTTL,
		certTTL:     certTTL,
		certLRUSize: certLRUSize,
		logger:      logger,
	}
}

// Register builds the architecture described by rawConfig and persists
// the raw bytes in the shared store under its digest-derived label.
//
// The Set is unconditional even when an entry already exists: the key is
// content-derived, so an existing entry holds identical bytes and the
// only effect of re-setting is extending its TTL. This avoids a
// check-then-act race between "does it exist" and "bump its TTL".
func (r *Registrar) Register(ctx context.Context, rawConfig []byte) (*domain.BuiltArchitecture, error) {
	label := DigestLabel(rawConfig)

	cache := certcache.New(r.store, label, r.certTTL, r.certLRUSize, r.logger)
	arch, err := r.builder.Build(ctx, label, rawConfig, cache)
	if err != nil {
		if errors.Is(err, domain.ErrBadConfig) || errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, err
		}
		// Nothing from the parse/build boundary may leak untyped.
		return nil, fmt.Errorf("%w: %v", domain.ErrBadConfig, err)
	}

	if err := r.store.Set(ctx, ConfigKey(label), rawConfig, r.archTTL); err != nil {
		return nil, err
	}

	r.logger.Info("architecture registered", "arch", label, "certs", len(arch.Certs))
	return arch, nil
}
