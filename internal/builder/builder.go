// Package builder materializes PKI architectures from submitted
// configurations. Certificates are derived with keys from the shared key
// set and cached through the write-once certificate cache, so a second
// build of the same architecture (in this process or another worker)
// reuses the cached bytes instead of re-deriving.
package builder

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/keyset"
)

const orgName = "Certomancer"

var servicePathSegments = map[domain.ServiceType]string{
	domain.ServiceOCSP:         "ocsp",
	domain.ServiceTimeStamping: "tsa",
	domain.ServiceCRLRepo:      "crls",
	domain.ServiceCertRepo:     "certs",
	domain.ServicePlugin:       "plugin",
}

type Builder struct {
	keys      *keyset.KeySet
	urlPrefix string
	logger    *slog.Logger
}

func New(keys *keyset.KeySet, urlPrefix string, logger *slog.Logger) *Builder {
	return &Builder{
		keys:      keys,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		logger:    logger,
	}
}

// Build parses rawConfig and materializes every certificate it declares,
// in declaration order. Configuration problems (bad YAML, dangling
// references, missing key material) wrap domain.ErrBadConfig; cache
// transport failures propagate unchanged.
func (b *Builder) Build(ctx context.Context, label domain.ArchLabel, rawConfig []byte, cache domain.CertCache) (*domain.BuiltArchitecture, error) {
	spec, err := parseSpec(rawConfig)
	if err != nil {
		return nil, err
	}

	arch := &domain.BuiltArchitecture{
		Label:    label,
		Services: make(map[domain.ServiceType]map[string]string),
	}
	built := make(map[domain.CertLabel]*domain.BuiltCert, len(spec.certs))

	for _, cs := range spec.certs {
		var parent *domain.BuiltCert
		if cs.Issuer != string(cs.label) {
			parent = built[domain.CertLabel(cs.Issuer)]
			if parent == nil {
				return nil, fmt.Errorf("%w: cert %q: issuer %q is not declared before it",
					domain.ErrBadConfig, cs.label, cs.Issuer)
			}
		}

		key, ok := b.keys.Private(cs.Key)
		if !ok {
			return nil, fmt.Errorf("%w: cert %q: no key material labelled %q in the shared key set",
				domain.ErrBadConfig, cs.label, cs.Key)
		}

		cert, err := cache.Get(ctx, cs.label)
		switch {
		case err == nil:
			b.logger.Debug("cert served from cache", "arch", label, "cert", cs.label)
		case errors.Is(err, domain.ErrNotFound):
			cert, err = deriveCert(cs, key, parent)
			if err != nil {
				return nil, fmt.Errorf("derive cert %q in arch %q: %w", cs.label, label, err)
			}
			if err := cache.Put(ctx, cs.label, cert); err != nil {
				return nil, err
			}
			b.logger.Debug("cert derived", "arch", label, "cert", cs.label)
		default:
			return nil, err
		}

		bc := &domain.BuiltCert{
			Label: cs.label,
			Cert:  cert,
			Key:   key,
			Chain: chainOf(parent),
		}
		built[cs.label] = bc
		arch.Certs = append(arch.Certs, bc)
	}

	for serviceType, entries := range spec.services {
		endpoints := make(map[string]string, len(entries))
		for svcLabel := range entries {
			endpoints[svcLabel] = b.serviceURL(label, serviceType, svcLabel)
		}
		arch.Services[serviceType] = endpoints
	}

	return arch, nil
}

func (b *Builder) serviceURL(arch domain.ArchLabel, serviceType domain.ServiceType, svcLabel string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.urlPrefix, arch, servicePathSegments[serviceType], svcLabel)
}

func chainOf(parent *domain.BuiltCert) []domain.CertLabel {
	if parent == nil {
		return nil
	}
	chain := make([]domain.CertLabel, 0, len(parent.Chain)+1)
	chain = append(chain, parent.Label)
	chain = append(chain, parent.Chain...)
	return chain
}

func deriveCert(cs namedCertSpec, key *ecdsa.PrivateKey, parent *domain.BuiltCert) (*x509.Certificate, error) {
	template := &x509.Certificate{
		SerialNumber: generateSerial(),
		Subject: pkix.Name{
			Organization: []string{orgName},
			CommonName:   cs.Subject,
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().AddDate(0, 0, cs.ValidityDays),
	}
	if cs.CA {
		template.IsCA = true
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
		template.BasicConstraintsValid = true
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	}

	signerCert := template
	signerKey := key
	if parent != nil {
		signerCert = parent.Cert
		signerKey = parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func generateSerial() *big.Int {
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	return serial
}
