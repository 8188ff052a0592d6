package domain

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
)

// ArchLabel identifies a PKI architecture. Operator-assigned for static
// architectures; the lowercase hex SHA-1 of the submitted configuration
// bytes for dynamically registered ones.
type ArchLabel string

// CertLabel identifies a certificate within one architecture.
type CertLabel string

// ServiceType enumerates the auxiliary service catalogs an architecture
// can expose. The string values are the JSON keys clients depend on.
type ServiceType string

const (
	ServiceOCSP         ServiceType = "ocsp"
	ServiceTimeStamping ServiceType = "time_stamping"
	ServiceCRLRepo      ServiceType = "crl_repo"
	ServiceCertRepo     ServiceType = "cert_repo"
	ServicePlugin       ServiceType = "plugin"
)

// BuiltCert is one materialized certificate of an architecture.
type BuiltCert struct {
	Label CertLabel
	Cert  *x509.Certificate

	// Key is the subject's private key, nil when no key material is
	// available for bundling.
	Key *ecdsa.PrivateKey

	// Chain lists the issuer path, closest issuer first, excluding the
	// certificate itself.
	Chain []CertLabel
}

// BuiltArchitecture is the in-memory result of building a configuration.
// It is owned by the process that built it and is never written to the
// shared store as a whole; only its certificates and the originating raw
// configuration are persisted there.
type BuiltArchitecture struct {
	Label ArchLabel

	// Certs preserves issuance order.
	Certs []*BuiltCert

	// Services maps service type -> service label -> endpoint URL.
	Services map[ServiceType]map[string]string
}

// Cert returns the certificate with the given label, if present.
func (a *BuiltArchitecture) Cert(label CertLabel) (*BuiltCert, bool) {
	for _, c := range a.Certs {
		if c.Label == label {
			return c, true
		}
	}
	return nil, false
}

// CertCache is the write-once certificate cache handed to the builder so
// that repeated derivations of the same certificate are free. Get returns
// ErrNotFound when the certificate has to be derived.
type CertCache interface {
	Get(ctx context.Context, label CertLabel) (*x509.Certificate, error)
	Put(ctx context.Context, label CertLabel, cert *x509.Certificate) error
}

// ArchBuilder turns a raw configuration into a built architecture,
// consulting cache before deriving each certificate.
type ArchBuilder interface {
	Build(ctx context.Context, label ArchLabel, rawConfig []byte, cache CertCache) (*BuiltArchitecture, error)
}
