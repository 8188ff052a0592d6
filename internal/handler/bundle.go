package handler

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/certomancer/caas/internal/domain"
)

// ArchBundle is the wire shape served for both freshly registered and
// resolved architectures. Field names are a fixed contract with the
// client libraries that consume this service.
type ArchBundle struct {
	ArchLabel   string                       `json:"arch_label"`
	CertBundles map[string]CertBundle        `json:"cert_bundles"`
	Services    map[string]map[string]string `json:"services"`
}

type CertBundle struct {
	// Cert is the base64-encoded DER certificate.
	Cert string `json:"cert"`

	// Key is the base64-encoded PKCS#8 private key, omitted when no key
	// material is available for the subject.
	Key string `json:"key,omitempty"`

	// OtherCerts lists the labels of the issuer chain, closest first.
	OtherCerts []string `json:"other_certs"`
}

func newArchBundle(arch *domain.BuiltArchitecture) (*ArchBundle, error) {
	bundle := &ArchBundle{
		ArchLabel:   string(arch.Label),
		CertBundles: make(map[string]CertBundle, len(arch.Certs)),
		Services:    make(map[string]map[string]string),
	}

	for _, cert := range arch.Certs {
		cb := CertBundle{
			Cert:       base64.StdEncoding.EncodeToString(cert.Cert.Raw),
			OtherCerts: make([]string, 0, len(cert.Chain)),
		}
		for _, label := range cert.Chain {
			cb.OtherCerts = append(cb.OtherCerts, string(label))
		}
		if cert.Key != nil {
			der, err := x509.MarshalPKCS8PrivateKey(cert.Key)
			if err != nil {
				return nil, fmt.Errorf("encode key for cert %q: %w", cert.Label, err)
			}
			cb.Key = base64.StdEncoding.EncodeToString(der)
		}
		bundle.CertBundles[string(cert.Label)] = cb
	}

	for serviceType, endpoints := range arch.Services {
		bundle.Services[string(serviceType)] = endpoints
	}

	return bundle, nil
}
