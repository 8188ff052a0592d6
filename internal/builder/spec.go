package builder

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/certomancer/caas/internal/domain"
)

const defaultValidityDays = 365

type certSpec struct {
	Subject      string `yaml:"subject"`
	Issuer       string `yaml:"issuer"`
	CA           bool   `yaml:"ca"`
	Key          string `yaml:"key"`
	ValidityDays int    `yaml:"validity-days"`
}

type namedCertSpec struct {
	label domain.CertLabel
	certSpec
}

type archSpec struct {
	certs    []namedCertSpec
	services map[domain.ServiceType]map[string]domain.CertLabel
}

var knownServiceTypes = map[domain.ServiceType]struct{}{
	domain.ServiceOCSP:         {},
	domain.ServiceTimeStamping: {},
	domain.ServiceCRLRepo:      {},
	domain.ServiceCertRepo:     {},
	domain.ServicePlugin:       {},
}

// parseSpec decodes a submitted configuration. The certs section is
// decoded through yaml.Node to preserve declaration order, since an
// issuer has to be materialized before the certificates it signs.
func parseSpec(raw []byte) (*archSpec, error) {
	var doc struct {
		Certs    yaml.Node                    `yaml:"certs"`
		Services map[string]map[string]string `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadConfig, err)
	}
	if doc.Certs.Kind == 0 {
		return nil, fmt.Errorf("%w: missing 'certs' section", domain.ErrBadConfig)
	}
	if doc.Certs.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: 'certs' must be a mapping", domain.ErrBadConfig)
	}

	spec := &archSpec{
		services: make(map[domain.ServiceType]map[string]domain.CertLabel),
	}

	seen := make(map[domain.CertLabel]struct{})
	for i := 0; i+1 < len(doc.Certs.Content); i += 2 {
		keyNode, valueNode := doc.Certs.Content[i], doc.Certs.Content[i+1]

		label := domain.CertLabel(keyNode.Value)
		if label == "" {
			return nil, fmt.Errorf("%w: empty certificate label", domain.ErrBadConfig)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: duplicate certificate label %q", domain.ErrBadConfig, label)
		}
		seen[label] = struct{}{}

		var cs certSpec
		if err := valueNode.Decode(&cs); err != nil {
			return nil, fmt.Errorf("%w: cert %q: %v", domain.ErrBadConfig, label, err)
		}
		if cs.Subject == "" {
			cs.Subject = string(label)
		}
		if cs.Issuer == "" {
			cs.Issuer = string(label)
		}
		if cs.Key == "" {
			cs.Key = string(label)
		}
		if cs.ValidityDays <= 0 {
			cs.ValidityDays = defaultValidityDays
		}

		spec.certs = append(spec.certs, namedCertSpec{label: label, certSpec: cs})
	}

	if len(spec.certs) == 0 {
		return nil, fmt.Errorf("%w: 'certs' declares no certificates", domain.ErrBadConfig)
	}

	for typ, entries := range doc.Services {
		serviceType := domain.ServiceType(typ)
		// Unknown service types are skipped, matching what consumers do
		// on their side of the wire contract.
		if _, ok := knownServiceTypes[serviceType]; !ok {
			continue
		}
		services := make(map[string]domain.CertLabel, len(entries))
		for svcLabel, certLabel := range entries {
			target := domain.CertLabel(certLabel)
			if _, ok := seen[target]; !ok {
				return nil, fmt.Errorf("%w: service %q references unknown cert %q",
					domain.ErrBadConfig, svcLabel, certLabel)
			}
			services[svcLabel] = target
		}
		spec.services[serviceType] = services
	}

	return spec, nil
}
