// Package keyset loads the shared key material referenced by architecture
// configurations. Every worker mounts the same key directory, so a worker
// that rebuilds an architecture from the shared store pairs the cached
// certificates with the same private keys as the worker that built it.
package keyset

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type KeySet struct {
	keys map[string]*ecdsa.PrivateKey
}

// Load reads every *.pem file in dir; the key label is the file name
// without extension. An empty dir yields an empty key set.
func Load(dir string) (*KeySet, error) {
	ks := &KeySet{keys: make(map[string]*ecdsa.PrivateKey)}
	if dir == "" {
		return ks, nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.pem"))
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}
		key, err := parsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}
		label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ks.keys[label] = key
	}
	return ks, nil
}

// Generate creates an ephemeral key set; intended for tests and
// single-worker development setups.
func Generate(labels ...string) (*KeySet, error) {
	ks := &KeySet{keys: make(map[string]*ecdsa.PrivateKey)}
	for _, label := range labels {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		ks.keys[label] = key
	}
	return ks, nil
}

func (ks *KeySet) Private(label string) (*ecdsa.PrivateKey, bool) {
	key, ok := ks.keys[label]
	return key, ok
}

func (ks *KeySet) Has(label string) bool {
	_, ok := ks.keys[label]
	return ok
}

func (ks *KeySet) Len() int {
	return len(ks.keys)
}

func (ks *KeySet) Labels() []string {
	labels := make([]string, 0, len(ks.keys))
	for label := range ks.keys {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// WriteFile encodes the key with the given label as PEM into dir,
// named {label}.pem, in the layout Load expects.
func (ks *KeySet) WriteFile(dir, label string) error {
	key, ok := ks.keys[label]
	if !ok {
		return fmt.Errorf("no key with label %q", label)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return os.WriteFile(filepath.Join(dir, label+".pem"), data, 0600)
}

func parsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
