package handler

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/certomancer/caas/internal/archstore"
	"github.com/certomancer/caas/internal/builder"
	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/keyset"
	"github.com/certomancer/caas/internal/server"
	"github.com/certomancer/caas/internal/ttlstore"
)

const (
	registerPath  = "/config"
	testTimeoutMs = 5000
	urlPrefix     = "https://pki.test.example"
)

const testConfig = `
certs:
  root:
    subject: Testing Root CA
    ca: true
  signer:
    subject: Testing Signer
    issuer: root
services:
  ocsp:
    root-ocsp: root
`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	app    *fiber.App
	shared ttlstore.Store
}

func newTestEnv(t *testing.T, shared ttlstore.Store, static map[domain.ArchLabel]*domain.BuiltArchitecture) *testEnv {
	t.Helper()

	log := newTestLogger()
	keys, err := keyset.Generate("root", "signer")
	if err != nil {
		t.Fatalf("generate key set: %v", err)
	}
	b := builder.New(keys, urlPrefix, log)

	registrar := archstore.NewRegistrar(shared, b, time.Hour, time.Hour, 16, log)
	store := archstore.NewStore(shared, b, static, 32, time.Hour, 16, log)

	srv := server.New(server.Config{Host: "127.0.0.1", Port: 0}, log)
	app := srv.App()
	t.Cleanup(func() { app.Shutdown() })

	NewHealthHandler("test").Register(app)
	NewRegisterHandler(registrar, registerPath, log).Register(app)
	NewArchHandler(store, log).Register(app)

	return &testEnv{app: app, shared: shared}
}

func buildStaticArch(t *testing.T, label domain.ArchLabel) *domain.BuiltArchitecture {
	t.Helper()
	log := newTestLogger()
	keys, err := keyset.Generate("root", "signer")
	if err != nil {
		t.Fatalf("generate key set: %v", err)
	}
	b := builder.New(keys, urlPrefix, log)
	registrar := archstore.NewRegistrar(ttlstore.NewMemoryStore(), b, time.Hour, time.Hour, 16, log)
	arch, err := registrar.Register(context.Background(), []byte(testConfig))
	if err != nil {
		t.Fatalf("build static arch: %v", err)
	}
	arch.Label = label
	return arch
}

type unreachableStore struct{}

func (unreachableStore) Get(context.Context, string) ([]byte, error) {
	return nil, domain.ErrStoreUnavailable
}

func (unreachableStore) Set(context.Context, string, []byte, time.Duration) error {
	return domain.ErrStoreUnavailable
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body []byte) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	resp, err := app.Test(req, testTimeoutMs)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func decodeBundle(t *testing.T, resp *http.Response) ArchBundle {
	t.Helper()
	var bundle ArchBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	return bundle
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

func TestSubmitConfiguration(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig))
	assertStatus(t, resp, fiber.StatusOK)

	bundle := decodeBundle(t, resp)

	want := string(archstore.DigestLabel([]byte(testConfig)))
	if bundle.ArchLabel != want {
		t.Errorf("expected arch label %q, got %q", want, bundle.ArchLabel)
	}
	if len(bundle.CertBundles) != 2 {
		t.Fatalf("expected 2 cert bundles, got %d", len(bundle.CertBundles))
	}

	signer, ok := bundle.CertBundles["signer"]
	if !ok {
		t.Fatalf("missing signer bundle")
	}
	der, err := base64.StdEncoding.DecodeString(signer.Cert)
	if err != nil {
		t.Fatalf("decode signer cert: %v", err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		t.Errorf("signer cert is not valid DER: %v", err)
	}
	if signer.Key == "" {
		t.Errorf("signer bundle is missing its key")
	}
	keyDER, err := base64.StdEncoding.DecodeString(signer.Key)
	if err != nil {
		t.Fatalf("decode signer key: %v", err)
	}
	if _, err := x509.ParsePKCS8PrivateKey(keyDER); err != nil {
		t.Errorf("signer key is not valid PKCS#8: %v", err)
	}
	if len(signer.OtherCerts) != 1 || signer.OtherCerts[0] != "root" {
		t.Errorf("expected signer chain [root], got %v", signer.OtherCerts)
	}

	wantURL := urlPrefix + "/" + bundle.ArchLabel + "/ocsp/root-ocsp"
	if got := bundle.Services["ocsp"]["root-ocsp"]; got != wantURL {
		t.Errorf("expected ocsp endpoint %q, got %q", wantURL, got)
	}
}

func TestSubmitSameConfigurationTwice(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	first := decodeBundle(t, doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig)))
	second := decodeBundle(t, doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig)))

	if first.ArchLabel != second.ArchLabel {
		t.Errorf("labels differ: %q vs %q", first.ArchLabel, second.ArchLabel)
	}
	for label, bundle := range first.CertBundles {
		if second.CertBundles[label].Cert != bundle.Cert {
			t.Errorf("cert %q differs between submissions", label)
		}
	}
}

func TestSubmitWithWrongMethod(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodGet, registerPath, nil)
	assertStatus(t, resp, fiber.StatusMethodNotAllowed)
}

func TestSubmitEmptyBody(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodPost, registerPath, nil)
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestSubmitMalformedConfiguration(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodPost, registerPath, []byte("certs: ["))
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestSubmitWithStoreDown(t *testing.T) {
	env := newTestEnv(t, unreachableStore{}, nil)

	resp := doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig))
	assertStatus(t, resp, fiber.StatusServiceUnavailable)
}

func TestServeStaticArchitectureWithStoreDown(t *testing.T) {
	static := map[domain.ArchLabel]*domain.BuiltArchitecture{
		"static-ca": buildStaticArch(t, "static-ca"),
	}
	env := newTestEnv(t, unreachableStore{}, static)

	resp := doRequest(t, env.app, http.MethodGet, "/static-ca", nil)
	assertStatus(t, resp, fiber.StatusOK)

	bundle := decodeBundle(t, resp)
	if bundle.ArchLabel != "static-ca" {
		t.Errorf("expected arch label %q, got %q", "static-ca", bundle.ArchLabel)
	}
}

func TestServeArchitectureRegisteredByAnotherWorker(t *testing.T) {
	shared := ttlstore.NewMemoryStore()

	// Another worker registered this architecture: only the raw bytes
	// live in the shared store.
	label := archstore.DigestLabel([]byte(testConfig))
	if err := shared.Set(context.Background(), archstore.ConfigKey(label), []byte(testConfig), time.Hour); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	env := newTestEnv(t, shared, nil)

	resp := doRequest(t, env.app, http.MethodGet, "/"+string(label), nil)
	assertStatus(t, resp, fiber.StatusOK)

	bundle := decodeBundle(t, resp)
	if bundle.ArchLabel != string(label) {
		t.Errorf("expected arch label %q, got %q", label, bundle.ArchLabel)
	}
	if len(bundle.CertBundles) == 0 {
		t.Errorf("rebuilt architecture has no cert bundles")
	}
}

func TestServeUnknownArchitecture(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodGet, "/never-registered", nil)
	assertStatus(t, resp, fiber.StatusNotFound)
}

func TestServeSingleCertificate(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	bundle := decodeBundle(t, doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig)))

	resp := doRequest(t, env.app, http.MethodGet, "/"+bundle.ArchLabel+"/certs/root", nil)
	assertStatus(t, resp, fiber.StatusOK)

	if ct := resp.Header.Get("Content-Type"); ct != "application/pkix-cert" {
		t.Errorf("expected pkix-cert content type, got %q", ct)
	}
	der, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		t.Errorf("served cert is not valid DER: %v", err)
	}
}

func TestServeUnknownCertificate(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	bundle := decodeBundle(t, doRequest(t, env.app, http.MethodPost, registerPath, []byte(testConfig)))

	resp := doRequest(t, env.app, http.MethodGet, "/"+bundle.ArchLabel+"/certs/ghost", nil)
	assertStatus(t, resp, fiber.StatusNotFound)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, ttlstore.NewMemoryStore(), nil)

	resp := doRequest(t, env.app, http.MethodGet, "/health", nil)
	assertStatus(t, resp, fiber.StatusOK)

	var health HealthData
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %q", health.Status)
	}
}
