package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/response"
)

// ArchResolver is the lookup surface of the architecture store.
type ArchResolver interface {
	Resolve(ctx context.Context, label domain.ArchLabel) (*domain.BuiltArchitecture, error)
}

// ArchHandler serves already-known architectures: the same bundle shape
// as registration, resolved by label, plus individual certificates.
type ArchHandler struct {
	resolver ArchResolver
	logger   *slog.Logger
}

func NewArchHandler(resolver ArchResolver, logger *slog.Logger) *ArchHandler {
	return &ArchHandler{
		resolver: resolver,
		logger:   logger,
	}
}

func (h *ArchHandler) Register(app *fiber.App) {
	app.Get("/:arch", h.GetArchitecture)
	app.Get("/:arch/certs/:label", h.GetCertificate)
}

func (h *ArchHandler) GetArchitecture(c *fiber.Ctx) error {
	arch, err := h.resolver.Resolve(c.Context(), domain.ArchLabel(c.Params("arch")))
	if err != nil {
		return err
	}

	bundle, err := newArchBundle(arch)
	if err != nil {
		return err
	}
	return response.OK(c, bundle)
}

// GetCertificate serves one certificate as DER.
func (h *ArchHandler) GetCertificate(c *fiber.Ctx) error {
	arch, err := h.resolver.Resolve(c.Context(), domain.ArchLabel(c.Params("arch")))
	if err != nil {
		return err
	}

	cert, ok := arch.Cert(domain.CertLabel(c.Params("label")))
	if !ok {
		return response.Error(c, fiber.StatusNotFound, response.ErrCodeNotFound,
			"no such certificate in this architecture")
	}

	c.Set(fiber.HeaderContentType, "application/pkix-cert")
	return c.Send(cert.Cert.Raw)
}
