package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/response"
)

// ArchRegistrar is the registration surface of the architecture store.
type ArchRegistrar interface {
	Register(ctx context.Context, rawConfig []byte) (*domain.BuiltArchitecture, error)
}

// RegisterHandler exposes the configuration submission endpoint. It must
// be registered before the serving surface so that its path is not
// swallowed by the architecture-label route.
type RegisterHandler struct {
	registrar ArchRegistrar
	path      string
	logger    *slog.Logger
}

func NewRegisterHandler(registrar ArchRegistrar, path string, logger *slog.Logger) *RegisterHandler {
	return &RegisterHandler{
		registrar: registrar,
		path:      path,
		logger:    logger,
	}
}

func (h *RegisterHandler) Register(app *fiber.App) {
	// Bound with All so that non-POST requests get a 405 instead of
	// falling through to the serving surface as an architecture lookup.
	app.All(h.path, h.Submit)
}

// Submit consumes the raw configuration bytes from the request body and
// responds with the materialized bundle.
func (h *RegisterHandler) Submit(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return response.Error(c, fiber.StatusMethodNotAllowed,
			response.ErrCodeMethodNotAllowed, "configuration submission requires POST")
	}

	rawConfig := c.Body()
	if len(rawConfig) == 0 {
		return response.Error(c, fiber.StatusBadRequest,
			response.ErrCodeBadConfig, "empty configuration body")
	}

	arch, err := h.registrar.Register(c.Context(), rawConfig)
	if err != nil {
		return err
	}

	bundle, err := newArchBundle(arch)
	if err != nil {
		return err
	}

	h.logger.Debug("configuration registered", "arch", arch.Label, "bytes", len(rawConfig))
	return response.OK(c, bundle)
}
