package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/middleware"
	"github.com/certomancer/caas/internal/response"
)

type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Certomancer AAS",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          domainErrorHandler(log),
	})

	s := &Server{
		app:    app,
		config: cfg,
		logger: log,
	}

	s.setupMiddlewares()

	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(middleware.TraceID())

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | trace=${locals:traceId}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}))
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("Server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")
	return s.app.Shutdown()
}

// domainErrorHandler is the single place where domain sentinels become
// HTTP responses; handlers just return the errors they see.
func domainErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := response.ErrCodeInternal
		message := "internal server error"

		var fiberErr *fiber.Error
		switch {
		case errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
			errCode = response.ErrCodeNotFound
			message = "unknown architecture"
		case errors.Is(err, domain.ErrBadConfig):
			code = fiber.StatusBadRequest
			errCode = response.ErrCodeBadConfig
			message = err.Error()
		case errors.Is(err, domain.ErrStoreUnavailable):
			code = fiber.StatusServiceUnavailable
			errCode = response.ErrCodeStoreUnavailable
			message = "shared store unavailable"
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			message = fiberErr.Message
			switch code {
			case fiber.StatusNotFound:
				errCode = response.ErrCodeNotFound
			case fiber.StatusMethodNotAllowed:
				errCode = response.ErrCodeMethodNotAllowed
			}
		}

		traceID := middleware.GetTraceID(c)

		log.Error("Request error",
			"path", c.Path(),
			"method", c.Method(),
			"error", err.Error(),
			"status", code,
			"traceId", traceID,
		)

		return response.Error(c, code, errCode, message)
	}
}
