package di

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/certomancer/caas/internal/archstore"
	"github.com/certomancer/caas/internal/builder"
	"github.com/certomancer/caas/internal/config"
	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/handler"
	"github.com/certomancer/caas/internal/keyset"
	"github.com/certomancer/caas/internal/server"
	"github.com/certomancer/caas/internal/ttlstore"
)

const Version = "0.1.0"

var ConfigSet = wire.NewSet(
	config.Load,
)

var LoggerSet = wire.NewSet(
	ProvideLogger,
)

var StoreSet = wire.NewSet(
	ProvideRedisClient,
	ttlstore.NewRedisStore,
	wire.Bind(new(ttlstore.Store), new(*ttlstore.RedisStore)),
)

var PKISet = wire.NewSet(
	ProvideKeySet,
	ProvideBuilder,
	wire.Bind(new(domain.ArchBuilder), new(*builder.Builder)),
)

var ArchSet = wire.NewSet(
	ProvideStaticArchs,
	ProvideRegistrar,
	ProvideArchStore,
)

var HandlerSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideRegisterHandler,
	handler.NewArchHandler,
	wire.Bind(new(handler.ArchResolver), new(*archstore.Store)),
)

var ServerSet = wire.NewSet(
	ProvideServerConfig,
	server.New,
)

var AppSet = wire.NewSet(
	ConfigSet,
	LoggerSet,
	StoreSet,
	PKISet,
	ArchSet,
	HandlerSet,
	ServerSet,
	wire.Struct(new(Application), "*"),
)

type Application struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *server.Server
	HealthHandler   *handler.HealthHandler
	RegisterHandler *handler.RegisterHandler
	ArchHandler     *handler.ArchHandler
}

func ProvideHealthHandler() *handler.HealthHandler {
	return handler.NewHealthHandler(Version)
}

func ProvideLogger(cfg *config.Config) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	if cfg.Server.Env == "development" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// ProvideRedisClient connects to the shared store. An unreachable store
// at startup is logged but not fatal: statically configured
// architectures must keep being served through an outage, and dynamic
// requests surface the failure per request.
func ProvideRedisClient(cfg *config.Config, log *slog.Logger) (*redis.Client, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("shared store unreachable at startup; dynamic architectures degraded",
			"addr", cfg.Redis.Addr, "error", err)
	}

	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

func ProvideKeySet(cfg *config.Config, log *slog.Logger) (*keyset.KeySet, error) {
	ks, err := keyset.Load(cfg.PKI.KeyDir)
	if err != nil {
		return nil, err
	}
	if ks.Len() == 0 {
		log.Warn("no shared key material loaded; every build will fail", "keyDir", cfg.PKI.KeyDir)
	} else {
		log.Info("key set loaded", "keys", ks.Len(), "keyDir", cfg.PKI.KeyDir)
	}
	return ks, nil
}

func ProvideBuilder(cfg *config.Config, keys *keyset.KeySet, log *slog.Logger) *builder.Builder {
	return builder.New(keys, cfg.PKI.ExternalURLPrefix, log)
}

func ProvideStaticArchs(cfg *config.Config, b domain.ArchBuilder, log *slog.Logger) (map[domain.ArchLabel]*domain.BuiltArchitecture, error) {
	return archstore.LoadStatic(context.Background(), b, cfg.PKI.ConfigSearchDir,
		cfg.Cache.CertTTL, cfg.Cache.CertCacheSize, log)
}

func ProvideRegistrar(store ttlstore.Store, b domain.ArchBuilder, cfg *config.Config, log *slog.Logger) *archstore.Registrar {
	return archstore.NewRegistrar(store, b, cfg.Cache.ArchTTL, cfg.Cache.CertTTL,
		cfg.Cache.CertCacheSize, log)
}

func ProvideArchStore(store ttlstore.Store, b domain.ArchBuilder,
	static map[domain.ArchLabel]*domain.BuiltArchitecture, cfg *config.Config, log *slog.Logger) *archstore.Store {
	return archstore.NewStore(store, b, static, cfg.Cache.ArchCacheSize,
		cfg.Cache.CertTTL, cfg.Cache.CertCacheSize, log)
}

func ProvideRegisterHandler(r *archstore.Registrar, cfg *config.Config, log *slog.Logger) *handler.RegisterHandler {
	return handler.NewRegisterHandler(r, cfg.PKI.RegisterPath, log)
}

func ProvideServerConfig(cfg *config.Config) server.Config {
	return server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}
