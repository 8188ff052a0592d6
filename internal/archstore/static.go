package archstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/certomancer/caas/internal/certcache"
	"github.com/certomancer/caas/internal/domain"
	"github.com/certomancer/caas/internal/ttlstore"
)

// LoadStatic builds every *.yml/*.yaml architecture file in dir at
// startup. The label is the file name without extension. Static
// architectures are built against a process-local store, so serving them
// keeps working when the shared store is unreachable.
func LoadStatic(ctx context.Context, builder domain.ArchBuilder, dir string, certTTL time.Duration, certLRUSize int, logger *slog.Logger) (map[domain.ArchLabel]*domain.BuiltArchitecture, error) {
	static := make(map[domain.ArchLabel]*domain.BuiltArchitecture)
	if dir == "" {
		return static, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan architecture dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		rawConfig, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read architecture file %s: %w", entry.Name(), err)
		}

		label := domain.ArchLabel(strings.TrimSuffix(entry.Name(), ext))
		cache := certcache.New(ttlstore.NewMemoryStore(), label, certTTL, certLRUSize, logger)
		arch, err := builder.Build(ctx, label, rawConfig, cache)
		if err != nil {
			return nil, fmt.Errorf("build static architecture %q: %w", label, err)
		}

		static[label] = arch
		logger.Info("static architecture loaded", "arch", label, "certs", len(arch.Certs))
	}
	return static, nil
}
