package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/internal"
	"counterfact/internal/cache"
)

// LoaderConfig configures dataset loading
type LoaderConfig struct {
	// BaseDir confines relative and absolute sources to one directory when set
	BaseDir   string
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultLoaderConfig caches 16 datasets for 10 minutes
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{CacheSize: 16, CacheTTL: 10 * time.Minute}
}

// Loader reads CSV or XLSX files into validated datasets. Loaded datasets are
// cached by file identity and role mapping; callers must treat them as
// read-only.
type Loader struct {
	cfg   LoaderConfig
	cache *cache.LRUWithTTL[string, *dataset.Dataset]
	log   *internal.Logger
}

// NewLoader creates a loader. A CacheSize of zero disables caching.
func NewLoader(cfg LoaderConfig, logger *internal.Logger) (*Loader, error) {
	if logger == nil {
		logger = internal.NopLogger()
	}
	l := &Loader{cfg: cfg, log: logger.With("loader")}
	if cfg.CacheSize > 0 {
		c, err := cache.NewLRUWithTTL[string, *dataset.Dataset](cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("dataset cache: %w", err)
		}
		l.cache = c
	}
	return l, nil
}

// Load implements ports.DatasetLoader
func (l *Loader) Load(ctx context.Context, source string, mapping dataset.RoleMapping) (*dataset.Dataset, error) {
	if err := mapping.Check(); err != nil {
		return nil, err
	}
	path, err := l.resolve(source)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("dataset", source)
		}
		return nil, fmt.Errorf("stat %s: %w", source, err)
	}

	key := fmt.Sprintf("%s|%d|%d|%s", path, info.ModTime().UnixNano(), info.Size(), mapping.Fingerprint())
	if l.cache != nil {
		if ds, ok := l.cache.Get(key); ok {
			l.log.Debug("dataset cache hit for %s", source)
			return ds, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	table, err := NewDataReader(path).ReadData()
	if err != nil {
		return nil, core.NewDataContractError("source", err.Error())
	}
	ds, err := BuildDataset(table, mapping)
	if err != nil {
		return nil, err
	}
	l.log.Debug("loaded %s: %d rows, %d covariates in %s", source, ds.Len(), len(ds.CovariateNames), time.Since(started))

	if l.cache != nil {
		l.cache.Set(key, ds)
	}
	return ds, nil
}

// CacheStats returns the dataset cache counters
func (l *Loader) CacheStats() cache.Stats {
	if l.cache == nil {
		return cache.Stats{}
	}
	return l.cache.Stats()
}

func (l *Loader) resolve(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", core.NewDataContractError("source", "dataset source is empty")
	}
	if l.cfg.BaseDir == "" {
		return filepath.Abs(source)
	}
	base, err := filepath.Abs(l.cfg.BaseDir)
	if err != nil {
		return "", err
	}
	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.NewDataContractError("source", fmt.Sprintf("%s is outside the dataset directory", source))
	}
	return path, nil
}
