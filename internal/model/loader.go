package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/llama-agent/internal/retry"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

// Backend realizes a GGUF file path (plus batch size) into an opaque
// model handle. Production wires this to the native inference library;
// tests inject a fake that just records the call.
type Backend interface {
	Realize(ctx context.Context, path string, batchSize int, debug bool) (any, error)
}

// Loader resolves a ModelConfig to a LoadedModel: selection, caching,
// retried downloads, and native realization.
type Loader struct {
	repo    Repo
	cache   *Cache
	backend Backend
	logger  *slog.Logger
}

// NewLoader constructs a Loader. cfg's CacheDir/CacheMaxSizeGB (after
// normalization) determine the on-disk cache root.
func NewLoader(cfg Config, repo Repo, backend Backend, logger *slog.Logger) (*Loader, error) {
	cfg = cfg.normalized()
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := NewCache(cfg.CacheDir, cfg.CacheMaxSizeGB)
	if err != nil {
		return nil, err
	}
	return &Loader{repo: repo, cache: cache, backend: backend, logger: logger.With("component", "model_loader")}, nil
}

// CacheStats reports the on-disk cache's entry count and size.
func (l *Loader) CacheStats() CacheStats {
	return l.cache.Stats()
}

// Load resolves cfg.Source to a local file (downloading/caching as
// needed) and realizes a LoadedModel via the configured Backend.
func (l *Loader) Load(ctx context.Context, cfg Config) (*agentmodel.LoadedModel, error) {
	cfg = cfg.normalized()
	start := time.Now()

	entryFile := cfg.Source.Filename
	var allFiles []string
	if entryFile == "" {
		files, err := l.repo.ListFiles(ctx, cfg.Source)
		if err != nil {
			return nil, err
		}
		sel, err := SelectCandidate(files)
		if err != nil {
			return nil, err
		}
		entryFile = sel.EntryFile
		allFiles = sel.AllFiles
	} else {
		allFiles = []string{entryFile}
	}

	size, mtime, err := l.repo.Stat(ctx, cfg.Source, entryFile)
	if err != nil {
		return nil, err
	}
	key := Key(cfg.Source.String(), entryFile, size, mtime)

	cacheHit := true
	path, ok := l.cache.Lookup(key, entryFile)
	if !ok {
		cacheHit = false
		if _, err, _ := dedupedDownload(key, func() (any, error) {
			return nil, l.downloadAll(ctx, cfg, key, allFiles)
		}); err != nil {
			return nil, err
		}
		path, ok = l.cache.Lookup(key, entryFile)
		if !ok {
			return nil, newError(ErrIO, "downloaded file missing from cache after commit", "", nil)
		}
	}

	handle, err := l.backend.Realize(ctx, path, cfg.BatchSize, cfg.Debug)
	if err != nil {
		return nil, newError(ErrLoadFailed, "native model realization failed", "verify the GGUF file is not corrupt", err)
	}

	var totalSize int64
	for _, f := range allFiles {
		if info, err := os.Stat(filepath.Join(l.cache.EntryDir(key), f)); err == nil {
			totalSize += info.Size()
		}
	}
	if totalSize == 0 {
		totalSize = size
	}

	l.logger.Info("model loaded", "path", path, "cache_hit", cacheHit, "size_bytes", totalSize)

	return &agentmodel.LoadedModel{
		Handle:   handle,
		FilePath: path,
		Metadata: agentmodel.ModelMetadata{
			Source:    cfg.Source.String(),
			Filename:  entryFile,
			SizeBytes: totalSize,
			LoadTime:  time.Since(start),
			CacheHit:  cacheHit,
		},
	}, nil
}

// downloadAll fetches every file in files into *.partial paths under the
// cache key's directory, then commits them atomically as a group (so a
// multi-part model never has a partially-visible set of siblings).
func (l *Loader) downloadAll(ctx context.Context, cfg Config, key string, files []string) error {
	dir := l.cache.EntryDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newError(ErrIO, "create download directory", "", err)
	}

	var totalSize int64
	for _, f := range files {
		partialPath := filepath.Join(dir, f+".partial")
		res := retry.Do(ctx, cfg.Retry, func(attempt int) error {
			out, err := os.Create(partialPath)
			if err != nil {
				return newError(ErrIO, "create partial file", "", err)
			}
			defer out.Close()
			if err := l.repo.Fetch(ctx, cfg.Source, f, out); err != nil {
				l.logger.Warn("download attempt failed", "file", f, "attempt", attempt, "error", err)
				return err
			}
			return nil
		})
		if res.Err != nil {
			return fmt.Errorf("download %s: %w", f, res.Err)
		}
		if info, err := os.Stat(partialPath); err == nil {
			totalSize += info.Size()
		}
	}

	return l.cache.Commit(key, cfg.Source.String(), files, totalSize)
}
