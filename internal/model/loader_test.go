package model

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

// fakeRepo is an in-memory Repo for loader tests.
type fakeRepo struct {
	files   map[string][]byte
	listing []string
	calls   int
}

func (f *fakeRepo) ListFiles(ctx context.Context, src Source) ([]string, error) {
	return f.listing, nil
}

func (f *fakeRepo) Stat(ctx context.Context, src Source, filename string) (int64, time.Time, error) {
	data, ok := f.files[filename]
	if !ok {
		return 0, time.Time{}, newError(ErrNotFound, "no such file", "", nil)
	}
	return int64(len(data)), time.Unix(1700000000, 0), nil
}

func (f *fakeRepo) Fetch(ctx context.Context, src Source, filename string, w io.Writer) error {
	f.calls++
	data, ok := f.files[filename]
	if !ok {
		return newError(ErrNotFound, "no such file", "", nil)
	}
	_, err := w.Write(data)
	return err
}

type fakeBackend struct {
	realized []string
}

func (b *fakeBackend) Realize(ctx context.Context, path string, batchSize int, debug bool) (any, error) {
	b.realized = append(b.realized, path)
	return "handle:" + path, nil
}

func TestLoaderCacheHitOnSecondLoad(t *testing.T) {
	dir := t.TempDir()
	repo := &fakeRepo{
		files:   map[string][]byte{"model-bf16.gguf": bytes.Repeat([]byte{1}, 128)},
		listing: []string{"model-bf16.gguf"},
	}
	backend := &fakeBackend{}
	loader, err := NewLoader(Config{CacheDir: dir}, repo, backend, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := Config{Source: HuggingFace("org/repo", "")}

	l1, err := loader.Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if l1.Metadata.CacheHit {
		t.Fatalf("expected first load to be a cache miss")
	}

	l2, err := loader.Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !l2.Metadata.CacheHit {
		t.Fatalf("expected second load to be a cache hit")
	}
	if l2.FilePath != l1.FilePath {
		t.Fatalf("expected same file path across loads: %q vs %q", l1.FilePath, l2.FilePath)
	}
	if repo.calls != 1 {
		t.Fatalf("expected exactly one network fetch, got %d", repo.calls)
	}
}

func TestLoaderMultiPartDownloadsAllSiblings(t *testing.T) {
	dir := t.TempDir()
	repo := &fakeRepo{
		files: map[string][]byte{
			"model-00001-of-00002.gguf": bytes.Repeat([]byte{1}, 64),
			"model-00002-of-00002.gguf": bytes.Repeat([]byte{2}, 32),
		},
		listing: []string{"model-00001-of-00002.gguf", "model-00002-of-00002.gguf"},
	}
	backend := &fakeBackend{}
	loader, err := NewLoader(Config{CacheDir: dir}, repo, backend, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	loaded, err := loader.Load(context.Background(), Config{Source: HuggingFace("org/repo", "")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Metadata.SizeBytes != 96 {
		t.Fatalf("expected combined size 96, got %d", loaded.Metadata.SizeBytes)
	}
	if repo.calls != 2 {
		t.Fatalf("expected both parts fetched, got %d calls", repo.calls)
	}
}

func TestLoaderNotFoundWhenNoGGUF(t *testing.T) {
	dir := t.TempDir()
	repo := &fakeRepo{listing: []string{"README.md"}}
	loader, err := NewLoader(Config{CacheDir: dir}, repo, &fakeBackend{}, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	_, err = loader.Load(context.Background(), Config{Source: HuggingFace("org/repo", "")})
	if err == nil {
		t.Fatalf("expected error")
	}
	me, ok := err.(*Error)
	if !ok || me.Kind != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
