package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/llama-agent/internal/retry"
	"golang.org/x/sync/singleflight"
)

// Repo abstracts listing and fetching files from a model source, so the
// loader's selection/cache/retry logic can be tested without a network.
// The default implementation talks to the HuggingFace Hub and the local
// filesystem; tests inject a fake.
type Repo interface {
	// ListFiles returns candidate filenames visible in the source.
	ListFiles(ctx context.Context, src Source) ([]string, error)
	// Stat returns the size in bytes and a stable mtime for a file,
	// used to compute the cache key.
	Stat(ctx context.Context, src Source, filename string) (size int64, mtime time.Time, err error)
	// Fetch streams filename's contents into w. For local sources this is
	// a file copy; for HuggingFace sources an HTTP GET.
	Fetch(ctx context.Context, src Source, filename string, w io.Writer) error
}

// httpRepo is the production Repo: HuggingFace Hub over HTTP, local
// folders over the filesystem.
type httpRepo struct {
	client *http.Client
}

// NewHTTPRepo constructs the default Repo implementation.
func NewHTTPRepo() Repo {
	return &httpRepo{client: &http.Client{Timeout: 5 * time.Minute}}
}

func (r *httpRepo) ListFiles(ctx context.Context, src Source) ([]string, error) {
	switch src.Kind {
	case "local":
		entries, err := os.ReadDir(src.Folder)
		if err != nil {
			return nil, newError(ErrIO, "list local folder", "verify the folder path exists", err)
		}
		var out []string
		for _, e := range entries {
			if !e.IsDir() {
				out = append(out, e.Name())
			}
		}
		return out, nil
	case "huggingface":
		url := fmt.Sprintf("https://huggingface.co/api/models/%s/tree/main", src.Repo)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, newError(ErrDownload, "build repo listing request", "", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, retryableHTTPError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, newError(ErrDownload, fmt.Sprintf("repo listing failed: HTTP %d", resp.StatusCode), "retry later", nil)
		}
		if resp.StatusCode >= 400 {
			return nil, retry.Permanent(newError(ErrNotFound, fmt.Sprintf("repo listing failed: HTTP %d", resp.StatusCode), "verify repo name", nil))
		}
		return decodeTreeListing(resp.Body)
	default:
		return nil, newError(ErrValidation, "unknown source kind", "", nil)
	}
}

func (r *httpRepo) Stat(ctx context.Context, src Source, filename string) (int64, time.Time, error) {
	switch src.Kind {
	case "local":
		info, err := os.Stat(filepath.Join(src.Folder, filename))
		if err != nil {
			return 0, time.Time{}, newError(ErrIO, "stat local file", "", err)
		}
		return info.Size(), info.ModTime(), nil
	case "huggingface":
		url := fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", src.Repo, filename)
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return 0, time.Time{}, newError(ErrDownload, "build HEAD request", "", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return 0, time.Time{}, retryableHTTPError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return 0, time.Time{}, classifyHTTPStatus(resp.StatusCode)
		}
		mtime := time.Now()
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				mtime = t
			}
		}
		return resp.ContentLength, mtime, nil
	default:
		return 0, time.Time{}, newError(ErrValidation, "unknown source kind", "", nil)
	}
}

func (r *httpRepo) Fetch(ctx context.Context, src Source, filename string, w io.Writer) error {
	switch src.Kind {
	case "local":
		f, err := os.Open(filepath.Join(src.Folder, filename))
		if err != nil {
			return newError(ErrIO, "open local file", "", err)
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return newError(ErrIO, "copy local file", "", err)
		}
		return nil
	case "huggingface":
		url := fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", src.Repo, filename)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return newError(ErrDownload, "build download request", "", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return retryableHTTPError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return classifyHTTPStatus(resp.StatusCode)
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return newError(ErrDownload, "stream download body", "retry the download", err)
		}
		return nil
	default:
		return newError(ErrValidation, "unknown source kind", "", nil)
	}
}

func retryableHTTPError(err error) error {
	// Connection reset, DNS failures, and timeouts all surface as generic
	// network errors from net/http; none are permanent.
	return newError(ErrDownload, "network error", "check connectivity and retry", err)
}

func classifyHTTPStatus(status int) error {
	if status >= 500 {
		return newError(ErrDownload, fmt.Sprintf("HTTP %d", status), "retry later", nil)
	}
	// 4xx (notably 401/403/404) are non-retriable.
	return retry.Permanent(newError(ErrNotFound, fmt.Sprintf("HTTP %d", status), "verify repo name and credentials", nil))
}

// decodeTreeListing is a minimal, dependency-free parser for the
// HuggingFace tree API's JSON array of {"path": "..."} entries.
func decodeTreeListing(r io.Reader) ([]string, error) {
	var entries []struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, newError(ErrDownload, "parse repo listing", "", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out, nil
}

// downloadGroup collapses concurrent downloads of the same cache key into
// a single in-flight fetch, the mechanism behind "cache uses a
// directory-level file lock or in-process mutex" requirement.
var downloadGroup singleflight.Group

func dedupedDownload(key string, fn func() (any, error)) (any, error, bool) {
	return downloadGroup.Do(key, fn)
}
