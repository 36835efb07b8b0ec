package agentmodel

import "time"

// ModelMetadata describes how a LoadedModel's backing file was obtained.
type ModelMetadata struct {
	Source    string        `json:"source"`
	Filename  string        `json:"filename"`
	SizeBytes int64         `json:"size_bytes"`
	LoadTime  time.Duration `json:"load_time"`
	CacheHit  bool          `json:"cache_hit"`
}

// LoadedModel is a realized model handle plus the provenance of its file.
// The handle itself (Handle) is opaque to this package; it is produced and
// consumed by the native inference binding.
type LoadedModel struct {
	Handle   any
	FilePath string
	Metadata ModelMetadata
}

// CacheEntry is one entry in the model loader's on-disk LRU cache.
type CacheEntry struct {
	CacheKey   string    `json:"cache_key"`
	OnDiskPath string    `json:"on_disk_path"`
	SizeBytes  int64     `json:"size_bytes"`
	LastAccess time.Time `json:"last_access"`
}
