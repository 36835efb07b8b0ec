package model

import "testing"

func TestSelectCandidatePrefersBF16(t *testing.T) {
	res, err := SelectCandidate([]string{"model-f32.gguf", "model-bf16.gguf", "README.md"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntryFile != "model-bf16.gguf" {
		t.Fatalf("expected bf16 preferred, got %q", res.EntryFile)
	}
}

func TestSelectCandidateLexicographicFallback(t *testing.T) {
	res, err := SelectCandidate([]string{"zeta.gguf", "alpha.gguf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntryFile != "alpha.gguf" {
		t.Fatalf("expected lexicographically first, got %q", res.EntryFile)
	}
}

func TestSelectCandidateNoGGUF(t *testing.T) {
	_, err := SelectCandidate([]string{"README.md", "config.json"})
	if err == nil {
		t.Fatalf("expected NotFound error")
	}
	if me, ok := err.(*Error); !ok || me.Kind != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectCandidateMultiPartComplete(t *testing.T) {
	files := []string{
		"model-00002-of-00002.gguf",
		"model-00001-of-00002.gguf",
		"other.gguf",
	}
	res, err := SelectCandidate(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntryFile != "model-00001-of-00002.gguf" {
		t.Fatalf("expected first part as entry file, got %q", res.EntryFile)
	}
	if len(res.AllFiles) != 2 {
		t.Fatalf("expected both parts listed, got %v", res.AllFiles)
	}
}

func TestSelectCandidateMultiPartIncomplete(t *testing.T) {
	files := []string{"model-00001-of-00002.gguf"}
	_, err := SelectCandidate(files)
	if err == nil {
		t.Fatalf("expected error for incomplete multi-part group")
	}
}
