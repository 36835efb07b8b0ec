package model

// Source identifies where a model's files come from: a HuggingFace repo
// or a local folder.
type Source struct {
	// Kind is either "huggingface" or "local".
	Kind string `yaml:"kind"`

	// HuggingFace fields.
	Repo string `yaml:"repo"`

	// Local fields.
	Folder string `yaml:"folder"`

	// Filename, if set, skips candidate selection entirely.
	Filename string `yaml:"filename"`
}

// HuggingFace constructs a HuggingFace-backed source.
func HuggingFace(repo, filename string) Source {
	return Source{Kind: "huggingface", Repo: repo, Filename: filename}
}

// Local constructs a local-folder-backed source.
func Local(folder, filename string) Source {
	return Source{Kind: "local", Folder: folder, Filename: filename}
}

// String identifies the source for logging, cache-key hashing, and model
// family inference in the chat template.
func (s Source) String() string {
	switch s.Kind {
	case "huggingface":
		return "hf:" + s.Repo
	case "local":
		return "local:" + s.Folder
	default:
		return "unknown"
	}
}
