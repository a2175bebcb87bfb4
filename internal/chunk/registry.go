package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// Family names a source's chunker family, matching store.SourceType.
type Family string

const (
	FamilyMarkdown Family = "markdown"
	FamilyPDF      Family = "pdf"
	FamilyEPUB     Family = "epub"
	FamilyText     Family = "text"
	FamilyJSON     Family = "json"
	FamilyVCS      Family = "vcs_history"
	FamilyWeb      Family = "web"
	FamilyAudio    Family = "audio"
)

var extensionFamily = map[string]Family{
	".md":       FamilyMarkdown,
	".markdown": FamilyMarkdown,
	".pdf":      FamilyPDF,
	".epub":     FamilyEPUB,
	".txt":      FamilyText,
	".json":     FamilyJSON,
	".wav":      FamilyAudio,
	".mp3":      FamilyAudio,
	".m4a":      FamilyAudio,
}

// DetectFamily is the pure dispatch function of spec.md §4.3's registry:
// a "vcs_history" hint first, then URL scheme (http/https → web unless the
// URL ends in ".git", ssh/git → vcs_history), then file extension. An
// unrecognised extension defaults to plain text; a path with no extension
// at all is rejected as an unsupported source type.
func DetectFamily(sourcePath string, metadataHint map[string]string) (Family, error) {
	if metadataHint != nil {
		if v, ok := metadataHint["vcs_history"]; ok && v == "true" {
			return FamilyVCS, nil
		}
	}

	if strings.HasPrefix(sourcePath, "http://") || strings.HasPrefix(sourcePath, "https://") {
		if strings.HasSuffix(sourcePath, ".git") {
			return FamilyVCS, nil
		}
		return FamilyWeb, nil
	}
	if strings.HasPrefix(sourcePath, "ssh://") || strings.HasPrefix(sourcePath, "git://") {
		return FamilyVCS, nil
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	if family, ok := extensionFamily[ext]; ok {
		return family, nil
	}
	if ext == "" {
		return "", coreerrors.UnsupportedSourceTypeError(sourcePath).WithDetail("reason", "no extension and no recognised URL scheme")
	}
	return FamilyText, nil
}

// Registry builds the Chunker for a given Family, sharing one Config and
// TokenCounter across every family it constructs.
type Registry struct {
	cfg         Config
	counter     TokenCounter
	transcriber Transcriber
	audioModel  string
}

func NewRegistry(cfg Config, counter TokenCounter, transcriber Transcriber, audioModel string) *Registry {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &Registry{cfg: cfg, counter: counter, transcriber: transcriber, audioModel: audioModel}
}

func (r *Registry) ChunkerFor(family Family) (Chunker, error) {
	switch family {
	case FamilyMarkdown:
		return NewMarkdownChunker(r.cfg, r.counter), nil
	case FamilyPDF:
		return NewPDFChunker(r.cfg, r.counter), nil
	case FamilyEPUB:
		return NewEPUBChunker(r.cfg, r.counter), nil
	case FamilyText:
		return NewTextChunker(r.cfg, r.counter), nil
	case FamilyJSON:
		return NewJSONChunker(r.cfg, r.counter), nil
	case FamilyVCS:
		return NewVCSChunker(r.cfg, r.counter), nil
	case FamilyWeb:
		return NewWebChunker(r.cfg, r.counter), nil
	case FamilyAudio:
		return NewAudioChunker(r.cfg, r.counter, r.transcriber, r.audioModel), nil
	default:
		return nil, fmt.Errorf("no chunker registered for family %q", family)
	}
}
