package scanner

import (
	"context"
	"unicode/utf8"

	"github.com/h2non/filetype"

	"unravel/config"
	"unravel/fuzzy"
	"unravel/result"
)

// sniffBytes is how much of a file the content modules look at.
const sniffBytes = 8192

// FileModule adds content-derived fields to an outcome after claims are
// resolved. Modules only ever see content owned by the current worker.
type FileModule interface {
	Name() string
	Enabled(cfg *config.Config) bool
	Collect(ctx context.Context, fc *FileContext, o *result.Outcome) error
}

// FileContext is what modules know about the content being unpacked.
type FileContext struct {
	Path    string
	Backing string
	Size    int64
	Head    []byte
	Cfg     *config.Config
}

func buildFileModules() []FileModule {
	return []FileModule{
		mimeModule{},
		heuristicModule{},
		fuzzyModule{},
	}
}

type mimeModule struct{}

func (mimeModule) Name() string { return "mime" }

func (mimeModule) Enabled(*config.Config) bool { return true }

func (mimeModule) Collect(_ context.Context, fc *FileContext, o *result.Outcome) error {
	o.MimeType = mimeType(fc.Head, fc.Size)
	return nil
}

// heuristicModule labels content no parser claimed at offset zero.
type heuristicModule struct{}

func (heuristicModule) Name() string { return "heuristic" }

func (heuristicModule) Enabled(*config.Config) bool { return true }

func (heuristicModule) Collect(_ context.Context, fc *FileContext, o *result.Outcome) error {
	if o.Parser != "" {
		return nil
	}
	o.Labels = result.MergeLabels(o.Labels, heuristicLabels(fc.Head, fc.Size))
	return nil
}

type fuzzyModule struct{}

func (fuzzyModule) Name() string { return "fuzzy" }

func (fuzzyModule) Enabled(cfg *config.Config) bool {
	return cfg.FuzzyHash && len(cfg.FuzzyAlgorithms) > 0
}

func (fuzzyModule) Collect(_ context.Context, fc *FileContext, o *result.Outcome) error {
	limits := fuzzy.Limits{MinSize: fc.Cfg.FuzzyMinSize, MaxSize: fc.Cfg.FuzzyMaxSize}
	o.FuzzyHashes = fuzzy.HashFile(fc.Backing, fc.Size, fc.Cfg.FuzzyAlgorithms, limits)
	return nil
}

func mimeType(head []byte, size int64) string {
	if size == 0 {
		return ""
	}
	kind, err := filetype.Match(head)
	if err == nil && kind != filetype.Unknown && kind.MIME.Value != "" {
		return kind.MIME.Value
	}
	if looksLikeText(head) {
		return "text/plain"
	}
	return "application/octet-stream"
}

func heuristicLabels(head []byte, size int64) []string {
	if size == 0 {
		return []string{"empty"}
	}
	var labels []string
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown && kind.Extension != "" {
		labels = append(labels, kind.Extension)
	}
	if looksLikeText(head) {
		return append(labels, "text")
	}
	return append(labels, "binary")
}

func looksLikeText(sample []byte) bool {
	sample = trimPartialRune(sample)
	if len(sample) == 0 {
		return false
	}
	if !utf8.Valid(sample) {
		return false
	}
	var control int
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			control++
		}
	}
	return control <= len(sample)/10
}

// trimPartialRune drops a multi-byte sequence cut off by the end of a sample.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
