// Package extract routes uploaded buffers to an extraction strategy and
// falls back to optical recognition when structured extraction yields no
// usable text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Veraticus/paperflow/internal/common"
	"github.com/Veraticus/paperflow/internal/model"
	"github.com/Veraticus/paperflow/internal/service"
)

// Source records which extraction path produced the text.
type Source string

const (
	// SourcePrimary is structured text extraction.
	SourcePrimary Source = "primary"
	// SourceFallback is optical recognition.
	SourceFallback Source = "fallback"
)

// Result is the outcome of hybrid extraction for one document.
type Result struct {
	Kind       model.DocumentKind
	Source     Source
	FullText   string
	Pages      []string
	Warnings   []string
	Confidence float64
}

// Config tunes the router. Zero values select defaults.
type Config struct {
	// MinUsableChars is the threshold below which primary extraction is
	// treated as "no text layer" and OCR is attempted.
	MinUsableChars int
	// MaxFileSize rejects oversized uploads before any parsing.
	MaxFileSize int64
}

const (
	defaultMinUsableChars = 25
	defaultMaxFileSize    = 50 * 1024 * 1024

	// primaryConfidence is fixed high by construction: structured text
	// layers do not degrade the way optical recognition does.
	primaryConfidence = 0.95
)

// Router decides the extraction strategy per buffer and runs it.
type Router struct {
	ocr    service.OCRClient
	logger *slog.Logger
	cfg    Config
}

// NewRouter creates a router. The OCR client may be nil, in which case
// image-only documents and text-layer-less PDFs fail hard.
func NewRouter(ocr service.OCRClient, cfg Config, logger *slog.Logger) *Router {
	if cfg.MinUsableChars <= 0 {
		cfg.MinUsableChars = defaultMinUsableChars
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{ocr: ocr, cfg: cfg, logger: logger}
}

// Extract classifies the buffer and runs primary extraction with OCR
// fallback. An empty result is a hard failure; downstream stages never run
// on empty text.
func (r *Router) Extract(ctx context.Context, data []byte, fileNameHint string) (*Result, error) {
	if len(data) == 0 {
		return nil, common.NewUserError("the uploaded file is empty", common.ErrNoUsableText)
	}
	if int64(len(data)) > r.cfg.MaxFileSize {
		return nil, common.NewUserError(
			fmt.Sprintf("the file exceeds the %dMB size limit", r.cfg.MaxFileSize/(1024*1024)), nil)
	}

	kind := Sniff(data, fileNameHint)
	r.logger.Debug("classified upload", "kind", kind, "file_name", fileNameHint, "bytes", len(data))

	if kind == model.KindImage {
		return r.recognize(ctx, data, kind, nil)
	}

	result, err := r.primary(data, kind)
	if err == nil && len(strings.TrimSpace(result.FullText)) >= r.cfg.MinUsableChars {
		return result, nil
	}

	var warnings []string
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("primary extraction failed: %v", err))
		r.logger.Warn("primary extraction failed, trying optical recognition", "kind", kind, "error", err)
	} else {
		warnings = append(warnings, "primary extraction produced no usable text")
		r.logger.Warn("primary extraction below usable threshold, trying optical recognition",
			"kind", kind, "chars", len(result.FullText))
	}

	return r.recognize(ctx, data, kind, warnings)
}

// primary runs structured text extraction for the sniffed kind.
func (r *Router) primary(data []byte, kind model.DocumentKind) (*Result, error) {
	switch kind {
	case model.KindPDF:
		pages, err := extractPDFText(data)
		if err != nil {
			return nil, err
		}
		return &Result{
			Kind:       kind,
			Source:     SourcePrimary,
			Pages:      pages,
			FullText:   strings.Join(pages, "\n"),
			Confidence: primaryConfidence,
		}, nil
	case model.KindCSV, model.KindText, model.KindOFX:
		text, err := decodeText(data)
		if err != nil {
			return nil, err
		}
		return &Result{
			Kind:       kind,
			Source:     SourcePrimary,
			Pages:      []string{text},
			FullText:   text,
			Confidence: primaryConfidence,
		}, nil
	default:
		return nil, fmt.Errorf("no structured extractor for %s content", kind)
	}
}

// recognize runs the optical recognition fallback over the original bytes.
func (r *Router) recognize(ctx context.Context, data []byte, kind model.DocumentKind, warnings []string) (*Result, error) {
	if r.ocr == nil {
		return nil, common.NewUserError(
			"could not read any text from this document; try a clearer scan or a text-based export",
			common.ErrNoUsableText)
	}

	ocrResult, err := r.ocr.Recognize(ctx, data)
	if err != nil {
		return nil, common.NewUserError(
			"could not read any text from this document; try a clearer scan or a text-based export",
			fmt.Errorf("optical recognition: %w", err))
	}

	text := strings.TrimSpace(ocrResult.Text)
	if len(text) < r.cfg.MinUsableChars {
		return nil, common.NewUserError(
			"could not read any text from this document; try a clearer scan or a text-based export",
			common.ErrNoUsableText)
	}

	return &Result{
		Kind:       kind,
		Source:     SourceFallback,
		Pages:      []string{text},
		FullText:   text,
		Warnings:   warnings,
		Confidence: ocrResult.Confidence,
	}, nil
}

// Sniff classifies a buffer by content first, consulting the filename
// extension only when the bytes are inconclusive. Buffer evidence always
// wins: filenames are untrusted metadata.
func Sniff(data []byte, fileNameHint string) model.DocumentKind {
	if kind := sniffContent(data); kind != model.KindUnknown {
		return kind
	}
	return kindFromExtension(fileNameHint)
}

func sniffContent(data []byte) model.DocumentKind {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return model.KindPDF
	}
	if isImageMagic(data) {
		return model.KindImage
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	upper := strings.ToUpper(string(head))
	if strings.Contains(upper, "OFXHEADER") || strings.Contains(upper, "<OFX>") {
		return model.KindOFX
	}

	if looksLikeCSV(data) {
		return model.KindCSV
	}
	if looksLikeText(data) {
		return model.KindText
	}
	return model.KindUnknown
}

func isImageMagic(data []byte) bool {
	prefixes := [][]byte{
		{0x89, 'P', 'N', 'G'},
		{0xFF, 0xD8, 0xFF},
		[]byte("GIF87a"),
		[]byte("GIF89a"),
		[]byte("BM"),
		{'I', 'I', 0x2A, 0x00},
		{'M', 'M', 0x00, 0x2A},
	}
	for _, p := range prefixes {
		if bytes.HasPrefix(data, p) {
			return true
		}
	}
	return false
}

// looksLikeCSV checks the first lines for a consistent delimiter count.
func looksLikeCSV(data []byte) bool {
	if !looksLikeText(data) {
		return false
	}
	sample := string(data)
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	lines := nonEmptyLines(sample, 4)
	if len(lines) < 2 {
		return false
	}
	for _, delim := range []string{",", ";", "\t"} {
		first := strings.Count(lines[0], delim)
		if first == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if strings.Count(line, delim) != first {
				consistent = false
				break
			}
		}
		if consistent {
			return true
		}
	}
	return false
}

func looksLikeText(data []byte) bool {
	sample := data
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	if len(sample) == 0 {
		return false
	}
	binary := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x09 {
			binary++
		}
	}
	return binary*20 < len(sample)
}

func nonEmptyLines(s string, limit int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}

func kindFromExtension(fileName string) model.DocumentKind {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return model.KindPDF
	case ".csv":
		return model.KindCSV
	case ".ofx", ".qfx":
		return model.KindOFX
	case ".txt":
		return model.KindText
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff":
		return model.KindImage
	default:
		return model.KindUnknown
	}
}
