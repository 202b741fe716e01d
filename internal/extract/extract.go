// Package extract converts knowledge-base source documents into plain text.
// Each supported file class has a dedicated extraction policy: audio and
// video go through the transcription boundary, images through OCR, PDFs and
// Office documents through format parsers, and plain text passes verbatim.
// The class is decided by file extension against a closed lookup table.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFileType indicates a file extension outside the closed set of
// supported document classes. Callers use errors.Is to skip such files.
var ErrUnsupportedFileType = errors.New("extract: unsupported file type")

// Kind is a supported document class. Every extension in the lookup table
// maps to exactly one Kind; everything else is unsupported.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
	KindImage
	KindPDF
	KindDocx
	KindTabular
	KindText
)

// extKinds is the closed extension→class table. Extensions are matched
// case-insensitively with the leading dot.
var extKinds = map[string]Kind{
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".m4a":  KindAudio,
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".pdf":  KindPDF,
	".docx": KindDocx,
	".csv":  KindTabular,
	".xlsx": KindTabular,
	".txt":  KindText,
	".py":   KindText,
}

// KindOf returns the document class for the given path, or KindUnknown.
func KindOf(path string) Kind {
	return extKinds[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether the path's extension is in the lookup table.
func Supported(path string) bool {
	return KindOf(path) != KindUnknown
}

// Transcriber converts recorded speech to text. Implementations must be safe
// to call from multiple goroutines.
type Transcriber interface {
	// Transcribe returns the transcript of the audio file at path.
	Transcribe(ctx context.Context, path string) (string, error)
}

// OCR detects text in an image. Implementations must be safe to call from
// multiple goroutines.
type OCR interface {
	// DetectLines returns the detected text lines in reading order.
	DetectLines(ctx context.Context, image []byte) ([]string, error)
}

// Result is the extracted content of one document.
type Result struct {
	// Text is the extracted plain text. May be empty (e.g. a zero-byte file
	// or a PDF with no extractable text).
	Text string

	// ImageBase64 is the base64-encoded raw image for image documents, used
	// for the optional image embedding. Empty for every other class.
	ImageBase64 string
}

// Extractor dispatches files to per-class extraction policies. The
// transcriber and OCR boundaries are optional: classes that need a missing
// boundary fail with a clear error instead of at dial time.
type Extractor struct {
	transcriber Transcriber
	ocr         OCR
}

// New constructs an Extractor. Either boundary may be nil.
func New(transcriber Transcriber, ocr OCR) *Extractor {
	return &Extractor{transcriber: transcriber, ocr: ocr}
}

// Extract converts the file at path into plain text per its class.
// Unsupported extensions return ErrUnsupportedFileType.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("extract: stat %s: %w", path, err)
	}

	switch KindOf(path) {
	case KindAudio:
		text, err := e.transcribeAudio(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil

	case KindVideo:
		text, err := e.transcribeVideo(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil

	case KindImage:
		return e.extractImage(ctx, path)

	case KindPDF:
		text, err := extractPDF(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil

	case KindDocx:
		text, err := extractDocx(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil

	case KindTabular:
		text, err := extractTabular(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil

	case KindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("extract: read %s: %w", path, err)
		}
		return &Result{Text: string(data)}, nil

	default:
		return nil, fmt.Errorf("extract: %s: %w", filepath.Base(path), ErrUnsupportedFileType)
	}
}
