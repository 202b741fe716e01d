package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// extractImage runs OCR over the image and also returns the base64 payload so
// the pipeline can store an image embedding alongside the detected text.
func (e *Extractor) extractImage(ctx context.Context, path string) (*Result, error) {
	if e.ocr == nil {
		return nil, fmt.Errorf("extract: %s requires an OCR backend, none configured", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", path, err)
	}

	lines, err := e.ocr.DetectLines(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract: ocr %s: %w", filepath.Base(path), err)
	}

	return &Result{
		Text:        strings.Join(lines, "\n"),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}
