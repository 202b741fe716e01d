// Package ocr provides text detection for the document extractor's image
// boundary.
package ocr

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/fridaylabs/friday-kb/internal/rag"
)

// TextractOCR detects text lines in images via Amazon Textract. It is safe
// for concurrent use.
type TextractOCR struct {
	client *textract.Client
}

// NewTextract constructs a TextractOCR. Credentials come from the standard
// AWS SDK chain; region is empty for the SDK default.
func NewTextract(ctx context.Context, region string) (*TextractOCR, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ocr: load aws config: %w", err)
	}
	return &TextractOCR{client: textract.NewFromConfig(awsCfg)}, nil
}

// DetectLines returns the detected LINE blocks in reading order.
func (o *TextractOCR) DetectLines(ctx context.Context, image []byte) ([]string, error) {
	out, err := o.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: detect document text: %v: %w", err, rag.ErrProviderUnavailable)
	}

	var lines []string
	for _, block := range out.Blocks {
		if block.BlockType == types.BlockTypeLine && block.Text != nil {
			lines = append(lines, *block.Text)
		}
	}
	return lines, nil
}
