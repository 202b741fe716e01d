package embedder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/fridaylabs/friday-kb/internal/rag"
)

// BedrockEmbedder implements rag.Embedder and rag.ImageEmbedder using the
// Amazon Titan multimodal embedding model via Bedrock. Text and images share
// one vector space, which is what lets an image chunk be retrieved by a text
// query. It is safe for concurrent use.
type BedrockEmbedder struct {
	// client invokes Bedrock models.
	client *bedrockruntime.Client
	// modelID is the Bedrock model identifier (e.g. "amazon.titan-embed-image-v1").
	modelID string
	// dimensions is the requested output vector length.
	dimensions int
}

// BedrockConfig holds the settings for constructing a BedrockEmbedder.
type BedrockConfig struct {
	// Region is the AWS region. Empty uses the SDK default chain.
	Region string
	// ModelID is the Bedrock model identifier.
	ModelID string
	// Dimensions is the requested output vector length.
	Dimensions int
}

// NewBedrockEmbedder constructs a BedrockEmbedder. Credentials come from the
// standard AWS SDK chain (env, shared config, instance role).
func NewBedrockEmbedder(ctx context.Context, cfg *BedrockConfig) (*BedrockEmbedder, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: load aws config: %w", err)
	}
	return &BedrockEmbedder{
		client:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:    cfg.ModelID,
		dimensions: cfg.Dimensions,
	}, nil
}

// titanEmbedRequest is the JSON body sent to the Titan embedding model.
// Exactly one of InputText or InputImage is set per invocation.
type titanEmbedRequest struct {
	InputText  string `json:"inputText,omitempty"`
	InputImage string `json:"inputImage,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

// titanEmbedResponse is the JSON body returned by the Titan embedding model.
type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// invoke sends one embedding request and decodes the vector.
func (e *BedrockEmbedder) invoke(ctx context.Context, req titanEmbedRequest) ([]float32, error) {
	req.Dimensions = e.dimensions
	req.Normalize = true

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: marshal request: %w", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: invoke %s: %v: %w", e.modelID, err, rag.ErrProviderUnavailable)
	}

	var result titanEmbedResponse
	if err := json.Unmarshal(out.Body, &result); err != nil {
		return nil, fmt.Errorf("bedrock embedder: decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("bedrock embedder: empty embedding in response")
	}
	return result.Embedding, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// Titan embeds one input per invocation, so the batch is sequential.
func (e *BedrockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.invoke(ctx, titanEmbedRequest{InputText: text})
		if err != nil {
			return nil, fmt.Errorf("bedrock embedder: text %d of %d: %w", i+1, len(texts), err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// EmbedImage converts one base64-encoded image into its embedding.
func (e *BedrockEmbedder) EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error) {
	return e.invoke(ctx, titanEmbedRequest{InputImage: imageBase64})
}
