// internal/common/genai/client.go

// Package genai wraps the Google Gemini SDK behind the narrow surface
// the validation pipeline needs: one text payload plus file references
// in, response text plus grounding metadata out.
package genai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"assessment-workers/internal/common/config"
	"assessment-workers/internal/models"
)

// GroundingAttribution is one provider-supplied evidence attribution
// returned alongside a generation response. The provider cannot
// hallucinate a document that was not retrieved, so these are
// authoritative for document identity.
type GroundingAttribution struct {
	DocumentURI string
	Title       string
	Excerpt     string
	Segment     string
}

// Response is the raw model output handed to the response parser.
type Response struct {
	Text      string
	Grounding []GroundingAttribution
}

// Client calls the Gemini generation API.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewClient creates a Gemini client from config.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

// Generate issues one generation request mounting every document by its
// provider file URI alongside the text payload.
func (c *Client) Generate(ctx context.Context, payload string, docs []models.DocumentReference) (*Response, error) {
	parts := make([]*genai.Part, 0, len(docs)+1)
	for _, doc := range docs {
		parts = append(parts, genai.NewPartFromURI(doc.ProviderFileURI, doc.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(payload))

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	return &Response{
		Text:      result.Text(),
		Grounding: extractGrounding(result),
	}, nil
}

func extractGrounding(result *genai.GenerateContentResponse) []GroundingAttribution {
	if len(result.Candidates) == 0 || result.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	meta := result.Candidates[0].GroundingMetadata

	chunks := make([]GroundingAttribution, len(meta.GroundingChunks))
	for i, chunk := range meta.GroundingChunks {
		if rc := chunk.RetrievedContext; rc != nil {
			chunks[i] = GroundingAttribution{
				DocumentURI: rc.URI,
				Title:       rc.Title,
				Excerpt:     rc.Text,
			}
		} else if web := chunk.Web; web != nil {
			chunks[i] = GroundingAttribution{
				DocumentURI: web.URI,
				Title:       web.Title,
			}
		}
	}

	// Attach the supported response span to each chunk it grounds.
	for _, support := range meta.GroundingSupports {
		if support.Segment == nil {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			if int(idx) < len(chunks) && chunks[idx].Segment == "" {
				chunks[idx].Segment = support.Segment.Text
			}
		}
	}

	out := make([]GroundingAttribution, 0, len(chunks))
	for _, c := range chunks {
		if c.DocumentURI != "" || c.Title != "" {
			out = append(out, c)
		}
	}
	return out
}

// StatusCode extracts the HTTP status from a Gemini API error, if any.
// Used to split transient failures (429, 5xx) from rejections.
func StatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}
