// Package openai implements the embedding provider client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinic-provisioner/internal/common/errors"
)

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

func NewClient(apiKey, baseURL, model string, dimensions int, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed submits one input string and expects back exactly one vector of the
// configured dimensionality. Transport failures, rate limits, and malformed
// results all map to EMBEDDING_PROVIDER_ERROR.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, errors.NewEmbeddingProviderError(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewBuffer(payload))
	if err != nil {
		return nil, errors.NewEmbeddingProviderError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewEmbeddingProviderError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewEmbeddingProviderError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewEmbeddingProviderError(
			fmt.Errorf("rate limited (status 429): %s", string(body)))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewEmbeddingProviderError(
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var result embeddingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.NewEmbeddingProviderError(fmt.Errorf("decode response: %w", err))
	}

	if result.Error != nil {
		return nil, errors.NewEmbeddingProviderError(
			fmt.Errorf("%s: %s", result.Error.Type, result.Error.Message))
	}

	if len(result.Data) != 1 {
		return nil, errors.NewEmbeddingProviderError(
			fmt.Errorf("expected 1 embedding, got %d", len(result.Data)))
	}

	vector := result.Data[0].Embedding
	if len(vector) != c.dimensions {
		return nil, errors.NewEmbeddingProviderError(
			fmt.Errorf("expected %d dimensions, got %d", c.dimensions, len(vector)))
	}

	return vector, nil
}

// Dimensions returns the expected vector length.
func (c *Client) Dimensions() int {
	return c.dimensions
}
