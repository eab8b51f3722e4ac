package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-provisioner/internal/common/errors"
)

const testDims = 4

func newTestClient(serverURL string) *Client {
	return NewClient("sk-test", serverURL, "text-embedding-3-small", testDims, 5*time.Second)
}

func embeddingBody(vectors ...[]float32) string {
	type datum struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]datum, len(vectors))
	for i, v := range vectors {
		data[i] = datum{Index: i, Embedding: v}
	}
	body, _ := json.Marshal(map[string]interface{}{"data": data})
	return string(body)
}

func TestClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"Acme Dental cleaning Delta"}, req.Input)

		fmt.Fprint(w, embeddingBody([]float32{0.1, 0.2, 0.3, 0.4}))
	}))
	defer server.Close()

	vector, err := newTestClient(server.URL).Embed(context.Background(), "Acme Dental cleaning Delta")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vector)
}

func TestClient_Embed_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		details string
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
			},
			details: "rate limited",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			details: "status 500",
		},
		{
			name: "error payload with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"error":{"message":"invalid model","type":"invalid_request_error"}}`)
			},
			details: "invalid model",
		},
		{
			name: "empty data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, embeddingBody())
			},
			details: "expected 1 embedding, got 0",
		},
		{
			name: "wrong dimensionality",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, embeddingBody([]float32{0.1, 0.2}))
			},
			details: "expected 4 dimensions, got 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Embed(context.Background(), "text")
			require.Error(t, err)

			stdErr, ok := err.(*errors.StandardError)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeEmbeddingProviderError, stdErr.Code)
			assert.True(t, stdErr.Retryable)
			assert.Contains(t, stdErr.Details, tt.details)
		})
	}
}

func TestClient_Embed_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).Embed(context.Background(), "text")
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeEmbeddingProviderError, stdErr.Code)
}
