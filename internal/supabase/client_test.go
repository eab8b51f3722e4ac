package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-provisioner/internal/common/errors"
)

const testKey = "service-key-123"

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, testKey, "dental-clinic-data", 5*time.Second)
}

func TestClient_GetClinic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/dental-clinic-data", r.URL.Path)
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		assert.Equal(t, testKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 42,
			"name": "Acme Dental",
			"services": ["cleaning", "whitening"],
			"insurances": ["Delta"],
			"policies": "no weekend visits",
			"status": "draft"
		}`))
	}))
	defer server.Close()

	profile, err := newTestClient(server.URL).GetClinic(context.Background(), "42")
	require.NoError(t, err)

	// The numeric id column comes back canonicalized to a string.
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "Acme Dental", profile.Name)
	assert.Equal(t, []string{"cleaning", "whitening"}, profile.Services)
	assert.Equal(t, "draft", profile.Status)
	assert.False(t, profile.IsLive())
}

func TestClient_GetClinic_TextIDColumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "clinic-7", "name": "Bright Smiles", "status": "live"}`))
	}))
	defer server.Close()

	profile, err := newTestClient(server.URL).GetClinic(context.Background(), "clinic-7")
	require.NoError(t, err)
	assert.Equal(t, "clinic-7", profile.ID)
	assert.True(t, profile.IsLive())
}

func TestClient_GetClinic_NotFound(t *testing.T) {
	// PostgREST answers 406 for zero rows under the object representation.
	for _, status := range []int{http.StatusNotAcceptable, http.StatusNotFound} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := newTestClient(server.URL).GetClinic(context.Background(), "99")
		server.Close()

		require.Error(t, err)
		stdErr, ok := err.(*errors.StandardError)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeTenantNotFound, stdErr.Code)
		assert.False(t, stdErr.Retryable)
	}
}

func TestClient_GetClinic_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"db timeout"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetClinic(context.Background(), "42")
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "db timeout")
}

func TestClient_GetClinic_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	_, err := newTestClient(server.URL).GetClinic(context.Background(), "42")
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, stdErr.Code)
}

func TestClient_UpdateClinic(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestClient(server.URL).UpdateClinic(context.Background(), "42", map[string]interface{}{
		"vector": []float32{0.1, 0.2},
		"status": "live",
	})
	require.NoError(t, err)

	assert.Equal(t, "live", captured["status"])
	assert.Len(t, captured["vector"], 2)
}

func TestClient_UpdateClinic_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := newTestClient(server.URL).UpdateClinic(context.Background(), "42", map[string]interface{}{
		"status": "live",
	})
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeStoreUnavailable, stdErr.Code)
}
