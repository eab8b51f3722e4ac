package fly

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

func newTestClient(serverURL string) *Client {
	return NewClient("fly-token", "dental-agents", serverURL, 5*time.Second)
}

func testSpec() *MachineSpec {
	return &MachineSpec{
		Name:   "dental-agent-42-1700000000",
		Region: "iad",
		Config: MachineConfig{
			Image: "ghcr.io/acme/dental-agent:latest",
			Cmd:   []string{"python", "agent.py", "dev"},
			Env:   map[string]string{"CLINIC_ID": "42"},
			Restart: RestartPolicy{Policy: "on-failure"},
			Guest: GuestConfig{
				CPUKind:  "shared",
				CPUs:     1,
				MemoryMB: 1024,
			},
		},
	}
}

func TestClient_CreateMachine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/apps/dental-agents/machines", r.URL.Path)
		assert.Equal(t, "Bearer fly-token", r.Header.Get("Authorization"))

		var spec MachineSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "dental-agent-42-1700000000", spec.Name)
		assert.Equal(t, "42", spec.Config.Env["CLINIC_ID"])
		assert.Equal(t, "on-failure", spec.Config.Restart.Policy)
		assert.Equal(t, 1024, spec.Config.Guest.MemoryMB)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"e286065f","name":"dental-agent-42-1700000000","state":"created","region":"iad","instance_id":"01HX"}`)
	}))
	defer server.Close()

	machine, err := newTestClient(server.URL).CreateMachine(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, "e286065f", machine.ID)
	assert.Equal(t, "created", machine.State)
	assert.Equal(t, "iad", machine.Region)
}

func TestClient_CreateMachine_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"invalid guest configuration"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateMachine(context.Background(), testSpec())
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeLaunchError, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Details, "status: 422")
	assert.Contains(t, stdErr.Details, "invalid guest configuration")
}

func TestClient_CreateMachine_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).CreateMachine(context.Background(), testSpec())
	require.Error(t, err)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeLaunchError, stdErr.Code)
}

func TestClient_CreateMachine_MalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "not json")
	}))
	defer server.Close()

	// Creation was accepted; the response just could not be decoded.
	machine, err := newTestClient(server.URL).CreateMachine(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, "dental-agent-42-1700000000", machine.Name)
	assert.Equal(t, "iad", machine.Region)
}
