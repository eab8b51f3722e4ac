package provision

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-provisioner/internal/common/errors"
	"clinic-provisioner/internal/common/logger"
	"clinic-provisioner/internal/common/metrics"
)

func createTestHandler(t *testing.T, deps *testDeps) *Handler {
	return NewHandler(HandlerOptions{
		Service: createTestService(t, deps, nil),
		Logger:  logger.NewTestLogger(t),
		Timeout: 10 * time.Second,
	})
}

func doRequest(h *Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/provision", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.ErrorResponse {
	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandler_Success(t *testing.T) {
	deps := createTestDeps()
	h := createTestHandler(t, deps)

	rec := doRequest(h, http.MethodPost, `{"clinic_id": "42"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ProvisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 1, deps.launcher.calls)
}

func TestHandler_IntegerClinicID(t *testing.T) {
	deps := createTestDeps()
	h := createTestHandler(t, deps)

	rec := doRequest(h, http.MethodPost, `{"clinic_id": 42}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, deps.store.getCalls)
}

func TestHandler_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "not json", body: "not json at all"},
		{name: "missing clinic_id", body: `{"force": true}`},
		{name: "null clinic_id", body: `{"clinic_id": null}`},
		{name: "empty clinic_id", body: `{"clinic_id": ""}`},
		{name: "clinic_id wrong type", body: `{"clinic_id": ["42"]}`},
		{name: "force wrong type", body: `{"clinic_id": "42", "force": "yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := createTestDeps()
			h := createTestHandler(t, deps)

			rec := doRequest(h, http.MethodPost, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(errors.ErrCodeInvalidRequest), resp.Error.Code)
			assert.False(t, resp.Error.Retryable)
			assert.NotEmpty(t, resp.RequestID)

			// Rejected before any remote call went out.
			assert.Equal(t, 0, deps.store.getCalls)
			assert.Equal(t, 0, deps.embedder.calls)
			assert.Equal(t, 0, deps.launcher.calls)
		})
	}
}

func TestHandler_InvalidRequest_CountsValidationFailure(t *testing.T) {
	counter := metrics.ProvisionStepFailures.WithLabelValues(StepValidating, string(errors.ErrCodeInvalidRequest))
	before := testutil.ToFloat64(counter)

	deps := createTestDeps()
	h := createTestHandler(t, deps)

	rec := doRequest(h, http.MethodPost, `{"force": true}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandler_TenantNotFound(t *testing.T) {
	deps := createTestDeps()
	deps.store.getErr = errors.NewTenantNotFoundError("99")
	h := createTestHandler(t, deps)

	rec := doRequest(h, http.MethodPost, `{"clinic_id": "99"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeTenantNotFound), resp.Error.Code)
}

func TestHandler_UpstreamFailuresMapTo502(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(deps *testDeps)
		expectedCode errors.ErrorCode
	}{
		{
			name: "store unavailable",
			setup: func(deps *testDeps) {
				deps.store.getErr = errors.NewStoreUnavailableError("get", upstreamErr())
			},
			expectedCode: errors.ErrCodeStoreUnavailable,
		},
		{
			name: "embedding provider down",
			setup: func(deps *testDeps) {
				deps.embedder.err = errors.NewEmbeddingProviderError(upstreamErr())
			},
			expectedCode: errors.ErrCodeEmbeddingProviderError,
		},
		{
			name: "launcher rejects",
			setup: func(deps *testDeps) {
				deps.launcher.err = errors.NewLaunchError(500, "boom")
			},
			expectedCode: errors.ErrCodeLaunchError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := createTestDeps()
			tt.setup(deps)
			h := createTestHandler(t, deps)

			rec := doRequest(h, http.MethodPost, `{"clinic_id": "42"}`)

			assert.Equal(t, http.StatusBadGateway, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(tt.expectedCode), resp.Error.Code)
			assert.True(t, resp.Error.Retryable)
		})
	}
}

func TestHandler_AlreadyProvisionedConflict(t *testing.T) {
	deps := createTestDeps()
	deps.store.profile.Status = "live"
	h := createTestHandler(t, deps)

	rec := doRequest(h, http.MethodPost, `{"clinic_id": "42"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeAlreadyProvisioned), resp.Error.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			deps := createTestDeps()
			h := createTestHandler(t, deps)

			rec := doRequest(h, method, "")

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
			assert.Equal(t, 0, deps.store.getCalls)
		})
	}
}

func upstreamErr() error {
	return fmt.Errorf("upstream failed")
}
