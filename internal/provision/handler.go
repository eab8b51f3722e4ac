package provision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"clinic-provisioner/internal/common/errors"
	"clinic-provisioner/internal/common/logger"
	"clinic-provisioner/internal/common/metrics"
	"clinic-provisioner/internal/common/observability"
)

// Handler exposes the provisioning workflow over HTTP.
type Handler struct {
	service       *Service
	logger        logger.Logger
	errorHandler  *errors.ErrorHandler
	observability *observability.Observability
	timeout       time.Duration
}

type HandlerOptions struct {
	Service       *Service
	Logger        logger.Logger
	Observability *observability.Observability
	Timeout       time.Duration
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		service:       opts.Service,
		logger:        opts.Logger,
		errorHandler:  errors.NewErrorHandler(opts.Logger),
		observability: opts.Observability,
		timeout:       opts.Timeout,
	}
}

// ServeHTTP handles POST /provision. Success means every workflow step
// completed, including the launch call being accepted; the 202 reflects that
// the agent instance boots asynchronously after that.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	start := time.Now()

	metrics.ProvisionInFlight.Inc()
	defer metrics.ProvisionInFlight.Dec()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.finish(w, r, requestID, start, nil, errors.NewInvalidRequestError("failed to read request body"))
		return
	}

	input, err := ParseRequest(body)
	if err != nil {
		metrics.ProvisionStepFailures.WithLabelValues(StepValidating, string(errors.ErrCodeInvalidRequest)).Inc()
		h.finish(w, r, requestID, start, nil, err)
		return
	}
	input.RequestID = requestID

	h.logger.Info("provisioning request accepted", map[string]interface{}{
		"clinicId":  input.ClinicID,
		"requestId": requestID,
		"force":     input.Force,
	})

	// The workflow context is detached from the request context: once a
	// step's call is issued it runs to completion even if the caller hangs
	// up, so the store is never left mid-write by a client disconnect.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	output, err := h.service.Execute(ctx, input)
	h.finish(w, r, requestID, start, output, err)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, requestID string, start time.Time, output *Output, err error) {
	duration := time.Since(start)

	if err != nil {
		outcome := "error"
		if stdErr, ok := err.(*errors.StandardError); ok && errors.IsClientError(stdErr.Code) {
			outcome = "rejected"
		}
		metrics.ProvisionRequestsTotal.WithLabelValues(outcome).Inc()
		metrics.ProvisionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
		if h.observability != nil {
			h.observability.RecordProvisionProcessed(r.Context(), outcome)
			h.observability.RecordProvisionDuration(r.Context(), duration, outcome)
		}
		h.errorHandler.WriteError(w, requestID, err)
		return
	}

	metrics.ProvisionRequestsTotal.WithLabelValues("success").Inc()
	metrics.ProvisionDuration.WithLabelValues("success").Observe(duration.Seconds())
	if h.observability != nil {
		h.observability.RecordProvisionProcessed(r.Context(), "success")
		h.observability.RecordProvisionDuration(r.Context(), duration, "success")
	}

	h.logger.Info("provisioning request completed", map[string]interface{}{
		"clinicId":    output.ClinicID,
		"requestId":   requestID,
		"machineName": output.MachineName,
		"durationMs":  duration.Milliseconds(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(ProvisionResponse{OK: true})
}
