// Package audit records provisioning step transitions into Elasticsearch for
// remediation and debugging. Recording is best-effort: a failed write is
// logged and never aborts the workflow.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"clinic-provisioner/internal/common/database"
	"clinic-provisioner/internal/common/logger"
)

// Event is one step transition of a provisioning run.
type Event struct {
	ClinicID  string    `json:"clinicId"`
	RequestID string    `json:"requestId"`
	Step      string    `json:"step"`
	Outcome   string    `json:"outcome"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Details   string    `json:"details,omitempty"`
	Duration  int64     `json:"durationMs"`
	Timestamp time.Time `json:"@timestamp"`
}

// Recorder persists provisioning events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// ESRecorder indexes events into Elasticsearch.
type ESRecorder struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
}

func NewESRecorder(es *database.ElasticsearchClient, index string, log logger.Logger) *ESRecorder {
	return &ESRecorder{
		es:     es,
		index:  index,
		logger: log,
	}
}

func (r *ESRecorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	doc, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("failed to marshal audit event", map[string]interface{}{
			"clinicId": event.ClinicID,
			"step":     event.Step,
			"error":    err.Error(),
		})
		return
	}

	res, err := r.es.Client.Index(
		r.index,
		bytes.NewReader(doc),
		r.es.Client.Index.WithContext(ctx),
	)
	if err != nil {
		r.logger.Warn("failed to index audit event", map[string]interface{}{
			"clinicId": event.ClinicID,
			"step":     event.Step,
			"error":    err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.logger.Warn("audit event rejected by elasticsearch", map[string]interface{}{
			"clinicId": event.ClinicID,
			"step":     event.Step,
			"status":   res.Status(),
		})
	}
}

// NoopRecorder is used when the audit trail is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) {}
