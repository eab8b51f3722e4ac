package models

// Clinic status values as stored in the profile store.
const (
	StatusDraft              = "draft"
	StatusLive               = "live"
	StatusProvisioningFailed = "provisioning_failed"
)

// EmbeddingDimensions is the expected vector length for the configured
// embedding model.
const EmbeddingDimensions = 1536

// ClinicProfile is the tenant profile row owned by the profile store. The
// provisioner only reads it and partially updates vector and status.
// Invariant: once Status is live, Vector is non-nil with the expected
// dimensionality.
type ClinicProfile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Services   []string  `json:"services"`
	Insurances []string  `json:"insurances"`
	Policies   string    `json:"policies"`
	Vector     []float32 `json:"vector,omitempty"`
	Status     string    `json:"status"`
}

// IsLive reports whether the clinic already has a provisioned agent
// according to the store.
func (c *ClinicProfile) IsLive() bool {
	return c.Status == StatusLive
}
