package provision

// Workflow steps, in execution order. A run is terminal on the first step
// that fails; remaining steps are never attempted.
const (
	StepValidating = "validating"
	StepFetching   = "fetching"
	StepGuarding   = "guarding"
	StepEmbedding  = "embedding"
	StepCommitting = "committing"
	StepLaunching  = "launching"
	StepDone       = "done"
)

// Input is the parsed provisioning request. ClinicID is canonicalized to a
// string at the boundary regardless of how the caller encoded it.
type Input struct {
	ClinicID  string `json:"clinicId"`
	Force     bool   `json:"force,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Output is the workflow result after the launcher accepted the creation
// request. The workflow does not wait for the instance to reach a running
// state.
type Output struct {
	ClinicID    string `json:"clinicId"`
	MachineID   string `json:"machineId,omitempty"`
	MachineName string `json:"machineName"`
}

// ProvisionResponse is the success body returned to the caller.
type ProvisionResponse struct {
	OK bool `json:"ok"`
}
