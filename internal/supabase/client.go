// Package supabase implements the profile store client over the Supabase
// PostgREST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic-provisioner/internal/common/errors"
	"clinic-provisioner/internal/models"
)

type Client struct {
	baseURL    string
	serviceKey string
	table      string
	httpClient *http.Client
}

func NewClient(baseURL, serviceKey, table string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		table:      table,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// rowID tolerates both id column types seen across deployments, numeric and
// text, and canonicalizes to a string.
type rowID string

func (r *rowID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", string(data))
	}
	*r = rowID(n.String())
	return nil
}

type clinicRow struct {
	ID         rowID       `json:"id"`
	Name       string      `json:"name"`
	Services   []string    `json:"services"`
	Insurances []string    `json:"insurances"`
	Policies   string      `json:"policies"`
	Vector     []float32   `json:"vector"`
	Status     string      `json:"status"`
}

// GetClinic performs exactly one read for the matching row. Zero rows map to
// TENANT_NOT_FOUND, transport failures and non-2xx responses to
// STORE_UNAVAILABLE. No internal retries.
func (c *Client) GetClinic(ctx context.Context, clinicID string) (*models.ClinicProfile, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s&select=*",
		c.baseURL, url.PathEscape(c.table), url.QueryEscape(clinicID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("get", err)
	}
	c.setHeaders(req)
	// PostgREST returns a single object (or 406) instead of an array.
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("get", err)
	}

	// PostgREST answers 406 Not Acceptable when the object representation
	// matches zero rows.
	if resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewTenantNotFoundError(clinicID)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewStoreUnavailableError("get",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var row clinicRow
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, errors.NewStoreUnavailableError("get",
			fmt.Errorf("decode response: %w", err))
	}

	return &models.ClinicProfile{
		ID:         string(row.ID),
		Name:       row.Name,
		Services:   row.Services,
		Insurances: row.Insurances,
		Policies:   row.Policies,
		Vector:     row.Vector,
		Status:     row.Status,
	}, nil
}

// UpdateClinic performs one partial update setting exactly the given fields.
// It does not verify the row still exists; the caller confirmed existence
// moments earlier.
func (c *Client) UpdateClinic(ctx context.Context, clinicID string, fields map[string]interface{}) error {
	reqURL := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s",
		c.baseURL, url.PathEscape(c.table), url.QueryEscape(clinicID))

	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.NewStoreUnavailableError("update", fmt.Errorf("marshal fields: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewBuffer(payload))
	if err != nil {
		return errors.NewStoreUnavailableError("update", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewStoreUnavailableError("update", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.NewStoreUnavailableError("update",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}
