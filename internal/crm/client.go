// Package crm integrates with the external CRM that is the system of record
// for leads. The adapter pushes local assignment decisions (owner,
// department, access) and keeps the legacy rotation construct in sync with
// queue membership.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"golang.org/x/time/rate"
)

// Client is a thin HTTP wrapper over the CRM REST API, keyed by an API token
// and group id. Every call is throttled through a shared rate limiter so a
// burst of leads cannot trip the CRM's quota.
type Client struct {
	baseURL string
	token   string
	groupID string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a CRM client, or nil when the integration is not
// configured. Callers treat a nil client as "CRM disabled".
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	rps := cfg.GetCRMRequestsPerSecond()
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		token:   cfg.GetCRMAPIToken(),
		groupID: cfg.GetCRMGroupID(),
		http:    &http.Client{Timeout: cfg.GetCRMTimeout()},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     log,
	}
}

// Lead is the raw lead document as the CRM returns it.
type Lead map[string]interface{}

// OwnerID extracts the lead's current owner, tolerating numeric and string
// encodings.
func (l Lead) OwnerID() string {
	return stringField(l, "owner_id")
}

// DepartmentID extracts the lead's current department.
func (l Lead) DepartmentID() string {
	return stringField(l, "department_id")
}

// Access extracts the lead's access list.
func (l Lead) Access() []string {
	raw, ok := l["access"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s := asString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// User is one CRM user record.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LeadUpdate is the assignment payload pushed to the CRM.
type LeadUpdate struct {
	OwnerID      string   `json:"owner_id"`
	DepartmentID string   `json:"department_id"`
	Access       []string `json:"access"`
}

// GetLead fetches the lead's current state.
func (c *Client) GetLead(ctx context.Context, leadID string) (Lead, error) {
	var lead Lead
	path := fmt.Sprintf("/api/groups/%s/leads/%s", c.groupID, leadID)
	if err := c.do(ctx, http.MethodGet, path, nil, &lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// UpdateLead pushes the assignment fields and returns the updated document.
func (c *Client) UpdateLead(ctx context.Context, leadID string, update LeadUpdate) (Lead, error) {
	var lead Lead
	path := fmt.Sprintf("/api/groups/%s/leads/%s", c.groupID, leadID)
	if err := c.do(ctx, http.MethodPut, path, update, &lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// ListUsers fetches the group's user roster.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	path := fmt.Sprintf("/api/groups/%s/users", c.groupID)
	if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// PutRotation replaces the legacy rotation construct for a department with
// the given external user ids.
func (c *Client) PutRotation(ctx context.Context, departmentID string, userIDs []string) error {
	path := fmt.Sprintf("/api/groups/%s/rotations/%s", c.groupID, departmentID)
	payload := map[string][]string{"user_ids": userIDs}
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// DeleteRotation tears down the rotation construct for a department.
func (c *Client) DeleteRotation(ctx context.Context, departmentID string) error {
	path := fmt.Sprintf("/api/groups/%s/rotations/%s", c.groupID, departmentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal crm payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Error("crm request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode crm response: %w", err)
	}

	return nil
}

func stringField(l Lead, key string) string {
	return asString(l[key])
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", s), ".")
	default:
		return ""
	}
}
