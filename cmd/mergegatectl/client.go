package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/engine/report"
)

type evaluateRequest struct {
	Files []changeEntry `json:"files"`
}

// client is a minimal HTTP client for the gateway API.
type client struct {
	BaseURL    string
	ActorID    string
	ActorRoles string
	http       *http.Client
}

func newClient(gateway, actor, roles string) *client {
	return &client{
		BaseURL:    strings.TrimRight(gateway, "/"),
		ActorID:    actor,
		ActorRoles: roles,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

func splitRoles(roles string) []string {
	var out []string
	for _, part := range strings.Split(roles, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	if c.ActorRoles != "" {
		req.Header.Set("X-Actor-Roles", c.ActorRoles)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) Evaluate(ctx context.Context, changesetID string, req *evaluateRequest) (*report.Report, error) {
	// Inline any referenced content files before shipping the snapshot.
	for i, f := range req.Files {
		if f.Content == "" && f.ContentFile != "" {
			cf := changesFile{Files: []changeEntry{f}}
			files, err := cf.changedFiles()
			if err != nil {
				return nil, err
			}
			req.Files[i].Content = string(files[0].Content)
			req.Files[i].ContentFile = ""
		}
	}
	var rep report.Report
	if err := c.do(ctx, http.MethodPost, "/api/v1/changesets/"+changesetID+"/evaluate", req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *client) RecordApproval(ctx context.Context, changesetID, role string) (*decide.Approval, error) {
	var ap decide.Approval
	body := map[string]string{"role": role}
	if err := c.do(ctx, http.MethodPost, "/api/v1/changesets/"+changesetID+"/approvals", body, &ap); err != nil {
		return nil, err
	}
	return &ap, nil
}

func (c *client) ListApprovals(ctx context.Context, changesetID string) ([]decide.Approval, error) {
	var approvals []decide.Approval
	if err := c.do(ctx, http.MethodGet, "/api/v1/changesets/"+changesetID+"/approvals", nil, &approvals); err != nil {
		return nil, err
	}
	return approvals, nil
}

func (c *client) GetDecision(ctx context.Context, changesetID string) (*report.AuditPayload, error) {
	var payload report.AuditPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/changesets/"+changesetID+"/decision", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *client) Health(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}
