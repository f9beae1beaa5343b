// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

/*
http_client.go - Hosting Gateway REST Client

Wire contract:

	POST   /models                  multipart: "metadata" (JSON) + "artifact" (tar.gz)
	POST   /deployments             {model_id, display_name, shape, ocpus, memory_gb}
	GET    /deployments/{id}        -> {deployment_id, model_id, endpoint, lifecycle_state}
	PUT    /deployments/{id}/model  {model_id}  (200 or 202, applied asynchronously)
	DELETE /deployments/{id}

Every request carries "Authorization: Bearer <token>" and waits on a token
bucket so bursts of polling never exceed the configured request rate.
*/

package hosting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
)

// Deployment lifecycle states reported by the gateway
const (
	StateCreating = "CREATING"
	StateActive   = "ACTIVE"
	StateFailed   = "FAILED"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 4096

// HTTPConfig configures an HTTPClient
type HTTPConfig struct {
	BaseURL string
	Token   string

	// Per-request timeout
	Timeout time.Duration

	// Requests per second and burst allowed against the gateway
	RateLimit float64
	Burst     int

	// CreateDeployment polls until the deployment is ACTIVE or this elapses
	ProvisionTimeout time.Duration
	PollInterval     time.Duration
}

// DefaultHTTPConfig returns defaults for everything but the URL and token
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:          60 * time.Second,
		RateLimit:        5,
		Burst:            5,
		ProvisionTimeout: 30 * time.Minute,
		PollInterval:     15 * time.Second,
	}
}

// HTTPClient implements Client against a hosting gateway
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        HTTPConfig
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new hosting gateway client
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	defaults := DefaultHTTPConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = defaults.ProvisionTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid hosting base URL %q", cfg.BaseURL)
	}

	return &HTTPClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cfg:        cfg,
	}, nil
}

type modelResponse struct {
	ModelID string `json:"model_id"`
}

type createDeploymentRequest struct {
	ModelID     string `json:"model_id"`
	DisplayName string `json:"display_name"`
	ComputeConfig
}

type updateModelRequest struct {
	ModelID string `json:"model_id"`
}

// SaveArtifact uploads the artifact directory as a tar.gz with its metadata
func (c *HTTPClient) SaveArtifact(ctx context.Context, req ArtifactRequest) (modelID string, err error) {
	start := time.Now()
	defer func() { metrics.RecordHostingRequest("save_artifact", time.Since(start), err) }()

	meta, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode artifact metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeArtifactForm(ctx, mw, meta, req.ArtifactDir))
	}()

	defer pr.Close() //nolint:errcheck // unblocks the writer goroutine if the request ends early

	var resp modelResponse
	if err := c.do(ctx, "save_artifact", http.MethodPost, "/models", mw.FormDataContentType(), pr, &resp); err != nil {
		return "", err
	}
	if resp.ModelID == "" {
		return "", fmt.Errorf("hosting save_artifact returned no model id")
	}
	return resp.ModelID, nil
}

func writeArtifactForm(ctx context.Context, mw *multipart.Writer, meta []byte, dir string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="metadata"`)
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(meta); err != nil {
		return err
	}

	file, err := mw.CreateFormFile("artifact", "artifact.tar.gz")
	if err != nil {
		return err
	}
	if err := writeArtifactArchive(ctx, file, dir); err != nil {
		return err
	}
	return mw.Close()
}

// CreateDeployment creates a deployment and waits until it is ACTIVE
func (c *HTTPClient) CreateDeployment(ctx context.Context, modelID, displayName string, compute ComputeConfig) (dep *Deployment, err error) {
	start := time.Now()
	defer func() { metrics.RecordHostingRequest("create_deployment", time.Since(start), err) }()

	body, err := json.Marshal(createDeploymentRequest{ModelID: modelID, DisplayName: displayName, ComputeConfig: compute})
	if err != nil {
		return nil, err
	}

	var created Deployment
	if err := c.do(ctx, "create_deployment", http.MethodPost, "/deployments", "application/json", bytes.NewReader(body), &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("hosting create_deployment returned no deployment id")
	}

	return c.waitActive(ctx, &created)
}

// waitActive polls a new deployment until it leaves CREATING. On failure the
// last known deployment is returned with the error.
func (c *HTTPClient) waitActive(ctx context.Context, dep *Deployment) (*Deployment, error) {
	deadline := time.Now().Add(c.cfg.ProvisionTimeout)
	for {
		switch dep.LifecycleState {
		case "", StateActive:
			return dep, nil
		case StateFailed:
			return dep, fmt.Errorf("deployment %s failed to provision", dep.ID)
		}

		if time.Now().After(deadline) {
			return dep, fmt.Errorf("deployment %s not active after %s (state %s)", dep.ID, c.cfg.ProvisionTimeout, dep.LifecycleState)
		}

		logging.Ctx(ctx).Debug().
			Str("deployment_id", dep.ID).
			Str("state", dep.LifecycleState).
			Msg("Waiting for deployment to become active")

		select {
		case <-ctx.Done():
			return dep, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		next, err := c.getDeployment(ctx, dep.ID)
		if err != nil {
			return dep, err
		}
		dep = next
	}
}

// GetDeploymentModel returns the model id currently served by the deployment
func (c *HTTPClient) GetDeploymentModel(ctx context.Context, deploymentID string) (modelID string, err error) {
	start := time.Now()
	defer func() { metrics.RecordHostingRequest("get_deployment_model", time.Since(start), err) }()

	dep, err := c.getDeployment(ctx, deploymentID)
	if err != nil {
		return "", err
	}
	return dep.ModelID, nil
}

func (c *HTTPClient) getDeployment(ctx context.Context, deploymentID string) (*Deployment, error) {
	var dep Deployment
	if err := c.do(ctx, "get_deployment", http.MethodGet, "/deployments/"+url.PathEscape(deploymentID), "", nil, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// UpdateDeploymentModel requests the deployment to serve modelID
func (c *HTTPClient) UpdateDeploymentModel(ctx context.Context, deploymentID, modelID string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordHostingRequest("update_deployment_model", time.Since(start), err) }()

	body, err := json.Marshal(updateModelRequest{ModelID: modelID})
	if err != nil {
		return err
	}
	return c.do(ctx, "update_deployment_model", http.MethodPut,
		"/deployments/"+url.PathEscape(deploymentID)+"/model", "application/json", bytes.NewReader(body), nil)
}

// DeleteDeployment deletes the deployment
func (c *HTTPClient) DeleteDeployment(ctx context.Context, deploymentID string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordHostingRequest("delete_deployment", time.Since(start), err) }()

	return c.do(ctx, "delete_deployment", http.MethodDelete, "/deployments/"+url.PathEscape(deploymentID), "", nil, nil)
}

// do performs one rate-limited request and decodes a JSON response into out
func (c *HTTPClient) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("hosting %s: rate limiter: %w", op, err)
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hosting %s request failed: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // body is diagnostic only
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode == http.StatusNotFound {
			if op == "save_artifact" || op == "create_deployment" {
				return fmt.Errorf("%w: %w", ErrModelNotFound, apiErr)
			}
			return fmt.Errorf("%w: %w", ErrDeploymentNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode hosting %s response: %w", op, err)
	}
	return nil
}
