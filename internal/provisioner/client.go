package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/phoenix-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

const (
	internalSecretHeader       = "X-Internal-Secret"
	modulesPath                = "internal/projects/create-with-modules"
	workflowPath               = "internal/projects/create-with-workflow"
	defaultTimeout             = 30 * time.Second
	responseBodyReadLimit int64 = 2048
)

var errBaseURLRequired = errors.New("project service url is required")

// Client calls the internal project service that turns a paid invoice into a
// project with briefs and workflow steps.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg config.ProvisionerConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		secret:     cfg.InternalSecret,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Module is one purchased plan to be turned into its own project module and brief.
type Module struct {
	PlanID     string `json:"planId"`
	PlanName   string `json:"planName"`
	PriceCents int64  `json:"priceCents"`
	Type       string `json:"type"`
}

// ModulesRequest creates a project holding one module per purchased plan.
type ModulesRequest struct {
	ClientID    string            `json:"clientId"`
	InvoiceID   string            `json:"invoiceId"`
	TotalBudget decimal.Decimal   `json:"-"`
	Modules     []Module          `json:"modules"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WorkflowRequest creates a project from a single plan.
type WorkflowRequest struct {
	ClientID  string            `json:"clientId"`
	InvoiceID string            `json:"invoiceId"`
	Budget    decimal.Decimal   `json:"-"`
	PlanID    string            `json:"planId"`
	PlanName  string            `json:"planName"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is the normalized downstream response.
type Result struct {
	ProjectID string
	Modules   int
	Briefs    int
	Steps     int
}

func (c *Client) CreateWithModules(ctx context.Context, req ModulesRequest) (*Result, error) {
	if len(req.Modules) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one module is required")
	}
	body := struct {
		ModulesRequest
		TotalBudget float64 `json:"totalBudget"`
	}{ModulesRequest: req, TotalBudget: req.TotalBudget.InexactFloat64()}
	return c.post(ctx, modulesPath, body)
}

func (c *Client) CreateWithWorkflow(ctx context.Context, req WorkflowRequest) (*Result, error) {
	if strings.TrimSpace(req.PlanID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	body := struct {
		WorkflowRequest
		Budget float64 `json:"budget"`
	}{WorkflowRequest: req, Budget: req.Budget.InexactFloat64()}
	return c.post(ctx, workflowPath, body)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Data    struct {
		Project struct {
			ID json.RawMessage `json:"id"`
		} `json:"project"`
		Modules []json.RawMessage `json:"modules"`
		Brief   json.RawMessage   `json:"brief"`
		Briefs  []json.RawMessage `json:"briefs"`
		Steps   []json.RawMessage `json:"steps"`
	} `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Result, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "project service client not configured")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal project request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build project request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		httpReq.Header.Set(internalSecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute project request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "project request failed")
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode project response")
	}
	if !apiResp.Success {
		reason := apiResp.Error
		if reason == "" {
			reason = apiResp.Message
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "project service rejected request: "+reason)
	}

	projectID := rawID(apiResp.Data.Project.ID)
	if projectID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "project service returned no project id")
	}

	briefs := len(apiResp.Data.Briefs)
	if briefs == 0 && len(apiResp.Data.Brief) > 0 && string(apiResp.Data.Brief) != "null" {
		briefs = 1
	}
	return &Result{
		ProjectID: projectID,
		Modules:   len(apiResp.Data.Modules),
		Briefs:    briefs,
		Steps:     len(apiResp.Data.Steps),
	}, nil
}

// rawID accepts either a JSON string or number id.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
