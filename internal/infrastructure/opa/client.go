// Package opa asks an Open Policy Agent compatible endpoint for
// authorization decisions.
package opa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultURL        = "http://localhost:8181"
	DefaultPolicyPath = "/v1/data/users/allow"
	DefaultTimeout    = 3 * time.Second
	healthTimeout     = 2 * time.Second
	maxResponseBytes  = 1 << 20
)

// Decision is the raw outcome of a policy query, before the fail mode is applied.
type Decision int

const (
	Indeterminate Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "indeterminate"
	}
}

// Subject is the projection of a user sent to the policy engine.
type Subject struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type PolicyRequest struct {
	Subject  Subject
	Action   string
	Resource string
	// Context keys are merged into the input next to user/action/resource.
	Context map[string]any
}

// DecisionObserver receives every resolved check. Implemented by the metrics package.
type DecisionObserver interface {
	ObservePolicyDecision(action string, d Decision, allowed bool)
}

type Config struct {
	URL        string
	PolicyPath string
	Timeout    time.Duration
	// FailOpen allows requests when the engine cannot be reached or answers
	// with something other than a decision.
	FailOpen bool
}

type Client struct {
	cfg      Config
	http     *http.Client
	log      logrus.FieldLogger
	observer DecisionObserver
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

func WithObserver(o DecisionObserver) Option { return func(cl *Client) { cl.observer = o } }

func NewClient(cfg Config, log logrus.FieldLogger, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = DefaultPolicyPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{cfg: cfg, http: &http.Client{}, log: log}
	for _, o := range opts {
		o(c)
	}
	log.WithFields(logrus.Fields{
		"opa_url":   cfg.URL,
		"fail_mode": c.failMode(),
	}).Info("policy client configured")
	return c
}

func (c *Client) FailOpen() bool { return c.cfg.FailOpen }

func (c *Client) failMode() string {
	if c.cfg.FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}

// CheckPolicy resolves the decision to a boolean. Indeterminate results are
// converted according to FailOpen and never returned as errors.
func (c *Client) CheckPolicy(ctx context.Context, req PolicyRequest) bool {
	d, err := c.Evaluate(ctx, req)
	allowed := d == Allowed
	if d == Indeterminate {
		allowed = c.cfg.FailOpen
		entry := c.log.WithError(err).WithFields(logrus.Fields{
			"action":    req.Action,
			"resource":  req.Resource,
			"fail_mode": c.failMode(),
		})
		if allowed {
			entry.Warn("policy check failed, allowing request (fail-open)")
		} else {
			entry.Error("policy check failed, denying request (fail-closed)")
		}
	}
	if c.observer != nil {
		c.observer.ObservePolicyDecision(req.Action, d, allowed)
	}
	return allowed
}

// Evaluate queries the engine. The error is non-nil only with Indeterminate.
func (c *Client) Evaluate(ctx context.Context, req PolicyRequest) (Decision, error) {
	body, err := json.Marshal(map[string]any{"input": buildInput(req)})
	if err != nil {
		return Indeterminate, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+c.cfg.PolicyPath, bytes.NewReader(body))
	if err != nil {
		return Indeterminate, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Indeterminate, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Indeterminate, fmt.Errorf("policy engine responded with status %d", resp.StatusCode)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return Indeterminate, fmt.Errorf("decode policy response: %w", err)
	}

	d := parseResult(out.Result)
	c.log.WithFields(logrus.Fields{
		"action":   req.Action,
		"resource": req.Resource,
		"user_id":  req.Subject.ID,
		"decision": d.String(),
	}).Debug("policy check")
	return d, nil
}

// parseResult accepts `true|false` or `{"allow": true|false}`. Anything else,
// including an undefined result, is a denial.
func parseResult(raw json.RawMessage) Decision {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return Allowed
		}
		return Denied
	}
	var obj struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Allow {
		return Allowed
	}
	return Denied
}

func buildInput(req PolicyRequest) map[string]any {
	in := make(map[string]any, len(req.Context)+3)
	for k, v := range req.Context {
		in[k] = v
	}
	roles := req.Subject.Roles
	if roles == nil {
		roles = []string{}
	}
	in["user"] = Subject{ID: req.Subject.ID, Email: req.Subject.Email, Roles: roles}
	in["action"] = req.Action
	in["resource"] = req.Resource
	return in
}

// Health is the result of probing the engine's /health endpoint.
type Health struct {
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h Health) OK() bool { return h.Status == "connected" }

func (c *Client) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return Health{Status: "error", Message: err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{Status: "error", Message: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Health{Status: "error", Message: fmt.Sprintf("policy engine responded with %d", resp.StatusCode)}
	}
	return Health{Status: "connected", URL: c.cfg.URL}
}
