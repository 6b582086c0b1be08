// Package dreamhost talks to the DreamHost web panel API.
//
// Every call is a GET with URL-encoded parameters and a JSON envelope whose
// "result" field is "success" or an error string. Request returns the decoded
// envelope whatever its result; callers decide what a rejection means.
package dreamhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/metrics"
	"github.com/google/uuid"
)

const (
	DefaultURL     = "https://api.dreamhost.com/"
	DefaultTimeout = 30 * time.Second

	ResultSuccess = "success"
)

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportError reports that no usable response was obtained: the request
// failed on the network or the body could not be decoded.
type TransportError struct {
	Cmd string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dreamhost %s: %v", e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Response struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func (r *Response) Success() bool { return r.Result == ResultSuccess }

// Detail returns the provider's explanation for a rejected request. DreamHost
// puts it either in "reason" or as a bare string in "data".
func (r *Response) Detail() string {
	if r.Reason != "" {
		return r.Reason
	}
	var s string
	if err := json.Unmarshal(r.Data, &s); err == nil {
		return s
	}
	return ""
}

// Records decodes the data array of a dns-list_records response.
func (r *Response) Records() ([]Record, error) {
	var records []Record
	if len(r.Data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(r.Data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

type Record struct {
	AccountID string `json:"account_id,omitempty"`
	Zone      string `json:"zone,omitempty"`
	Record    string `json:"record"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Comment   string `json:"comment,omitempty"`
	Editable  Flag   `json:"editable"`
}

// Flag decodes DreamHost's "0"/"1" booleans, accepting plain JSON numbers
// and booleans too.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.Trim(b, `"`)) {
	case "1", "true":
		*f = true
	case "0", "false", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}

type Client struct {
	baseURL string
	apiKey  string
	http    Httper
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(h Httper) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds each request when the default HTTP client is used.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.http.(*http.Client); ok && d > 0 {
			hc.Timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("dreamhost api key required")
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request performs cmd once. Every call carries a fresh unique_id so the API
// drops replays of the same submission.
func (c *Client) Request(ctx context.Context, cmd Command) (*Response, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	cmd.encode(params)
	params.Set("key", c.apiKey)
	params.Set("cmd", cmd.Cmd())
	params.Set("format", "json")
	params.Set("unique_id", uuid.NewString())

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(cmd, false)
		return nil, &TransportError{Cmd: cmd.Cmd(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(cmd, false)
		return nil, &TransportError{Cmd: cmd.Cmd(), Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.observe(cmd, false)
		return nil, &TransportError{Cmd: cmd.Cmd(), Err: fmt.Errorf("dreamhost api request, status=%d", resp.StatusCode)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		c.observe(cmd, false)
		return nil, &TransportError{Cmd: cmd.Cmd(), Err: fmt.Errorf("parse dreamhost response, err=%w", err)}
	}

	c.observe(cmd, out.Success())
	if out.Success() {
		slog.Debug("Successful request", "cmd", cmd.Cmd(), "duration", time.Since(start))
	} else {
		slog.Debug("DreamHost did not complete the request", "cmd", cmd.Cmd(), "result", out.Result, "detail", out.Detail())
	}
	return &out, nil
}

func (c *Client) observe(cmd Command, success bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncDNSRequest(operation(cmd), success)
}

func operation(cmd Command) string {
	switch cmd.Cmd() {
	case CmdAddRecord:
		return "create"
	case CmdRemoveRecord:
		return "delete"
	default:
		return "read"
	}
}
