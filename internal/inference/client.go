package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const maxErrorBody = 512

// Client is a resty-backed Model.
type Client struct {
	http    *resty.Client
	baseURL string
}

var _ Model = (*Client)(nil)

// NewClient returns a client for the service at baseURL. timeout bounds
// every call; a zero timeout leaves calls bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(timeout),
		baseURL: baseURL,
	}
}

// BaseURL returns the service root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Generate calls POST /generate. A nil history is sent as an empty list.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Reply, error) {
	if req.History == nil {
		req.History = []Message{}
	}
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/generate")
	if err != nil {
		return nil, observe(endpointGenerate, start, classify(err))
	}
	if resp.IsError() {
		return nil, observe(endpointGenerate, start, statusError(resp))
	}

	var out Reply
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, observe(endpointGenerate, start, &UpstreamError{Kind: KindMalformed, Err: err})
	}
	observe(endpointGenerate, start, nil)
	return &out, nil
}

// Health calls GET /health and returns the decoded JSON object.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return nil, observe(endpointHealth, start, classify(err))
	}
	if resp.IsError() {
		return nil, observe(endpointHealth, start, statusError(resp))
	}
	out := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, observe(endpointHealth, start, &UpstreamError{Kind: KindMalformed, Err: err})
	}
	observe(endpointHealth, start, nil)
	return out, nil
}

func classify(err error) *UpstreamError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &UpstreamError{Kind: KindTimeout, Err: err}
	}
	return &UpstreamError{Kind: KindTransport, Err: err}
}

func statusError(resp *resty.Response) *UpstreamError {
	body := resp.String()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &UpstreamError{Kind: KindStatus, StatusCode: resp.StatusCode(), Body: body}
}
