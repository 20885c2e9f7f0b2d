package oanda

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

	"github.com/rustyeddy/fract/broker"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"
)

// BaseURL maps an environment name to its REST endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return PracticeURL, nil
	case "live", "trade":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// Client talks to the OANDA v20 REST API. It implements broker.Client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ broker.Client = (*Client)(nil)

// NewClient creates a new OANDA API client
func NewClient(token string, practice bool) *Client {
	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}
	return NewClientWithURL(baseURL, token, nil)
}

// NewClientWithURL creates a client for an explicit base URL. A nil
// httpClient gets a 30s timeout client.
func NewClientWithURL(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// do sends a request and decodes a 2xx JSON body into out. Failures are
// always *broker.Error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) ([]byte, error) {
	if c.token == "" {
		return nil, &broker.Error{Kind: broker.Unauthorized, Op: op, Msg: "missing token"}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Err: err}
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, &broker.Error{Kind: broker.InvalidRequest, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &broker.Error{Kind: broker.NetworkError, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &broker.Error{Kind: broker.NetworkError, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, statusError(op, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, &broker.Error{Kind: broker.NetworkError, Op: op, Status: resp.StatusCode, Msg: "decode response", Err: err}
		}
	}
	return raw, nil
}

func statusError(op string, status int, raw []byte) error {
	var ae apiError
	_ = json.Unmarshal(raw, &ae)
	msg := ae.ErrorMessage
	if msg == "" {
		msg = strings.TrimSpace(trimForErr(string(raw)))
	}

	kind := broker.InvalidRequest
	switch {
	case status == http.StatusTooManyRequests:
		kind = broker.RateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = broker.Unauthorized
	case status >= 500:
		kind = broker.NetworkError
	}
	return &broker.Error{Kind: kind, Op: op, Status: status, Msg: msg}
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
