package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Transport is the HTTP plumbing shared by the JSON-over-HTTP backends.
type Transport struct {
	Backend string
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

func NewTransport(backend, baseURL, apiKey string, hc *http.Client) (*Transport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New(backend + ": base_url required")
	}
	if hc == nil {
		hc = DefaultHTTPClient()
	}
	return &Transport{
		Backend:    backend,
		BaseURL:    baseURL,
		APIKey:     strings.TrimSpace(apiKey),
		HTTPClient: hc,
	}, nil
}

// DefaultHTTPClient carries no overall timeout; every call is bounded by its
// context instead so streams can outlive the generate budget.
func DefaultHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

func (t *Transport) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}
}

func (t *Transport) newRequest(ctx context.Context, method, path string, body any, accept string) (*http.Request, error) {
	var rdr io.Reader
	contentType := ""
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		rdr = &buf
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	t.setHeaders(req, contentType, accept)
	return req, nil
}

// DoJSON sends body as JSON and decodes a 2xx answer into out. Failures are
// returned unwrapped; callers tag them with Wrap.
func (t *Transport) DoJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := t.newRequest(ctx2, method, path, body, "application/json")
	if err != nil {
		return err
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readHTTPError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Probe issues a GET and reports whether it answered 200.
func (t *Transport) Probe(ctx context.Context, timeout time.Duration, path string) bool {
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := t.newRequest(ctx2, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return false
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode == http.StatusOK
}

// OpenStream POSTs body and returns a line stream over the response. timeout
// bounds the whole stream when positive.
func (t *Transport) OpenStream(ctx context.Context, timeout time.Duration, path string, body any, accept string, decode LineDecoder) (*Stream, error) {
	var (
		ctx2   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx2, cancel = context.WithCancel(ctx)
	}

	req, err := t.newRequest(ctx2, http.MethodPost, path, body, accept)
	if err != nil {
		cancel()
		return nil, wrap(t.Backend, "stream", err)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, wrap(t.Backend, "stream", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := readHTTPError(resp)
		resp.Body.Close()
		cancel()
		return nil, wrap(t.Backend, "stream", herr)
	}
	return NewLineStream(t.Backend, resp.Body, cancel, decode), nil
}

func readHTTPError(resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
