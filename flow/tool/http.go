package tool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// HTTPTool is a generic outbound HTTP request tool, carried near-as-is
// (grounded on graph/tool/http.go) as a leaf utility with no domain-specific
// behavior to adapt.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTPTool using http.DefaultClient's timeout
// conventions via a fresh client.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{client: &http.Client{}}
}

func (h *HTTPTool) Name() string { return "http_request" }

func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rawURL, ok := input["url"].(string)
	if !ok || rawURL == "" {
		return nil, errors.New("http_request: missing required field \"url\"")
	}
	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, errors.New("http_request: unsupported method " + method)
	}

	var body io.Reader
	if b, ok := input["body"].(string); ok && b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
