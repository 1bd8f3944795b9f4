// Package calcclient is the canvas side of POST /calculate.
package calcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"math-canvas/api/internal/calc/types"
)

type Client struct {
	BaseURL string
	LLMName string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 0},
	}
}

// WithHTTPClient overrides the internal HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpc = h
	}
	return c
}

// WithLLM: копия клиента с другим llm_name (gemini | gpt).
func (c *Client) WithLLM(name string) *Client {
	cp := *c
	cp.LLMName = name
	return &cp
}

// Error: не-2xx ответ бэкенда.
type Error struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("calculate %d: %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("calculate %d: %s", e.StatusCode, e.Message)
}

// Calculate отправляет снимок канваса и словарь переменных одним запросом.
func (c *Client) Calculate(ctx context.Context, image string, vars types.Variables) ([]types.Answer, error) {
	if vars == nil {
		vars = types.Variables{}
	}
	payload, err := json.Marshal(types.CalculateRequest{Image: image, DictOfVars: vars, LLMName: c.LLMName})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/calculate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if dl, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(dl).Seconds()); secs > 0 {
			req.Header.Set("X-Request-Timeout", fmt.Sprint(secs))
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var body types.ErrorResponse
		if json.Unmarshal(raw, &body) == nil && body.Status == types.StatusError {
			e.Message, e.Detail = body.Message, body.Error
		}
		return nil, e
	}

	var out types.CalculateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}
	if out.Data == nil {
		out.Data = []types.Answer{}
	}
	return out.Data, nil
}
