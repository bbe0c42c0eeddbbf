package adapters

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

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// DefaultBridgeTimeout bounds one bridge round-trip.
const DefaultBridgeTimeout = 30 * time.Second

// BridgeClient implements the CapabilityProvider port against the host
// platform's HTTP bridge, the process that owns the device, zone and flow
// inventory and performs the actual tool executions. Independent calls are
// safe concurrently; each gets its own request.
type BridgeClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

var _ ports.CapabilityProvider = (*BridgeClient)(nil)

// NewBridgeClient creates a client for the bridge at baseURL.
func NewBridgeClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *BridgeClient {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "bridge").Logger(),
	}
}

type wireToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type wireToolList struct {
	Tools []wireToolSpec `json:"tools"`
}

type wireAttachment struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type wireToolResult struct {
	Success    bool            `json:"success"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	Diagnostic string          `json:"diagnostic,omitempty"`
	Attachment *wireAttachment `json:"attachment,omitempty"`
}

type wireError struct {
	Error string `json:"error"`
}

// ListTools fetches the bridge's capability inventory.
func (c *BridgeClient) ListTools(ctx context.Context) ([]ports.ToolSpec, error) {
	body, err := c.do(ctx, http.MethodGet, "/tools", nil)
	if err != nil {
		return nil, err
	}
	var list wireToolList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}
	specs := make([]ports.ToolSpec, 0, len(list.Tools))
	for _, tool := range list.Tools {
		specs = append(specs, ports.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return specs, nil
}

// CallTool executes one capability on the bridge.
func (c *BridgeClient) CallTool(ctx context.Context, name string, args map[string]any) (ports.ToolResult, error) {
	payload, err := json.Marshal(map[string]any{"args": args})
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/tools/"+url.PathEscape(name), payload)
	if err != nil {
		return ports.ToolResult{}, err
	}
	var result wireToolResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ports.ToolResult{}, fmt.Errorf("failed to decode tool result: %w", err)
	}
	out := ports.ToolResult{
		Success:    result.Success,
		Payload:    result.Payload,
		Error:      result.Error,
		Diagnostic: result.Diagnostic,
	}
	if result.Attachment != nil {
		out.Attachment = &ports.Attachment{
			MIMEType: result.Attachment.MIMEType,
			Data:     result.Attachment.Data,
		}
	}
	return out, nil
}

func (c *BridgeClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bridge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var wireErr wireError
		if json.Unmarshal(respBody, &wireErr) == nil && wireErr.Error != "" {
			return nil, fmt.Errorf("bridge error (%d): %s", resp.StatusCode, wireErr.Error)
		}
		return nil, fmt.Errorf("bridge error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
