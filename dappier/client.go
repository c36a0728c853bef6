package dappier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
)

const (
	// DefaultMCPURL is the Dappier MCP endpoint.
	DefaultMCPURL = "https://mcp.dappier.com/mcp"

	// PayIDHeader carries the Skyfire payment token to the marketplace.
	PayIDHeader = "skyfire-pay-id"

	userAgent       = "Skyfire-MCP-Client/1.0"
	protocolVersion = "2025-03-26"
)

// ToolInfo describes one tool offered by the marketplace server.
type ToolInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// ConnectionDetails records how the marketplace connection was made.
// The payment token is masked before it enters any payload.
type ConnectionDetails struct {
	MCPURL        string            `json:"mcp_url"`
	HeadersSent   map[string]string `json:"headers_sent"`
	AuthMethod    string            `json:"auth_method"`
	Protocol      string            `json:"protocol"`
	TokenVerified bool              `json:"token_verified"`
}

// ServerInfo is the marketplace server's self description.
type ServerInfo struct {
	ServerVersion  string   `json:"server_version"`
	Capabilities   []string `json:"capabilities"`
	Implementation string   `json:"implementation"`
}

// ConnectionResult is the full connect outcome handed back to the agent.
type ConnectionResult struct {
	Status              string            `json:"status"`
	Message             string            `json:"message"`
	ConnectionDetails   ConnectionDetails `json:"connection_details"`
	AvailableTools      []ToolInfo        `json:"available_tools"`
	TotalTools          int               `json:"total_tools"`
	ConnectionTimestamp string            `json:"connection_timestamp"`
	ServerResponse      ServerInfo        `json:"server_response"`
}

// SearchResult is the outcome of one paid marketplace query.
type SearchResult struct {
	Model     string `json:"model"`
	Query     string `json:"query"`
	Content   string `json:"content"`
	Retrieved string `json:"retrieved"`
}

// ClientOptions configure the Dappier client.
type ClientOptions struct {
	// MCPURL overrides the marketplace endpoint.
	MCPURL string
	// APIKey authenticates direct (non token-paid) access.
	APIKey string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Logger receives request lifecycle logs.
	Logger logging.Logger
	// Mock fabricates deterministic payloads instead of calling the server.
	Mock bool
}

// Client talks to the Dappier marketplace over MCP streamable HTTP.
type Client struct {
	mcpURL     string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
	mock       bool

	rpcID     atomic.Int64
	sessionID atomic.Value
}

// NewClient creates a Dappier client.
func NewClient(optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		MCPURL:     DefaultMCPURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		mcpURL:     opts.MCPURL,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		mock:       opts.Mock,
	}
}

// Mock reports whether the client fabricates payloads locally.
func (c *Client) Mock() bool { return c.mock }

// MCPURL returns the configured marketplace endpoint.
func (c *Client) MCPURL() string { return c.mcpURL }

// ValidTokenShape reports whether a token looks like a JWT, i.e. three
// dot-separated segments. Signature verification is out of scope here.
func ValidTokenShape(token string) bool {
	return token != "" && len(strings.Split(token, ".")) == 3
}

// ValidMCPURL reports whether the endpoint is an absolute http(s) URL.
func ValidMCPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// Connect authenticates against the marketplace with a payment token and
// enumerates the tools it offers.
func (c *Client) Connect(ctx context.Context, mcpURL, payToken string) (*ConnectionResult, error) {
	if mcpURL == "" {
		mcpURL = c.mcpURL
	}
	if !ValidTokenShape(payToken) {
		return nil, core.Errorf(core.KindValidation, "invalid JWT token format (expected header.payload.signature)")
	}

	headers := map[string]string{
		PayIDHeader:    payToken,
		"Content-Type": "application/json",
		"User-Agent":   userAgent,
	}

	var tools []ToolInfo
	var server ServerInfo
	if c.mock {
		c.logger.Debug("dappier.connect.mock", "mcp_url", mcpURL)
		tools = marketplaceTools()
		server = ServerInfo{
			ServerVersion:  "1.2.0",
			Capabilities:   []string{"tools", "resources", "prompts"},
			Implementation: "Dappier MCP Server",
		}
	} else {
		listed, err := c.listTools(ctx, mcpURL, headers)
		if err != nil {
			return nil, err
		}
		tools = listed
		server = ServerInfo{
			ServerVersion:  protocolVersion,
			Capabilities:   []string{"tools"},
			Implementation: "Dappier MCP Server",
		}
	}

	masked := make(map[string]string, len(headers))
	for k, v := range headers {
		masked[k] = v
	}
	masked[PayIDHeader] = MaskToken(payToken)

	return &ConnectionResult{
		Status:  "success",
		Message: fmt.Sprintf("Successfully connected to Dappier MCP Server and retrieved %d tools", len(tools)),
		ConnectionDetails: ConnectionDetails{
			MCPURL:        mcpURL,
			HeadersSent:   masked,
			AuthMethod:    "JWT Bearer Token via skyfire-pay-id header",
			Protocol:      "MCP (Model Context Protocol)",
			TokenVerified: true,
		},
		AvailableTools:      tools,
		TotalTools:          len(tools),
		ConnectionTimestamp: time.Now().UTC().Format(time.RFC3339),
		ServerResponse:      server,
	}, nil
}

// Search runs one paid query against a marketplace model.
func (c *Client) Search(ctx context.Context, model, query string) (*SearchResult, error) {
	if query == "" {
		return nil, core.Errorf(core.KindValidation, "query is required")
	}

	if c.mock {
		c.logger.Debug("dappier.search.mock", "model", model)
		return &SearchResult{
			Model:     model,
			Query:     query,
			Content:   mockSearchContent(model, query),
			Retrieved: time.Now().UTC().Format(time.RFC3339),
		}, nil
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   userAgent,
	}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	result, err := c.rpc(ctx, c.mcpURL, headers, "tools/call", map[string]any{
		"name":      model,
		"arguments": map[string]any{"query": query},
	})
	if err != nil {
		return nil, err
	}

	var callResult struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("dappier tool result decode failed: %w", err)
	}

	var parts []string
	for _, block := range callResult.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	content := strings.Join(parts, "\n")
	if callResult.IsError {
		return nil, fmt.Errorf("dappier tool %s failed: %s", model, content)
	}

	return &SearchResult{
		Model:     model,
		Query:     query,
		Content:   content,
		Retrieved: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// listTools performs the MCP handshake and enumerates server tools.
func (c *Client) listTools(ctx context.Context, mcpURL string, headers map[string]string) ([]ToolInfo, error) {
	_, err := c.rpc(ctx, mcpURL, headers, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "paymesh", "version": "1.0"},
	})
	if err != nil {
		return nil, err
	}

	result, err := c.rpc(ctx, mcpURL, headers, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("dappier tool list decode failed: %w", err)
	}

	tools := make([]ToolInfo, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			DisplayName: DisplayName(t.Name),
			Description: t.Description,
		})
	}
	return tools, nil
}

// rpc sends one JSON-RPC request over MCP streamable HTTP. Servers may
// answer with a plain JSON body or a single-message SSE frame.
func (c *Client) rpc(ctx context.Context, mcpURL string, headers map[string]string, method string, params any) (json.RawMessage, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.rpcID.Add(1),
		"method":  method,
		"params":  params,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mcpURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sid, ok := c.sessionID.Load().(string); ok && sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}

	c.logger.Debug("dappier.rpc", "method", method, "mcp_url", mcpURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dappier request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.sessionID.Store(sid)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dappier response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dappier request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	body := extractRPCBody(raw)

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("dappier response decode failed: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("dappier rpc %s failed: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

// extractRPCBody unwraps a single-message SSE frame to its data payload.
func extractRPCBody(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(trimmed, []byte("event:")) && !bytes.HasPrefix(trimmed, []byte("data:")) {
		return trimmed
	}
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		if data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:")); ok {
			return bytes.TrimSpace(data)
		}
	}
	return trimmed
}

// MaskToken redacts the middle of a token, keeping twelve characters on
// each end, so logs and echoes never carry a usable credential.
func MaskToken(token string) string {
	const head, tail = 12, 12
	if token == "" {
		return ""
	}
	if len(token) <= head+tail {
		return token
	}
	return token[:head] + "..." + token[len(token)-tail:]
}

func mockSearchContent(model, query string) string {
	switch model {
	case "stock-market-data":
		return fmt.Sprintf("Mock market data for %q: AAPL 232.14 (+0.8%%), MSFT 428.90 (+0.3%%), NVDA 121.40 (-1.2%%). Indices: S&P 500 5,634 (+0.4%%), Nasdaq 17,972 (+0.2%%).", query)
	case "research-papers-search":
		return fmt.Sprintf("Mock research results for %q: 3 papers found. (1) 'Agent-to-Agent Payment Protocols' (2025), (2) 'Metered Access for Autonomous Services' (2024), (3) 'Token-Gated APIs in Practice' (2024).", query)
	case "sports-news":
		return fmt.Sprintf("Mock sports headlines for %q: City edges United 2-1 in the derby; Warriors clinch the series; record transfer fee confirmed.", query)
	default:
		return fmt.Sprintf("Mock real-time results for %q: three current items retrieved from the live index, freshest first.", query)
	}
}
