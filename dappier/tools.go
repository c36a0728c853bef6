package dappier

import (
	"encoding/json"
	"strings"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
)

// Canonical tool names registered for the payment workflow.
const (
	ToolConnectService       = "connect-service"
	ToolFetchPricing         = "fetch-pricing"
	ToolEstimateCost         = "estimate-cost"
	ToolRealTimeSearch       = "real-time-search"
	ToolStockMarketData      = "stock-market-data"
	ToolResearchPapersSearch = "research-papers-search"
	ToolSportsNews           = "sports-news"
)

// minimumPayableUSD mirrors the smallest chargeable payment token amount,
// so zero-cost estimates still produce a fundable figure.
const minimumPayableUSD = 0.00001

var displayNames = map[string]string{
	"real-time-search":       "Real Time Search",
	"stock-market-data":      "Stock Market Data",
	"research-papers-search": "Research Papers Search",
	"benzinga":               "Benzinga",
	"sports-news":            "Sports News",
	"lifestyle-news":         "Lifestyle News",
	"iheartdogs-ai":          "Iheartdogs AI",
	"iheartcats-ai":          "Iheartcats AI",
	"one-green-planet":       "One Green Planet",
	"wish-tv-ai":             "Wish TV AI",
}

var descriptions = map[string]string{
	"real-time-search":       "Real-time web search across news, weather, travel, deals and current events.",
	"stock-market-data":      "Real-time stock prices, financial news and trade signals powered by polygon.io.",
	"research-papers-search": "Search across current research papers and scholarly archives.",
	"benzinga":               "Financial markets news from Benzinga.",
	"sports-news":            "Top sports headlines and breaking sports coverage.",
	"lifestyle-news":         "Lifestyle and entertainment updates.",
	"iheartdogs-ai":          "Dog care and canine health answers from iHeartDogs.",
	"iheartcats-ai":          "Cat care and feline health answers from iHeartCats.",
	"one-green-planet":       "Plant-based living and sustainability guides.",
	"wish-tv-ai":             "Local news coverage from WISH-TV.",
}

// DisplayName maps a marketplace model to its human-readable name,
// falling back to title-cased segments for unknown models.
func DisplayName(model string) string {
	if name, ok := displayNames[model]; ok {
		return name
	}
	parts := strings.Split(model, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}

// marketplaceTools lists every marketplace model as server tool info.
func marketplaceTools() []ToolInfo {
	models := []string{
		"benzinga", "iheartcats-ai", "iheartdogs-ai", "lifestyle-news",
		"one-green-planet", "real-time-search", "research-papers-search",
		"sports-news", "stock-market-data", "wish-tv-ai",
	}
	tools := make([]ToolInfo, 0, len(models))
	for _, model := range models {
		tools = append(tools, ToolInfo{
			Name:        model,
			DisplayName: DisplayName(model),
			Description: descriptions[model],
		})
	}
	return tools
}

// Tools returns every Dappier tool bound to client and catalog, ready
// for registry registration: connection, pricing, estimation and the
// four search models the executor role runs.
func Tools(client *Client, catalog *Catalog) []tool.Tool {
	return []tool.Tool{
		ConnectServiceTool(client),
		FetchPricingTool(catalog),
		EstimateCostTool(catalog),
		SearchTool(client, ToolRealTimeSearch),
		SearchTool(client, ToolStockMarketData),
		SearchTool(client, ToolResearchPapersSearch),
		SearchTool(client, ToolSportsNews),
	}
}

// ConnectServiceTool authenticates against the Dappier MCP server with a
// payment token and enumerates the tools it offers. Token shape problems
// come back as a status payload the agent can read and correct, matching
// the marketplace's own error envelope.
func ConnectServiceTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolConnectService,
		"Connect to the Dappier MCP server using a Skyfire payment token and list the available tools.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mcp_url": map[string]any{
					"type":        "string",
					"description": "MCP endpoint URL. Defaults to the Dappier marketplace endpoint.",
				},
				"skyfire_pay_id": map[string]any{
					"type":        "string",
					"description": "The KYA+Pay JWT authenticating and funding the connection.",
				},
			},
			"required":             []any{"skyfire_pay_id"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			mcpURL, _ := args["mcp_url"].(string)
			payToken := args["skyfire_pay_id"].(string)

			if !ValidTokenShape(payToken) {
				return map[string]any{
					"status":  "error",
					"message": "Invalid JWT token format (expected header.payload.signature)",
					"tools":   []any{},
				}, nil
			}

			result, err := client.Connect(toolCtx.Context(), mcpURL, payToken)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Connect Service" },
	)
}

// FetchPricingTool returns the marketplace resources and pricing
// catalog, echoing the validated inputs the way the marketplace does.
func FetchPricingTool(catalog *Catalog) *tool.Func {
	return tool.MustFunc(
		ToolFetchPricing,
		"Fetch the Dappier resources and per-query pricing catalog.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mcp_url": map[string]any{
					"type":        "string",
					"description": "MCP endpoint URL. Defaults to the Dappier marketplace endpoint.",
				},
				"skyfire_pay_id": map[string]any{
					"type":        "string",
					"description": "The KYA+Pay JWT authenticating the request.",
				},
			},
			"required":             []any{"skyfire_pay_id"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			mcpURL, _ := args["mcp_url"].(string)
			payToken := args["skyfire_pay_id"].(string)

			if mcpURL == "" {
				mcpURL = DefaultMCPURL
			}
			if !ValidTokenShape(payToken) {
				return map[string]any{
					"status":        "error",
					"message":       "Invalid JWT token format (expected header.payload.signature)",
					"mcp_url":       mcpURL,
					"token_preview": MaskToken(payToken),
				}, nil
			}
			if !ValidMCPURL(mcpURL) {
				return map[string]any{
					"status":        "error",
					"message":       "Invalid mcp_url (must be http(s)://host[/path])",
					"mcp_url":       mcpURL,
					"token_preview": MaskToken(payToken),
				}, nil
			}

			entries := catalog.Snapshot()
			pretty, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"status":        "success",
				"message":       "Resources & pricing returned",
				"mcp_url":       mcpURL,
				"token_preview": MaskToken(payToken),
				"data": map[string]any{
					"contents": []map[string]any{{
						"uri":      "dappier-tools-pricing://all-tools",
						"mimeType": "application/json",
						"text":     string(pretty),
					}},
					"structuredContent": entries,
				},
			}, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Fetch Pricing" },
	)
}

// EstimateCostTool sums per-query prices for a planned set of model
// calls. The executor later runs exactly this plan, keeping estimation
// and execution in sync.
func EstimateCostTool(catalog *Catalog) *tool.Func {
	return tool.MustFunc(
		ToolEstimateCost,
		"Estimate the total USD cost of a query plan as price per query times expected calls per marketplace model.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"requests": map[string]any{
					"type":        "array",
					"description": "Planned marketplace calls: one entry per model with its expected call count.",
					"minItems":    1,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"model": map[string]any{
								"type":        "string",
								"description": "Marketplace model name, e.g. 'stock-market-data'.",
							},
							"calls": map[string]any{
								"type":        "integer",
								"minimum":     1,
								"description": "Expected number of calls to this model.",
							},
						},
						"required":             []any{"model", "calls"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []any{"requests"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			requests, _ := args["requests"].([]any)

			usage := make(map[string]int, len(requests))
			for _, raw := range requests {
				entry, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				model, _ := entry["model"].(string)
				calls, _ := entry["calls"].(float64)
				usage[model] += int(calls)
			}

			estimate, err := catalog.Estimate(usage)
			if err != nil {
				toolErr := tool.NewToolError(ToolEstimateCost, err.Error(), tool.CodeInvalidArguments)
				toolErr.Details = map[string]any{"knownModels": catalog.Models()}
				return nil, toolErr
			}

			payable := estimate.Total
			if payable < minimumPayableUSD {
				payable = minimumPayableUSD
			}

			return map[string]any{
				"status":       "success",
				"items":        estimate.Items,
				"total":        estimate.Total,
				"currency":     estimate.Currency,
				"payableTotal": payable,
			}, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Estimate Cost" },
	)
}

// SearchTool runs one paid query against the given marketplace model.
func SearchTool(client *Client, model string) *tool.Func {
	description := descriptions[model]
	if description == "" {
		description = "Query the " + DisplayName(model) + " marketplace model."
	}
	return tool.MustFunc(
		model,
		description,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query to run against the marketplace model.",
				},
			},
			"required":             []any{"query"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query := args["query"].(string)

			result, err := client.Search(toolCtx.Context(), model, query)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = DisplayName(model) },
	)
}
