package skyfire

import (
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
)

// Canonical tool names registered for the payment workflow.
const (
	ToolFindSellers        = "find-sellers"
	ToolCreateKYAToken     = "create-kya-token"
	ToolCreatePaymentToken = "create-kya-payment-token"
	ToolChargeToken        = "charge-token"
	ToolDecodeToken        = "decode-token"
)

// Tools returns every Skyfire tool bound to the given client, ready for
// registry registration.
func Tools(client *Client) []tool.Tool {
	return []tool.Tool{
		FindSellersTool(client),
		CreateKYATokenTool(client),
		CreatePaymentTokenTool(client),
		ChargeTokenTool(client),
		DecodeTokenTool(client),
	}
}

// FindSellersTool searches seller services on the Skyfire network.
func FindSellersTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolFindSellers,
		"Search for seller services available on the Skyfire payment network.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Free-text search for seller services, e.g. 'dappier'.",
				},
			},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)

			services, err := client.FindSellers(toolCtx.Context(), query)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":   "success",
				"services": services,
				"total":    len(services),
			}, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Find Sellers" },
	)
}

// CreateKYATokenTool issues a KYA identity token for a seller service.
func CreateKYATokenTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolCreateKYAToken,
		"Create a KYA (Know Your Agent) identity token for a specific seller service.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sellerServiceId": map[string]any{
					"type":        "string",
					"description": "Identifier of the seller service the token is scoped to.",
				},
			},
			"required":             []any{"sellerServiceId"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			sellerServiceID := args["sellerServiceId"].(string)

			resp, err := client.CreateKYAToken(toolCtx.Context(), sellerServiceID)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Create KYA Token" },
	)
}

// CreatePaymentTokenTool issues a KYA+Pay token funded with a USD amount.
func CreatePaymentTokenTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolCreatePaymentToken,
		"Create a KYA+Pay payment token funded with the given USD amount for a seller service.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sellerServiceId": map[string]any{
					"type":        "string",
					"description": "Identifier of the seller service the payment is for.",
				},
				"amount": map[string]any{
					"type":        "number",
					"description": "Payment amount in USD. Amounts below 0.00001 are raised to the minimum.",
				},
			},
			"required":             []any{"sellerServiceId", "amount"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			sellerServiceID := args["sellerServiceId"].(string)
			amount, ok := args["amount"].(float64)
			if !ok {
				return nil, tool.NewToolError(ToolCreatePaymentToken, "amount must be a number", tool.CodeInvalidArguments)
			}

			resp, err := client.CreatePaymentToken(toolCtx.Context(), sellerServiceID, amount)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Create KYA Payment Token" },
	)
}

// ChargeTokenTool settles a payment token for the given amount.
func ChargeTokenTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolChargeToken,
		"Charge a Skyfire payment token for the given USD amount to settle a completed service call.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"token": map[string]any{
					"type":        "string",
					"description": "The KYA+Pay token to charge.",
				},
				"chargeAmount": map[string]any{
					"type":        "number",
					"description": "Amount to charge in USD. Must be positive.",
				},
			},
			"required":             []any{"token", "chargeAmount"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			token := args["token"].(string)
			amount, ok := args["chargeAmount"].(float64)
			if !ok {
				return nil, tool.NewToolError(ToolChargeToken, "chargeAmount must be a number", tool.CodeInvalidArguments)
			}

			resp, err := client.ChargeToken(toolCtx.Context(), token, amount)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Charge Token" },
	)
}

// DecodeTokenTool decodes a JWT without verification so agents can
// inspect header and claims before acting on a token.
func DecodeTokenTool(client *Client) *tool.Func {
	return tool.MustFunc(
		ToolDecodeToken,
		"Decode a JWT token without signature verification and return its header and payload for analysis.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jwtToken": map[string]any{
					"type":        "string",
					"description": "The JWT to decode, as header.payload.signature.",
				},
			},
			"required":             []any{"jwtToken"},
			"additionalProperties": false,
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			jwtToken := args["jwtToken"].(string)

			decoded, err := client.DecodeToken(jwtToken)
			if err != nil {
				return nil, tool.NewToolError(ToolDecodeToken, err.Error(), tool.CodeExecutionFailed)
			}
			return decoded, nil
		},
		func(o *tool.FuncOptions) { o.DisplayName = "Decode Token" },
	)
}
