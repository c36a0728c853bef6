// Package skyfire integrates the Skyfire payment network: seller
// discovery, KYA (Know Your Agent) identity tokens, KYA+Pay payment
// tokens and token charging, plus unverified JWT inspection for
// analysis. A Mock mode fabricates deterministic payloads at the same
// seams so the full workflow runs without credentials.
package skyfire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
)

const (
	// DefaultBaseURL is the Skyfire API endpoint.
	DefaultBaseURL = "https://api.skyfire.xyz"

	// MinimumPaymentUSD is the smallest amount a payment token may carry.
	// Zero-cost estimates are raised to it so the token stays chargeable.
	MinimumPaymentUSD = 0.00001

	// APIKeyHeader authenticates requests against the Skyfire API.
	APIKeyHeader = "skyfire-api-key"

	mockSigningKey = "paymesh-mock-signing-key"
	mockIDAlphabet = "0123456789abcdef"
)

// Seller identifies the vendor behind a marketplace service.
type Seller struct {
	Name string `json:"name"`
}

// SellerService is one service listed on the Skyfire network.
type SellerService struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Seller      Seller `json:"seller"`
	Price       string `json:"price"`
}

// TokenResponse is the result of creating a KYA or KYA+Pay token.
type TokenResponse struct {
	Token   string `json:"token"`
	TokenID string `json:"tokenId,omitempty"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Amount  string `json:"amount,omitempty"`
}

// ChargeResponse is the settlement result for a charged token.
type ChargeResponse struct {
	Success          bool   `json:"success"`
	Status           string `json:"status"`
	TransactionID    string `json:"transactionId,omitempty"`
	ChargedAmount    string `json:"chargedAmount,omitempty"`
	RemainingBalance string `json:"remainingBalance,omitempty"`
	Message          string `json:"message,omitempty"`
}

// ClientOptions configure the Skyfire client.
type ClientOptions struct {
	// BaseURL overrides the API endpoint.
	BaseURL string
	// APIKey is sent on every request. Required unless Mock is set.
	APIKey string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Logger receives request lifecycle logs.
	Logger logging.Logger
	// Mock fabricates deterministic payloads instead of calling the API.
	Mock bool
}

// Client is a thin JSON-over-HTTP client for the Skyfire API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
	mock       bool
}

// NewClient creates a Skyfire client.
func NewClient(optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		mock:       opts.Mock,
	}
}

// Mock reports whether the client fabricates payloads locally.
func (c *Client) Mock() bool { return c.mock }

// FindSellers searches seller services on the Skyfire network. The mock
// returns the Dappier Search service entry the payment workflow targets.
func (c *Client) FindSellers(ctx context.Context, query string) ([]SellerService, error) {
	if c.mock {
		c.logger.Debug("skyfire.find_sellers.mock", "query", query)
		return []SellerService{{
			ID:          "svc_dappier_search",
			Name:        "Dappier Search",
			Description: "Real-time search, news, financial data and research papers from the Dappier marketplace",
			Seller:      Seller{Name: "Dappier"},
			Price:       "usage-based, per query",
		}}, nil
	}

	var services []SellerService
	path := "/api/v1/sellers"
	if query != "" {
		path += "?query=" + url.QueryEscape(query)
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// CreateKYAToken creates a KYA identity token for the given seller service.
func (c *Client) CreateKYAToken(ctx context.Context, sellerServiceID string) (*TokenResponse, error) {
	if sellerServiceID == "" {
		return nil, core.Errorf(core.KindValidation, "sellerServiceId is required")
	}
	if c.mock {
		return c.mockToken("kya", sellerServiceID, 0)
	}

	body := map[string]any{
		"type":            "kya",
		"sellerServiceId": sellerServiceID,
	}
	var resp TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePaymentToken creates a KYA+Pay token carrying amountUSD.
// Amounts below the minimum are raised to it.
func (c *Client) CreatePaymentToken(ctx context.Context, sellerServiceID string, amountUSD float64) (*TokenResponse, error) {
	if sellerServiceID == "" {
		return nil, core.Errorf(core.KindValidation, "sellerServiceId is required")
	}
	if amountUSD < 0 {
		return nil, core.Errorf(core.KindValidation, "amount must not be negative, got %v", amountUSD)
	}
	if amountUSD < MinimumPaymentUSD {
		c.logger.Debug("skyfire.payment_token.minimum_applied", "requested", amountUSD, "amount", MinimumPaymentUSD)
		amountUSD = MinimumPaymentUSD
	}
	if c.mock {
		return c.mockToken("kya+pay", sellerServiceID, amountUSD)
	}

	body := map[string]any{
		"type":            "kya+pay",
		"sellerServiceId": sellerServiceID,
		"amount":          formatAmount(amountUSD),
	}
	var resp TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChargeToken settles a payment token for amountUSD via the charge endpoint.
func (c *Client) ChargeToken(ctx context.Context, token string, amountUSD float64) (*ChargeResponse, error) {
	if token == "" {
		return nil, core.Errorf(core.KindValidation, "token is required")
	}
	if amountUSD <= 0 {
		return nil, core.Errorf(core.KindValidation, "chargeAmount must be positive, got %v", amountUSD)
	}
	if c.mock {
		txn, err := gonanoid.Generate(mockIDAlphabet, 16)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("skyfire.charge.mock", "amount", amountUSD)
		return &ChargeResponse{
			Success:       true,
			Status:        "success",
			TransactionID: "txn_" + txn,
			ChargedAmount: formatAmount(amountUSD),
			Message:       "Token charged (mock)",
		}, nil
	}

	body := map[string]any{
		"token":        token,
		"chargeAmount": formatAmount(amountUSD),
	}
	var resp ChargeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens/charge", body, &resp); err != nil {
		return nil, err
	}
	resp.Success = true
	return &resp, nil
}

// DecodeToken decodes a JWT without signature verification, for analysis
// only. Unix iat/exp claims gain *_readable companions.
func (c *Client) DecodeToken(tokenString string) (map[string]any, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	token, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT: %w", err)
	}

	payload := map[string]any(claims)
	if iat, ok := numericClaim(claims, "iat"); ok {
		payload["iat_readable"] = readableTime(iat)
	}
	if exp, ok := numericClaim(claims, "exp"); ok {
		payload["exp_readable"] = readableTime(exp)
	}

	return map[string]any{
		"header":  token.Header,
		"payload": payload,
		"status":  "success",
	}, nil
}

// mockToken fabricates a locally signed JWT whose claims mirror the
// Skyfire token shape, so decode analysis works against mock output.
func (c *Client) mockToken(tokenType, sellerServiceID string, amountUSD float64) (*TokenResponse, error) {
	tokenID, err := gonanoid.Generate(mockIDAlphabet, 16)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"ver": "1.0",
		"env": "sandbox",
		"ssi": sellerServiceID,
		"bid": map[string]any{"skyfireEmail": "agent@paymesh.local"},
		"aid": "agent_paymesh",
		"iss": "skyfire.xyz",
		"jti": tokenID,
		"aud": sellerServiceID,
		"sub": "agent_paymesh",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if tokenType == "kya+pay" {
		claims["amount"] = formatAmount(amountUSD)
		claims["cur"] = "USD"
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(mockSigningKey))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("skyfire.token.mock", "type", tokenType, "seller_service_id", sellerServiceID)
	resp := &TokenResponse{
		Token:   signed,
		TokenID: "tok_" + tokenID,
		Type:    tokenType,
		Status:  "active",
	}
	if tokenType == "kya+pay" {
		resp.Amount = formatAmount(amountUSD)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("skyfire.request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("skyfire request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("skyfire response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("skyfire request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("skyfire response decode failed: %w", err)
	}
	return nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	v, ok := claims[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func readableTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04:05") + " UTC"
}
