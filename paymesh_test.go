package paymesh

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paymesh/config"
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/model"
	"github.com/hupe1980/paymesh/skyfire"
	"github.com/hupe1980/paymesh/stream"
	"github.com/hupe1980/paymesh/tool"
)

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model.Provider = "mock"
	cfg.Model.Name = "scripted"
	return cfg
}

func call(id, name, args string) model.ToolCall {
	return model.ToolCall{
		ID:   id,
		Type: "function",
		Function: model.ToolCallFunction{
			Name:      name,
			Arguments: args,
		},
	}
}

func transfer(target string) model.ToolCall {
	return call("call_transfer", tool.HandoffToolName, fmt.Sprintf(`{"agent_name":%q}`, target))
}

func TestNewWiresPaymentPipeline(t *testing.T) {
	m, err := New(func(o *Options) {
		o.Config = mockConfig()
	})
	require.NoError(t, err)
	defer m.Close()

	st := m.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, "planner", st.Entry)
	assert.Len(t, st.Roles, 9)
	assert.Equal(t, "mock", st.Model.Provider)
	assert.True(t, st.SkyfireMock)
	assert.True(t, st.DappierMock)

	for _, name := range []string{
		"find-sellers", "create-kya-token", "create-kya-payment-token",
		"charge-token", "decode-token", "connect-service", "fetch-pricing",
		"estimate-cost", "real-time-search", "stock-market-data",
		"research-papers-search", "sports-news",
	} {
		assert.Contains(t, st.Tools, name)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := mockConfig()
	cfg.Model.Provider = "grok"

	_, err := New(func(o *Options) {
		o.Config = cfg
	})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfiguration))
}

func TestChatSyncDirectAnswer(t *testing.T) {
	mdl := model.NewMockModel("scripted", "mock")
	mdl.Enqueue(model.Response{
		Text:         "A JWT is a signed JSON token. This service shines on real-time data queries.",
		FinishReason: "stop",
	})

	m, err := New(func(o *Options) {
		o.Config = mockConfig()
		o.Model = mdl
	})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()

	sess, err := m.NewSession(ctx)
	require.NoError(t, err)

	agg, err := m.ChatSync(ctx, sess.ID, "What is a JWT?")
	require.NoError(t, err)
	require.Nil(t, agg.Error)

	assert.Equal(t, sess.ID, agg.SessionID)
	assert.NotEmpty(t, agg.TurnID)
	assert.Equal(t, "planner", agg.Agent)
	assert.Contains(t, agg.Content, "real-time data")
	assert.Empty(t, agg.ToolCalls)
	assert.Empty(t, agg.Handoffs)

	got, err := m.Session(sess.ID)
	require.NoError(t, err)

	snap := got.Snapshot()
	assert.Equal(t, core.StatusIdle, snap.Status)
	assert.Equal(t, 2, snap.Messages)
}

// TestChatSyncWalksFullPipeline drives the complete ten-step workflow
// with a scripted model against the mock Skyfire and Dappier backends:
// discovery, identity token, decode, connection, pricing, estimation,
// payment token, second decode, paid query and settlement.
func TestChatSyncWalksFullPipeline(t *testing.T) {
	ctx := context.Background()

	sc := skyfire.NewClient(func(o *skyfire.ClientOptions) {
		o.Mock = true
	})

	kya, err := sc.CreateKYAToken(ctx, "dappier-search")
	require.NoError(t, err)
	pay, err := sc.CreatePaymentToken(ctx, "dappier-search", 0.007)
	require.NoError(t, err)

	mdl := model.NewMockModel("scripted", "mock")
	mdl.Enqueue(
		model.Response{
			Text:      "Real-time query, engaging the payment pipeline.",
			ToolCalls: []model.ToolCall{transfer("seller_finder")},
		},
		model.Response{
			Text: "Found the Dappier Search service, id dappier-search.",
			ToolCalls: []model.ToolCall{
				call("c1", "find-sellers", `{"query":"dappier"}`),
				transfer("kya_agent"),
			},
		},
		model.Response{
			Text: "KYA token created: " + kya.Token,
			ToolCalls: []model.ToolCall{
				call("c2", "create-kya-token", `{"sellerServiceId":"dappier-search"}`),
				transfer("token_decoder"),
			},
		},
		model.Response{
			Text: "KYA token verified, proceeding to connection.",
			ToolCalls: []model.ToolCall{
				call("c3", "decode-token", fmt.Sprintf(`{"jwtToken":%q}`, kya.Token)),
				transfer("connector"),
			},
		},
		model.Response{
			Text: "Connected to the marketplace, tools and pricing retrieved.",
			ToolCalls: []model.ToolCall{
				call("c4", "connect-service", fmt.Sprintf(`{"skyfire_pay_id":%q}`, kya.Token)),
				call("c5", "fetch-pricing", fmt.Sprintf(`{"skyfire_pay_id":%q}`, kya.Token)),
				transfer("price_calculator"),
			},
		},
		model.Response{
			Text: "One real-time search at $0.007.",
			ToolCalls: []model.ToolCall{
				call("c6", "estimate-cost", `{"requests":[{"model":"real-time-search","calls":1}]}`),
				transfer("payment_agent"),
			},
		},
		model.Response{
			Text: "Payment token funded with $0.007: " + pay.Token,
			ToolCalls: []model.ToolCall{
				call("c7", "create-kya-payment-token", `{"sellerServiceId":"dappier-search","amount":0.007}`),
				transfer("token_decoder"),
			},
		},
		model.Response{
			Text: "Payment token verified, executing the query.",
			ToolCalls: []model.ToolCall{
				call("c8", "decode-token", fmt.Sprintf(`{"jwtToken":%q}`, pay.Token)),
				transfer("executor"),
			},
		},
		model.Response{
			Text: "Here are the latest AI developments.",
			ToolCalls: []model.ToolCall{
				call("c9", "real-time-search", `{"query":"latest AI developments"}`),
				transfer("charger"),
			},
		},
		model.Response{
			Text: "Charged $0.007, settlement confirmed.",
			ToolCalls: []model.ToolCall{
				call("c10", "charge-token", fmt.Sprintf(`{"token":%q,"chargeAmount":0.007}`, pay.Token)),
				transfer("planner"),
			},
		},
		model.Response{
			Text:         "Workflow complete: query answered and payment settled.",
			FinishReason: "stop",
		},
	)

	cfg := mockConfig()
	cfg.Runner.MaxHops = 16

	m, err := New(func(o *Options) {
		o.Config = cfg
		o.Model = mdl
		o.SkyfireClient = sc
	})
	require.NoError(t, err)
	defer m.Close()

	sess, err := m.NewSession(ctx)
	require.NoError(t, err)

	agg, err := m.ChatSync(ctx, sess.ID, "What are the latest AI developments?")
	require.NoError(t, err)
	require.Nil(t, agg.Error)

	assert.Equal(t, "Workflow complete: query answered and payment settled.", agg.Content)
	assert.Equal(t, "planner", agg.Agent)

	wantChain := []stream.HandoffStep{
		{From: "planner", To: "seller_finder"},
		{From: "seller_finder", To: "kya_agent"},
		{From: "kya_agent", To: "token_decoder"},
		{From: "token_decoder", To: "connector"},
		{From: "connector", To: "price_calculator"},
		{From: "price_calculator", To: "payment_agent"},
		{From: "payment_agent", To: "token_decoder"},
		{From: "token_decoder", To: "executor"},
		{From: "executor", To: "charger"},
		{From: "charger", To: "planner"},
	}
	assert.Equal(t, wantChain, agg.Handoffs)

	require.Len(t, agg.ToolCalls, 10)

	var names []string
	for _, tc := range agg.ToolCalls {
		assert.Equalf(t, "completed", tc.Status, "tool %s", tc.Name)
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{
		"find-sellers", "create-kya-token", "decode-token",
		"connect-service", "fetch-pricing", "estimate-cost",
		"create-kya-payment-token", "decode-token",
		"real-time-search", "charge-token",
	}, names)

	got, err := m.Session(sess.ID)
	require.NoError(t, err)

	snap := got.Snapshot()
	assert.Equal(t, core.StatusIdle, snap.Status)
	assert.Equal(t, "planner", snap.CurrentAgent)
}

func TestSessionLifecycle(t *testing.T) {
	m, err := New(func(o *Options) {
		o.Config = mockConfig()
	})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()

	sess, err := m.NewSession(ctx)
	require.NoError(t, err)

	assert.Len(t, m.Sessions(), 1)
	assert.Equal(t, 1, m.SessionStats().Active)
	assert.Equal(t, 0, m.Sweep())

	m.DeleteSession(sess.ID)

	_, err = m.Session(sess.ID)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSessionNotFound))
}

func TestChatUnknownSession(t *testing.T) {
	m, err := New(func(o *Options) {
		o.Config = mockConfig()
	})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.ChatSync(context.Background(), "sess_missing", "hello")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindSessionNotFound))
}
