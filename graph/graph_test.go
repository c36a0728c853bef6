package graph

import (
	"testing"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTool(name string) tool.Tool {
	return tool.MustFunc(name, "test tool", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil })
}

func TestNew_Validation(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		_, err := New()
		assert.True(t, core.IsKind(err, core.KindConfiguration))
	})

	t.Run("no entry role", func(t *testing.T) {
		_, err := New(Role{Name: "planner"})
		assert.True(t, core.IsKind(err, core.KindConfiguration))
	})

	t.Run("multiple entry roles", func(t *testing.T) {
		_, err := New(
			Role{Name: "planner", Entry: true},
			Role{Name: "executor", Entry: true},
		)
		assert.True(t, core.IsKind(err, core.KindConfiguration))
	})

	t.Run("duplicate role name", func(t *testing.T) {
		_, err := New(
			Role{Name: "planner", Entry: true},
			Role{Name: "planner"},
		)
		assert.True(t, core.IsKind(err, core.KindConfiguration))
	})

	t.Run("undefined handoff target", func(t *testing.T) {
		_, err := New(Role{Name: "planner", Entry: true, Handoffs: []string{"ghost"}})
		assert.True(t, core.IsKind(err, core.KindConfiguration))
	})
}

func TestGraph_Accessors(t *testing.T) {
	g, err := New(
		Role{Name: "planner", Entry: true, Terminal: true, Handoffs: []string{"seller_finder"}},
		Role{Name: "seller_finder", Capabilities: []string{"find-sellers"}, Handoffs: []string{"planner"}},
		Role{Name: "auditor"},
	)
	require.NoError(t, err)

	assert.Equal(t, "planner", g.EntryRole().Name)

	r, ok := g.Role("seller_finder")
	require.True(t, ok)
	assert.Equal(t, []string{"find-sellers"}, r.Capabilities)

	_, ok = g.Role("ghost")
	assert.False(t, ok)

	names := make([]string, 0)
	for _, role := range g.Roles() {
		names = append(names, role.Name)
	}
	assert.Equal(t, []string{"planner", "seller_finder", "auditor"}, names)

	assert.True(t, g.IsLegalHandoff("planner", "seller_finder"))
	assert.False(t, g.IsLegalHandoff("planner", "auditor"))
	assert.False(t, g.IsLegalHandoff("ghost", "planner"))

	assert.Equal(t, []string{"find-sellers"}, g.CapabilitiesOf("seller_finder"))
	assert.Nil(t, g.CapabilitiesOf("ghost"))
	assert.Equal(t, []string{"seller_finder"}, g.HandoffsOf("planner"))

	// planner is terminal explicitly, auditor implicitly (no edges).
	assert.True(t, g.IsTerminal("planner"))
	assert.True(t, g.IsTerminal("auditor"))
	assert.False(t, g.IsTerminal("seller_finder"))
}

func TestGraph_Immutability(t *testing.T) {
	g, err := New(
		Role{Name: "planner", Entry: true, Capabilities: []string{"decode-token"}},
	)
	require.NoError(t, err)

	caps := g.CapabilitiesOf("planner")
	caps[0] = "mutated"
	assert.Equal(t, []string{"decode-token"}, g.CapabilitiesOf("planner"))

	r, _ := g.Role("planner")
	r.Capabilities[0] = "mutated"
	fresh, _ := g.Role("planner")
	assert.Equal(t, []string{"decode-token"}, fresh.Capabilities)
}

func TestGraph_Bind(t *testing.T) {
	g, err := New(
		Role{Name: "planner", Entry: true, Handoffs: []string{"charger"}},
		Role{Name: "charger", Capabilities: []string{"charge-token", "refund-token"}},
	)
	require.NoError(t, err)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(noopTool("charge-token")))

	err = g.Bind(reg)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfiguration))
	assert.Contains(t, err.Error(), "refund-token")

	require.NoError(t, reg.Register(noopTool("refund-token")))
	assert.NoError(t, g.Bind(reg))
}

func TestPaymentPipeline(t *testing.T) {
	g, err := New(PaymentPipeline()...)
	require.NoError(t, err)

	assert.Equal(t, "planner", g.EntryRole().Name)
	assert.Len(t, g.Roles(), 9)

	// The canonical workflow edges.
	assert.True(t, g.IsLegalHandoff("planner", "seller_finder"))
	assert.True(t, g.IsLegalHandoff("seller_finder", "kya_agent"))
	assert.True(t, g.IsLegalHandoff("kya_agent", "token_decoder"))
	assert.True(t, g.IsLegalHandoff("token_decoder", "connector"))
	assert.True(t, g.IsLegalHandoff("token_decoder", "executor"))
	assert.True(t, g.IsLegalHandoff("connector", "price_calculator"))
	assert.True(t, g.IsLegalHandoff("price_calculator", "payment_agent"))
	assert.True(t, g.IsLegalHandoff("payment_agent", "token_decoder"))
	assert.True(t, g.IsLegalHandoff("executor", "charger"))
	assert.True(t, g.IsLegalHandoff("charger", "planner"))

	// Shortcuts the original workflow never allowed.
	assert.False(t, g.IsLegalHandoff("planner", "executor"))
	assert.False(t, g.IsLegalHandoff("seller_finder", "charger"))

	assert.True(t, g.IsTerminal("planner"))
	assert.False(t, g.IsTerminal("executor"))

	assert.ElementsMatch(t,
		[]string{"real-time-search", "stock-market-data", "research-papers-search", "sports-news"},
		g.CapabilitiesOf("executor"))

	// Every instruction names the tools its role may call.
	sf, _ := g.Role("seller_finder")
	assert.Contains(t, sf.Instruction, "find-sellers")
	pa, _ := g.Role("payment_agent")
	assert.Contains(t, pa.Instruction, "0.00001")
}
