package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCtx() *core.ToolContext {
	return core.NewToolContext(context.Background(), "sess_1", "turn_1", "payment_agent", "call_1", logging.NoOpLogger{})
}

func chargeParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"token":        map[string]any{"type": "string"},
			"chargeAmount": map[string]any{"type": "number"},
		},
		"required":             []string{"token", "chargeAmount"},
		"additionalProperties": false,
	}
}

// -------------------- Func Tests --------------------

func TestFunc_Success(t *testing.T) {
	charge, err := NewFunc("charge-token", "Charge a payment token", chargeParams(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return map[string]any{"charged": args["chargeAmount"]}, nil
		})
	require.NoError(t, err)

	result, err := charge.Call(toolCtx(), map[string]any{"token": "a.b.c", "chargeAmount": 0.007})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"charged": 0.007}, result)
}

func TestFunc_ValidationError(t *testing.T) {
	charge := MustFunc("charge-token", "Charge a payment token", chargeParams(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			t.Fatal("handler must not run on invalid args")
			return nil, nil
		})

	_, err := charge.Call(toolCtx(), map[string]any{"token": "a.b.c"})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok, "expected *ToolError, got %T", err)
	assert.Equal(t, CodeInvalidArguments, toolErr.Code)
	assert.Equal(t, "charge-token", toolErr.Tool)
}

func TestFunc_RejectsUnknownArguments(t *testing.T) {
	charge := MustFunc("charge-token", "Charge a payment token", chargeParams(),
		func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil })

	_, err := charge.Call(toolCtx(), map[string]any{
		"token": "a.b.c", "chargeAmount": 0.1, "extra": true,
	})
	require.Error(t, err)
	toolErr := err.(*ToolError)
	assert.Equal(t, CodeInvalidArguments, toolErr.Code)
}

func TestFunc_ExecutionError(t *testing.T) {
	boom := MustFunc("find-sellers", "Search seller services", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("upstream unavailable")
		})

	_, err := boom.Call(toolCtx(), nil)
	require.Error(t, err)
	toolErr := err.(*ToolError)
	assert.Equal(t, CodeExecutionFailed, toolErr.Code)
	assert.Equal(t, "upstream unavailable", toolErr.Message)
}

func TestFunc_PreservesToolError(t *testing.T) {
	custom := MustFunc("decode-token", "Decode a JWT", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, NewToolError("decode-token", "malformed token", "DECODE_ERROR")
		})

	_, err := custom.Call(toolCtx(), nil)
	toolErr := err.(*ToolError)
	assert.Equal(t, "DECODE_ERROR", toolErr.Code)
}

func TestNewFunc_InvalidConstruction(t *testing.T) {
	_, err := NewFunc("", "no name", nil, func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil })
	assert.True(t, core.IsKind(err, core.KindConfiguration))

	_, err = NewFunc("no-impl", "nil fn", nil, nil)
	assert.True(t, core.IsKind(err, core.KindConfiguration))
}

func TestFunc_DisplayName(t *testing.T) {
	labeled := MustFunc("find-sellers", "Search seller services", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil },
		func(o *FuncOptions) { o.DisplayName = "Find Sellers" })
	assert.Equal(t, "Find Sellers", labeled.DisplayName())

	plain := MustFunc("estimate-cost", "Estimate query cost", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil })
	assert.Equal(t, "estimate-cost", plain.DisplayName())
}

// -------------------- Registry Tests --------------------

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	charge := MustFunc("charge-token", "Charge a payment token", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) { return "ok", nil },
		func(o *FuncOptions) { o.DisplayName = "Charge Token" })
	require.NoError(t, r.Register(charge))

	assert.True(t, r.Has("charge-token"))
	assert.False(t, r.Has("refund-token"))
	assert.Equal(t, []string{"charge-token"}, r.Names())
	assert.Equal(t, "Charge Token", r.DisplayName("charge-token"))
	assert.Equal(t, "refund-token", r.DisplayName("refund-token"))

	got, ok := r.Lookup("charge-token")
	require.True(t, ok)
	assert.Equal(t, "charge-token", got.Name())
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	mk := func() Tool {
		return MustFunc("fetch-pricing", "Fetch the pricing catalog", nil,
			func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil })
	}
	require.NoError(t, r.Register(mk()))
	err := r.Register(mk())
	assert.True(t, core.IsKind(err, core.KindConfiguration))
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(MustFunc("estimate-cost", "Estimate query cost", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			assert.Equal(t, "sess_9", tc.SessionID)
			assert.Equal(t, "price_calculator", tc.Agent)
			return 0.014, nil
		})))

	ctx := WithCallInfo(context.Background(), CallInfo{
		SessionID: "sess_9",
		TurnID:    "turn_3",
		Agent:     "price_calculator",
		CallID:    "call_7",
	})
	result, err := r.Invoke(ctx, "estimate-cost", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.014, result)
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "no-such-tool", nil, 0)
	assert.True(t, core.IsKind(err, core.KindConfiguration))
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(MustFunc("real-time-search", "Run a real time search", nil,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			select {
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		})))

	start := time.Now()
	_, err := r.Invoke(context.Background(), "real-time-search", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok, "expected *ToolError, got %T", err)
	assert.Equal(t, CodeTimeout, toolErr.Code)
}

func TestRegistry_DefinitionsFor(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll(
		MustFunc("find-sellers", "Search seller services", nil,
			func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil }),
		MustFunc("create-kya-token", "Create a KYA token", nil,
			func(tc *core.ToolContext, args map[string]any) (any, error) { return nil, nil }),
	))

	defs := r.DefinitionsFor([]string{"create-kya-token", "find-sellers"})
	require.Len(t, defs, 2)
	assert.Equal(t, "create-kya-token", defs[0].Name)
	assert.Equal(t, "find-sellers", defs[1].Name)
}

// -------------------- Handoff Tests --------------------

func TestHandoffDefinition(t *testing.T) {
	def := HandoffDefinition([]string{"seller_finder", "executor"})
	assert.Equal(t, HandoffToolName, def.Name)

	props := def.Parameters["properties"].(map[string]any)
	target := props["agent_name"].(map[string]any)
	assert.Equal(t, []any{"executor", "seller_finder"}, target["enum"])
}

func TestHandoffTarget(t *testing.T) {
	target, err := HandoffTarget(map[string]any{"agent_name": "kya_agent"})
	require.NoError(t, err)
	assert.Equal(t, "kya_agent", target)

	_, err = HandoffTarget(map[string]any{})
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = HandoffTarget(map[string]any{"agent_name": 42})
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestToolErrorFormatting(t *testing.T) {
	withCode := NewToolError("charge-token", "insufficient balance", CodeExecutionFailed)
	assert.Contains(t, withCode.Error(), "charge-token")
	assert.Contains(t, withCode.Error(), CodeExecutionFailed)

	noCode := &ToolError{Tool: "charge-token", Message: "insufficient balance"}
	assert.Equal(t, "tool error in charge-token: insufficient balance", noCode.Error())
}
