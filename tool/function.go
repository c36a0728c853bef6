package tool

import (
	"fmt"
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
	"github.com/xeipuuv/gojsonschema"
)

// HandlerFunc is the implementation signature wrapped by Func. Args have
// already been validated against the declared schema.
type HandlerFunc func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FuncOptions configures optional Func metadata.
type FuncOptions struct {
	// DisplayName is the label carried on event streams. Defaults to the
	// tool name.
	DisplayName string
}

// Func is a generic adapter that exposes a plain Go function as a Tool.
//
// Responsibilities:
//   - Holds a JSON schema describing the accepted arguments, compiled once
//     at construction
//   - Validates model supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with
//     consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A Func has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type Func struct {
	name        string
	displayName string
	description string
	parameters  map[string]any
	schema      *gojsonschema.Schema
	fn          HandlerFunc
}

// NewFunc constructs a Func from an explicit schema and implementation.
// The schema is compiled eagerly; an invalid schema is a configuration
// error and fails construction.
//
// Example:
//
//	chargeTool, err := tool.NewFunc(
//	  "charge-token",
//	  "Charge a payment token for the given amount",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "token":        map[string]any{"type": "string"},
//	      "chargeAmount": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"token", "chargeAmount"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return client.Charge(tc.Context(), args["token"].(string), args["chargeAmount"].(float64))
//	  },
//	)
func NewFunc(
	name, description string,
	parameters map[string]any,
	fn HandlerFunc,
	optFns ...func(o *FuncOptions),
) (*Func, error) {
	opts := FuncOptions{}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	if name == "" {
		return nil, core.Errorf(core.KindConfiguration, "tool name cannot be empty")
	}
	if fn == nil {
		return nil, core.Errorf(core.KindConfiguration, "tool %q has no implementation", name)
	}

	var schema *gojsonschema.Schema
	if parameters != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(parameters))
		if err != nil {
			return nil, core.WrapError(core.KindConfiguration, err, "tool %q has an invalid parameter schema", name)
		}
		schema = compiled
	}

	displayName := opts.DisplayName
	if displayName == "" {
		displayName = name
	}

	return &Func{
		name:        name,
		displayName: displayName,
		description: description,
		parameters:  parameters,
		schema:      schema,
		fn:          fn,
	}, nil
}

// MustFunc is like NewFunc but panics on construction failure. Intended
// for statically declared tools whose schemas are fixed at compile time.
func MustFunc(
	name, description string,
	parameters map[string]any,
	fn HandlerFunc,
	optFns ...func(o *FuncOptions),
) *Func {
	t, err := NewFunc(name, description, parameters, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *Func) Name() string { return t.name }

// DisplayName returns the label carried on event streams.
func (t *Func) DisplayName() string { return t.displayName }

// Description returns the short natural language description exposed to models.
func (t *Func) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *Func) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then
// invokes the underlying function. Validation or execution failures are
// wrapped (or passed through) as *ToolError for uniform downstream
// handling.
func (t *Func) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", toolCtx.CallID)

	if err := t.validate(args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeInvalidArguments,
			Details: err.Error(),
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> just log and forward
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecutionFailed,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (t *Func) validate(args map[string]any) error {
	if t.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
