// Package tool implements the capability subsystem that lets agent roles
// invoke external operations (payment APIs, marketplace queries, token
// handling) with schema validated arguments and consistent error handling.
//
// Every capability a role can request is a Tool registered with a
// Registry. The registry is the single invocation boundary: graph
// binding verifies declared capabilities against it at startup, and the
// orchestration loop routes every model-requested call through
// Registry.Invoke with a per-call timeout.
package tool

import (
	"fmt"

	"github.com/hupe1980/paymesh/core"
)

// Tool defines one named capability an agent role can invoke.
//
// Tool implementations should:
//   - Use snake_case names matching the function declarations shown to models
//   - Define a JSON schema for their arguments
//   - Be safe for concurrent use across sessions
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// DisplayName returns the human-readable label carried on event
	// streams. Falls back to Name for tools without a friendlier label.
	DisplayName() string

	// Description returns what this tool does, phrased for the LLM that
	// decides when to call it.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with validated arguments. The ToolContext
	// identifies the requesting session, turn, agent and call id.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Definition is the provider-neutral function declaration handed to
// model adapters when assembling a request.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Definitions builds the declarations for a set of tools, preserving order.
func Definitions(tools []Tool) []Definition {
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Error codes carried by ToolError.
const (
	// CodeInvalidArguments marks a schema / argument mismatch.
	CodeInvalidArguments = "VALIDATION_ERROR"
	// CodeExecutionFailed marks a failure inside the tool implementation.
	CodeExecutionFailed = "EXECUTION_ERROR"
	// CodeTimeout marks an invocation that exceeded its per-call timeout.
	CodeTimeout = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
