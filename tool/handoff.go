package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/paymesh/core"
)

// HandoffToolName is the reserved function name a model calls to move
// control to another role. The orchestration loop intercepts it before
// it reaches any registry, validates the target against the declared
// graph edges and performs the transition itself.
const HandoffToolName = "transfer_to_agent"

// HandoffDisplayName labels intercepted handoff calls in logs. Handoff
// calls never appear on the wire stream.
const HandoffDisplayName = "Transfer to Agent"

// handoffArgName is the single argument of the handoff declaration.
const handoffArgName = "agent_name"

// HandoffDefinition builds the function declaration advertised to a
// model for a role with outgoing edges, constrained to the legal
// targets. Targets are sorted so declarations are deterministic.
func HandoffDefinition(targets []string) Definition {
	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)

	enum := make([]any, len(sorted))
	for i, t := range sorted {
		enum[i] = t
	}

	return Definition{
		Name:        HandoffToolName,
		Description: "Transfer the conversation to another agent. Call this when the current agent's work is done and a different agent must continue.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				handoffArgName: map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Name of the agent to hand control to. One of: %v", sorted),
					"enum":        enum,
				},
			},
			"required":             []string{handoffArgName},
			"additionalProperties": false,
		},
	}
}

// IsHandoff reports whether a requested tool call is the reserved
// handoff function.
func IsHandoff(name string) bool { return name == HandoffToolName }

// HandoffTarget extracts the requested target role from handoff call
// arguments. A missing or non-string target is a validation error; the
// legality of the target is the graph's decision, not this function's.
func HandoffTarget(args map[string]any) (string, error) {
	raw, ok := args[handoffArgName]
	if !ok {
		return "", core.Errorf(core.KindValidation, "handoff call is missing %q", handoffArgName)
	}
	target, ok := raw.(string)
	if !ok || target == "" {
		return "", core.Errorf(core.KindValidation, "handoff target must be a non-empty string, got %T", raw)
	}
	return target, nil
}
