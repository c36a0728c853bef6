// Package graph defines the agent topology as data: named roles with
// instructions, tool capabilities and legal handoff edges. The
// orchestration loop consults the graph for every transition, so an
// illegal handoff or an undeclared capability is caught structurally
// instead of by convention.
package graph

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
)

// Role describes one agent in the graph. Roles are plain data; behavior
// differences between agents come entirely from Instruction,
// Capabilities and Handoffs.
type Role struct {
	// Name is the unique role identifier (snake_case, appears on events).
	Name string
	// DisplayName is a human-friendly label for logs and UIs.
	DisplayName string
	// Description summarizes the role's job in one line.
	Description string
	// Instruction is the system prompt template. It may reference turn
	// facts like {{.SessionID}} and is rendered per hop.
	Instruction string
	// Capabilities lists the tool names this role may invoke. Requests
	// outside this set are capability violations.
	Capabilities []string
	// Handoffs lists the roles this one may transfer control to.
	Handoffs []string
	// Entry marks the role that receives the first turn of a session.
	// Exactly one role must set it.
	Entry bool
	// Terminal marks a role expected to finish turns. A role with no
	// outgoing edges is terminal regardless of this flag.
	Terminal bool
}

func (r Role) clone() Role {
	c := r
	c.Capabilities = append([]string(nil), r.Capabilities...)
	c.Handoffs = append([]string(nil), r.Handoffs...)
	return c
}

// Graph is an immutable, validated role topology.
type Graph struct {
	roles map[string]Role
	order []string
	entry string
}

// New validates the role set and builds a Graph. It rejects duplicate or
// empty role names, requires exactly one entry role and requires every
// handoff edge to target a defined role.
func New(roles ...Role) (*Graph, error) {
	if len(roles) == 0 {
		return nil, core.Errorf(core.KindConfiguration, "graph requires at least one role")
	}

	g := &Graph{
		roles: make(map[string]Role, len(roles)),
		order: make([]string, 0, len(roles)),
	}

	for _, r := range roles {
		if r.Name == "" {
			return nil, core.Errorf(core.KindConfiguration, "graph role without a name")
		}
		if _, exists := g.roles[r.Name]; exists {
			return nil, core.Errorf(core.KindConfiguration, "duplicate role name %q", r.Name)
		}
		g.roles[r.Name] = r.clone()
		g.order = append(g.order, r.Name)

		if r.Entry {
			if g.entry != "" {
				return nil, core.Errorf(core.KindConfiguration, "multiple entry roles: %q and %q", g.entry, r.Name)
			}
			g.entry = r.Name
		}
	}

	if g.entry == "" {
		return nil, core.Errorf(core.KindConfiguration, "graph has no entry role")
	}

	for _, name := range g.order {
		for _, target := range g.roles[name].Handoffs {
			if _, ok := g.roles[target]; !ok {
				return nil, core.Errorf(core.KindConfiguration, "role %q hands off to undefined role %q", name, target)
			}
		}
	}

	return g, nil
}

// Bind verifies every declared capability against the registry so an
// unknown tool name fails startup instead of a turn. All violations are
// reported together.
func (g *Graph) Bind(reg *tool.Registry) error {
	var result *multierror.Error
	for _, name := range g.order {
		for _, capability := range g.roles[name].Capabilities {
			if !reg.Has(capability) {
				result = multierror.Append(result, fmt.Errorf("role %q declares unknown tool %q", name, capability))
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return core.WrapError(core.KindConfiguration, err, "graph capabilities failed binding")
	}
	return nil
}

// EntryRole returns the role that receives the first turn of a session.
func (g *Graph) EntryRole() Role {
	return g.roles[g.entry].clone()
}

// Role returns the named role.
func (g *Graph) Role(name string) (Role, bool) {
	r, ok := g.roles[name]
	if !ok {
		return Role{}, false
	}
	return r.clone(), true
}

// Roles returns all roles in declaration order.
func (g *Graph) Roles() []Role {
	out := make([]Role, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.roles[name].clone())
	}
	return out
}

// IsLegalHandoff reports whether from declares an edge to to.
func (g *Graph) IsLegalHandoff(from, to string) bool {
	r, ok := g.roles[from]
	if !ok {
		return false
	}
	for _, target := range r.Handoffs {
		if target == to {
			return true
		}
	}
	return false
}

// CapabilitiesOf returns the tool names the role may invoke. Unknown
// roles have no capabilities.
func (g *Graph) CapabilitiesOf(role string) []string {
	r, ok := g.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Capabilities...)
}

// HandoffsOf returns the legal transfer targets of the role.
func (g *Graph) HandoffsOf(role string) []string {
	r, ok := g.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Handoffs...)
}

// IsTerminal reports whether the role is expected to finish turns, either
// explicitly or because it has no outgoing edges.
func (g *Graph) IsTerminal(role string) bool {
	r, ok := g.roles[role]
	if !ok {
		return false
	}
	return r.Terminal || len(r.Handoffs) == 0
}
