package tool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
)

// Compile-time check that Registry satisfies the invocation contract.
var _ core.ToolInvoker = (*Registry)(nil)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives invocation lifecycle logs for calls whose context
	// does not carry its own logger.
	Logger logging.Logger
}

// Registry holds the fixed set of tools available to the orchestration
// loop and implements core.ToolInvoker. Registration happens during
// startup; after that the registry is read-only and safe for concurrent
// invocation across sessions.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: opts.Logger,
	}
}

// Register adds a tool. Duplicate names are a configuration error.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return core.Errorf(core.KindConfiguration, "cannot register a nil tool")
	}
	name := t.Name()
	if name == "" {
		return core.Errorf(core.KindConfiguration, "cannot register a tool without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return core.Errorf(core.KindConfiguration, "tool %q is already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// RegisterAll registers every tool, stopping at the first failure.
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DisplayName returns the display label for name, or name itself when
// the tool is unknown or carries no label. The handoff pseudo-tool is
// resolved even though it is never registered.
func (r *Registry) DisplayName(name string) string {
	if name == HandoffToolName {
		return HandoffDisplayName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		if dn := t.DisplayName(); dn != "" {
			return dn
		}
	}
	return name
}

// DefinitionsFor returns the function declarations for the named tools
// in the given order. Unknown names are skipped; graph binding
// guarantees they cannot occur for declared capabilities.
func (r *Registry) DefinitionsFor(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Invoke executes the named tool with the given arguments, bounding the
// call with timeout when positive. Call identity (session, turn, agent,
// call id) travels on ctx via WithCallInfo; absent info yields a
// context with empty identifiers, which keeps Invoke usable from tests
// and one-off callers.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, timeout time.Duration) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, core.Errorf(core.KindConfiguration, "unknown tool %q", name)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	info, _ := CallInfoFrom(ctx)
	logger := info.Logger
	if logger == nil {
		logger = r.logger
	}
	toolCtx := core.NewToolContext(ctx, info.SessionID, info.TurnID, info.Agent, info.CallID, logger)

	result, err := t.Call(toolCtx, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr == context.DeadlineExceeded {
			return nil, &ToolError{
				Tool:    name,
				Message: "execution exceeded the configured timeout",
				Code:    CodeTimeout,
			}
		}
		return nil, err
	}
	return result, nil
}

// CallInfo identifies the originating call when a tool invocation
// crosses the ToolInvoker boundary.
type CallInfo struct {
	SessionID string
	TurnID    string
	Agent     string
	CallID    string
	Logger    logging.Logger
}

type callInfoKey struct{}

// WithCallInfo attaches call identity to ctx for a Registry.Invoke.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom extracts the call identity attached by WithCallInfo.
func CallInfoFrom(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
