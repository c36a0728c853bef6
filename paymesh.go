// Package paymesh provides a high-level façade over the payment-orchestrated
// agent pipeline: a role graph walked by the orchestration runner, Skyfire
// payment tools, Dappier marketplace tools and a bounded session registry.
// Most applications interact with this package by:
//  1. Creating a PayMesh via New() (optionally overriding config, model or clients)
//  2. Creating a session and submitting user turns (Chat for streamed events,
//     ChatSync for a buffered aggregate)
//  3. Closing the instance on shutdown
//
// All defaults are safe for local development: without API keys the Skyfire
// and Dappier clients fabricate deterministic mock payloads, so the full
// ten-step payment workflow runs end to end offline.
package paymesh

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/paymesh/config"
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/dappier"
	"github.com/hupe1980/paymesh/graph"
	"github.com/hupe1980/paymesh/logging"
	"github.com/hupe1980/paymesh/metrics"
	"github.com/hupe1980/paymesh/model"
	anthropicmodel "github.com/hupe1980/paymesh/model/anthropic"
	openaimodel "github.com/hupe1980/paymesh/model/openai"
	"github.com/hupe1980/paymesh/runner"
	"github.com/hupe1980/paymesh/session"
	"github.com/hupe1980/paymesh/skyfire"
	"github.com/hupe1980/paymesh/stream"
	"github.com/hupe1980/paymesh/tool"
)

// Options configures the PayMesh instance.
type Options struct {
	// Config supplies every tunable. Nil means config.DefaultConfig().
	Config *config.Config

	// Roles overrides the agent graph. Nil means graph.PaymentPipeline().
	Roles []graph.Role

	// Model overrides the provider the config would build. Useful for
	// driving the pipeline with a scripted model in tests.
	Model model.Model

	// SkyfireClient overrides the payment network client.
	SkyfireClient *skyfire.Client

	// DappierClient overrides the marketplace client.
	DappierClient *dappier.Client

	// Catalog overrides the marketplace pricing catalog.
	Catalog *dappier.Catalog

	// ExtraTools are registered on top of the payment and marketplace
	// tool set, for callers extending the graph with custom roles.
	ExtraTools []tool.Tool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Metrics receives occupancy, turn and tool observations. Nil means
	// a fresh collector.
	Metrics *metrics.Metrics
}

// PayMesh is the high-level façade aggregating the pipeline graph, the
// payment and marketplace clients, the session registry and the runner.
type PayMesh struct {
	opts     Options
	cfg      *config.Config
	graph    *graph.Graph
	tools    *tool.Registry
	model    model.Model
	sessions *session.Registry
	runner   *runner.Runner
	metrics  *metrics.Metrics

	skyfireClient *skyfire.Client
	dappierClient *dappier.Client
	catalog       *dappier.Catalog
	ownsCatalog   bool
}

// New assembles a PayMesh instance. Any unset override falls back to what
// the config describes; clients without API keys run in mock mode.
func New(optFns ...func(o *Options)) (*PayMesh, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	met := opts.Metrics
	if met == nil {
		met = metrics.New()
	}

	mdl := opts.Model
	if mdl == nil {
		var err error
		if mdl, err = buildModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	skyfireClient := opts.SkyfireClient
	if skyfireClient == nil {
		skyfireClient = skyfire.NewClient(func(o *skyfire.ClientOptions) {
			o.APIKey = cfg.Skyfire.APIKey
			o.BaseURL = cfg.Skyfire.BaseURL
			o.Mock = cfg.Skyfire.Mock || cfg.Skyfire.APIKey == ""
			o.Logger = opts.Logger
		})
	}

	dappierClient := opts.DappierClient
	if dappierClient == nil {
		dappierClient = dappier.NewClient(func(o *dappier.ClientOptions) {
			o.APIKey = cfg.Dappier.APIKey
			o.Mock = cfg.Dappier.Mock || cfg.Dappier.APIKey == ""
			o.Logger = opts.Logger
		})
	}

	catalog := opts.Catalog
	ownsCatalog := false

	if catalog == nil {
		var err error

		catalog, err = dappier.NewCatalog(func(o *dappier.CatalogOptions) {
			o.Path = cfg.Dappier.CatalogPath
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, err
		}

		ownsCatalog = true

		if cfg.Dappier.CatalogPath != "" {
			if err := catalog.Watch(); err != nil {
				return nil, err
			}
		}
	}

	tools := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Logger = opts.Logger
	})

	if err := tools.RegisterAll(skyfire.Tools(skyfireClient)...); err != nil {
		return nil, err
	}

	if err := tools.RegisterAll(dappier.Tools(dappierClient, catalog)...); err != nil {
		return nil, err
	}

	if err := tools.RegisterAll(opts.ExtraTools...); err != nil {
		return nil, err
	}

	roles := opts.Roles
	if roles == nil {
		roles = graph.PaymentPipeline()
	}

	g, err := graph.New(roles...)
	if err != nil {
		return nil, err
	}

	sessions := session.NewRegistry(func(o *session.Options) {
		o.MaxSessions = cfg.Sessions.MaxSessions
		o.IdleTimeout = cfg.Sessions.IdleTimeout
		o.SweepInterval = cfg.Sessions.SweepInterval
		o.MaintenanceSchedule = cfg.Sessions.MaintenanceSchedule
		o.Logger = opts.Logger
		o.Metrics = met
	})

	r, err := runner.New(g, tools, mdl, sessions, func(o *runner.Options) {
		o.MaxHops = cfg.Runner.MaxHops
		o.ToolTimeout = cfg.Runner.ToolTimeout
		o.MaxHistoryMessages = cfg.Runner.MaxHistoryMessages
		o.EventBufferSize = cfg.Runner.EventBuffer
		o.Logger = opts.Logger
		o.Metrics = met
	})
	if err != nil {
		return nil, err
	}

	if err := sessions.Start(context.Background()); err != nil {
		return nil, err
	}

	return &PayMesh{
		opts:          opts,
		cfg:           cfg,
		graph:         g,
		tools:         tools,
		model:         mdl,
		sessions:      sessions,
		runner:        r,
		metrics:       met,
		skyfireClient: skyfireClient,
		dappierClient: dappierClient,
		catalog:       catalog,
		ownsCatalog:   ownsCatalog,
	}, nil
}

// Chat submits a user turn and returns the turn id plus live event and
// error channels. Both channels close when the turn ends.
func (m *PayMesh) Chat(ctx context.Context, sessionID, message string) (string, <-chan core.Event, <-chan error, error) {
	return m.runner.Run(ctx, sessionID, message)
}

// ChatSync submits a user turn and drains the event channels into a
// buffered aggregate. The returned error covers turn admission only;
// failures during the turn land in Aggregate.Error.
func (m *PayMesh) ChatSync(ctx context.Context, sessionID, message string) (stream.Aggregate, error) {
	turnID, events, errs, err := m.runner.Run(ctx, sessionID, message)
	if err != nil {
		return stream.Aggregate{}, err
	}

	return stream.Collect(sessionID, turnID, events, errs), nil
}

// Cancel aborts a running turn. The in-flight tool call, if any,
// completes before the turn winds down.
func (m *PayMesh) Cancel(turnID string) error {
	return m.runner.Cancel(turnID)
}

// NewSession allocates a fresh session.
func (m *PayMesh) NewSession(ctx context.Context) (*core.Session, error) {
	return m.sessions.Create(ctx)
}

// Session returns a live session by id.
func (m *PayMesh) Session(id string) (*core.Session, error) {
	return m.sessions.Get(id)
}

// DeleteSession removes a session in any state. Idempotent.
func (m *PayMesh) DeleteSession(id string) {
	m.sessions.Delete(id)
}

// Sessions returns a snapshot of every session, most recently active first.
func (m *PayMesh) Sessions() []core.SessionSnapshot {
	return m.sessions.Snapshots()
}

// SessionStats returns registry occupancy counts and lifetime counters.
func (m *PayMesh) SessionStats() session.Stats {
	return m.sessions.Stats()
}

// Sweep removes every session idle past the timeout, returning how many
// were removed.
func (m *PayMesh) Sweep() int {
	return m.sessions.Sweep()
}

// Metrics exposes the collector, mainly for mounting its HTTP handler.
func (m *PayMesh) Metrics() *metrics.Metrics {
	return m.metrics
}

// Config returns the effective configuration.
func (m *PayMesh) Config() *config.Config {
	return m.cfg
}

// RoleStatus describes one role's wiring in the status report.
type RoleStatus struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Capabilities []string `json:"capabilities,omitempty"`
	Handoffs     []string `json:"handoffs,omitempty"`
	Entry        bool     `json:"entry,omitempty"`
	Terminal     bool     `json:"terminal,omitempty"`
}

// Status reports how the pipeline is wired.
type Status struct {
	Ready       bool         `json:"ready"`
	Entry       string       `json:"entry"`
	Roles       []RoleStatus `json:"roles"`
	Tools       []string     `json:"tools"`
	Model       model.Info   `json:"model"`
	SkyfireMock bool         `json:"skyfire_mock"`
	DappierMock bool         `json:"dappier_mock"`
}

// Status describes the graph, the registered tools and the model wiring.
// Construction already validated all of it, so a live instance reports
// ready.
func (m *PayMesh) Status() Status {
	roles := m.graph.Roles()

	report := Status{
		Ready:       true,
		Entry:       m.graph.EntryRole().Name,
		Roles:       make([]RoleStatus, 0, len(roles)),
		Tools:       m.tools.Names(),
		Model:       m.model.Info(),
		SkyfireMock: m.skyfireClient.Mock(),
		DappierMock: m.dappierClient.Mock(),
	}

	for _, role := range roles {
		report.Roles = append(report.Roles, RoleStatus{
			Name:         role.Name,
			DisplayName:  role.DisplayName,
			Capabilities: role.Capabilities,
			Handoffs:     role.Handoffs,
			Entry:        role.Entry,
			Terminal:     role.Terminal,
		})
	}

	return report
}

// Close stops the session janitor and the catalog watcher. Errors from
// the individual components are aggregated.
func (m *PayMesh) Close() error {
	var result *multierror.Error

	if err := m.sessions.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if m.ownsCatalog {
		if err := m.catalog.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// buildModel constructs the provider the config names.
func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		}), nil
	case "mock":
		return model.NewMockModel(cfg.Name, "mock"), nil
	default:
		return nil, core.Errorf(core.KindConfiguration, "unknown model provider %q", cfg.Provider)
	}
}
