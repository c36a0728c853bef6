// Package dappier integrates the Dappier data marketplace: the per-query
// pricing catalog, the authenticated service connection, cost estimation
// and the paid search tools the executor role runs.
package dappier

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
)

//go:embed pricing.json
var defaultPricing []byte

// PriceEntry is one marketplace model with its per-query price.
type PriceEntry struct {
	ToolName      string  `json:"toolName"`
	PricePerQuery float64 `json:"pricePerQuery"`
	Currency      string  `json:"currency"`
}

// CostItem is the line item for one model in a cost estimate.
type CostItem struct {
	Model         string  `json:"model"`
	Calls         int     `json:"calls"`
	PricePerQuery float64 `json:"pricePerQuery"`
	Subtotal      float64 `json:"subtotal"`
}

// CostEstimate sums expected per-query charges across models.
type CostEstimate struct {
	Items    []CostItem `json:"items"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
}

// CatalogOptions configure the pricing catalog.
type CatalogOptions struct {
	// Path overrides the embedded pricing with a JSON file. The file is
	// hot-reloaded when Watch is running.
	Path string
	// ReloadDebounce coalesces rapid writes before a reload.
	ReloadDebounce time.Duration
	// Logger receives reload lifecycle logs.
	Logger logging.Logger
}

// Catalog holds marketplace pricing. It starts from the embedded default
// and may be overridden by a JSON file, which Watch keeps current.
type Catalog struct {
	mu      sync.RWMutex
	entries []PriceEntry
	byName  map[string]PriceEntry

	path     string
	debounce time.Duration
	logger   logging.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewCatalog loads the pricing catalog. A configured path that cannot be
// read or parsed fails construction rather than serving stale prices.
func NewCatalog(optFns ...func(o *CatalogOptions)) (*Catalog, error) {
	opts := CatalogOptions{
		ReloadDebounce: 100 * time.Millisecond,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Catalog{
		path:     opts.Path,
		debounce: opts.ReloadDebounce,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}

	if err := c.setEntries(defaultPricing); err != nil {
		return nil, core.WrapError(core.KindConfiguration, err, "embedded pricing catalog is invalid")
	}
	if opts.Path != "" {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, core.WrapError(core.KindConfiguration, err, "failed to read pricing catalog %s", opts.Path)
		}
		if err := c.setEntries(raw); err != nil {
			return nil, core.WrapError(core.KindConfiguration, err, "failed to parse pricing catalog %s", opts.Path)
		}
	}
	return c, nil
}

// Price returns the per-query USD price for a marketplace model.
func (c *Catalog) Price(model string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.byName[model]
	if !ok {
		return 0, false
	}
	return entry.PricePerQuery, true
}

// Models returns the known model names in sorted order.
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every catalog entry.
func (c *Catalog) Snapshot() []PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PriceEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Estimate sums price times expected calls for the given usage plan.
// Unknown models and non-positive call counts are validation errors.
func (c *Catalog) Estimate(usage map[string]int) (*CostEstimate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make([]string, 0, len(usage))
	for model := range usage {
		models = append(models, model)
	}
	sort.Strings(models)

	estimate := &CostEstimate{Currency: "USD"}
	for _, model := range models {
		calls := usage[model]
		if calls <= 0 {
			return nil, core.Errorf(core.KindValidation, "call count for %q must be positive, got %d", model, calls)
		}
		entry, ok := c.byName[model]
		if !ok {
			return nil, core.Errorf(core.KindValidation, "unknown marketplace model %q", model)
		}

		subtotal := entry.PricePerQuery * float64(calls)
		estimate.Items = append(estimate.Items, CostItem{
			Model:         model,
			Calls:         calls,
			PricePerQuery: entry.PricePerQuery,
			Subtotal:      subtotal,
		})
		estimate.Total += subtotal
	}
	return estimate, nil
}

// Watch hot-reloads the catalog when the override file changes. It is a
// no-op without a configured path. The watch covers the parent directory
// so editor save-by-rename still triggers a reload.
func (c *Catalog) Watch() error {
	if c.path == "" {
		return nil
	}
	if c.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return core.WrapError(core.KindConfiguration, err, "failed to create catalog watcher")
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		_ = watcher.Close()
		return core.WrapError(core.KindConfiguration, err, "failed to watch %s", filepath.Dir(c.path))
	}

	c.watcher = watcher
	go c.eventLoop()

	c.logger.Info("dappier.catalog.watching", "path", c.path)
	return nil
}

// Close stops the watcher. Idempotent.
func (c *Catalog) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.done)

		c.timerMu.Lock()
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timerMu.Unlock()

		if c.watcher != nil {
			err = c.watcher.Close()
		}
	})
	return err
}

func (c *Catalog) eventLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			c.scheduleReload()

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("dappier.catalog.watch_error", "error", err)

		case <-c.done:
			return
		}
	}
}

// scheduleReload debounces bursts of writes into a single reload.
func (c *Catalog) scheduleReload() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		select {
		case <-c.done:
			return
		default:
			c.reload()
		}
	})
}

// reload swaps in the file contents; a broken write keeps current prices.
func (c *Catalog) reload() {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		c.logger.Error("dappier.catalog.reload_failed", "path", c.path, "error", err)
		return
	}
	if err := c.setEntries(raw); err != nil {
		c.logger.Error("dappier.catalog.reload_failed", "path", c.path, "error", err)
		return
	}
	c.logger.Info("dappier.catalog.reloaded", "path", c.path, "models", len(c.Models()))
}

func (c *Catalog) setEntries(raw []byte) error {
	var entries []PriceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	byName := make(map[string]PriceEntry, len(entries))
	for _, entry := range entries {
		byName[entry.ToolName] = entry
	}

	c.mu.Lock()
	c.entries = entries
	c.byName = byName
	c.mu.Unlock()
	return nil
}
