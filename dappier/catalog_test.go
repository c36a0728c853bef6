package dappier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paymesh/core"
)

func TestCatalog_EmbeddedDefaults(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)
	defer catalog.Close()

	assert.Len(t, catalog.Snapshot(), 10)

	price, ok := catalog.Price("stock-market-data")
	require.True(t, ok)
	assert.Equal(t, 0.007, price)

	price, ok = catalog.Price("real-time-search")
	require.True(t, ok)
	assert.Equal(t, 0.0, price)

	_, ok = catalog.Price("no-such-model")
	assert.False(t, ok)

	models := catalog.Models()
	assert.Equal(t, "benzinga", models[0])
	assert.Contains(t, models, "wish-tv-ai")
}

func TestCatalog_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"toolName":"custom-model","pricePerQuery":0.5,"currency":"USD"}]`), 0644))

	catalog, err := NewCatalog(func(o *CatalogOptions) { o.Path = path })
	require.NoError(t, err)
	defer catalog.Close()

	price, ok := catalog.Price("custom-model")
	require.True(t, ok)
	assert.Equal(t, 0.5, price)

	_, ok = catalog.Price("stock-market-data")
	assert.False(t, ok, "file override replaces the embedded catalog")
}

func TestCatalog_InvalidOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := NewCatalog(func(o *CatalogOptions) { o.Path = path })
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))

	_, err = NewCatalog(func(o *CatalogOptions) { o.Path = filepath.Join(dir, "missing.json") })
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestCatalog_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"toolName":"hot-model","pricePerQuery":0.1,"currency":"USD"}]`), 0644))

	catalog, err := NewCatalog(func(o *CatalogOptions) {
		o.Path = path
		o.ReloadDebounce = 20 * time.Millisecond
	})
	require.NoError(t, err)
	defer catalog.Close()

	require.NoError(t, catalog.Watch())

	require.NoError(t, os.WriteFile(path, []byte(`[{"toolName":"hot-model","pricePerQuery":0.9,"currency":"USD"}]`), 0644))

	require.Eventually(t, func() bool {
		price, ok := catalog.Price("hot-model")
		return ok && price == 0.9
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCatalog_ReloadKeepsPricesOnBrokenWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"toolName":"hot-model","pricePerQuery":0.1,"currency":"USD"}]`), 0644))

	catalog, err := NewCatalog(func(o *CatalogOptions) {
		o.Path = path
		o.ReloadDebounce = 20 * time.Millisecond
	})
	require.NoError(t, err)
	defer catalog.Close()

	require.NoError(t, catalog.Watch())

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))

	// The broken write must not clear the catalog.
	time.Sleep(200 * time.Millisecond)
	price, ok := catalog.Price("hot-model")
	require.True(t, ok)
	assert.Equal(t, 0.1, price)
}

func TestCatalog_CloseIdempotent(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	assert.NoError(t, catalog.Close())
	assert.NoError(t, catalog.Close())
}

func TestCatalog_Estimate(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)
	defer catalog.Close()

	estimate, err := catalog.Estimate(map[string]int{
		"stock-market-data": 2,
		"sports-news":       1,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.018, estimate.Total, 1e-9)
	assert.Equal(t, "USD", estimate.Currency)
	require.Len(t, estimate.Items, 2)

	// Items come back in sorted model order.
	assert.Equal(t, "sports-news", estimate.Items[0].Model)
	assert.Equal(t, 1, estimate.Items[0].Calls)
	assert.InDelta(t, 0.004, estimate.Items[0].Subtotal, 1e-9)
	assert.Equal(t, "stock-market-data", estimate.Items[1].Model)
	assert.InDelta(t, 0.014, estimate.Items[1].Subtotal, 1e-9)
}

func TestCatalog_EstimateValidation(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)
	defer catalog.Close()

	_, err = catalog.Estimate(map[string]int{"no-such-model": 1})
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, err = catalog.Estimate(map[string]int{"sports-news": 0})
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}
