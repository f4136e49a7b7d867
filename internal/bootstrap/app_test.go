package bootstrap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/api"
	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

const fixtures = `
items:
  - external_id: ext-1
    sku: SKU-1
    title: Vintage lamp
    price: "39.99"
    photos: [a.jpg, b.jpg]
    views: 2
    days_active: 70
incoming_offers:
  - offer_id: o-1
    buyer_id: b-1
    amount: "30.00"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newApp(t *testing.T, extraYAML string) *bootstrap.App {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", writeFile(t, dir, "empty.env", ""))

	fixturesPath := writeFile(t, dir, "fixtures.yml", fixtures)
	cfgPath := writeFile(t, dir, "config.yml", `
logger:
  level: error
marketplace:
  mode: mock
  fixtures_path: `+fixturesPath+`
`+extraYAML)

	app, err := bootstrap.New(context.Background(), bootstrap.Options{
		ConfigPath: cfgPath,
		Version:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNew_MemoryStack(t *testing.T) {
	app := newApp(t, "")

	assert.Nil(t, app.Storage.DB)
	assert.Nil(t, app.Redis)
	assert.IsType(t, &claim.MemoryLocker{}, app.Locker)
	require.NotNil(t, app.Marketplace.Mock)
	assert.Nil(t, app.Marketplace.REST)

	item, ok := app.Marketplace.Mock.Item("ext-1")
	require.True(t, ok)
	assert.Equal(t, 70, item.DaysActive)

	entries := app.Services.Registry.List()
	require.Len(t, entries, 9)
	schedules := make(map[string]string, len(entries))
	for _, e := range entries {
		schedules[e.Job.Name()] = e.Schedule
	}
	assert.Equal(t, "0 6 * * *", schedules[config.JobScanZombies])
	assert.Equal(t, "0,30 20,21 * * 0", schedules[config.JobReleaseQueue])
	assert.Equal(t, "0 9 * * *", schedules[config.JobShufflePhotos])
	assert.Equal(t, "0 5 * * *", schedules[config.JobStorePulse])
}

func TestNew_JobRunsThroughWiredServices(t *testing.T) {
	app := newApp(t, "")
	ctx := context.Background()

	l, err := app.Services.Listings.Create(ctx, listing.Input{
		SKU:           "SKU-2",
		Title:         "Desk fan",
		PhotoURLs:     []string{"fan.jpg"},
		PurchasePrice: decimal.RequireFromString("10.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		ListPrice:     decimal.RequireFromString("35.00"),
	})
	require.NoError(t, err)

	l, err = app.Services.Listings.Publish(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, l.Status)
	assert.Equal(t, 1, app.Marketplace.Mock.Calls("create_item"))

	result, rec, err := app.Services.Runner.Run(ctx, config.JobScanZombies, orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, result.Scanned)
	assert.Zero(t, result.Errored)

	history, err := app.Storage.Executions.List(ctx, config.JobScanZombies, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Positive(t, app.Marketplace.Budget.Stats().UsedToday)
}

func TestSetupHTTPServer_Health(t *testing.T) {
	app := newApp(t, "")
	server := bootstrap.SetupHTTPServer(app, "test")

	w := httptest.NewRecorder()
	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil)
	server.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, api.HealthStatusHealthy, resp.Status)
	assert.Equal(t, "relister", resp.Service)
	assert.Contains(t, resp.Checks, "database")
	assert.Contains(t, resp.Checks, "marketplace")
	assert.NotContains(t, resp.Checks, "redis")
}

func TestNew_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	app := newApp(t, `
redis:
  enabled: true
  address: `+mr.Addr()+`
`)

	require.NotNil(t, app.Redis)
	require.IsType(t, &claim.RedisLocker{}, app.Locker)

	c, err := app.Locker.TryClaim(context.Background(), claim.ListingKey("l-1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("relister:claim:"+claim.ListingKey("l-1")))
	require.NoError(t, app.Locker.Release(context.Background(), c))

	server := bootstrap.SetupHTTPServer(app, "test")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil))

	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, api.HealthStatusHealthy, resp.Checks["redis"].Status)

	mr.Close()
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.HealthStatusDegraded, resp.Status)
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	dir := t.TempDir()
	t.Setenv("ENV_FILE", writeFile(t, dir, "empty.env", ""))
	cfgPath := writeFile(t, dir, "config.yml", `
logger:
  level: error
redis:
  enabled: true
  address: `+addr+`
`)

	_, err := bootstrap.New(context.Background(), bootstrap.Options{ConfigPath: cfgPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim locker")
}
