package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/billing-sync/internal/config"
	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = config.EnvTest
	cfg.App.Port = "0"
	cfg.HTTP.BasePath = "/stripe"
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	cfg.Log.Format = "console"
	cfg.Storage.Driver = config.StorageMemory
	cfg.Queue.Driver = config.QueueSync
	cfg.Webhook.ProductSource = config.ProductSourceSnapshot
	cfg.Webhook.VerifySignature = false
	cfg.Webhook.Workers = 1
	cfg.Webhook.QueueSize = 8
	return cfg
}

func deliver(t *testing.T, a *App, payload string) {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestApp_WebhookLifecycle(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	deliver(t, a, `{"type":"customer.created","data":{"object":{"id":"cus_A","email":"a@example.com","name":"A"}}}`)
	deliver(t, a, `{"type":"customer.subscription.created","data":{"object":{
		"id":"sub_1","customer":"cus_A",
		"plan":{"id":"price_1","product":"prod_1","amount":1999},
		"__testProduct":{"name":"Pro"}}}}`)

	rec, err := a.Store.FindOne(ctx, domain.ByEmail("a@example.com"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.Plan)
	assert.Equal(t, domain.PlanState{
		SubscriptionID: "sub_1",
		PriceID:        "price_1",
		ProductID:      "prod_1",
		PlanName:       "Pro",
		PlanPrice:      1999,
	}, *rec.Plan)

	deliver(t, a, `{"type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_A"}}}`)
	rec, err = a.Store.FindOne(ctx, domain.ByEmail("a@example.com"))
	require.NoError(t, err)
	assert.Nil(t, rec.Plan)

	deliver(t, a, `not json at all`)
	deliver(t, a, `{"type":"customer.deleted","data":{"object":{"id":"cus_A"}}}`)
	rec, err = a.Store.FindOne(ctx, domain.ByEmail("a@example.com"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApp_ChannelQueueDrainsOnShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Driver = config.QueueMemory

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)

	deliver(t, a, `{"type":"customer.created","data":{"object":{"id":"cus_B","email":"b@example.com","name":"B"}}}`)
	require.NoError(t, a.Shutdown(context.Background()))

	rec, err := a.Store.FindOne(context.Background(), domain.ByCustomerID("cus_B"))
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestApp_InvalidProductSource(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.ProductSource = "cache"

	var (
		a   *App
		err error
	)
	require.NotPanics(t, func() {
		a, err = New(context.Background(), cfg, logger.NewNop())
	})
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestApp_FailedBuildClosesOpenedComponents(t *testing.T) {
	a := &App{Logger: logger.NewNop()}
	var closed []string
	a.addCloser("first", func(context.Context) error {
		closed = append(closed, "first")
		return nil
	})
	a.addCloser("second", func(context.Context) error {
		closed = append(closed, "second")
		return nil
	})

	require.NoError(t, a.closeAll(context.Background()))
	assert.Equal(t, []string{"second", "first"}, closed)
	assert.Empty(t, a.closers)
}
