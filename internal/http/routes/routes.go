package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/billing-sync/internal/http/handlers"
	"github.com/Dhoini/billing-sync/internal/middleware"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

// DefaultBasePath префикс маршрутов биллинга и webhook
const DefaultBasePath = "/stripe"

// Deps зависимости роутера
type Deps struct {
	Billing  *handlers.BillingHandler
	Webhook  *handlers.WebhookHandler
	Registry *prometheus.Registry
	// Auth если не nil, защищает клиентские маршруты. Webhook всегда публичный.
	Auth     gin.HandlerFunc
	BasePath string
}

// NewRouter создает gin.Engine с middleware и всеми маршрутами
func NewRouter(deps Deps, log *logger.Logger) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, deps, log)
	return router
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, deps Deps, log *logger.Logger) {
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", handlers.Health)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	basePath := deps.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	api := router.Group(basePath)
	{
		api.POST("/webhook", deps.Webhook.HandleStripeWebhook)

		billing := api.Group("")
		if deps.Auth != nil {
			billing.Use(deps.Auth)
		}
		billing.POST("/subscribe", deps.Billing.Subscribe)
		billing.POST("/get-active-subscription", deps.Billing.GetActiveSubscription)
		billing.POST("/generate-invoice", deps.Billing.GenerateInvoice)
		billing.POST("/pay-invoices", deps.Billing.PayInvoices)
	}

	log.Infow("API routes configured", "basePath", basePath, "auth", deps.Auth != nil)
}
