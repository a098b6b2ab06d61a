package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stockerhq/stocker/internal/cart"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	"github.com/stockerhq/stocker/internal/catalog"
	catalogdomain "github.com/stockerhq/stocker/internal/catalog/domain"
	"github.com/stockerhq/stocker/internal/config"
	"github.com/stockerhq/stocker/internal/invoice"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	"github.com/stockerhq/stocker/internal/lock"
	"github.com/stockerhq/stocker/internal/observability"
	obsmiddleware "github.com/stockerhq/stocker/internal/observability/logger"
	obsmetrics "github.com/stockerhq/stocker/internal/observability/metrics"
	obstracing "github.com/stockerhq/stocker/internal/observability/tracing"
	"github.com/stockerhq/stocker/internal/order"
	orderdomain "github.com/stockerhq/stocker/internal/order/domain"
	"github.com/stockerhq/stocker/internal/outbox"
	"github.com/stockerhq/stocker/internal/payment"
	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
	"github.com/stockerhq/stocker/internal/providers/pdf"
	"github.com/stockerhq/stocker/internal/subscription"
	subscriptiondomain "github.com/stockerhq/stocker/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	lock.Module,
	outbox.Module,
	catalog.Module,
	cart.Module,
	order.Module,
	subscription.Module,
	invoice.Module,
	pdf.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	catalogSvc      catalogdomain.Service
	cartSvc         cartdomain.Service
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	CatalogSvc      catalogdomain.Service
	CartSvc         cartdomain.Service
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		catalogSvc:      p.CatalogSvc,
		cartSvc:         p.CartSvc,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.TenantRequired())

	// -------- Catalog --------
	api.GET("/catalog/packages", s.ListPackages)
	api.GET("/catalog/modules", s.ListModules)
	api.GET("/catalog/bundles", s.ListBundles)

	// -------- Carts --------
	api.POST("/carts", s.CreateCart)
	api.GET("/carts/active", s.GetActiveCart)
	api.GET("/carts/:id", s.GetCartByID)
	api.POST("/carts/:id/items", s.AddCartItem)
	api.PATCH("/carts/:id/items/:itemId", s.UpdateCartItemQuantity)
	api.DELETE("/carts/:id/items/:itemId", s.RemoveCartItem)
	api.POST("/carts/:id/coupon", s.ApplyCoupon)
	api.DELETE("/carts/:id/coupon", s.RemoveCoupon)
	api.POST("/carts/:id/billing-cycle", s.ChangeCartBillingCycle)
	api.POST("/carts/:id/clear", s.ClearCart)
	api.POST("/carts/:id/extend", s.ExtendCartExpiration)
	api.POST("/carts/:id/abandon", s.AbandonCart)
	api.POST("/carts/:id/checkout", s.Checkout)

	// -------- Orders --------
	api.GET("/orders/:id", s.GetOrderByID)
	api.PUT("/orders/:id/billing-address", s.SetOrderBillingAddress)
	api.POST("/orders/:id/payment", s.InitiateOrderPayment)
	api.POST("/orders/:id/cancel", s.CancelOrder)
	api.POST("/orders/:id/refund", s.RequestOrderRefund)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions/active", s.GetActiveSubscription)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	api.POST("/subscriptions/:id/suspend", s.SuspendSubscription)
	api.POST("/subscriptions/:id/reactivate", s.ReactivateSubscription)
	api.POST("/subscriptions/:id/package", s.ChangeSubscriptionPackage)
	api.POST("/subscriptions/:id/billing-cycle", s.UpdateSubscriptionBillingCycle)
	api.POST("/subscriptions/:id/modules", s.AddSubscriptionModule)
	api.DELETE("/subscriptions/:id/modules/:code", s.RemoveSubscriptionModule)
	api.POST("/subscriptions/:id/usage", s.RecordSubscriptionUsage)
	api.GET("/subscriptions/:id/storage", s.GetStorageStatus)
	api.POST("/subscriptions/:id/storage/bucket", s.SetStorageBucket)
	api.PUT("/subscriptions/:id/storage/usage", s.UpdateStorageUsage)
	api.PUT("/subscriptions/:id/storage/quota", s.UpdateStorageQuota)
	api.GET("/subscriptions/:id/invoices", s.ListSubscriptionInvoices)

	// -------- Invoices --------
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.POST("/invoices/:id/items", s.AddInvoiceItem)
	api.DELETE("/invoices/:id/items/:itemId", s.RemoveInvoiceItem)
	api.POST("/invoices/:id/send", s.SendInvoice)
	api.POST("/invoices/:id/payments", s.AddInvoicePayment)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)
	api.POST("/invoices/:id/refund", s.RefundInvoice)
	api.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
}

// Webhooks authenticate with provider signatures, not tenant headers; the
// tenant is resolved from the referenced order.
func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
