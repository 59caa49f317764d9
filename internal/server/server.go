package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/settlr/internal/account"
	"github.com/smallbiznis/settlr/internal/audit"
	"github.com/smallbiznis/settlr/internal/catalog"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/gateway"
	"github.com/smallbiznis/settlr/internal/notification"
	"github.com/smallbiznis/settlr/internal/observability"
	obsmiddleware "github.com/smallbiznis/settlr/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/settlr/internal/observability/metrics"
	obstracing "github.com/smallbiznis/settlr/internal/observability/tracing"
	"github.com/smallbiznis/settlr/internal/payment"
	"github.com/smallbiznis/settlr/internal/ratelimit"
	"github.com/smallbiznis/settlr/internal/settlement"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	"github.com/smallbiznis/settlr/internal/signature"
	"github.com/smallbiznis/settlr/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	gateway.Module,
	signature.Module,
	catalog.Module,
	account.Module,
	subscription.Module,
	payment.Module,
	audit.Module,
	notification.Module,
	ratelimit.Module,
	settlement.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	gatewayCfg    config.GatewayConfig
	log           *zap.Logger
	settlementSvc settlementdomain.Service
	catalogSvc    catalogdomain.Service
	messages      *gateway.MessageCatalog
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Gateway       config.GatewayConfig
	Log           *zap.Logger
	SettlementSvc settlementdomain.Service
	CatalogSvc    catalogdomain.Service
	Messages      *gateway.MessageCatalog
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		gatewayCfg:    p.Gateway,
		log:           p.Log.Named("http.server"),
		settlementSvc: p.SettlementSvc,
		catalogSvc:    p.CatalogSvc,
		messages:      p.Messages,
	}

	svc.registerAPIRoutes()
	svc.registerGatewayRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Catalog --------
	api.GET("/packages", s.ListPackages)

	// -------- Checkout --------
	api.POST("/checkout", s.Checkout)
	api.GET("/payments/:reference", s.GetPaymentStatus)

	// -------- Owners --------
	api.GET("/owners/:owner_id/entitlement", s.GetEntitlement)
	api.POST("/owners/:owner_id/subscriptions/:id/cancel", s.CancelSubscription)
}

func (s *Server) registerGatewayRoutes() {
	gw := s.engine.Group("/v1/gateway")

	gw.GET("/ipn", s.HandleGatewayIPN)
	gw.POST("/ipn", s.HandleGatewayIPN)
	gw.GET("/return", s.HandleGatewayReturn)
}
