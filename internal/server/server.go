package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quotepay/internal/config"
	"github.com/smallbiznis/quotepay/internal/observability"
	obslogger "github.com/smallbiznis/quotepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotepay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quotepay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"github.com/smallbiznis/quotepay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(debug bool, metrics *obsmetrics.Metrics) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())
	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ginParams struct {
	fx.In

	ObsCfg  observability.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p ginParams) *gin.Engine {
	return NewEngine(p.ObsCfg.Debug(), p.Metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	validate   *validator.Validate
	quoteSvc   quotedomain.Service
	webhookSvc paymentdomain.WebhookService
	payLimiter *ratelimit.PayQuoteLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB `optional:"true"`
	Log        *zap.Logger
	QuoteSvc   quotedomain.Service
	WebhookSvc paymentdomain.WebhookService
	PayLimiter *ratelimit.PayQuoteLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("http.server"),
		validate:   newValidator(),
		quoteSvc:   p.QuoteSvc,
		webhookSvc: p.WebhookSvc,
		payLimiter: p.PayLimiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Pay quote --------
	api.POST("/pay-quote", s.PayQuoteRateLimit(), s.PayQuote)
	api.GET("/pay-quote", s.GetPayableQuote)

	// -------- Provider webhooks --------
	api.POST("/mollie-webhook", s.HandleMollieWebhook)
}

func (s *Server) registerAdminRoutes() {
	if s.cfg.AdminAPIToken == "" {
		s.log.Info("admin routes disabled, ADMIN_API_TOKEN is empty")
		return
	}

	admin := s.engine.Group("/admin", s.AdminAuthRequired())

	// -------- Quotes --------
	admin.POST("/quotes", s.CreateQuote)
	admin.GET("/quotes", s.ListQuotes)
	admin.POST("/quotes/expire", s.ExpireQuotes)
	admin.POST("/quotes/:quote_number/cancel", s.CancelQuote)

	// -------- Webhook events --------
	admin.GET("/webhook-events", s.ListUnprocessedWebhookEvents)
	admin.POST("/webhook-events/:event_id/replay", s.ReplayWebhookEvent)
}

// Health reports liveness and, when a database is wired, its reachability.
func (s *Server) Health(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
