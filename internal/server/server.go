package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/creditline/internal/account/domain"
	apikeydomain "github.com/smallbiznis/creditline/internal/apikey/domain"
	"github.com/smallbiznis/creditline/internal/clock"
	"github.com/smallbiznis/creditline/internal/config"
	"github.com/smallbiznis/creditline/internal/observability"
	obsmiddleware "github.com/smallbiznis/creditline/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditline/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditline/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/creditline/internal/profile/domain"
	"github.com/smallbiznis/creditline/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditline/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	clock        clock.Clock
	apiKeySvc    apikeydomain.Service
	usageSvc     usagedomain.Service
	accountSvc   accountdomain.Service
	profiles     profiledomain.Repository
	obsMetrics   *obsmetrics.Metrics
	apiLimiter   *ratelimit.Limiter
	usageLimiter *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Clock        clock.Clock
	APIKeySvc    apikeydomain.Service
	UsageSvc     usagedomain.Service
	AccountSvc   accountdomain.Service
	Profiles     profiledomain.Repository
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	Limiters     ratelimit.Limiters  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		clock:        p.Clock,
		apiKeySvc:    p.APIKeySvc,
		usageSvc:     p.UsageSvc,
		accountSvc:   p.AccountSvc,
		profiles:     p.Profiles,
		obsMetrics:   p.ObsMetrics,
		apiLimiter:   p.Limiters.API,
		usageLimiter: p.Limiters.UsageConsume,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterHealthRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired(), s.APIRateLimit())

	api.GET("/me", s.GetMe)

	api.POST("/usage/consume", s.UsageConsumeRateLimit(), s.ConsumeUsage)
	api.GET("/usage", s.GetUsage)
	api.GET("/usage/events", s.ListUsageEvents)

	api.GET("/account/export", s.ExportAccount)
	api.DELETE("/account", s.DeleteAccount)

	api.GET("/api-keys", s.ListAPIKeys)
	api.POST("/api-keys", s.CreateAPIKey)
	api.DELETE("/api-keys/:key_id", s.RevokeAPIKey)
}

// RegisterDevRoutes adds development-only endpoints. Nothing is mounted in production.
func (s *Server) RegisterDevRoutes() {
	if s.cfg.IsProduction() {
		return
	}

	dev := s.engine.Group("/dev", s.APIKeyRequired(), s.APIRateLimit())
	dev.POST("/plan", s.SetDevPlan)
}
