package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analyticsdomain "github.com/smallbiznis/scholara/internal/analytics/domain"
	"github.com/smallbiznis/scholara/internal/analytics/notify"
	"github.com/smallbiznis/scholara/internal/analytics/queue"
	"github.com/smallbiznis/scholara/internal/config"
	archivedomain "github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/smallbiznis/scholara/internal/observability"
	obsmiddleware "github.com/smallbiznis/scholara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/scholara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/scholara/internal/observability/tracing"
	"github.com/smallbiznis/scholara/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine         *gin.Engine
	cfg            config.Config
	archiveSvc     archivedomain.Service
	analyticsSvc   analyticsdomain.Service
	queue          *queue.Queue
	classEvents    *notify.Hub
	gradingLimiter *ratelimit.GradingIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	ArchiveSvc     archivedomain.Service
	AnalyticsSvc   analyticsdomain.Service
	Queue          *queue.Queue                    `optional:"true"`
	ClassEvents    *notify.Hub                     `optional:"true"`
	GradingLimiter *ratelimit.GradingIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		archiveSvc:     p.ArchiveSvc,
		analyticsSvc:   p.AnalyticsSvc,
		queue:          p.Queue,
		classEvents:    p.ClassEvents,
		gradingLimiter: p.GradingLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerInternalRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/submissions/:id/grading", s.GradingIngestRateLimit(), s.SubmitGrading)
	api.GET("/classes/:id/events", s.StreamClassEvents)
}

// registerInternalRoutes exposes maintenance endpoints; they are expected to sit behind the cluster network boundary.
func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/invoices/partitions", s.CreateInvoicePartitions)
	internal.GET("/invoices/partitions", s.ListInvoicePartitions)
	internal.POST("/invoices/archive", s.ArchiveInvoices)
	internal.GET("/invoices/archive/stats", s.GetArchivingStats)

	internal.GET("/analytics/alerts", s.ListPerformanceAlerts)
	internal.GET("/analytics/dead-letters", s.ListDeadLetters)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
