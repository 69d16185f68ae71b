package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/processor"
	"github.com/yourorg/payment-gateway/internal/router"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/telemetry"
	"github.com/yourorg/payment-gateway/internal/transport"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	processor *processor.Processor
	router    *router.Router
	registry  *prometheus.Registry
	logger    *zap.Logger
	now       func() time.Time
}

// newServer wires adapters into a processor and a router sharing one
// outcome log and one metrics registry.
func newServer(logger *zap.Logger, reg *prometheus.Registry, adapters []gateway.Adapter, route []gateway.Kind, breaker circuitbreaker.Config) (*server, error) {
	p, err := processor.NewProcessor(logger.Named("processor"), adapters, processor.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	if len(route) == 0 {
		route = p.Kinds()
	}
	r, err := router.NewRouter(p, router.Config{Gateways: route},
		router.WithCircuitBreaker(circuitbreaker.NewCircuitBreaker(breaker)),
		router.WithLog(p.Log()),
		router.WithLogger(logger.Named("router")))
	if err != nil {
		return nil, err
	}
	return &server{
		processor: p,
		router:    r,
		registry:  reg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func newServerFromConfig(cfg *config.Config, logger *zap.Logger) (*server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	adapters, err := cfg.BuildAdapters(logger, transport.WithMetrics(transport.NewMetrics(reg)))
	if err != nil {
		return nil, err
	}
	return newServer(logger, reg, adapters, cfg.RouteOrder(), cfg.BreakerConfig())
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func setupRouter(s *server, serviceName string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestLogger(s.logger.Named("http")))

	v1 := engine.Group("/v1")
	v1.GET("/gateways", s.handleGateways)
	v1.POST("/gateways/:gateway/:operation", s.handleGatewayOperation)
	v1.POST("/route/:operation", s.handleRoute)
	v1.POST("/scrub/:gateway", s.handleScrub)
	v1.GET("/reports/retrospective", s.handleRetrospective)

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return engine
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func main() {
	cfg, err := config.Load(os.Getenv("PAYGW_ENV_FILE"), os.Getenv("PAYGW_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Tracing.Enabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Pretty:      cfg.Tracing.Pretty,
		})
		if err != nil {
			logger.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	gin.SetMode(cfg.Server.Mode)
	srv, err := newServerFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire gateways", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           setupRouter(srv, cfg.Tracing.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server",
			zap.String("address", cfg.Server.Address),
			zap.Strings("route", kindNames(srv.router.Gateways())))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func kindNames(kinds []gateway.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
