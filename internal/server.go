package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/2beens/blogposts/internal/blog"
	"github.com/2beens/blogposts/internal/config"
	"github.com/2beens/blogposts/internal/middleware"
	"github.com/2beens/blogposts/internal/misc"
	"github.com/2beens/blogposts/internal/store"
	"github.com/2beens/blogposts/internal/store/pgstore"
	"github.com/2beens/blogposts/internal/telemetry/metrics"
	"github.com/2beens/blogposts/internal/telemetry/tracing"
)

const serviceName = "blogposts"

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	repo        blog.Repo
	redisClient *redis.Client
	rateLimiter middleware.RequestRateLimiter

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	HoneycombTracingEnabled bool
	// Repo, when set, is used instead of opening the configured store
	Repo blog.Repo
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	var rdb *redis.Client
	if cfg.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, serviceName, rdb)
	if err != nil {
		closeRedis(rdb)
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	repo := params.Repo
	if repo == nil {
		repo, err = store.Open(ctx, cfg, store.Options{
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			otelShutdown()
			closeRedis(rdb)
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	var collectors []prometheus.Collector
	if pgStore, ok := repo.(*pgstore.Store); ok {
		collectors = append(collectors, pgxpoolprometheus.NewCollector(
			pgStore.Pool(),
			map[string]string{"db_name": cfg.DatabaseName},
		))
	}
	promRegistry := metrics.SetupPrometheus(collectors...)
	metricsManager := metrics.NewManager(serviceName, "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0) // set to 1 once serving

	var rateLimiter middleware.RequestRateLimiter
	if rdb != nil {
		rateLimiter = redis_rate.NewLimiter(rdb)
	} else {
		rateLimiter = middleware.NewLocalRateLimiter()
	}

	return &Server{
		versionInfo:    params.VersionInfo,
		config:         cfg,
		repo:           repo,
		redisClient:    rdb,
		rateLimiter:    rateLimiter,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	var mutationMiddlewares []mux.MiddlewareFunc
	if s.config.RateLimitAllowedPerMin > 0 {
		mutationMiddlewares = append(mutationMiddlewares, middleware.RateLimit(
			s.rateLimiter,
			serviceName,
			s.config.RateLimitAllowedPerMin,
			s.metricsManager,
		))
	}

	blogHandler := blog.NewHandler(s.repo, s.metricsManager)
	blogHandler.SetupRoutes(r, mutationMiddlewares...)

	miscHandler := misc.NewHandler(s.versionInfo, s.repo, s.redisClient)
	miscHandler.SetupRoutes(r)

	// all the rest - unhandled paths, a known path with a wrong method is left to mux (405)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Tracef("unhandled path: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.CorsAllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) metricsRouterSetup() *mux.Router {
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{
			Registry: s.promRegistry,
		}),
	))
	return metricsRouter
}

// Serve binds the api and metrics listeners, and serves them in the background.
func (s *Server) Serve(ctx context.Context, host string, port int) error {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)

	listenConfig := net.ListenConfig{}
	listener, err := listenConfig.Listen(ctx, "tcp", ipAndPort)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", ipAndPort, err)
	}
	metricsListener, err := listenConfig.Listen(ctx, "tcp", metricsAddr)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("metrics listen on %s: %w", metricsAddr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           s.metricsRouterSetup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.Serve(metricsListener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
	return nil
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, the store and redis are still needed by the in-flight ones
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown http server: %s", err)
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	closeRedis(s.redisClient)

	log.Debugln("closing store ...")
	if err := s.repo.Close(ctx); err != nil {
		log.Errorf("failed to close store: %s", err)
	}
	log.Debugln("store closed")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}

func closeRedis(rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		log.Errorf("failed to close redis client conn: %s", err)
	}
}
