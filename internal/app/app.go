// Package app wires configuration, storage, domain services and transports
// into the runnable API server and reminder worker.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stats"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/jobs"
	"github.com/xenking/storefront/internal/media"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// api is the assembled HTTP surface of the server.
type api struct {
	handler http.Handler
	health  *health.Health
	queue   jobs.Queue
	locker  jobs.Locker
}

// newAPI builds repositories, domain services, health probes and the routed
// middleware chain on top of d.
func newAPI(ctx context.Context, cfg *Config, d *deps) (*api, error) {
	images, err := media.NewStore(cfg.Media.Root)
	if err != nil {
		return nil, errors.Wrap(err, "create media store")
	}

	// Repositories.
	categoryRepo := postgres.NewCategoryRepository(d.pool)
	productRepo := postgres.NewProductRepository(d.pool)
	orderRepo := postgres.NewOrderRepository(d.pool)
	userRepo := postgres.NewUserRepository(d.pool)
	apikeyRepo := postgres.NewAPIKeyRepository(d.pool)

	// Domain services.
	catalogService := catalog.NewService(categoryRepo, productRepo, images, cfg.PageSize)
	orderService, err := order.NewService(productRepo, orderRepo, userRepo, d.notifier, order.Config{
		PaymentTermDays: cfg.PaymentTermDays,
		Location:        d.loc,
		NotifyTimeout:   cfg.Mail.Timeout,
		Currency:        cfg.Currency,
		PageSize:        cfg.PageSize,
	}, d.meter)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	statsService := stats.NewService(postgres.NewStatsRepository(d.pool, d.loc))
	queue, locker := d.taskQueue(cfg)

	// Health.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(d.pool))
	if ping := d.redisPing(); ping != nil && cfg.Health.RedisRequired {
		healthSvc.AddReadinessCheck("redis", cfg.Health.RedisTimeout, ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	reporter := health.NewReporter(health.PingCheck(d.pool), d.redisPing(), cfg.Health)

	// HTTP.
	h := handler.New(handler.Config{
		MediaBaseURL:   cfg.Media.BaseURL,
		MaxUploadBytes: cfg.Media.MaxUpload,
	}, catalogService, orderService, statsService, queue)
	authn := handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper), cfg.SellerGroup)

	mux := http.NewServeMux()
	if cfg.Media.Serve {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(images.Root()))))
	}
	h.Register(mux)

	return &api{
		handler: httpmiddleware.Wrap(
			routes(healthSvc.LiveEndpoint, healthSvc.ReadyEndpoint, reporter,
				authn.Middleware()(httpmiddleware.RecordRoute(mux))),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key", httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
		health: healthSvc,
		queue:  queue,
		locker: locker,
	}, nil
}

// routes serves the health endpoints without authentication and hands
// everything else to api.
func routes(live, ready http.HandlerFunc, report, api http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", live)
	mux.HandleFunc("GET /readyz", ready)
	mux.Handle("GET /api/health", report)
	mux.Handle("/", api)
	return httpmiddleware.RecordRoute(mux)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. Without Redis the reminder worker runs inside this process so
// manual triggers still reach it.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	d, err := newDeps(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	a, err := newAPI(ctx, cfg, d)
	if err != nil {
		return err
	}
	healthSvc := a.health
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(a.handler, "shop-api",
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	if d.redis == nil {
		runner, err := d.reminderRunner(cfg)
		if err != nil {
			return errors.Wrap(err, "create reminder runner")
		}
		g.Go(func() error {
			return runReminderWorker(gCtx, lg, cfg, d, runner, a.queue, a.locker)
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
