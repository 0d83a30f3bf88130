package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/paygate"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/ratelimit"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
	"github.com/dmitrymomot/billingkit/svc/reconcile"
	"github.com/dmitrymomot/billingkit/svc/refund"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Gateway paygate.Config
	Billing billing.Config
	Refunds refund.SchedulerConfig
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, "billingd"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx := context.Background()

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "billingd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	healthchecks := []func(context.Context) error{pg.Healthcheck(pool)}

	// The memory store is correct for a single process; a configured Redis
	// shares rate-limit windows across replicas.
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		store = ratelimit.NewRedisStore(client, "billing:ratelimit")
		healthchecks = append(healthchecks, redis.Healthcheck(client))
	}

	limiter, err := ratelimit.NewSlidingWindow(store, cfg.Billing.RateLimit, cfg.Billing.RateWindow)
	if err != nil {
		return err
	}

	gateway, err := paygate.New(cfg.Gateway)
	if err != nil {
		return err
	}

	catalog := defaultCatalog()

	entitlements, err := entitlement.NewService(
		entitlement.NewPostgresStorage(pool),
		func(plan string) int {
			if p, ok := catalog.Plan(plan); ok {
				return p.DailyGenerationLimit
			}
			return catalog.FreePlan().DailyGenerationLimit
		},
		entitlement.WithLogger(log),
	)
	if err != nil {
		return err
	}

	payments := billingsvc.NewPostgresStorage(pool)
	billingSvc, err := billingsvc.NewService(payments, catalog, gateway, entitlements,
		billingsvc.WithLogger(log))
	if err != nil {
		return err
	}

	reconciler, err := reconcile.NewReconciler(reconcile.NewPostgresStorage(pool), payments,
		billingSvc, entitlements, reconcile.WithLogger(log))
	if err != nil {
		return err
	}

	refundStorage := refund.NewPostgresStorage(pool)
	refundSvc, err := refund.NewService(refundStorage, payments, entitlements,
		refund.WithServiceLogger(log))
	if err != nil {
		return err
	}
	scheduler, err := refund.NewScheduler(refundStorage, payments, gateway, billingSvc,
		cfg.Refunds, refund.WithSchedulerLogger(log))
	if err != nil {
		return err
	}

	module := billing.NewModule(cfg.Billing, billingSvc, refundSvc, reconciler, scheduler,
		limiter, billing.WithLogger(log))

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/health", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/ready", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	r.Mount("/", module.Router())

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("billingd listening", slog.String("addr", cfg.HTTP.Addr))
		}),
	)
	return srv.Run(ctx, r)
}

// defaultCatalog is the built-in plan and credit-package lineup. Prices are
// in currency minor units.
func defaultCatalog() billingsvc.Catalog {
	plans := []billingsvc.Plan{
		{
			ID:                   "free",
			Name:                 "Free",
			Rank:                 0,
			DailyGenerationLimit: 3,
		},
		{
			ID:                   "starter",
			Name:                 "Starter",
			Rank:                 1,
			DailyGenerationLimit: 5,
			PeriodCredits:        50,
			Prices: map[billingsvc.BillingCycle]int64{
				billingsvc.CycleMonthly: 9900,
				billingsvc.CycleYearly:  99000,
			},
		},
		{
			ID:                   "pro",
			Name:                 "Pro",
			Rank:                 2,
			DailyGenerationLimit: 10,
			PeriodCredits:        150,
			Prices: map[billingsvc.BillingCycle]int64{
				billingsvc.CycleMonthly: 24900,
				billingsvc.CycleYearly:  249000,
			},
		},
	}

	packages := []billingsvc.CreditPackage{
		{ID: "credits-50", Name: "50 credits", Credits: 50, Price: 9900},
		{ID: "credits-150", Name: "150 credits", Credits: 150, Price: 24900},
		{ID: "credits-500", Name: "500 credits", Credits: 500, Price: 69000},
	}

	return billingsvc.NewCatalog(plans, packages)
}
