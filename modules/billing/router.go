package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/billingkit/pkg/ratelimit"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/refund"
)

// accountHeader carries the authenticated account id set by the fronting
// proxy.
const accountHeader = "X-Account-ID"

// Reconciler processes raw webhook bodies. *reconcile.Reconciler satisfies
// it.
type Reconciler interface {
	Process(ctx context.Context, raw []byte) error
}

// RetryRunner drives one refund-retry pass. *refund.Scheduler satisfies it.
type RetryRunner interface {
	RunOnce(ctx context.Context) error
}

// Module bundles the billing HTTP handlers and their dependencies.
type Module struct {
	cfg        Config
	billing    *billingsvc.Service
	refunds    *refund.Service
	reconciler Reconciler
	retries    RetryRunner
	limiter    ratelimit.Limiter
	validate   *validator.Validate
	log        *slog.Logger
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) ModuleOption {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// NewModule wires the billing HTTP surface.
func NewModule(cfg Config, billingSvc *billingsvc.Service, refunds *refund.Service, reconciler Reconciler, retries RetryRunner, limiter ratelimit.Limiter, opts ...ModuleOption) *Module {
	m := &Module{
		cfg:        cfg,
		billing:    billingSvc,
		refunds:    refunds,
		reconciler: reconciler,
		retries:    retries,
		limiter:    limiter,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router mounts the module's routes.
//
//	r := chi.NewRouter()
//	r.Mount("/billing", module.Router())
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/webhooks/payments", m.handleWebhookLiveness)
	r.Post("/webhooks/payments", m.handleWebhook)
	r.Post("/jobs/refund-retry", m.handleRefundRetry)

	limited := func(action string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(m.limiter, ratelimit.ActorAction(action, accountID))
	}

	r.Group(func(r chi.Router) {
		r.Use(requireAccount)

		r.With(limited("checkout")).Post("/checkout/subscription", m.handleSubscriptionCheckout)
		r.With(limited("checkout")).Post("/checkout/credits", m.handleCreditCheckout)
		r.With(limited("cancel")).Post("/subscription/cancel", m.handleCancelSubscription)
		r.With(limited("plan_change")).Post("/subscription/preview-change", m.handlePreviewPlanChange)
		r.With(limited("refund")).Post("/refunds", m.handleRefundRequest)
	})

	return r
}

func accountID(r *http.Request) string {
	return r.Header.Get(accountHeader)
}

// requireAccount rejects requests the fronting proxy did not authenticate.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accountID(r) == "" {
			respondError(w, http.StatusUnauthorized, "missing account identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}
