package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/cashflow"
	"github.com/helios-erp/helios-gl/internal/closing"
	"github.com/helios-erp/helios-gl/internal/currency"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/observability"
	"github.com/helios-erp/helios-gl/internal/periods"
	"github.com/helios-erp/helios-gl/internal/sequence"
	"github.com/helios-erp/helios-gl/internal/shared"
	"github.com/helios-erp/helios-gl/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	SequenceHandler *sequence.Handler
	PeriodsHandler  *periods.Handler
	LedgerHandler   *ledger.Handler
	ClosingHandler  *closing.Handler
	CurrencyHandler *currency.Handler
	CashflowHandler *cashflow.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults. Probe and
// metrics endpoints stay outside the principal scope; everything under
// /api/v1 requires the gateway identity headers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(shared.PrincipalMiddleware)
		params.AccountsHandler.MountRoutes(r)
		params.SequenceHandler.MountRoutes(r)
		params.PeriodsHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.ClosingHandler.MountRoutes(r)
		params.CurrencyHandler.MountRoutes(r)
		params.CashflowHandler.MountRoutes(r)
	})

	return r
}
