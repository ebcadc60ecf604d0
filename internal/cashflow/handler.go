package cashflow

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires the derived-report endpoints. Statement derivation scans the
// ledger, so the routes carry their own per-IP rate limit on top of the
// singleflight collapse inside the service.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cashflow", func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/indirect", h.indirect)
		r.Get("/direct", h.direct)
		r.Get("/forecast", h.forecast)
	})
}

func window(r *http.Request) (from, to time.Time, ok bool) {
	from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err = time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil || to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) indirect(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	from, to, ok := window(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be dates with to >= from")
		return
	}
	st, err := h.service.Indirect(r.Context(), principal.CompanyID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) direct(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	from, to, ok := window(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be dates with to >= from")
		return
	}
	st, err := h.service.Direct(r.Context(), principal.CompanyID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	months := 3
	if v := r.URL.Query().Get("months"); v != "" {
		months, _ = strconv.Atoi(v)
	}
	f, err := h.service.ForecastMonths(r.Context(), principal.CompanyID, months)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}
