package periods

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires accounting-period endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the periods handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/initialize", h.initialize)
		r.Get("/current", h.current)
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.get)
		r.Post("/{id}/soft-close", h.softClose)
		r.Post("/{id}/hard-close", h.hardClose)
		r.Post("/{id}/lock", h.lock)
		r.Post("/{id}/reopen", h.reopen)
		r.Put("/{id}/checklist", h.checklist)
		r.Post("/{id}/reconcile", h.reconcile)
	})
}

type periodPayload struct {
	ID                    int64                  `json:"id"`
	FiscalYear            string                 `json:"fiscalYear"`
	Month                 int                    `json:"month"`
	Year                  int                    `json:"year"`
	PeriodStart           string                 `json:"periodStart"`
	PeriodEnd             string                 `json:"periodEnd"`
	Status                string                 `json:"status"`
	Checklist             Checklist              `json:"checklist"`
	ClosingBalances       []BalanceLine          `json:"closingBalances,omitempty"`
	ReconciliationResults []ReconciliationResult `json:"reconciliationResults,omitempty"`
}

func toPayload(p Period) periodPayload {
	return periodPayload{
		ID:                    p.ID,
		FiscalYear:            p.FiscalYear,
		Month:                 p.Month,
		Year:                  p.Year,
		PeriodStart:           p.PeriodStart.Format("2006-01-02"),
		PeriodEnd:             p.PeriodEnd.Format("2006-01-02"),
		Status:                string(p.Status),
		Checklist:             p.Checklist,
		ClosingBalances:       p.ClosingBalances,
		ReconciliationResults: p.ReconciliationResults,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), principal.CompanyID, r.URL.Query().Get("fiscalYear"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodPayload, 0, len(items))
	for _, p := range items {
		out = append(out, toPayload(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type initializeRequest struct {
	FiscalYear string `json:"fiscalYear" validate:"required"`
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req initializeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, err := h.service.Initialize(r.Context(), principal.CompanyID, req.FiscalYear, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodPayload, 0, len(items))
	for _, p := range items {
		out = append(out, toPayload(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	p, initialized, err := h.service.CurrentPeriod(r.Context(), principal.CompanyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period":      toPayload(p),
		"initialized": initialized,
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	summary, err := h.service.Summary(r.Context(), principal.CompanyID, r.URL.Query().Get("fiscalYear"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := paramID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), principal.p.CompanyID, principal.id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

type idPrincipal struct {
	p  shared.Principal
	id int64
}

func paramID(w http.ResponseWriter, r *http.Request) (idPrincipal, bool) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return idPrincipal{}, false
	}
	return idPrincipal{p: principal, id: id}, true
}

func (h *Handler) softClose(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	p, err := h.service.SoftClose(r.Context(), TransitionInput{
		CompanyID: pid.p.CompanyID, PeriodID: pid.id, ActorID: pid.p.UserID, ActorRole: string(pid.p.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

func (h *Handler) hardClose(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	p, err := h.service.HardClose(r.Context(), TransitionInput{
		CompanyID: pid.p.CompanyID, PeriodID: pid.id, ActorID: pid.p.UserID, ActorRole: string(pid.p.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Lock(r.Context(), TransitionInput{
		CompanyID: pid.p.CompanyID, PeriodID: pid.id, ActorID: pid.p.UserID, ActorRole: string(pid.p.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

type reopenRequest struct {
	Target string `json:"target" validate:"required"`
	Reason string `json:"reason" validate:"required,min=20"`
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.Reopen(r.Context(), ReopenInput{
		CompanyID: pid.p.CompanyID, PeriodID: pid.id,
		Target: Status(req.Target), Reason: req.Reason,
		ActorID: pid.p.UserID, ActorRole: string(pid.p.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	var req Checklist
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	p, err := h.service.UpdateChecklist(r.Context(), ChecklistUpdateInput{
		CompanyID: pid.p.CompanyID, PeriodID: pid.id, Checklist: req, ActorID: pid.p.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(p))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	pid, ok := paramID(w, r)
	if !ok {
		return
	}
	results, err := h.service.Reconcile(r.Context(), pid.p.CompanyID, pid.id, pid.p.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, results)
}
