package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires journal endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.post)
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/activity", h.activity)
		r.Get("/{id}", h.get)
		r.Post("/{id}/reverse", h.reverse)
	})
	r.Get("/accounts/{id}/balance", h.balanceAsOf)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	f := ListFilter{
		CompanyID: principal.CompanyID,
		Status:    EntryStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			f.From = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			f.To = t
		}
	}
	if v := r.URL.Query().Get("accountId"); v != "" {
		f.AccountID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	entries, err := h.service.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), principal.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type postRequest struct {
	EntryDate      string             `json:"entryDate" validate:"required"`
	Memo           string             `json:"memo"`
	AllowSoftClose bool               `json:"allowSoftClose"`
	Lines          []PostingLineInput `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(time.DateOnly, req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entryDate must be YYYY-MM-DD")
		return
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		CompanyID:      principal.CompanyID,
		EntryDate:      date,
		Memo:           req.Memo,
		Lines:          req.Lines,
		ActorID:        principal.UserID,
		ActorRole:      string(principal.Role),
		AllowSoftClose: req.AllowSoftClose,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type reverseRequest struct {
	ReversalDate   string `json:"reversalDate"`
	Memo           string `json:"memo"`
	AllowSoftClose bool   `json:"allowSoftClose"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	var date time.Time
	if req.ReversalDate != "" {
		date, err = time.Parse(time.DateOnly, req.ReversalDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reversalDate must be YYYY-MM-DD")
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{
		CompanyID:      principal.CompanyID,
		EntryID:        id,
		ReversalDate:   date,
		Memo:           req.Memo,
		ActorID:        principal.UserID,
		ActorRole:      string(principal.Role),
		AllowSoftClose: req.AllowSoftClose,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	asOf := time.Now()
	if v := r.URL.Query().Get("asOf"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asOf must be YYYY-MM-DD")
			return
		}
		asOf = t
	}
	rows, err := h.service.TrialBalance(r.Context(), principal.CompanyID, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	from, err := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	activity, err := h.service.PeriodActivity(r.Context(), principal.CompanyID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, activity)
}

func (h *Handler) balanceAsOf(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	asOf := time.Now()
	if v := r.URL.Query().Get("asOf"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asOf must be YYYY-MM-DD")
			return
		}
		asOf = t
	}
	balance, err := h.service.BalanceAsOf(r.Context(), principal.CompanyID, id, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": id, "asOf": asOf.Format(time.DateOnly), "balance": balance})
}
