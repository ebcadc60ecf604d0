package currency

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires currency endpoints.
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
	r.Route("/currency", func(r chi.Router) {
		r.Get("/rates", h.listRates)
		r.Post("/rates", h.createRate)
		r.Get("/rates/current", h.currentRate)
		r.Post("/convert", h.convert)
		r.Get("/balances", h.listBalances)
		r.Put("/balances", h.upsertBalance)
		r.Post("/revalue", h.revalue)
		r.Post("/settle", h.settle)
	})
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	rates, err := h.service.ListRates(r.Context(), principal.CompanyID, strings.ToUpper(r.URL.Query().Get("currency")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rates)
}

type createRateRequest struct {
	Currency      string  `json:"currency" validate:"required,len=3"`
	Rate          float64 `json:"rate" validate:"required,gt=0"`
	EffectiveDate string  `json:"effectiveDate" validate:"required"`
}

func (h *Handler) createRate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req createRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	effective, err := time.Parse(time.DateOnly, req.EffectiveDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "effectiveDate must be YYYY-MM-DD")
		return
	}
	rate, err := h.service.CreateRate(r.Context(), CreateRateInput{
		CompanyID:     principal.CompanyID,
		Currency:      strings.ToUpper(req.Currency),
		Rate:          req.Rate,
		EffectiveDate: effective,
		ActorID:       principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) currentRate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	currency := strings.ToUpper(r.URL.Query().Get("currency"))
	if len(currency) != 3 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "currency must be a 3-letter code")
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
	rate, err := h.service.CurrentRate(r.Context(), principal.CompanyID, currency, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

type convertRequest struct {
	Amount float64 `json:"amount" validate:"required"`
	From   string  `json:"from" validate:"required,len=3"`
	To     string  `json:"to" validate:"required,len=3"`
	AsOf   string  `json:"asOf"`
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req convertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := ConvertInput{
		CompanyID: principal.CompanyID,
		Amount:    req.Amount,
		From:      strings.ToUpper(req.From),
		To:        strings.ToUpper(req.To),
	}
	if req.AsOf != "" {
		t, err := time.Parse(time.DateOnly, req.AsOf)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asOf must be YYYY-MM-DD")
			return
		}
		in.AsOf = t
	}
	converted, err := h.service.Convert(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"amount": req.Amount, "from": in.From, "to": in.To, "converted": converted,
	})
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var currencies []string
	if v := r.URL.Query().Get("currency"); v != "" {
		currencies = []string{strings.ToUpper(v)}
	}
	balances, err := h.service.ListBalances(r.Context(), principal.CompanyID, currencies)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}

type upsertBalanceRequest struct {
	AccountID   int64   `json:"accountId" validate:"required"`
	Currency    string  `json:"currency" validate:"required,len=3"`
	FCYBalance  float64 `json:"fcyBalance"`
	BaseBalance float64 `json:"baseBalance"`
}

func (h *Handler) upsertBalance(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req upsertBalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	b, err := h.service.UpsertBalance(r.Context(), UpsertBalanceInput{
		CompanyID:   principal.CompanyID,
		AccountID:   req.AccountID,
		Currency:    strings.ToUpper(req.Currency),
		FCYBalance:  req.FCYBalance,
		BaseBalance: req.BaseBalance,
		ActorID:     principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

type revalueRequest struct {
	Currencies     []string `json:"currencies"`
	AsOf           string   `json:"asOf"`
	PostAdjustment bool     `json:"postAdjustment"`
}

func (h *Handler) revalue(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req revalueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	in := RevalueInput{
		CompanyID:      principal.CompanyID,
		PostAdjustment: req.PostAdjustment,
		ActorID:        principal.UserID,
		ActorRole:      string(principal.Role),
	}
	for _, c := range req.Currencies {
		in.Currencies = append(in.Currencies, strings.ToUpper(c))
	}
	if req.AsOf != "" {
		t, err := time.Parse(time.DateOnly, req.AsOf)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asOf must be YYYY-MM-DD")
			return
		}
		in.AsOf = t
	}
	result, err := h.service.Revalue(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type settleRequest struct {
	AccountID      int64   `json:"accountId" validate:"required"`
	Currency       string  `json:"currency" validate:"required,len=3"`
	FCYAmount      float64 `json:"fcyAmount" validate:"required,gt=0"`
	SettlementRate float64 `json:"settlementRate"`
	BankAccountID  int64   `json:"bankAccountId" validate:"required"`
	SettlementDate string  `json:"settlementDate"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := SettleInput{
		CompanyID:      principal.CompanyID,
		AccountID:      req.AccountID,
		Currency:       strings.ToUpper(req.Currency),
		FCYAmount:      req.FCYAmount,
		SettlementRate: req.SettlementRate,
		BankAccountID:  req.BankAccountID,
		ActorID:        principal.UserID,
		ActorRole:      string(principal.Role),
	}
	if req.SettlementDate != "" {
		t, err := time.Parse(time.DateOnly, req.SettlementDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "settlementDate must be YYYY-MM-DD")
			return
		}
		in.SettlementDate = t
	}
	result, err := h.service.Settle(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
