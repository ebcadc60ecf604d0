package sequence

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires document-sequence endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sequence handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sequences", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/{docType}/next", h.next)
		r.Post("/{docType}/allocate", h.allocate)
		r.Post("/{docType}/void", h.void)
		r.Get("/{docType}/gaps", h.gaps)
		r.Put("/{docType}", h.update)
		r.Post("/{docType}/reset", h.reset)
	})
}

type sequencePayload struct {
	ID             int64  `json:"id"`
	DocumentType   string `json:"documentType"`
	FiscalYear     string `json:"fiscalYear"`
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	PaddingLength  int    `json:"paddingLength"`
	Separator      string `json:"separator"`
	StartingNumber int64  `json:"startingNumber"`
	CurrentNumber  int64  `json:"currentNumber"`
}

func toPayload(s DocumentSequence) sequencePayload {
	return sequencePayload{
		ID:             s.ID,
		DocumentType:   s.DocumentType,
		FiscalYear:     s.FiscalYear,
		Prefix:         s.Prefix,
		Suffix:         s.Suffix,
		PaddingLength:  s.PaddingLength,
		Separator:      s.Separator,
		StartingNumber: s.StartingNumber,
		CurrentNumber:  s.CurrentNumber,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), principal.CompanyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]sequencePayload, 0, len(items))
	for _, s := range items {
		out = append(out, toPayload(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createRequest struct {
	DocumentType   string `json:"documentType" validate:"required"`
	FiscalYear     string `json:"fiscalYear"`
	Prefix         string `json:"prefix"`
	Suffix         string `json:"suffix"`
	PaddingLength  int    `json:"paddingLength" validate:"min=0,max=12"`
	Separator      string `json:"separator"`
	StartingNumber int64  `json:"startingNumber" validate:"min=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	seq, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:      principal.CompanyID,
		DocumentType:   req.DocumentType,
		FiscalYear:     req.FiscalYear,
		Prefix:         req.Prefix,
		Suffix:         req.Suffix,
		PaddingLength:  req.PaddingLength,
		Separator:      req.Separator,
		StartingNumber: req.StartingNumber,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(seq))
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	number, err := h.service.Next(r.Context(), principal.CompanyID, chi.URLParam(r, "docType"), r.URL.Query().Get("fiscalYear"), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}

type allocateRequest struct {
	FiscalYear string `json:"fiscalYear"`
	Count      int    `json:"count" validate:"required,min=1,max=100"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allocations, err := h.service.Allocate(r.Context(), principal.CompanyID, chi.URLParam(r, "docType"), req.FiscalYear, req.Count, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type allocatedPayload struct {
		Number    int64  `json:"number"`
		Formatted string `json:"formatted"`
	}
	out := make([]allocatedPayload, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, allocatedPayload{Number: a.Number, Formatted: a.Formatted})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type voidRequest struct {
	FiscalYear string `json:"fiscalYear"`
	Number     int64  `json:"number" validate:"required,min=1"`
	Reason     string `json:"reason" validate:"required,min=10"`
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.Void(r.Context(), VoidInput{
		CompanyID:    principal.CompanyID,
		DocumentType: chi.URLParam(r, "docType"),
		FiscalYear:   req.FiscalYear,
		Number:       req.Number,
		Reason:       req.Reason,
		ActorID:      principal.UserID,
		ActorRole:    string(principal.Role),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) gaps(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	gaps, err := h.service.Gaps(r.Context(), principal.CompanyID, chi.URLParam(r, "docType"), r.URL.Query().Get("fiscalYear"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"gaps": gaps, "count": len(gaps)})
}

type updateRequest struct {
	FiscalYear    string  `json:"fiscalYear" validate:"required"`
	Prefix        *string `json:"prefix"`
	Suffix        *string `json:"suffix"`
	PaddingLength *int    `json:"paddingLength"`
	Separator     *string `json:"separator"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	seq, err := h.service.UpdateFormat(r.Context(), UpdateInput{
		CompanyID:     principal.CompanyID,
		DocumentType:  chi.URLParam(r, "docType"),
		FiscalYear:    req.FiscalYear,
		Prefix:        req.Prefix,
		Suffix:        req.Suffix,
		PaddingLength: req.PaddingLength,
		Separator:     req.Separator,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(seq))
}

type resetRequest struct {
	FromFiscalYear string `json:"fromFiscalYear" validate:"required"`
	ToFiscalYear   string `json:"toFiscalYear" validate:"required"`
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	seq, err := h.service.Reset(r.Context(), principal.CompanyID, chi.URLParam(r, "docType"), req.FromFiscalYear, req.ToFiscalYear, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(seq))
}
