package accounts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helios-erp/helios-gl/internal/platform/httpx"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// Handler wires chart-of-accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/tree", h.tree)
		r.Post("/", h.create)
		r.Post("/import", h.bulkImport)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/move", h.move)
	})
}

type accountPayload struct {
	ID             int64    `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Level          int      `json:"level"`
	ParentID       *int64   `json:"parentId,omitempty"`
	Type           string   `json:"type"`
	NormalBalance  string   `json:"normalBalance"`
	Category       string   `json:"category"`
	IsPostable     bool     `json:"isPostable"`
	Lifecycle      string   `json:"lifecycle"`
	OpeningBalance float64  `json:"openingBalance"`
	CurrentBalance float64  `json:"currentBalance"`
	RolledBalance  *float64 `json:"rolledBalance,omitempty"`
}

func toPayload(a Account) accountPayload {
	return accountPayload{
		ID:             a.ID,
		Code:           a.Code,
		Name:           a.Name,
		Level:          a.Level,
		ParentID:       a.ParentID,
		Type:           string(a.Type),
		NormalBalance:  string(a.NormalBalance),
		Category:       string(a.Category),
		IsPostable:     a.IsPostable,
		Lifecycle:      string(a.Lifecycle),
		OpeningBalance: a.OpeningBalance,
		CurrentBalance: a.CurrentBalance,
	}
}

type treePayload struct {
	accountPayload
	Children []treePayload `json:"children,omitempty"`
}

func toTreePayload(n *Node) treePayload {
	p := treePayload{accountPayload: toPayload(n.Account)}
	p.RolledBalance = &n.RolledBalance
	for _, child := range n.Children {
		p.Children = append(p.Children, toTreePayload(child))
	}
	return p
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	filter := ListFilter{
		Type:      AccountType(r.URL.Query().Get("type")),
		Lifecycle: Lifecycle(r.URL.Query().Get("lifecycle")),
	}
	if v := r.URL.Query().Get("postable"); v != "" {
		postable := v == "true"
		filter.Postable = &postable
	}
	items, err := h.service.List(r.Context(), principal.CompanyID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountPayload, 0, len(items))
	for _, a := range items {
		out = append(out, toPayload(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	roots, err := h.service.Tree(r.Context(), principal.CompanyID, AccountType(r.URL.Query().Get("type")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]treePayload, 0, len(roots))
	for _, root := range roots {
		out = append(out, toTreePayload(root))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), principal.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(account))
}

type createRequest struct {
	Code           string  `json:"code" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	Type           string  `json:"type" validate:"required"`
	NormalBalance  string  `json:"normalBalance"`
	Category       string  `json:"category"`
	ParentID       *int64  `json:"parentId"`
	IsPostable     bool    `json:"isPostable"`
	OpeningBalance float64 `json:"openingBalance"`
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
	category := Category(req.Category)
	if category == "" {
		category = CategoryNone
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:      principal.CompanyID,
		Code:           req.Code,
		Name:           req.Name,
		Type:           AccountType(req.Type),
		NormalBalance:  NormalBalance(req.NormalBalance),
		Category:       category,
		ParentID:       req.ParentID,
		IsPostable:     req.IsPostable,
		OpeningBalance: req.OpeningBalance,
		ActorID:        principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPayload(account))
}

type updateRequest struct {
	Code     *string `json:"code"`
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Postable *bool   `json:"isPostable"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	in := UpdateInput{
		CompanyID: principal.CompanyID,
		AccountID: id,
		Code:      req.Code,
		Name:      req.Name,
		Postable:  req.Postable,
		ActorID:   principal.UserID,
	}
	if req.Category != nil {
		cat := Category(*req.Category)
		in.Category = &cat
	}
	account, err := h.service.Update(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(account))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	lifecycle, err := h.service.Delete(r.Context(), principal.CompanyID, id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if lifecycle == LifecycleInactive {
		httpx.JSON(w, http.StatusOK, map[string]string{"result": "deactivated"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	NewParentID *int64 `json:"newParentId"`
	Force       bool   `json:"force"`
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	account, err := h.service.Move(r.Context(), MoveInput{
		CompanyID:   principal.CompanyID,
		AccountID:   id,
		NewParentID: req.NewParentID,
		Force:       req.Force,
		ActorID:     principal.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPayload(account))
}

type importRequest struct {
	Rows []importRowRequest `json:"rows" validate:"required,min=1,dive"`
}

type importRowRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required"`
	ParentCode string `json:"parentCode"`
	IsPostable bool   `json:"isPostable"`
}

func (h *Handler) bulkImport(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows := make([]ImportRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, ImportRow{
			Code:       row.Code,
			Name:       row.Name,
			Type:       AccountType(row.Type),
			ParentCode: row.ParentCode,
			IsPostable: row.IsPostable,
		})
	}
	result, err := h.service.BulkImport(r.Context(), principal.CompanyID, principal.UserID, rows)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
