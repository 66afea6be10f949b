// Package handler exposes the ownership ledger over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"siteledger/internal/ownership/models"
	"siteledger/internal/ownership/service"
	"siteledger/internal/platform/middleware"
	"siteledger/internal/transport/http/shared"
	dErrors "siteledger/pkg/domain-errors"
)

// Service defines the ledger operations the handler needs.
type Service interface {
	AddOwner(ctx context.Context, p service.AddOwnerParams) (*models.CompanyOwnership, error)
	ChangePercentage(ctx context.Context, ownershipID uuid.UUID, newPercentage float64, changedBy, reason string) (*models.CompanyOwnership, error)
	RevokeOwnership(ctx context.Context, ownershipID uuid.UUID, revokedBy, reason string) error
	AssignRole(ctx context.Context, p service.AssignRoleParams) (*models.CompanyRole, error)
	CompanyOwners(ctx context.Context, companyID string, includeInactive bool) ([]*models.CompanyOwnership, error)
	AccountOwnerships(ctx context.Context, masterAccountID string, includeInactive bool) ([]*models.CompanyOwnership, error)
	AccountRoles(ctx context.Context, masterAccountID, companyID string) ([]*models.CompanyRole, error)
	Company(ctx context.Context, companyID string) (*models.Company, error)
}

// Handler handles ownership ledger endpoints.
type Handler struct {
	logger       *slog.Logger
	ledger       Service
	jwtValidator middleware.JWTValidator
}

// New creates a new ownership Handler.
func New(ledger Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		ledger:       ledger,
		jwtValidator: jwtValidator,
	}
}

// Register registers the ownership routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.Recovery(h.logger))
		g.Use(middleware.RequestID)
		g.Use(middleware.Logger(h.logger))
		g.Use(middleware.Timeout(30 * time.Second))
		g.Use(middleware.ContentTypeJSON)
		g.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		g.Post("/companies/{companyID}/owners", h.handleAddOwner)
		g.Get("/companies/{companyID}/owners", h.handleCompanyOwners)
		g.Get("/companies/{companyID}", h.handleCompany)
		g.Patch("/ownerships/{ownershipID}/percentage", h.handleChangePercentage)
		g.Post("/ownerships/{ownershipID}/revoke", h.handleRevokeOwnership)
		g.Post("/companies/{companyID}/roles", h.handleAssignRole)
		g.Get("/accounts/{accountID}/ownerships", h.handleAccountOwnerships)
		g.Get("/accounts/{accountID}/roles", h.handleAccountRoles)
	})
}

type addOwnerRequest struct {
	MasterAccountID   string  `json:"master_account_id"`
	MasterAccountName string  `json:"master_account_name"`
	Percentage        float64 `json:"ownership_percentage"`
	VotingRights      bool    `json:"voting_rights"`
	EconomicRights    bool    `json:"economic_rights"`
	Notes             string  `json:"notes"`
}

func (h *Handler) handleAddOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid add owner request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.ledger.AddOwner(ctx, service.AddOwnerParams{
		CompanyID:         chi.URLParam(r, "companyID"),
		MasterAccountID:   req.MasterAccountID,
		MasterAccountName: req.MasterAccountName,
		Percentage:        req.Percentage,
		VotingRights:      req.VotingRights,
		EconomicRights:    req.EconomicRights,
		GrantedBy:         middleware.GetAccountID(ctx),
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to add owner", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, created)
}

type changePercentageRequest struct {
	NewPercentage float64 `json:"new_percentage"`
	Reason        string  `json:"reason"`
}

func (h *Handler) handleChangePercentage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownershipID, err := uuid.Parse(chi.URLParam(r, "ownershipID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid ownership id"))
		return
	}

	var req changePercentageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid change percentage request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.ledger.ChangePercentage(ctx, ownershipID, req.NewPercentage, middleware.GetAccountID(ctx), req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to change percentage", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, updated)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevokeOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownershipID, err := uuid.Parse(chi.URLParam(r, "ownershipID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid ownership id"))
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid revoke request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.RevokeOwnership(ctx, ownershipID, middleware.GetAccountID(ctx), req.Reason); err != nil {
		h.writeServiceError(ctx, w, "failed to revoke ownership", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	MasterAccountID   string   `json:"master_account_id"`
	MasterAccountName string   `json:"master_account_name"`
	Role              string   `json:"role"`
	CustomRoleName    string   `json:"custom_role_name"`
	Permissions       []string `json:"permissions"`
	Notes             string   `json:"notes"`
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid assign role request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	role, err := h.ledger.AssignRole(ctx, service.AssignRoleParams{
		CompanyID:         chi.URLParam(r, "companyID"),
		MasterAccountID:   req.MasterAccountID,
		MasterAccountName: req.MasterAccountName,
		Role:              models.Role(req.Role),
		CustomRoleName:    req.CustomRoleName,
		Permissions:       req.Permissions,
		AssignedBy:        middleware.GetAccountID(ctx),
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to assign role", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) handleCompanyOwners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owners, err := h.ledger.CompanyOwners(ctx, chi.URLParam(r, "companyID"), includeInactive(r))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list company owners", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, ownershipList(owners))
}

func (h *Handler) handleCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company, err := h.ledger.Company(ctx, chi.URLParam(r, "companyID"))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load company", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, company)
}

func (h *Handler) handleAccountOwnerships(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owners, err := h.ledger.AccountOwnerships(ctx, chi.URLParam(r, "accountID"), includeInactive(r))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list account ownerships", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, ownershipList(owners))
}

func (h *Handler) handleAccountRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roles, err := h.ledger.AccountRoles(ctx, chi.URLParam(r, "accountID"), r.URL.Query().Get("company_id"))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list account roles", err)
		return
	}
	if roles == nil {
		roles = []*models.CompanyRole{}
	}
	shared.WriteJSON(w, http.StatusOK, roles)
}

// writeServiceError logs internal failures and passes coded errors through to
// the client unchanged.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) || !dErrors.Is(err) {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, msg))
		return
	}
	shared.WriteError(w, err)
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

func includeInactive(r *http.Request) bool {
	return r.URL.Query().Get("include_inactive") == "true"
}

// ownershipList keeps empty results as [] rather than null in JSON.
func ownershipList(in []*models.CompanyOwnership) []*models.CompanyOwnership {
	if in == nil {
		return []*models.CompanyOwnership{}
	}
	return in
}
