// Package handler exposes the verification workflow over HTTP. Submission,
// lookup and dispute filing sit behind bearer auth; the review queue and the
// approve/reject actions sit behind the admin token.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"siteledger/internal/platform/middleware"
	"siteledger/internal/transport/http/shared"
	"siteledger/internal/verification/models"
	"siteledger/internal/verification/service"
	dErrors "siteledger/pkg/domain-errors"
)

// Service defines the verification operations the handler needs.
type Service interface {
	CheckNationalID(ctx context.Context, nationalID string) (*service.Match, error)
	Submit(ctx context.Context, p service.SubmitParams) (*models.IDVerification, error)
	Approve(ctx context.Context, verificationID uuid.UUID, adminID, notes string) error
	Reject(ctx context.Context, verificationID uuid.UUID, adminID, reason string) error
	ReportDispute(ctx context.Context, p service.DisputeParams) (*models.FraudDispute, error)
	PendingVerifications(ctx context.Context) ([]*models.IDVerification, error)
	AccountVerifications(ctx context.Context, masterAccountID string) ([]*models.IDVerification, error)
	DisputesByStatus(ctx context.Context, status models.DisputeStatus) ([]*models.FraudDispute, error)
}

// Handler handles verification endpoints.
type Handler struct {
	logger       *slog.Logger
	workflow     Service
	adminToken   string
	jwtValidator middleware.JWTValidator
}

// New creates a new verification Handler.
func New(workflow Service, logger *slog.Logger, adminToken string, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		workflow:     workflow,
		adminToken:   adminToken,
		jwtValidator: jwtValidator,
	}
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(middleware.Recovery(h.logger))
		g.Use(middleware.RequestID)
		g.Use(middleware.Logger(h.logger))
		g.Use(middleware.Timeout(30 * time.Second))
		g.Use(middleware.ContentTypeJSON)
		g.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		g.Get("/verifications/check", h.handleCheckNationalID)
		g.Post("/verifications", h.handleSubmit)
		g.Get("/accounts/{accountID}/verifications", h.handleAccountVerifications)
		g.Post("/disputes", h.handleReportDispute)
	})

	r.Group(func(g chi.Router) {
		g.Use(middleware.Recovery(h.logger))
		g.Use(middleware.RequestID)
		g.Use(middleware.Logger(h.logger))
		g.Use(middleware.Timeout(30 * time.Second))
		g.Use(middleware.ContentTypeJSON)
		g.Use(middleware.RequireAdminToken(h.adminToken, h.logger))

		g.Get("/verifications/pending", h.handlePendingVerifications)
		g.Post("/verifications/{verificationID}/approve", h.handleApprove)
		g.Post("/verifications/{verificationID}/reject", h.handleReject)
		g.Get("/disputes", h.handleDisputes)
	})
}

func (h *Handler) handleCheckNationalID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	match, err := h.workflow.CheckNationalID(ctx, r.URL.Query().Get("national_id"))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to check national ID", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, match)
}

type submitRequest struct {
	NationalIDNumber string            `json:"national_id_number"`
	DocumentType     string            `json:"document_type"`
	DocumentURL      string            `json:"document_url"`
	StoragePath      string            `json:"storage_path"`
	Metadata         map[string]string `json:"metadata"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid submit request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	// Submissions are always filed by the authenticated account itself.
	created, err := h.workflow.Submit(ctx, service.SubmitParams{
		MasterAccountID:  middleware.GetAccountID(ctx),
		NationalIDNumber: req.NationalIDNumber,
		DocumentType:     req.DocumentType,
		DocumentURL:      req.DocumentURL,
		StoragePath:      req.StoragePath,
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to submit verification", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, created)
}

type reviewRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	verificationID, err := uuid.Parse(chi.URLParam(r, "verificationID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification id"))
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid approve request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.workflow.Approve(ctx, verificationID, adminIdentity(r), req.Notes); err != nil {
		h.writeServiceError(ctx, w, "failed to approve verification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	verificationID, err := uuid.Parse(chi.URLParam(r, "verificationID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification id"))
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid reject request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.workflow.Reject(ctx, verificationID, adminIdentity(r), req.Reason); err != nil {
		h.writeServiceError(ctx, w, "failed to reject verification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type disputeRequest struct {
	NationalIDNumber    string                      `json:"national_id_number"`
	ReportedByName      string                      `json:"reported_by_name"`
	ReportedByEmail     string                      `json:"reported_by_email"`
	Explanation         string                      `json:"explanation"`
	SupportingDocuments []models.SupportingDocument `json:"supporting_documents"`
}

func (h *Handler) handleReportDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid dispute request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	dispute, err := h.workflow.ReportDispute(ctx, service.DisputeParams{
		NationalIDNumber:    req.NationalIDNumber,
		ReportedBy:          middleware.GetAccountID(ctx),
		ReportedByName:      req.ReportedByName,
		ReportedByEmail:     req.ReportedByEmail,
		Explanation:         req.Explanation,
		SupportingDocuments: req.SupportingDocuments,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to report dispute", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, dispute)
}

func (h *Handler) handlePendingVerifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, err := h.workflow.PendingVerifications(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list pending verifications", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, verificationList(pending))
}

func (h *Handler) handleAccountVerifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.workflow.AccountVerifications(ctx, chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list account verifications", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, verificationList(list))
}

func (h *Handler) handleDisputes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := models.DisputeStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.DisputePending
	}

	disputes, err := h.workflow.DisputesByStatus(ctx, status)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list disputes", err)
		return
	}
	if disputes == nil {
		disputes = []*models.FraudDispute{}
	}
	shared.WriteJSON(w, http.StatusOK, disputes)
}

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

// adminIdentity names the reviewer on audit entries. The admin surface is
// token-guarded, not identity-guarded, so the caller supplies a header.
func adminIdentity(r *http.Request) string {
	if id := r.Header.Get("X-Admin-ID"); id != "" {
		return id
	}
	return "admin"
}

func verificationList(in []*models.IDVerification) []*models.IDVerification {
	if in == nil {
		return []*models.IDVerification{}
	}
	return in
}
