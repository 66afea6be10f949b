package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteledger/internal/account"
	"siteledger/internal/audit"
	"siteledger/internal/platform/middleware"
	"siteledger/internal/verification/models"
	"siteledger/internal/verification/service"
	"siteledger/internal/verification/store"
)

const adminToken = "test-admin-token"

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	// The token doubles as the account ID in tests.
	return &middleware.JWTClaims{AccountID: token}, nil
}

type env struct {
	server   *httptest.Server
	accounts *account.InMemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	accounts := account.NewInMemoryStore()
	workflow := service.NewWorkflow(
		store.NewInMemoryStore(), accounts,
		audit.NewPublisher(audit.NewInMemoryStore()), nil,
	)

	h := New(workflow, slog.New(slog.NewTextHandler(testWriter{t}, nil)), adminToken, stubValidator{})
	r := chi.NewRouter()
	h.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{server: srv, accounts: accounts}
}

func (e *env) seedAccount(t *testing.T, id, nationalID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.accounts.Create(context.Background(), &account.MasterAccount{
		ID:                   id,
		Name:                 "Account " + id,
		NationalIDNumber:     nationalID,
		IDVerificationStatus: account.VerificationUnverified,
		DuplicateIDStatus:    account.DuplicateNone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}))
}

// doAs issues a request authenticated as the given account; accountID "" sends
// the admin token instead.
func (e *env) doAs(t *testing.T, accountID, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if accountID != "" {
		req.Header.Set("Authorization", "Bearer "+accountID)
	} else {
		req.Header.Set("X-Admin-Token", adminToken)
		req.Header.Set("X-Admin-ID", "admin-1")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitAndReviewFlow(t *testing.T) {
	e := newEnv(t)
	e.seedAccount(t, "a1", "")

	resp := e.doAs(t, "a1", http.MethodPost, "/verifications", map[string]any{
		"national_id_number": "123",
		"document_type":      "passport",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.IDVerification](t, resp)
	assert.Equal(t, models.StatusPendingReview, created.Status)
	assert.Equal(t, "a1", created.MasterAccountID, "submitter comes from the bearer token")

	t.Run("pending queue requires admin token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, e.server.URL+"/verifications/pending", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer a1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("queue lists the submission", func(t *testing.T) {
		resp := e.doAs(t, "", http.MethodGet, "/verifications/pending", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		queue := decode[[]models.IDVerification](t, resp)
		require.Len(t, queue, 1)
		assert.Equal(t, created.ID, queue[0].ID)
	})

	t.Run("approve", func(t *testing.T) {
		resp := e.doAs(t, "", http.MethodPost, "/verifications/"+created.ID.String()+"/approve", map[string]any{
			"notes": "all good",
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		acct, err := e.accounts.FindByID(context.Background(), "a1")
		require.NoError(t, err)
		assert.True(t, acct.CanOwnCompanies)
	})

	t.Run("reject after approve conflicts", func(t *testing.T) {
		resp := e.doAs(t, "", http.MethodPost, "/verifications/"+created.ID.String()+"/reject", map[string]any{
			"reason": "too late",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestDuplicateSubmissionEndpoint(t *testing.T) {
	e := newEnv(t)
	e.seedAccount(t, "a1", "123")
	e.seedAccount(t, "b1", "")

	resp := e.doAs(t, "b1", http.MethodPost, "/verifications", map[string]any{
		"national_id_number": "123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "conflict", body["error"])
	assert.Contains(t, body["message"], "Account a1")
}

func TestCheckEndpoint(t *testing.T) {
	e := newEnv(t)
	e.seedAccount(t, "a1", "123")

	resp := e.doAs(t, "a1", http.MethodGet, "/verifications/check?national_id=123", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	match := decode[service.Match](t, resp)
	assert.True(t, match.Exists)
	assert.Equal(t, "a1", match.MasterAccountID)

	resp = e.doAs(t, "a1", http.MethodGet, "/verifications/check?national_id=999", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	match = decode[service.Match](t, resp)
	assert.False(t, match.Exists)

	resp = e.doAs(t, "a1", http.MethodGet, "/verifications/check", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisputeEndpoints(t *testing.T) {
	e := newEnv(t)
	e.seedAccount(t, "a1", "123")
	e.seedAccount(t, "reporter", "")

	resp := e.doAs(t, "reporter", http.MethodPost, "/disputes", map[string]any{
		"national_id_number": "123",
		"reported_by_name":   "R One",
		"explanation":        "duplicate sighted",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dispute := decode[models.FraudDispute](t, resp)
	assert.Equal(t, "reporter", dispute.ReportedBy)
	assert.Equal(t, "a1", dispute.ExistingAccountID)

	t.Run("admin dispute list", func(t *testing.T) {
		resp := e.doAs(t, "", http.MethodGet, "/disputes", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		disputes := decode[[]models.FraudDispute](t, resp)
		require.Len(t, disputes, 1)
		assert.Equal(t, dispute.ID, disputes[0].ID)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		resp := e.doAs(t, "reporter", http.MethodPost, "/disputes", map[string]any{
			"national_id_number": "999",
			"explanation":        "nothing there",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}
