package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/security"
)

// stubEngine satisfies DisputeEngine with canned results so router tests
// exercise HTTP concerns only.
type stubEngine struct {
	dispute *disputes.Dispute
	err     error

	lastCredit decimal.Decimal
	lastTarget disputes.DisputeStatus
}

func (s *stubEngine) CreateDispute(_ context.Context, _ disputes.CreateDisputeRequest) (*disputes.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubEngine) StartInvestigation(_ context.Context, _, _ string) error { return s.err }
func (s *stubEngine) IssueProvisionalCredit(_ context.Context, _ string, amount decimal.Decimal) error {
	s.lastCredit = amount
	return s.err
}
func (s *stubEngine) ReverseProvisionalCredit(_ context.Context, _ string) error { return s.err }
func (s *stubEngine) ProcessChargeback(_ context.Context, _, _, _ string) error  { return s.err }
func (s *stubEngine) HandleMerchantResponse(_ context.Context, _, _ string, _ []byte) error {
	return s.err
}
func (s *stubEngine) HandleNetworkResponse(_ context.Context, _ string, _ []byte) error {
	return s.err
}
func (s *stubEngine) ResolveDispute(_ context.Context, _ string, target disputes.DisputeStatus, _ string) error {
	s.lastTarget = target
	return s.err
}
func (s *stubEngine) CloseDispute(_ context.Context, _, _ string) error    { return s.err }
func (s *stubEngine) EscalateDispute(_ context.Context, _, _ string) error { return s.err }
func (s *stubEngine) ValidateRegulatory(_ context.Context, _ string) (bool, error) {
	return true, s.err
}
func (s *stubEngine) MarkOverdue(_ context.Context) (int, error) { return 2, s.err }
func (s *stubEngine) CalculateComplianceMetrics(_ context.Context) (disputes.ComplianceMetrics, error) {
	return disputes.ComplianceMetrics{TotalDisputes: 3, OnTimeResolutions: 2, OverdueCount: 1, ComplianceRate: 0.667}, s.err
}
func (s *stubEngine) GetDispute(_ context.Context, _ string) (*disputes.Dispute, error) {
	return s.dispute, s.err
}
func (s *stubEngine) History(_ context.Context, _ string) ([]*disputes.StateTransition, error) {
	return nil, s.err
}
func (s *stubEngine) VerifyHistory(_ context.Context, _ string) (bool, error) { return true, s.err }

func sampleDispute() *disputes.Dispute {
	return &disputes.Dispute{
		ID:                 "DSP-20260115-abcd1234",
		TransactionID:      "TXN-1",
		AccountID:          "ACC-1",
		MerchantID:         "MER-1",
		Type:               disputes.TypeFraud,
		ReasonCode:         disputes.ReasonStolenCard,
		Status:             disputes.StatusOpened,
		ProvisionalCredit:  decimal.Zero,
		CreatedAt:          time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		RegulatoryDeadline: time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC),
		Version:            1,
	}
}

func newTestRouter(t *testing.T, eng DisputeEngine, maxBody int64) http.Handler {
	t.Helper()
	router, err := NewRouter(Dependencies{
		Engine:       eng,
		MaxBodyBytes: maxBody,
	})
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateDisputeEndpoint(t *testing.T) {
	eng := &stubEngine{dispute: sampleDispute()}
	router := newTestRouter(t, eng, 1<<20)

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes",
		`{"transaction_id":"TXN-1","dispute_type":"FRAUD","reason_code":"STOLEN_CARD","requested_by":"agent-7"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(security.CorrelationIDHeader))
	assert.Equal(t, "/v1/disputes/DSP-20260115-abcd1234", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp disputeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DSP-20260115-abcd1234", resp.Dispute.ID)
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestCreateDisputeSchemaRejection(t *testing.T) {
	router := newTestRouter(t, &stubEngine{dispute: sampleDispute()}, 1<<20)

	// Missing transaction_id fails schema validation before the handler runs.
	rec := doJSON(t, router, http.MethodPost, "/v1/disputes",
		`{"dispute_type":"FRAUD","reason_code":"STOLEN_CARD","requested_by":"agent-7"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp security.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)
}

func TestErrorTaxonomyMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &disputes.ValidationError{Field: "amount", Reason: "must be positive"}, http.StatusUnprocessableEntity},
		{"not found", &disputes.NotFoundError{Kind: "dispute", ID: "DSP-X"}, http.StatusNotFound},
		{"illegal state", &disputes.IllegalStateError{Op: "issue provisional credit", Reason: "provisional credit already issued"}, http.StatusConflict},
		{"version conflict", disputes.ErrVersionConflict, http.StatusConflict},
		{"infrastructure", &disputes.InfrastructureError{Op: "chargeback initiation", Err: context.DeadlineExceeded}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, &stubEngine{err: tc.err}, 1<<20)
			rec := doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/credit", `{"amount":"250.00"}`)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestIssueCreditDecodesExactAmount(t *testing.T) {
	eng := &stubEngine{}
	router := newTestRouter(t, eng, 1<<20)

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/credit", `{"amount":"250.10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, eng.lastCredit.Equal(decimal.RequireFromString("250.10")))
}

func TestResolveEndpoint(t *testing.T) {
	eng := &stubEngine{}
	router := newTestRouter(t, eng, 1<<20)

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/resolve",
		`{"target_status":"RESOLVED_CUSTOMER","reason":"merchant failed to respond"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, disputes.StatusResolvedCustomer, eng.lastTarget)

	// Schema rejects a target outside the resolution set.
	rec = doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/resolve",
		`{"target_status":"INVESTIGATING"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEscalateSchemaEnforcesTriggers(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, 1<<20)

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/escalate", `{"trigger":"HIGH_VALUE"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/v1/disputes/DSP-1/escalate", `{"trigger":"EXECUTIVE_COMPLAINT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplianceMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, 1<<20)

	rec := doJSON(t, router, http.MethodGet, "/v1/compliance/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp complianceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Metrics.TotalDisputes)
	assert.InDelta(t, 0.667, resp.Metrics.ComplianceRate, 0.001)
}

func TestOverdueSweepEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, 1<<20)

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes/overdue-sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp overdueSweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.MarkedOverdue)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, 1<<20)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, 1<<20)
	rec := doJSON(t, router, http.MethodGet, "/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestBodySizeLimit(t *testing.T) {
	router := newTestRouter(t, &stubEngine{dispute: sampleDispute()}, 64)

	big := bytes.Repeat([]byte("x"), 4096)
	body := `{"transaction_id":"TXN-1","dispute_type":"FRAUD","reason_code":"STOLEN_CARD","requested_by":"` + string(big) + `"}`

	rec := doJSON(t, router, http.MethodPost, "/v1/disputes", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	router := newTestRouter(t, &stubEngine{dispute: sampleDispute()}, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/v1/disputes/DSP-1", nil)
	req.Header.Set(security.CorrelationIDHeader, "cid-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cid-123", rec.Header().Get(security.CorrelationIDHeader))

	var resp disputeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cid-123", resp.CorrelationID)
}
