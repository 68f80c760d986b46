package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/security"
)

type disputeResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Dispute       *disputes.Dispute `json:"dispute"`
}

type actionResponse struct {
	CorrelationID string `json:"correlation_id"`
	Success       bool   `json:"success"`
	Status        string `json:"status,omitempty"`
}

type historyResponse struct {
	CorrelationID string                      `json:"correlation_id"`
	Transitions   []*disputes.StateTransition `json:"transitions"`
	ChainValid    bool                        `json:"chain_valid"`
}

type regulatoryResponse struct {
	CorrelationID  string `json:"correlation_id"`
	DisputeID      string `json:"dispute_id"`
	WithinDeadline bool   `json:"within_deadline"`
}

type complianceResponse struct {
	CorrelationID string                     `json:"correlation_id"`
	Metrics       disputes.ComplianceMetrics `json:"metrics"`
}

type overdueSweepResponse struct {
	CorrelationID string `json:"correlation_id"`
	MarkedOverdue int    `json:"marked_overdue"`
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Validation failures are the caller's to fix, state conflicts are 409, and
// store or gateway trouble surfaces as a bad gateway.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve    *disputes.ValidationError
		nfe   *disputes.NotFoundError
		ise   *disputes.IllegalStateError
		infra *disputes.InfrastructureError
	)
	switch {
	case errors.As(err, &ve):
		security.WriteJSONErrorDetail(w, r, http.StatusUnprocessableEntity, "validation_error", ve.Error())
	case errors.As(err, &nfe):
		security.WriteJSONErrorDetail(w, r, http.StatusNotFound, "not_found", nfe.Error())
	case errors.Is(err, disputes.ErrVersionConflict):
		security.WriteJSONError(w, r, http.StatusConflict, "version_conflict")
	case errors.As(err, &ise):
		security.WriteJSONErrorDetail(w, r, http.StatusConflict, "illegal_state", ise.Error())
	case errors.As(err, &infra):
		security.WriteJSONError(w, r, http.StatusBadGateway, "upstream_error")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func disputeID(r *http.Request) string {
	return chi.URLParam(r, "dispute_id")
}

// decodeBody decodes an optional JSON body. An empty body leaves dst zeroed.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == io.EOF {
		return nil
	}
	return err
}

func handleCreateDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req disputes.CreateDisputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		d, err := deps.Engine.CreateDispute(r.Context(), req)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeCreated(w, r, "/v1/disputes/"+d.ID, disputeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Dispute:       d,
		})
	}
}

func handleGetDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Engine.GetDispute(r.Context(), disputeID(r))
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, disputeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Dispute:       d,
		})
	}
}

func handleDisputeHistory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := disputeID(r)
		transitions, err := deps.Engine.History(r.Context(), id)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		valid, err := deps.Engine.VerifyHistory(r.Context(), id)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, historyResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Transitions:   transitions,
			ChainValid:    valid,
		})
	}
}

func handleStartInvestigation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor string `json:"actor"`
		}
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.Actor == "" {
			req.Actor = "api"
		}

		if err := deps.Engine.StartInvestigation(r.Context(), disputeID(r), req.Actor); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        string(disputes.StatusInvestigating),
		})
	}
}

func handleIssueCredit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.IssueProvisionalCredit(r.Context(), disputeID(r), req.Amount); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        "CREDIT_ISSUED",
		})
	}
}

func handleReverseCredit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.ReverseProvisionalCredit(r.Context(), disputeID(r)); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        "CREDIT_REVERSED",
		})
	}
}

func handleProcessChargeback(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NetworkReasonCode string `json:"network_reason_code"`
			Narrative         string `json:"narrative"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.ProcessChargeback(r.Context(), disputeID(r), req.NetworkReasonCode, req.Narrative); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        string(disputes.StatusChargebackInitiated),
		})
	}
}

func handleMerchantResponse(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseType string          `json:"response_type"`
			Payload      json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.HandleMerchantResponse(r.Context(), disputeID(r), req.ResponseType, req.Payload); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handleNetworkResponse(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.HandleNetworkResponse(r.Context(), disputeID(r), req.Payload); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handleResolveDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetStatus string `json:"target_status"`
			Reason       string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		target := disputes.DisputeStatus(req.TargetStatus)
		if err := deps.Engine.ResolveDispute(r.Context(), disputeID(r), target, req.Reason); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        req.TargetStatus,
		})
	}
}

func handleCloseDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Note string `json:"note"`
		}
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.CloseDispute(r.Context(), disputeID(r), req.Note); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        string(disputes.StatusClosed),
		})
	}
}

func handleEscalateDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Trigger string `json:"trigger"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		if err := deps.Engine.EscalateDispute(r.Context(), disputeID(r), req.Trigger); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Status:        string(disputes.StatusEscalated),
		})
	}
}

func handleValidateRegulatory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := disputeID(r)
		within, err := deps.Engine.ValidateRegulatory(r.Context(), id)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, regulatoryResponse{
			CorrelationID:  security.CorrelationIDFromContext(r.Context()),
			DisputeID:      id,
			WithinDeadline: within,
		})
	}
}

func handleOverdueSweep(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Engine.MarkOverdue(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, overdueSweepResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			MarkedOverdue: n,
		})
	}
}

func handleComplianceMetrics(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Engine.CalculateComplianceMetrics(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, complianceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Metrics:       m,
		})
	}
}
