package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/security"
)

// DisputeEngine is the surface of the lifecycle engine the HTTP layer needs.
type DisputeEngine interface {
	CreateDispute(ctx context.Context, req disputes.CreateDisputeRequest) (*disputes.Dispute, error)
	StartInvestigation(ctx context.Context, disputeID, actor string) error
	IssueProvisionalCredit(ctx context.Context, disputeID string, amount decimal.Decimal) error
	ReverseProvisionalCredit(ctx context.Context, disputeID string) error
	ProcessChargeback(ctx context.Context, disputeID, networkReasonCode, narrative string) error
	HandleMerchantResponse(ctx context.Context, disputeID, responseType string, payload []byte) error
	HandleNetworkResponse(ctx context.Context, disputeID string, payload []byte) error
	ResolveDispute(ctx context.Context, disputeID string, target disputes.DisputeStatus, reason string) error
	CloseDispute(ctx context.Context, disputeID, note string) error
	EscalateDispute(ctx context.Context, disputeID, trigger string) error
	ValidateRegulatory(ctx context.Context, disputeID string) (bool, error)
	MarkOverdue(ctx context.Context) (int, error)
	CalculateComplianceMetrics(ctx context.Context) (disputes.ComplianceMetrics, error)
	GetDispute(ctx context.Context, disputeID string) (*disputes.Dispute, error)
	History(ctx context.Context, disputeID string) ([]*disputes.StateTransition, error)
	VerifyHistory(ctx context.Context, disputeID string) (bool, error)
}

type Dependencies struct {
	Logger *slog.Logger
	Engine DisputeEngine

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64

	// MetricsHandler serves GET /metrics when set (promhttp).
	MetricsHandler http.Handler
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	createV, err := security.NewJSONSchemaValidator(createDisputeSchema)
	if err != nil {
		return nil, err
	}
	creditV, err := security.NewJSONSchemaValidator(issueCreditSchema)
	if err != nil {
		return nil, err
	}
	chargebackV, err := security.NewJSONSchemaValidator(chargebackSchema)
	if err != nil {
		return nil, err
	}
	merchantV, err := security.NewJSONSchemaValidator(merchantResponseSchema)
	if err != nil {
		return nil, err
	}
	networkV, err := security.NewJSONSchemaValidator(networkResponseSchema)
	if err != nil {
		return nil, err
	}
	resolveV, err := security.NewJSONSchemaValidator(resolveDisputeSchema)
	if err != nil {
		return nil, err
	}
	escalateV, err := security.NewJSONSchemaValidator(escalateDisputeSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist, deps.Logger))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/disputes", func(r chi.Router) {
			r.With(createV.Middleware).Post("/", handleCreateDispute(deps))
			r.Post("/overdue-sweep", handleOverdueSweep(deps))

			r.Route("/{dispute_id}", func(r chi.Router) {
				r.Get("/", handleGetDispute(deps))
				r.Get("/history", handleDisputeHistory(deps))
				r.Get("/regulatory", handleValidateRegulatory(deps))

				r.Post("/investigate", handleStartInvestigation(deps))
				r.With(creditV.Middleware).Post("/credit", handleIssueCredit(deps))
				r.Delete("/credit", handleReverseCredit(deps))
				r.With(chargebackV.Middleware).Post("/chargeback", handleProcessChargeback(deps))
				r.With(merchantV.Middleware).Post("/response", handleMerchantResponse(deps))
				r.With(networkV.Middleware).Post("/network-response", handleNetworkResponse(deps))
				r.With(resolveV.Middleware).Post("/resolve", handleResolveDispute(deps))
				r.Post("/close", handleCloseDispute(deps))
				r.With(escalateV.Middleware).Post("/escalate", handleEscalateDispute(deps))
			})
		})

		r.Get("/compliance/metrics", handleComplianceMetrics(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
