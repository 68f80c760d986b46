package disputes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/dispute-engine/internal/ledger"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/pkg/audit"
)

// Config carries the engine's business constants. Deadline windows and
// thresholds are configuration, never literals inside operations.
type Config struct {
	// DefaultRegulatoryWindow applies to any type without an override.
	DefaultRegulatoryWindow time.Duration
	// RegulatoryWindows overrides the deadline window per dispute type.
	RegulatoryWindows map[DisputeType]time.Duration
	// InvestigationWindow is the age past which an unresolved dispute
	// qualifies for the TIMELINE_EXCEEDED escalation trigger.
	InvestigationWindow time.Duration
	// HighValueThreshold qualifies a dispute for the HIGH_VALUE trigger.
	HighValueThreshold decimal.Decimal
	// DocumentationThreshold is the amount above which non-fraud disputes
	// require documentation.
	DocumentationThreshold decimal.Decimal
	// GatewayTimeout bounds every chargeback gateway call.
	GatewayTimeout time.Duration
}

// DefaultConfig returns the windows used in production unless overridden.
func DefaultConfig() Config {
	return Config{
		DefaultRegulatoryWindow: 60 * 24 * time.Hour,
		RegulatoryWindows: map[DisputeType]time.Duration{
			TypeFraud: 120 * 24 * time.Hour,
		},
		InvestigationWindow:    30 * 24 * time.Hour,
		HighValueThreshold:     decimal.NewFromInt(2500),
		DocumentationThreshold: decimal.NewFromInt(500),
		GatewayTimeout:         10 * time.Second,
	}
}

func (c Config) regulatoryWindow(t DisputeType) time.Duration {
	if w, ok := c.RegulatoryWindows[t]; ok {
		return w
	}
	return c.DefaultRegulatoryWindow
}

// Auditor receives a tamper-evident record of every financial adjustment.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// Engine orchestrates the dispute lifecycle. All dispute mutation funnels
// through a per-dispute writer lock; balance mutation goes through the
// ledger's acquire-for-update contract.
type Engine struct {
	cfg      Config
	store    DisputeStore
	txns     TransactionStore
	accounts ledger.Store
	gateway  ChargebackGateway
	sm       *StateMachine
	logger   *slog.Logger
	auditor  Auditor
	metrics  *EngineMetrics
	now      func() time.Time

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

// Option customizes an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithAuditor(a Auditor) Option { return func(e *Engine) { e.auditor = a } }

func WithMetrics(m *EngineMetrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine wires the engine against its collaborators.
func NewEngine(cfg Config, store DisputeStore, txns TransactionStore, accounts ledger.Store, gateway ChargebackGateway, transitions TransitionStore, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		txns:     txns,
		accounts: accounts,
		gateway:  gateway,
		sm:       NewStateMachine(transitions),
		logger:   slog.Default(),
		now:      time.Now,
		writers:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sm.now = e.now
	return e
}

// lockDispute enforces the single-writer-per-dispute discipline.
func (e *Engine) lockDispute(disputeID string) func() {
	e.mu.Lock()
	m, ok := e.writers[disputeID]
	if !ok {
		m = &sync.Mutex{}
		e.writers[disputeID] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// CreateDisputeRequest is the input to CreateDispute.
type CreateDisputeRequest struct {
	TransactionID string      `json:"transaction_id"`
	Type          DisputeType `json:"dispute_type"`
	ReasonCode    ReasonCode  `json:"reason_code"`
	Description   string      `json:"description"`
	RequestedBy   string      `json:"requested_by"`
}

// CreateDispute opens a dispute against an existing transaction. No account
// mutation happens here.
func (e *Engine) CreateDispute(ctx context.Context, req CreateDisputeRequest) (d *Dispute, err error) {
	defer func() { e.metrics.observe("create_dispute", err) }()

	if req.TransactionID == "" {
		return nil, &ValidationError{Field: "transaction_id", Reason: "required"}
	}
	if !KnownType(req.Type) {
		return nil, &ValidationError{Field: "dispute_type", Reason: fmt.Sprintf("unknown dispute type %q", req.Type)}
	}
	if !ValidTypeReason(req.Type, req.ReasonCode) {
		return nil, &ValidationError{Reason: "invalid dispute type and reason code combination"}
	}

	txn, err := e.txns.FindByID(ctx, req.TransactionID)
	if err != nil {
		return nil, &InfrastructureError{Op: "transaction lookup", Err: err}
	}
	if txn == nil {
		return nil, &NotFoundError{Kind: "transaction", ID: req.TransactionID}
	}

	createdAt := e.now().UTC()
	d = &Dispute{
		ID:                    fmt.Sprintf("DSP-%s%s", createdAt.Format("20060102-"), uuid.NewString()[:8]),
		TransactionID:         txn.ID,
		AccountID:             txn.AccountID,
		MerchantID:            txn.MerchantID,
		Type:                  req.Type,
		ReasonCode:            req.ReasonCode,
		Description:           req.Description,
		Status:                StatusOpened,
		ProvisionalCredit:     decimal.Zero,
		DocumentationRequired: documentationRequired(req.Type, txn.Amount, e.cfg.DocumentationThreshold),
		CreatedAt:             createdAt,
		RegulatoryDeadline:    createdAt.Add(e.cfg.regulatoryWindow(req.Type)),
		Version:               1,
	}

	if err := e.store.Create(ctx, d); err != nil {
		return nil, &InfrastructureError{Op: "dispute create", Err: err}
	}
	if _, err := e.sm.Record(ctx, d.ID, "", StatusOpened, "dispute opened", req.RequestedBy); err != nil {
		return nil, err
	}

	e.logger.Info("dispute created",
		"dispute_id", d.ID,
		"transaction_id", d.TransactionID,
		"dispute_type", d.Type,
		"reason_code", d.ReasonCode,
		"regulatory_deadline", d.RegulatoryDeadline,
	)
	return d, nil
}

// StartInvestigation moves an opened dispute into active investigation.
func (e *Engine) StartInvestigation(ctx context.Context, disputeID, actor string) (err error) {
	defer func() { e.metrics.observe("start_investigation", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	return e.transition(ctx, d, StatusInvestigating, "investigation started", actor)
}

// IssueProvisionalCredit adds amount to the cardholder's balance under an
// exclusive account lock and records the outstanding credit on the dispute.
// Issuing while a credit is outstanding is illegal.
func (e *Engine) IssueProvisionalCredit(ctx context.Context, disputeID string, amount decimal.Decimal) (err error) {
	defer func() { e.metrics.observe("issue_credit", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if d.CreditOutstanding() {
		return &IllegalStateError{Op: "issue provisional credit", Reason: "provisional credit already issued"}
	}
	if d.Terminal() || d.Resolved() {
		return &IllegalStateError{Op: "issue provisional credit", Reason: fmt.Sprintf("dispute is %s", d.Status)}
	}

	la, err := e.lockAccount(ctx, "issue provisional credit", d.AccountID)
	if err != nil {
		return err
	}

	d.ProvisionalCredit = amount
	if err := e.store.Save(ctx, d); err != nil {
		_ = la.Release(ctx)
		return e.saveError("issue provisional credit", err)
	}

	acct := la.Account()
	acct.Balance = acct.Balance.Add(amount)
	if err := la.Save(ctx, acct); err != nil {
		// Compensate: the ledger never saw the credit, take it back off the
		// record so a retry is not blocked by the already-issued guard.
		d.ProvisionalCredit = decimal.Zero
		if rbErr := e.store.Save(ctx, d); rbErr != nil {
			e.logger.Error("credit rollback failed, record and ledger diverged",
				"dispute_id", d.ID, "error", rbErr)
		}
		return &InfrastructureError{Op: "issue provisional credit", Err: err}
	}

	e.audit(ctx, fmt.Sprintf("op=credit_issue dispute=%s account=%s amount=%s", d.ID, d.AccountID, amount))
	if e.metrics != nil {
		e.metrics.CreditsIssued.Inc()
	}
	e.logger.Info("provisional credit issued", "dispute_id", d.ID, "account_id", d.AccountID, "amount", amount)
	return nil
}

// ReverseProvisionalCredit subtracts the outstanding credit from the
// cardholder's balance under the same locking contract and clears it on the
// dispute.
func (e *Engine) ReverseProvisionalCredit(ctx context.Context, disputeID string) (err error) {
	defer func() { e.metrics.observe("reverse_credit", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	return e.reverseCreditLocked(ctx, d)
}

// reverseCreditLocked performs the ledger reversal for a dispute whose writer
// lock is already held.
func (e *Engine) reverseCreditLocked(ctx context.Context, d *Dispute) error {
	if !d.CreditOutstanding() {
		return &IllegalStateError{Op: "reverse provisional credit", Reason: "no provisional credit outstanding"}
	}

	la, err := e.lockAccount(ctx, "reverse provisional credit", d.AccountID)
	if err != nil {
		return err
	}

	amount := d.ProvisionalCredit
	d.ProvisionalCredit = decimal.Zero
	if err := e.store.Save(ctx, d); err != nil {
		_ = la.Release(ctx)
		d.ProvisionalCredit = amount
		return e.saveError("reverse provisional credit", err)
	}

	acct := la.Account()
	acct.Balance = acct.Balance.Sub(amount)
	if err := la.Save(ctx, acct); err != nil {
		d.ProvisionalCredit = amount
		if rbErr := e.store.Save(ctx, d); rbErr != nil {
			e.logger.Error("reversal rollback failed, record and ledger diverged",
				"dispute_id", d.ID, "error", rbErr)
		}
		return &InfrastructureError{Op: "reverse provisional credit", Err: err}
	}

	e.audit(ctx, fmt.Sprintf("op=credit_reverse dispute=%s account=%s amount=%s", d.ID, d.AccountID, amount))
	if e.metrics != nil {
		e.metrics.CreditsReversed.Inc()
	}
	e.logger.Info("provisional credit reversed", "dispute_id", d.ID, "account_id", d.AccountID, "amount", amount)
	return nil
}

// ProcessChargeback submits the dispute to the card network. Legal only from
// investigation (or escalated investigation); nothing changes locally if the
// gateway call fails.
func (e *Engine) ProcessChargeback(ctx context.Context, disputeID, networkReasonCode, narrative string) (err error) {
	defer func() { e.metrics.observe("process_chargeback", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if !e.sm.IsValidTransition(d.Status, StatusChargebackInitiated) {
		return &IllegalStateError{Op: "process chargeback", Reason: fmt.Sprintf("status %s does not permit chargeback initiation", d.Status)}
	}

	txn, err := e.txns.FindByID(ctx, d.TransactionID)
	if err != nil {
		return &InfrastructureError{Op: "transaction lookup", Err: err}
	}
	if txn == nil {
		return &NotFoundError{Kind: "transaction", ID: d.TransactionID}
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	chargebackID, err := e.gateway.InitiateChargeback(gwCtx, InitiateChargebackRequest{
		CardNumber:        txn.CardNumber,
		TransactionID:     txn.ID,
		NetworkReasonCode: networkReasonCode,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		MerchantID:        txn.MerchantID,
		Narrative:         narrative,
	})
	if err != nil {
		return &InfrastructureError{Op: "chargeback initiation", Err: err}
	}

	d.ChargebackID = chargebackID
	if err := e.transition(ctx, d, StatusChargebackInitiated, "chargeback submitted to network", "engine"); err != nil {
		return err
	}

	e.audit(ctx, fmt.Sprintf("op=chargeback_initiate dispute=%s chargeback=%s card=%s amount=%s",
		d.ID, chargebackID, maskCard(txn.CardNumber), txn.Amount))
	e.logger.Info("chargeback initiated", "dispute_id", d.ID, "chargeback_id", chargebackID)
	return nil
}

// HandleMerchantResponse feeds a merchant's raw response through the gateway
// and applies the normalized verdict. Responses after the regulatory deadline
// are never accepted into the state machine.
func (e *Engine) HandleMerchantResponse(ctx context.Context, disputeID, responseType string, payload []byte) (err error) {
	defer func() { e.metrics.observe("handle_merchant_response", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if err := e.guardDeadline(d); err != nil {
		return err
	}
	if d.ChargebackID == "" {
		return &IllegalStateError{Op: "handle merchant response", Reason: "no chargeback case open for dispute"}
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	verdict, err := e.gateway.HandleMerchantResponse(gwCtx, d.ChargebackID, responseType, payload, e.now().UTC())
	if err != nil {
		return &InfrastructureError{Op: "merchant response processing", Err: err}
	}
	return e.applyVerdict(ctx, d, verdict)
}

// HandleNetworkResponse is the network-side counterpart of
// HandleMerchantResponse, under the same deadline guard.
func (e *Engine) HandleNetworkResponse(ctx context.Context, disputeID string, payload []byte) (err error) {
	defer func() { e.metrics.observe("handle_network_response", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if err := e.guardDeadline(d); err != nil {
		return err
	}
	if d.ChargebackID == "" {
		return &IllegalStateError{Op: "handle network response", Reason: "no chargeback case open for dispute"}
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	verdict, err := e.gateway.ProcessResponse(gwCtx, d.ChargebackID, payload, e.now().UTC())
	if err != nil {
		return &InfrastructureError{Op: "network response processing", Err: err}
	}
	return e.applyVerdict(ctx, d, verdict)
}

func (e *Engine) guardDeadline(d *Dispute) error {
	if e.now().After(d.RegulatoryDeadline) {
		return &IllegalStateError{Op: "handle response", Reason: "response received after deadline"}
	}
	return nil
}

func (e *Engine) applyVerdict(ctx context.Context, d *Dispute, verdict Verdict) error {
	switch verdict {
	case VerdictAccepted:
		// Merchant concedes; resolution in the merchant's favor reverses any
		// outstanding credit as part of the same logical operation.
		return e.resolveLocked(ctx, d, StatusResolvedMerchant, "merchant accepted chargeback")
	case VerdictRepresentment, VerdictRejected:
		return e.transition(ctx, d, StatusRepresentmentReview, fmt.Sprintf("merchant verdict %s", verdict), "gateway")
	case VerdictForwarded:
		return e.transition(ctx, d, StatusPendingMerchantResponse, "chargeback forwarded to merchant", "gateway")
	default:
		return &InfrastructureError{Op: "verdict handling", Err: fmt.Errorf("unrecognized gateway verdict %q", verdict)}
	}
}

// ResolveDispute records a verdict. RESOLVED_MERCHANT reverses any
// outstanding provisional credit within the same operation; RESOLVED_CUSTOMER
// makes the credit permanent.
func (e *Engine) ResolveDispute(ctx context.Context, disputeID string, target DisputeStatus, reason string) (err error) {
	defer func() { e.metrics.observe("resolve_dispute", err) }()
	defer e.lockDispute(disputeID)()

	if target != StatusResolvedMerchant && target != StatusResolvedCustomer && target != StatusClosed {
		return &ValidationError{Field: "target_status", Reason: fmt.Sprintf("%s is not a resolution status", target)}
	}

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}

	if target == StatusClosed {
		return e.closeLocked(ctx, d, reason)
	}
	return e.resolveLocked(ctx, d, target, reason)
}

// resolveLocked applies a resolution verdict to a dispute whose writer lock
// is held.
func (e *Engine) resolveLocked(ctx context.Context, d *Dispute, target DisputeStatus, reason string) error {
	if !e.sm.IsValidTransition(d.Status, target) {
		return &IllegalStateError{Op: "resolve dispute", Reason: fmt.Sprintf("status %s does not permit %s", d.Status, target)}
	}
	if d.DocumentationRequired && !referencesDocumentation(reason) {
		// Soft business rule: recorded, not enforced.
		e.logger.Warn("resolving documented dispute without documentation reference",
			"dispute_id", d.ID, "reason", reason)
	}

	var la ledger.LockedAccount
	var reversed decimal.Decimal
	if target == StatusResolvedMerchant && d.CreditOutstanding() {
		var err error
		la, err = e.lockAccount(ctx, "resolve dispute", d.AccountID)
		if err != nil {
			return err
		}
		reversed = d.ProvisionalCredit
		d.ProvisionalCredit = decimal.Zero
	}

	from := d.Status
	resolvedAt := e.now().UTC()
	d.ResolutionDate = &resolvedAt
	d.ResolutionReason = reason

	if _, err := e.sm.Record(ctx, d.ID, from, target, reason, "engine"); err != nil {
		if la != nil {
			_ = la.Release(ctx)
		}
		return err
	}
	d.Status = target
	if err := e.store.Save(ctx, d); err != nil {
		if la != nil {
			_ = la.Release(ctx)
		}
		return e.saveError("resolve dispute", err)
	}

	if la != nil {
		acct := la.Account()
		acct.Balance = acct.Balance.Sub(reversed)
		if err := la.Save(ctx, acct); err != nil {
			// The reversal never landed. Restore the whole record, not just
			// the credit: a stored resolution whose ledger reversal failed
			// would stand unreconciled. The rollback is journaled so the
			// chain reflects it.
			d.ProvisionalCredit = reversed
			d.Status = from
			d.ResolutionDate = nil
			d.ResolutionReason = ""
			if _, rbErr := e.sm.RecordRollback(ctx, d.ID, target, from, "ledger reversal failed, resolution rolled back", "engine"); rbErr != nil {
				e.logger.Error("resolution rollback journal failed", "dispute_id", d.ID, "error", rbErr)
			}
			if rbErr := e.store.Save(ctx, d); rbErr != nil {
				e.logger.Error("resolution rollback failed, record and ledger diverged",
					"dispute_id", d.ID, "error", rbErr)
			}
			return &InfrastructureError{Op: "resolve dispute", Err: err}
		}
		e.audit(ctx, fmt.Sprintf("op=credit_reverse dispute=%s account=%s amount=%s", d.ID, d.AccountID, reversed))
		if e.metrics != nil {
			e.metrics.CreditsReversed.Inc()
		}
	}

	e.settle(ctx, d, target)
	e.audit(ctx, fmt.Sprintf("op=resolve dispute=%s status=%s reason=%q", d.ID, target, reason))
	e.logger.Info("dispute resolved", "dispute_id", d.ID, "status", target, "reason", reason)
	return nil
}

// settle asks the gateway for the settlement amount once a chargeback case
// reaches a verdict. Resolution is already durable; settlement failures are
// surfaced in logs and retried out of band.
func (e *Engine) settle(ctx context.Context, d *Dispute, target DisputeStatus) {
	if d.ChargebackID == "" {
		return
	}
	decision := "MERCHANT"
	if target == StatusResolvedCustomer {
		decision = "CARDHOLDER"
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	txn, err := e.txns.FindByID(gwCtx, d.TransactionID)
	if err != nil || txn == nil {
		e.logger.Error("settlement lookup failed", "dispute_id", d.ID, "error", err)
		return
	}
	amount, err := e.gateway.CalculateSettlement(gwCtx, d.ChargebackID, txn.Amount, decision, txn.Currency)
	if err != nil {
		e.logger.Error("settlement calculation failed", "dispute_id", d.ID, "error", err)
		return
	}
	e.audit(ctx, fmt.Sprintf("op=settlement dispute=%s chargeback=%s decision=%s amount=%s", d.ID, d.ChargebackID, decision, amount))
}

// CloseDispute moves a resolved dispute to CLOSED.
func (e *Engine) CloseDispute(ctx context.Context, disputeID, note string) (err error) {
	defer func() { e.metrics.observe("close_dispute", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	return e.closeLocked(ctx, d, note)
}

func (e *Engine) closeLocked(ctx context.Context, d *Dispute, note string) error {
	if d.CreditOutstanding() {
		return &IllegalStateError{Op: "close dispute", Reason: "provisional credit still outstanding"}
	}
	if err := e.transition(ctx, d, StatusClosed, note, "engine"); err != nil {
		return err
	}

	// The local record is already closed; the network notification is
	// best-effort and retried out of band.
	if d.ChargebackID != "" {
		gwCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
		defer cancel()
		if err := e.gateway.UpdateStatus(gwCtx, d.ChargebackID, "CLOSED", note); err != nil {
			e.logger.Warn("chargeback close notification failed", "dispute_id", d.ID, "chargeback_id", d.ChargebackID, "error", err)
		}
	}
	return nil
}

// EscalateDispute verifies that the named trigger actually fired, then moves
// the dispute to ESCALATED with the trigger recorded as the escalation level.
func (e *Engine) EscalateDispute(ctx context.Context, disputeID, trigger string) (err error) {
	defer func() { e.metrics.observe("escalate_dispute", err) }()
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}

	switch trigger {
	case EscalationTimelineExceeded:
		if d.Resolved() || e.now().Sub(d.CreatedAt) <= e.cfg.InvestigationWindow {
			return &IllegalStateError{Op: "escalate dispute", Reason: "investigation window has not been exceeded"}
		}
	case EscalationHighValue:
		ok := d.ProvisionalCredit.GreaterThan(e.cfg.HighValueThreshold)
		if !ok {
			txn, txErr := e.txns.FindByID(ctx, d.TransactionID)
			if txErr != nil {
				return &InfrastructureError{Op: "transaction lookup", Err: txErr}
			}
			ok = txn != nil && txn.Amount.GreaterThan(e.cfg.HighValueThreshold)
		}
		if !ok {
			return &IllegalStateError{Op: "escalate dispute", Reason: "amount is below the high-value threshold"}
		}
	case EscalationFraudInvestigation:
		if d.Type != TypeFraud || !HighRiskReason(d.ReasonCode) {
			return &IllegalStateError{Op: "escalate dispute", Reason: "dispute is not a high-risk fraud case"}
		}
	default:
		return &ValidationError{Field: "trigger", Reason: fmt.Sprintf("unknown escalation trigger %q", trigger)}
	}

	d.EscalationLevel = trigger
	if err := e.transition(ctx, d, StatusEscalated, fmt.Sprintf("escalated: %s", trigger), "engine"); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Escalations.WithLabelValues(trigger).Inc()
	}
	e.logger.Info("dispute escalated", "dispute_id", d.ID, "trigger", trigger)
	return nil
}

// ValidateRegulatory reports whether the dispute is still inside its
// regulatory deadline. Pure read, no mutation.
func (e *Engine) ValidateRegulatory(ctx context.Context, disputeID string) (bool, error) {
	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return false, err
	}
	return !e.now().After(d.RegulatoryDeadline), nil
}

// MarkOverdue sweeps non-terminal disputes past their regulatory deadline
// into the OVERDUE side-state. Invoked explicitly; the engine spawns no
// background work.
func (e *Engine) MarkOverdue(ctx context.Context) (int, error) {
	sweepStatuses := []DisputeStatus{
		StatusOpened, StatusInvestigating, StatusChargebackInitiated,
		StatusPendingMerchantResponse, StatusRepresentmentReview, StatusEscalated,
	}

	marked := 0
	for _, status := range sweepStatuses {
		ds, err := e.store.FindByStatus(ctx, status)
		if err != nil {
			return marked, &InfrastructureError{Op: "overdue sweep", Err: err}
		}
		for _, stale := range ds {
			if !e.now().After(stale.RegulatoryDeadline) {
				continue
			}
			if err := e.markOverdueOne(ctx, stale.ID); err != nil {
				var ise *IllegalStateError
				if errors.As(err, &ise) {
					continue // moved on concurrently
				}
				return marked, err
			}
			marked++
		}
	}
	return marked, nil
}

func (e *Engine) markOverdueOne(ctx context.Context, disputeID string) error {
	defer e.lockDispute(disputeID)()

	d, err := e.findDispute(ctx, disputeID)
	if err != nil {
		return err
	}
	if !e.now().After(d.RegulatoryDeadline) || d.Status == StatusOverdue {
		return nil
	}
	return e.transition(ctx, d, StatusOverdue, "regulatory deadline exceeded", "engine")
}

// ComplianceMetrics aggregates resolution timeliness over all disputes.
type ComplianceMetrics struct {
	TotalDisputes     int     `json:"total_disputes"`
	OnTimeResolutions int     `json:"on_time_resolutions"`
	OverdueCount      int     `json:"overdue_count"`
	ComplianceRate    float64 `json:"compliance_rate"`
}

// CalculateComplianceMetrics counts disputes resolved on time against those
// past deadline. The rate is 0 for an empty book, never a division fault.
func (e *Engine) CalculateComplianceMetrics(ctx context.Context) (ComplianceMetrics, error) {
	all := []DisputeStatus{
		StatusOpened, StatusInvestigating, StatusChargebackInitiated,
		StatusPendingMerchantResponse, StatusRepresentmentReview,
		StatusResolvedMerchant, StatusResolvedCustomer,
		StatusEscalated, StatusOverdue, StatusClosed,
	}

	var m ComplianceMetrics
	now := e.now()
	for _, status := range all {
		ds, err := e.store.FindByStatus(ctx, status)
		if err != nil {
			return ComplianceMetrics{}, &InfrastructureError{Op: "compliance sweep", Err: err}
		}
		if e.metrics != nil {
			e.metrics.DisputesByStatus.WithLabelValues(string(status)).Set(float64(len(ds)))
		}
		for _, d := range ds {
			m.TotalDisputes++
			switch {
			case d.Resolved() && !d.ResolutionDate.After(d.RegulatoryDeadline):
				// resolved on time
			case d.Resolved() || now.After(d.RegulatoryDeadline):
				m.OverdueCount++
			}
		}
	}

	m.OnTimeResolutions = m.TotalDisputes - m.OverdueCount
	if m.TotalDisputes > 0 {
		m.ComplianceRate = float64(m.OnTimeResolutions) / float64(m.TotalDisputes)
	}

	if e.metrics != nil {
		e.metrics.ComplianceRate.Set(m.ComplianceRate)
		e.metrics.OverdueDisputes.Set(float64(m.OverdueCount))
	}
	return m, nil
}

// GetDispute returns a dispute by id.
func (e *Engine) GetDispute(ctx context.Context, disputeID string) (*Dispute, error) {
	return e.findDispute(ctx, disputeID)
}

// History returns the hash-chained transition journal for a dispute.
func (e *Engine) History(ctx context.Context, disputeID string) ([]*StateTransition, error) {
	return e.sm.History(ctx, disputeID)
}

// VerifyHistory checks the journal's hash chain.
func (e *Engine) VerifyHistory(ctx context.Context, disputeID string) (bool, error) {
	return e.sm.VerifyChainIntegrity(ctx, disputeID)
}

func (e *Engine) findDispute(ctx context.Context, disputeID string) (*Dispute, error) {
	if disputeID == "" {
		return nil, &ValidationError{Field: "dispute_id", Reason: "required"}
	}
	d, err := e.store.FindByID(ctx, disputeID)
	if err != nil {
		return nil, &InfrastructureError{Op: "dispute lookup", Err: err}
	}
	if d == nil {
		return nil, &NotFoundError{Kind: "dispute", ID: disputeID}
	}
	return d, nil
}

// transition validates, journals and persists a status change.
func (e *Engine) transition(ctx context.Context, d *Dispute, to DisputeStatus, reason, actor string) error {
	from := d.Status
	if _, err := e.sm.Record(ctx, d.ID, from, to, reason, actor); err != nil {
		return err
	}
	d.Status = to
	if err := e.store.Save(ctx, d); err != nil {
		return e.saveError("status update", err)
	}
	return nil
}

// lockAccount maps the ledger's lock contract onto the engine taxonomy.
func (e *Engine) lockAccount(ctx context.Context, op, accountID string) (ledger.LockedAccount, error) {
	la, err := e.accounts.LockForUpdate(ctx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrLockUnavailable) {
			return nil, &IllegalStateError{Op: op, Reason: "unable to lock account for update"}
		}
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, &NotFoundError{Kind: "account", ID: accountID}
		}
		return nil, &InfrastructureError{Op: op, Err: err}
	}
	return la, nil
}

func (e *Engine) saveError(op string, err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return &IllegalStateError{Op: op, Reason: "dispute was modified concurrently"}
	}
	return &InfrastructureError{Op: op, Err: err}
}

// audit appends a tamper-evident entry. The caller's correlation id, when
// present, is stamped onto the payload so a chain entry can be traced back to
// the request that caused it.
func (e *Engine) audit(ctx context.Context, payload string) {
	if e.auditor == nil {
		return
	}
	if cid := security.CorrelationIDFromContext(ctx); cid != "" {
		payload += " cid=" + cid
	}
	e.auditor.Append(payload)
}
