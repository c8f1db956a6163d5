package gateways

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"openfinance/internal/payments"
)

// ThresholdRiskAssessor is a local stand-in for the external risk engine. It
// rejects single payments above a hard threshold and payees on the blocked
// list; everything else passes.
type ThresholdRiskAssessor struct {
	maxSingleAmount decimal.Decimal
	blockedPayees   map[string]struct{}
	logger          *slog.Logger
}

// NewThresholdRiskAssessor creates a risk assessor with the given ceiling
// and blocked payee identifiers.
func NewThresholdRiskAssessor(maxSingleAmount decimal.Decimal, blockedPayees []string, logger *slog.Logger) *ThresholdRiskAssessor {
	blocked := make(map[string]struct{}, len(blockedPayees))
	for _, p := range blockedPayees {
		blocked[p] = struct{}{}
	}
	return &ThresholdRiskAssessor{
		maxSingleAmount: maxSingleAmount,
		blockedPayees:   blocked,
		logger:          logger,
	}
}

// Assess evaluates one payment initiation.
func (a *ThresholdRiskAssessor) Assess(ctx context.Context, initiation payments.Initiation, tppID string) (payments.RiskDecision, error) {
	if initiation.Amount.GreaterThan(a.maxSingleAmount) {
		a.logger.Warn("Risk rejected payment over threshold",
			"tpp_id", tppID, "amount", initiation.Amount.StringFixed(2))
		return payments.RiskReject, nil
	}
	if _, blocked := a.blockedPayees[initiation.PayeeID]; blocked {
		a.logger.Warn("Risk rejected payment to blocked payee", "tpp_id", tppID)
		return payments.RiskReject, nil
	}
	return payments.RiskPass, nil
}
