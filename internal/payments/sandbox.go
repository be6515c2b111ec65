package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// Sandbox tokens with deterministic outcomes.
const (
	SandboxTokenDecline = "tok_declined"
	SandboxTokenPending = "tok_pending"
)

// SandboxGateway is an in-process gateway for local runs and tests. It
// replays the original result for a repeated idempotency key.
type SandboxGateway struct {
	mu      sync.Mutex
	charges map[string]ChargeResult
	refunds map[string]RefundResult
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{
		charges: map[string]ChargeResult{},
		refunds: map[string]RefundResult{},
	}
}

func (g *SandboxGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := validateCharge(req); err != nil {
		return ChargeResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge request")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.charges[req.IdempotencyKey]; ok {
		return prior, nil
	}

	result := ChargeResult{TransactionID: "sandbox_pi_" + uuid.NewString(), Status: enums.PaymentStatusCompleted}
	switch strings.TrimSpace(req.PaymentToken) {
	case SandboxTokenDecline:
		result.Status = enums.PaymentStatusFailed
		result.FailureReason = "card declined"
	case SandboxTokenPending:
		result.Status = enums.PaymentStatusPending
	}
	g.charges[req.IdempotencyKey] = result
	return result, nil
}

func (g *SandboxGateway) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	if err := validateRefund(req); err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund request")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.refunds[req.IdempotencyKey]; ok {
		return prior, nil
	}
	result := RefundResult{RefundID: "sandbox_re_" + uuid.NewString()}
	g.refunds[req.IdempotencyKey] = result
	return result, nil
}
