package quota

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lingoloop/lingoloop/internal/api"
	"github.com/lingoloop/lingoloop/internal/auth"
	"github.com/lingoloop/lingoloop/internal/metrics"
)

// Action is a gated unit of work. Its Outcome decides whether a unit is
// consumed afterwards; a returned error consumes nothing.
type Action func(ctx context.Context) (Outcome, error)

// Gate enforces quota around gated actions. It fails closed on exhaustion
// and fails open on store errors: quota is a gameplay control, so a store
// outage must not take the product down with it.
type Gate struct {
	svc *Service
}

// NewGate creates a new Gate.
func NewGate(svc *Service) *Gate {
	return &Gate{svc: svc}
}

// Check returns an *ExhaustedError when the user has no units left today
// and nil otherwise, including when the store is unreachable.
func (g *Gate) Check(ctx context.Context, userID string) error {
	rec, err := g.svc.GetOrCreateToday(ctx, userID)
	if err != nil {
		metrics.QuotaGateDecisionsTotal.WithLabelValues("fail_open").Inc()
		slog.Warn("quota: check failed, allowing action", "error", err, "user_id", userID)
		return nil
	}
	if rec.UnitsRemaining <= 0 {
		metrics.QuotaGateDecisionsTotal.WithLabelValues("denied").Inc()
		return &ExhaustedError{NextResetAt: g.svc.NextResetAt(), UnitsRemaining: 0}
	}
	metrics.QuotaGateDecisionsTotal.WithLabelValues("allowed").Inc()
	return nil
}

// CheckAndConsumeOnFailure runs action only if Check admits it, then
// consumes one unit when the action reports OutcomeFailure. It is the
// in-process entry point for callers that run the action themselves. Over
// HTTP the same flow is split into Middleware and ConsumeOnFailure, since
// the action is the downstream handler.
func (g *Gate) CheckAndConsumeOnFailure(ctx context.Context, userID string, action Action) (*GateResult, error) {
	if err := g.Check(ctx, userID); err != nil {
		return nil, err
	}

	outcome, err := action(ctx)
	if err != nil {
		return nil, err
	}
	return g.ConsumeOnFailure(ctx, userID, outcome), nil
}

// ConsumeOnFailure is the post-action half of the gate, for handlers that
// sit behind Middleware. The action has already happened, so neither a
// concurrent exhaustion nor a store error is surfaced to the caller.
func (g *Gate) ConsumeOnFailure(ctx context.Context, userID string, outcome Outcome) *GateResult {
	res := &GateResult{Outcome: outcome}
	if outcome != OutcomeFailure {
		return res
	}

	rec, err := g.svc.Consume(ctx, userID)
	if err == nil {
		units := rec.UnitsRemaining
		res.Penalized = true
		res.UnitsRemaining = &units
		return res
	}

	if _, ok := AsExhausted(err); ok {
		slog.Info("quota: failure after units ran out concurrently", "user_id", userID)
		zero := 0
		res.UnitsRemaining = &zero
		return res
	}

	slog.Warn("quota: consume after failure did not apply", "error", err, "user_id", userID)
	return res
}

// Middleware rejects authenticated requests from users with no units left
// with 403 QUOTA_EXHAUSTED. It must run after auth.Middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetUserClaims(r.Context())
		if claims == nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		if err := g.Check(r.Context(), claims.UserID); err != nil {
			if exhausted, ok := AsExhausted(err); ok {
				api.HandleError(w, api.NewQuotaExhaustedError(exhausted.NextResetAt))
				return
			}
			api.HandleError(w, api.ErrInternalServer)
			return
		}

		next.ServeHTTP(w, r)
	})
}
