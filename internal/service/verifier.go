package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/gateway"
	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

// Verifier resolves a merchant reference to gateway truth under the retry
// budget. COMPLETED, FAILED and NotFound are terminal and returned
// immediately; PENDING/PROCESSING and transport/rate-limit errors are
// retried with growing delays. An exhausted budget yields Undetermined,
// which no caller may treat as success.
type Verifier struct {
	gw     interfaces.GatewayClient
	policy RetryPolicy
	sleep  SleepFunc
}

func NewVerifier(gw interfaces.GatewayClient, policy RetryPolicy) *Verifier {
	return &Verifier{gw: gw, policy: policy, sleep: sleepContext}
}

func (v *Verifier) Verify(ctx context.Context, merchantRef string) models.VerifyResult {
	result := models.VerifyResult{Status: models.VerifyUndetermined}

	for attempt := 1; attempt <= v.policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		txn, err := v.gw.Status(ctx, merchantRef)
		switch {
		case err == nil && txn.State == models.GatewayCompleted:
			telemetry.GatewayAttempts.WithLabelValues("completed").Inc()
			result.Status = models.VerifyCompleted
			result.Transaction = txn
			result.LastError = ""
		case err == nil && txn.State == models.GatewayFailed:
			telemetry.GatewayAttempts.WithLabelValues("failed").Inc()
			result.Status = models.VerifyFailed
			result.Transaction = txn
			result.LastError = ""
		case err == nil:
			// PENDING / PROCESSING: payment may still be settling
			telemetry.GatewayAttempts.WithLabelValues("settling").Inc()
			result.Transaction = txn
			result.LastError = "gateway state " + string(txn.State)
		case errors.Is(err, gateway.ErrNotFound):
			telemetry.GatewayAttempts.WithLabelValues("not_found").Inc()
			result.Status = models.VerifyNotFound
			result.LastError = ""
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			telemetry.GatewayAttempts.WithLabelValues("canceled").Inc()
			result.LastError = err.Error()
			telemetry.GatewayVerifications.WithLabelValues(string(result.Status)).Inc()
			return result
		default:
			// transport error or gateway rate limit
			telemetry.GatewayAttempts.WithLabelValues("transport_error").Inc()
			result.LastError = err.Error()
		}

		if result.Status.Terminal() {
			break
		}

		if attempt < v.policy.MaxAttempts {
			delay := v.policy.Delay(attempt)
			telemetry.Logger.Debug("Verification transient, retrying",
				zap.String("merchant_ref", merchantRef),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("reason", result.LastError),
			)
			if err := v.sleep(ctx, delay); err != nil {
				result.LastError = err.Error()
				break
			}
		}
	}

	if result.Status == models.VerifyUndetermined {
		telemetry.Logger.Warn("Verification undetermined after retry budget",
			zap.String("merchant_ref", merchantRef),
			zap.Int("attempts", result.Attempts),
			zap.String("last_error", result.LastError),
		)
	}
	telemetry.GatewayVerifications.WithLabelValues(string(result.Status)).Inc()
	return result
}
