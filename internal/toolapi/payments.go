package toolapi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// PaymentsAdapter simulates the payments tool. Grounded on the teacher's
// MockSystemsConnector: a capID/action switch with injected latency,
// standing in for a real payments integration scenario 1/2's gateway must
// be able to exercise end to end.
type PaymentsAdapter struct{}

func NewPaymentsAdapter() *PaymentsAdapter { return &PaymentsAdapter{} }

func (p *PaymentsAdapter) Invoke(ctx context.Context, action string, params map[string]interface{}) (Result, error) {
	latency := time.Duration(20+rand.IntN(80)) * time.Millisecond
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	// original_source/aegis/adapters/payments.py and spec.md §6 name the
	// creation action "create"; "charge" is accepted alongside it since
	// existing fixtures already use that name.
	switch action {
	case "create", "charge", "refund":
		return Result{Body: map[string]interface{}{
			"status":     "created",
			"payment_id": "pay-" + uuid.NewString()[:8],
			"action":     action,
			"amount":     params["amount"],
			"currency":   params["currency"],
		}}, nil
	default:
		return Result{}, fmt.Errorf("payments: action %q not supported", action)
	}
}
