// internal/common/push/gateway.go
package push

import (
	"context"
	"fmt"

	"sos-workers/internal/common/config"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/models"
)

// Gateway submits one notification to a set of device endpoints in a single logical call.
// A returned error means the call as a whole failed; per-endpoint failures are reported
// in the BatchResponse.
type Gateway interface {
	Name() string
	SendMulticast(ctx context.Context, payload *models.NotificationPayload) (*BatchResponse, error)
}

// BatchResponse keeps Responses aligned with the payload's Tokens.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []TokenResponse
}

type TokenResponse struct {
	Token     string
	Success   bool
	MessageID string
	Err       error
}

func (b *BatchResponse) add(r TokenResponse) {
	b.Responses = append(b.Responses, r)
	if r.Success {
		b.SuccessCount++
	} else {
		b.FailureCount++
	}
}

// Failed returns the responses that did not succeed.
func (b *BatchResponse) Failed() []TokenResponse {
	var out []TokenResponse
	for _, r := range b.Responses {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// RedactToken keeps enough of a push token to correlate log lines.
func RedactToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// New selects the gateway named by cfg.Provider.
func New(ctx context.Context, cfg config.PushConfig, log logger.Logger) (Gateway, error) {
	switch cfg.Provider {
	case config.PushProviderFCM:
		return NewFCMGateway(ctx, cfg.FCM.ProjectID, cfg.FCM.CredentialsFile, log)
	case config.PushProviderSNS:
		return NewSNSGateway(ctx, cfg.SNS.Region, cfg.SNS.Concurrency, log)
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Provider)
	}
}
