// internal/common/push/sns.go
package push

import (
	"context"
	"encoding/json"
	"fmt"

	awsclient "sos-workers/internal/common/aws"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"golang.org/x/sync/errgroup"
)

// SNSService is the subset of *sns.Client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway treats every token as an SNS platform endpoint ARN and publishes to each one.
type SNSGateway struct {
	client      SNSService
	concurrency int
	logger      logger.Logger
}

func NewSNSGateway(ctx context.Context, region string, concurrency int, log logger.Logger) (*SNSGateway, error) {
	client, err := awsclient.NewSNSClient(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewSNSGatewayWithClient(client, concurrency, log), nil
}

func NewSNSGatewayWithClient(client SNSService, concurrency int, log logger.Logger) *SNSGateway {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SNSGateway{
		client:      client,
		concurrency: concurrency,
		logger:      log.WithFields(map[string]interface{}{"provider": "sns"}),
	}
}

func (g *SNSGateway) Name() string { return "sns" }

func (g *SNSGateway) SendMulticast(ctx context.Context, payload *models.NotificationPayload) (*BatchResponse, error) {
	message, err := buildSNSMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("build sns message: %w", err)
	}

	results := make([]TokenResponse, len(payload.Tokens))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for i, endpoint := range payload.Tokens {
		eg.Go(func() error {
			out, err := g.client.Publish(egCtx, &sns.PublishInput{
				TargetArn:        aws.String(endpoint),
				Message:          aws.String(message),
				MessageStructure: aws.String("json"),
			})
			if err != nil {
				results[i] = TokenResponse{Token: endpoint, Err: err}
				return nil
			}
			results[i] = TokenResponse{Token: endpoint, Success: true, MessageID: aws.ToString(out.MessageId)}
			return nil
		})
	}
	_ = eg.Wait()

	out := &BatchResponse{}
	for _, r := range results {
		out.add(r)
	}
	if out.SuccessCount == 0 && ctx.Err() != nil {
		return nil, fmt.Errorf("sns publish: %w", ctx.Err())
	}

	g.logger.Debug("sns fan-out finished", map[string]interface{}{
		"alertId":      payload.AlertID,
		"successCount": out.SuccessCount,
		"failureCount": out.FailureCount,
	})
	return out, nil
}

// buildSNSMessage renders the per-platform bodies SNS expects with MessageStructure=json.
func buildSNSMessage(payload *models.NotificationPayload) (string, error) {
	p := payload.Presentation

	gcm := map[string]interface{}{
		"priority": "high",
		"notification": map[string]interface{}{
			"title":              payload.Title,
			"body":               payload.Body,
			"android_channel_id": p.AndroidChannelID,
			"tag":                payload.GroupingKey,
			"sound":              p.Sound,
			"color":              p.Color,
		},
		"data": payload.Data,
	}

	aps := map[string]interface{}{
		"alert":     map[string]string{"title": payload.Title, "body": payload.Body},
		"sound":     p.Sound,
		"thread-id": payload.GroupingKey,
	}
	if p.Badge != nil {
		aps["badge"] = *p.Badge
	}
	if p.CriticalAlert {
		aps["interruption-level"] = "critical"
	}
	apns := map[string]interface{}{"aps": aps}
	for k, v := range payload.Data {
		apns[k] = v
	}

	gcmJSON, err := json.Marshal(gcm)
	if err != nil {
		return "", err
	}
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(map[string]string{
		"default": payload.Body,
		"GCM":     string(gcmJSON),
		"APNS":    string(apnsJSON),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
