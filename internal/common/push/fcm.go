// internal/common/push/fcm.go
package push

import (
	"context"
	"fmt"

	"sos-workers/internal/common/logger"
	"sos-workers/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// maxMulticastTokens is the FCM limit for a single SendEachForMulticast call.
const maxMulticastTokens = 500

// MessagingClient is the subset of *messaging.Client used here.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMGateway struct {
	client MessagingClient
	logger logger.Logger
}

func NewFCMGateway(ctx context.Context, projectID, credentialsFile string, log logger.Logger) (*FCMGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCMGatewayWithClient(client, log), nil
}

func NewFCMGatewayWithClient(client MessagingClient, log logger.Logger) *FCMGateway {
	return &FCMGateway{
		client: client,
		logger: log.WithFields(map[string]interface{}{"provider": "fcm"}),
	}
}

func (g *FCMGateway) Name() string { return "fcm" }

// SendMulticast splits the tokens into provider-sized chunks. A chunk whose call fails marks
// each of its tokens failed; the call only errors when no chunk was accepted.
func (g *FCMGateway) SendMulticast(ctx context.Context, payload *models.NotificationPayload) (*BatchResponse, error) {
	out := &BatchResponse{}
	var lastErr error
	accepted := 0

	for start := 0; start < len(payload.Tokens); start += maxMulticastTokens {
		end := start + maxMulticastTokens
		if end > len(payload.Tokens) {
			end = len(payload.Tokens)
		}
		chunk := payload.Tokens[start:end]

		resp, err := g.client.SendEachForMulticast(ctx, buildMulticastMessage(payload, chunk))
		if err != nil {
			lastErr = err
			g.logger.Warn("multicast chunk rejected", map[string]interface{}{
				"alertId":   payload.AlertID,
				"chunkSize": len(chunk),
				"error":     err,
			})
			for _, token := range chunk {
				out.add(TokenResponse{Token: token, Err: err})
			}
			continue
		}
		accepted++

		for i, token := range chunk {
			if i >= len(resp.Responses) || resp.Responses[i] == nil {
				out.add(TokenResponse{Token: token, Err: fmt.Errorf("missing response for token")})
				continue
			}
			r := resp.Responses[i]
			out.add(TokenResponse{Token: token, Success: r.Success, MessageID: r.MessageID, Err: r.Error})
		}
	}

	if accepted == 0 && lastErr != nil {
		return nil, fmt.Errorf("fcm multicast: %w", lastErr)
	}
	return out, nil
}

func buildMulticastMessage(payload *models.NotificationPayload, tokens []string) *messaging.MulticastMessage {
	p := payload.Presentation

	androidPriority := messaging.PriorityHigh
	if p.Priority == models.PriorityMax {
		androidPriority = messaging.PriorityMax
	}
	androidNotification := &messaging.AndroidNotification{
		ChannelID:           p.AndroidChannelID,
		Sound:               p.Sound,
		Tag:                 payload.GroupingKey,
		Color:               p.Color,
		Priority:            androidPriority,
		VibrateTimingMillis: p.VibrateMillis,
	}
	if p.PublicVisibility {
		androidNotification.Visibility = messaging.VisibilityPublic
	}

	aps := &messaging.Aps{
		Sound:    p.Sound,
		Badge:    p.Badge,
		ThreadID: payload.GroupingKey,
	}
	if p.CriticalAlert {
		aps.CustomData = map[string]interface{}{"interruption-level": "critical"}
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: androidNotification,
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":    "10",
				"apns-collapse-id": payload.GroupingKey,
			},
			Payload: &messaging.APNSPayload{Aps: aps},
		},
	}
}
