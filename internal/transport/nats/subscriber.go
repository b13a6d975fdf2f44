// internal/transport/nats/subscriber.go
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sos-workers/internal/common/config"
	"sos-workers/internal/common/errors"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/metrics"
	"sos-workers/internal/events"
	"sos-workers/pkg/registry"

	natspkg "github.com/nats-io/nats.go"
)

const resultRejected = "rejected"

// Publisher is the part of *nats.Conn used to answer request-reply messages.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber consumes alert change events from <prefix>.<trigger subject> in a queue group,
// so each event is handled by one process of the deployment.
type Subscriber struct {
	conn     *natspkg.Conn
	pub      Publisher
	codec    *events.Codec
	reactor  events.Reactor
	triggers []registry.Trigger
	prefix   string
	queue    string
	subs     []*natspkg.Subscription
	logger   logger.Logger
}

// Connect dials the server and keeps reconnecting for the life of the process.
func Connect(cfg config.NATSConfig, name string, log logger.Logger) (*natspkg.Conn, error) {
	nc, err := natspkg.Connect(cfg.URL,
		natspkg.Name(name),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(2*time.Second),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			log.Warn("nats disconnected", map[string]interface{}{"error": err})
		}),
		natspkg.ReconnectHandler(func(c *natspkg.Conn) {
			log.Info("nats reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect failed: %w", err)
	}
	return nc, nil
}

func NewSubscriber(conn *natspkg.Conn, reg *registry.TriggerRegistry, codec *events.Codec, reactor events.Reactor, cfg config.NATSConfig, log logger.Logger) *Subscriber {
	s := &Subscriber{
		conn:     conn,
		codec:    codec,
		reactor:  reactor,
		triggers: reg.Triggers,
		prefix:   cfg.SubjectPrefix,
		queue:    cfg.QueueGroup,
		logger:   log.WithFields(map[string]interface{}{"component": "nats-subscriber"}),
	}
	if conn != nil {
		s.pub = conn
	}
	return s
}

// Subject returns the full subject a trigger is consumed from.
func (s *Subscriber) Subject(t registry.Trigger) string {
	if s.prefix == "" {
		return t.Subject
	}
	return s.prefix + "." + t.Subject
}

func (s *Subscriber) Start() error {
	for _, t := range s.triggers {
		subject := s.Subject(t)
		event := t.Event
		sub, err := s.conn.QueueSubscribe(subject, s.queue, func(msg *natspkg.Msg) {
			s.handleMessage(context.Background(), event, msg)
		})
		if err != nil {
			s.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("subscribed", map[string]interface{}{
			"subject": subject,
			"queue":   s.queue,
			"trigger": t.ID,
		})
	}
	return nil
}

// Stop drains the subscriptions so in-flight reactions finish.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("subscription drain failed", map[string]interface{}{
				"subject": sub.Subject,
				"error":   err,
			})
		}
	}
	s.subs = nil
}

func (s *Subscriber) handleMessage(ctx context.Context, event registry.Event, msg *natspkg.Msg) {
	outcome, err := s.codec.Dispatch(ctx, s.reactor, event, msg.Data)
	if err != nil {
		stdErr := errors.Normalize(err)
		metrics.NATSMessagesTotal.WithLabelValues(msg.Subject, resultRejected).Inc()
		s.logger.Warn("event rejected", map[string]interface{}{
			"subject":   msg.Subject,
			"errorCode": stdErr.Code,
			"error":     stdErr.Message,
		})
		s.reply(msg, stdErr)
		return
	}

	metrics.NATSMessagesTotal.WithLabelValues(msg.Subject, string(outcome.Status)).Inc()
	s.reply(msg, outcome)
}

func (s *Subscriber) reply(msg *natspkg.Msg, body interface{}) {
	if msg.Reply == "" || s.pub == nil {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode reply", map[string]interface{}{"error": err})
		return
	}
	if err := s.pub.Publish(msg.Reply, data); err != nil {
		s.logger.Warn("failed to publish reply", map[string]interface{}{
			"reply": msg.Reply,
			"error": err,
		})
	}
}
