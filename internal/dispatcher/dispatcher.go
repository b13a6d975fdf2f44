// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"time"

	"sos-workers/internal/common/errors"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/metrics"
	"sos-workers/internal/common/observability"
	"sos-workers/internal/common/push"
	"sos-workers/internal/models"
	"sos-workers/internal/resolver"

	"github.com/google/uuid"
)

// RecipientResolver maps identities to push tokens.
type RecipientResolver interface {
	Resolve(ctx context.Context, userIDs []string, exclude ...string) (*resolver.Resolution, error)
}

type Config struct {
	ReactionTimeout time.Duration
}

// Deps are constructed once at process start. Guard and Observability may be nil.
type Deps struct {
	Resolver      RecipientResolver
	Gateway       push.Gateway
	Guard         DuplicateGuard
	Observability *observability.Observability
	Logger        logger.Logger
}

// Dispatcher turns alert writes into at most one multicast call each.
type Dispatcher struct {
	config   Config
	resolver RecipientResolver
	gateway  push.Gateway
	guard    DuplicateGuard
	obs      *observability.Observability
	logger   logger.Logger
}

func New(cfg Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		config:   cfg,
		resolver: deps.Resolver,
		gateway:  deps.Gateway,
		guard:    deps.Guard,
		obs:      deps.Observability,
		logger:   deps.Logger.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// OnCreated reacts to a newly written alert.
func (d *Dispatcher) OnCreated(ctx context.Context, alertID string, alert *models.Alert) *Outcome {
	return d.react(ctx, TriggerCreated, alertID, nil, alert)
}

// OnUpdated reacts to an alert rewrite.
func (d *Dispatcher) OnUpdated(ctx context.Context, alertID string, before, after *models.Alert) *Outcome {
	return d.react(ctx, TriggerUpdated, alertID, before, after)
}

// react never returns nil and never panics.
func (d *Dispatcher) react(ctx context.Context, trigger Trigger, alertID string, before, after *models.Alert) (out *Outcome) {
	start := time.Now()
	out = &Outcome{
		ReactionID: uuid.New().String(),
		AlertID:    alertID,
		Trigger:    trigger,
	}
	log := d.logger.WithFields(map[string]interface{}{
		"reactionId": out.ReactionID,
		"alertId":    alertID,
		"trigger":    string(trigger),
	})

	if d.config.ReactionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ReactionTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			out.abort(errors.NewReactionPanicError(rec))
			log.Error("reaction panicked", map[string]interface{}{"panic": rec})
		}
		d.record(ctx, out, time.Since(start))
	}()

	if after == nil || (trigger == TriggerUpdated && before == nil) {
		out.abort(errors.NewAlertValidationFailedError(alertID, "alert document is missing"))
		log.Error("reaction aborted", out.Err.ToOutcomeVariables())
		return out
	}

	t := Classify(trigger, before, after)
	if !t.Actionable() {
		out.noop(t.Reason)
		fields := map[string]interface{}{
			"reason": t.Reason,
			"from":   string(t.From),
			"to":     string(t.To),
		}
		if t.Reason == ReasonInvalidTransition {
			log.Warn("transition rejected", fields)
		} else {
			log.Debug("transition ignored", fields)
		}
		return out
	}
	out.Kind = t.Kind
	log = log.WithFields(map[string]interface{}{"kind": string(t.Kind)})

	if d.guard != nil {
		first, err := d.guard.Acquire(ctx, alertID, t.Kind)
		switch {
		case err != nil:
			log.Warn("duplicate guard unavailable, proceeding", map[string]interface{}{"error": err})
		case !first:
			out.noop(ReasonDuplicateEvent)
			log.Info("duplicate reaction skipped", nil)
			return out
		}
	}

	if details := validateForKind(t.Kind, after); details != "" {
		out.abort(errors.NewAlertValidationFailedError(alertID, details))
		log.Error("reaction aborted", out.Err.ToOutcomeVariables())
		return out
	}

	audience := audienceFor(t.Audience, after)
	out.AudienceSize = len(audience)
	if len(audience) == 0 {
		out.noop(ReasonEmptyAudience)
		log.Info("no audience for reaction", nil)
		return out
	}

	var exclude []string
	if t.Audience == AudienceContacts {
		exclude = []string{after.SenderID}
	}
	res, err := d.resolver.Resolve(ctx, audience, exclude...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			out.abort(errors.NewReactionTimeoutError(err))
		} else {
			out.abort(errors.NewRecipientResolutionFailedError(err))
		}
		log.Error("reaction aborted", out.Err.ToOutcomeVariables())
		return out
	}
	if len(res.Excluded) > 0 {
		log.Warn("sender endpoint removed from recipients", map[string]interface{}{
			"senderId":      after.SenderID,
			"excludedCount": len(res.Excluded),
		})
	}
	if len(res.Tokens) == 0 {
		out.noop(ReasonNoEndpoints)
		log.Info("no resolvable endpoints", map[string]interface{}{
			"audienceSize":    len(audience),
			"unresolvedCount": len(res.Unresolved),
		})
		return out
	}
	out.Tokens = res.Tokens

	payload := BuildPayload(t.Kind, alertID, after, res.Tokens)
	resp, err := d.gateway.SendMulticast(ctx, payload)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			out.abort(errors.NewReactionTimeoutError(err))
		} else {
			out.abort(errors.NewPushTransportFailedError(d.gateway.Name(), err))
		}
		log.Error("reaction aborted", out.Err.ToOutcomeVariables())
		return out
	}

	out.Status = StatusDelivered
	out.SuccessCount = resp.SuccessCount
	out.FailureCount = resp.FailureCount
	metrics.PushDeliveries.WithLabelValues(string(t.Kind), metrics.ResultSuccess).Add(float64(resp.SuccessCount))
	metrics.PushDeliveries.WithLabelValues(string(t.Kind), metrics.ResultFailure).Add(float64(resp.FailureCount))

	for _, failed := range resp.Failed() {
		log.Warn("push delivery failed", map[string]interface{}{
			"token": push.RedactToken(failed.Token),
			"error": failed.Err,
		})
	}
	log.Info("multicast sent", map[string]interface{}{
		"tokenCount":   len(res.Tokens),
		"successCount": resp.SuccessCount,
		"failureCount": resp.FailureCount,
		"provider":     d.gateway.Name(),
	})
	return out
}

func (d *Dispatcher) record(ctx context.Context, out *Outcome, elapsed time.Duration) {
	kind := string(out.Kind)
	if kind == "" {
		kind = "none"
	}
	metrics.ReactionsTotal.WithLabelValues(string(out.Trigger), kind, string(out.Status)).Inc()
	metrics.ReactionDuration.WithLabelValues(string(out.Trigger)).Observe(elapsed.Seconds())
	d.obs.RecordReaction(context.WithoutCancel(ctx), string(out.Trigger), string(out.Status), elapsed)
}
