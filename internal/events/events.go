// internal/events/events.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sos-workers/internal/common/errors"
	"sos-workers/internal/common/validation"
	"sos-workers/internal/dispatcher"
	"sos-workers/internal/models"
	"sos-workers/pkg/registry"
)

// CreatedEvent is the on-create change notification for one alert.
type CreatedEvent struct {
	AlertID string        `json:"alertId"`
	Alert   *models.Alert `json:"alert"`
}

// UpdatedEvent carries the alert document before and after the write.
type UpdatedEvent struct {
	AlertID string        `json:"alertId"`
	Before  *models.Alert `json:"before"`
	After   *models.Alert `json:"after"`
}

// Reactor is the dispatcher surface a trigger needs.
type Reactor interface {
	OnCreated(ctx context.Context, alertID string, alert *models.Alert) *dispatcher.Outcome
	OnUpdated(ctx context.Context, alertID string, before, after *models.Alert) *dispatcher.Outcome
}

// Codec validates raw event payloads against the registry schemas and hands them to a Reactor.
type Codec struct {
	schemas map[registry.Event]*validation.Schema
}

func NewCodec(reg *registry.TriggerRegistry) (*Codec, error) {
	c := &Codec{schemas: make(map[registry.Event]*validation.Schema)}
	for _, t := range reg.Triggers {
		s, err := validation.Compile(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", t.ID, err)
		}
		c.schemas[t.Event] = s
	}
	return c, nil
}

func (c *Codec) validate(event registry.Event, payload []byte) *errors.StandardError {
	schema, ok := c.schemas[event]
	if !ok {
		return errors.NewEventValidationFailedError(fmt.Sprintf("no schema for event %q", event))
	}
	result, err := schema.ValidateBytes(payload)
	if err != nil {
		return errors.NewEventDecodeFailedError(err).WithMetadata("event", string(event))
	}
	if !result.Valid {
		return errors.NewEventValidationFailedError(strings.Join(result.GetErrorMessages(), "; ")).
			WithMetadata("event", string(event))
	}
	return nil
}

func (c *Codec) DecodeCreated(payload []byte) (*CreatedEvent, error) {
	if stdErr := c.validate(registry.EventCreated, payload); stdErr != nil {
		return nil, stdErr
	}
	var ev CreatedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.NewEventDecodeFailedError(err).WithMetadata("event", string(registry.EventCreated))
	}
	ev.Alert.ID = ev.AlertID
	return &ev, nil
}

func (c *Codec) DecodeUpdated(payload []byte) (*UpdatedEvent, error) {
	if stdErr := c.validate(registry.EventUpdated, payload); stdErr != nil {
		return nil, stdErr
	}
	var ev UpdatedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.NewEventDecodeFailedError(err).WithMetadata("event", string(registry.EventUpdated))
	}
	ev.Before.ID = ev.AlertID
	ev.After.ID = ev.AlertID
	return &ev, nil
}

// Dispatch decodes payload for event and runs the reaction. The error is a
// *errors.StandardError and is only returned when the payload was rejected.
func (c *Codec) Dispatch(ctx context.Context, r Reactor, event registry.Event, payload []byte) (*dispatcher.Outcome, error) {
	switch event {
	case registry.EventCreated:
		ev, err := c.DecodeCreated(payload)
		if err != nil {
			return nil, err
		}
		return r.OnCreated(ctx, ev.AlertID, ev.Alert), nil
	case registry.EventUpdated:
		ev, err := c.DecodeUpdated(payload)
		if err != nil {
			return nil, err
		}
		return r.OnUpdated(ctx, ev.AlertID, ev.Before, ev.After), nil
	default:
		return nil, errors.NewEventValidationFailedError(fmt.Sprintf("unknown event %q", event))
	}
}
