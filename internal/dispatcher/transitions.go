// internal/dispatcher/transitions.go
package dispatcher

import "sos-workers/internal/models"

// Trigger is the kind of alert write that started a reaction.
type Trigger string

const (
	TriggerCreated Trigger = "created"
	TriggerUpdated Trigger = "updated"
)

// Audience selects who a reaction notifies.
type Audience int

const (
	AudienceContacts Audience = iota // emergency contacts minus the sender
	AudienceSender
)

// No-op reasons.
const (
	ReasonStatusUnchanged   = "status_unchanged"
	ReasonInvalidTransition = "invalid_transition"
	ReasonNotActiveOnCreate = "not_active_on_create"
	ReasonEmptyAudience     = "empty_audience"
	ReasonNoEndpoints       = "no_endpoints"
	ReasonDuplicateEvent    = "duplicate_event"
)

type rule struct {
	trigger  Trigger
	from     models.AlertStatus // empty for created
	to       models.AlertStatus
	kind     models.NotificationKind
	audience Audience
}

var transitionTable = []rule{
	{trigger: TriggerCreated, to: models.StatusActive, kind: models.KindAlertRaised, audience: AudienceContacts},
	{trigger: TriggerUpdated, from: models.StatusActive, to: models.StatusCancelled, kind: models.KindAlertCancelled, audience: AudienceContacts},
	{trigger: TriggerUpdated, from: models.StatusActive, to: models.StatusResolved, kind: models.KindAlertResolved, audience: AudienceSender},
}

// Transition is the classification of one alert write. Kind is empty for no-ops and
// Reason is empty for actionable transitions.
type Transition struct {
	Trigger  Trigger
	From     models.AlertStatus
	To       models.AlertStatus
	Kind     models.NotificationKind
	Audience Audience
	Reason   string
}

func (t Transition) Actionable() bool {
	return t.Kind != ""
}

// Classify matches a write against the transition table. before is ignored for TriggerCreated.
func Classify(trigger Trigger, before, after *models.Alert) Transition {
	t := Transition{Trigger: trigger}
	if after != nil {
		t.To = after.Status
	}
	if trigger == TriggerUpdated && before != nil {
		t.From = before.Status
	}

	for _, r := range transitionTable {
		if r.trigger == trigger && r.from == t.From && r.to == t.To {
			t.Kind = r.kind
			t.Audience = r.audience
			return t
		}
	}

	switch {
	case trigger == TriggerCreated:
		t.Reason = ReasonNotActiveOnCreate
	case t.From == t.To && t.To.Valid():
		t.Reason = ReasonStatusUnchanged
	default:
		t.Reason = ReasonInvalidTransition
	}
	return t
}

// audienceFor returns the identities to resolve, in contact-list order, without duplicates.
func audienceFor(a Audience, alert *models.Alert) []string {
	if a == AudienceSender {
		if alert.SenderID == "" {
			return nil
		}
		return []string{alert.SenderID}
	}

	out := make([]string, 0, len(alert.EmergencyContactIDs))
	seen := map[string]bool{alert.SenderID: true}
	for _, id := range alert.EmergencyContactIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
