// internal/dispatcher/outcome.go
package dispatcher

import (
	"sos-workers/internal/common/errors"
	"sos-workers/internal/models"
)

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusNoop      Status = "noop"
	StatusAborted   Status = "aborted"
)

// Outcome is the result of one reaction. Tokens are kept out of the JSON form.
type Outcome struct {
	ReactionID   string                  `json:"reactionId"`
	AlertID      string                  `json:"alertId"`
	Trigger      Trigger                 `json:"trigger"`
	Kind         models.NotificationKind `json:"kind,omitempty"`
	Status       Status                  `json:"outcome"`
	Reason       string                  `json:"reason,omitempty"`
	AudienceSize int                     `json:"audienceSize"`
	Tokens       []string                `json:"-"`
	SuccessCount int                     `json:"successCount"`
	FailureCount int                     `json:"failureCount"`
	Err          *errors.StandardError   `json:"error,omitempty"`
}

func (o *Outcome) noop(reason string) {
	o.Status = StatusNoop
	o.Reason = reason
}

func (o *Outcome) abort(err *errors.StandardError) {
	o.Status = StatusAborted
	o.Reason = string(err.Code)
	o.Err = err
}

// Variables flattens the outcome for Zeebe job completion.
func (o *Outcome) Variables() map[string]interface{} {
	vars := map[string]interface{}{
		"reactionId":   o.ReactionID,
		"outcome":      string(o.Status),
		"reason":       o.Reason,
		"kind":         string(o.Kind),
		"successCount": o.SuccessCount,
		"failureCount": o.FailureCount,
	}
	if o.Err != nil {
		for k, v := range o.Err.ToOutcomeVariables() {
			vars[k] = v
		}
	}
	return vars
}
