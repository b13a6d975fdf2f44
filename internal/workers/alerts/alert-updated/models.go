// internal/workers/alerts/alert-updated/models.go
package alertupdated

import "sos-workers/internal/dispatcher"

// Output is written back as job variables.
type Output struct {
	ReactionID   string `json:"reactionId"`
	Outcome      string `json:"outcome"` // "delivered", "noop", "aborted"
	Reason       string `json:"reason,omitempty"`
	Kind         string `json:"kind,omitempty"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

func outputFromOutcome(o *dispatcher.Outcome) *Output {
	out := &Output{
		ReactionID:   o.ReactionID,
		Outcome:      string(o.Status),
		Reason:       o.Reason,
		Kind:         string(o.Kind),
		SuccessCount: o.SuccessCount,
		FailureCount: o.FailureCount,
	}
	if o.Err != nil {
		out.ErrorCode = string(o.Err.Code)
	}
	return out
}
