package models

import "time"

// UserProfile is the subset of a users document the dispatcher reads.
// PushToken is written by the mobile client and may be empty or stale.
type UserProfile struct {
	ID                 string     `json:"id"`
	DisplayName        string     `json:"displayName"`
	ContactInfo        string     `json:"contactInfo,omitempty"`
	PushToken          string     `json:"pushToken,omitempty"`
	PushTokenUpdatedAt *time.Time `json:"pushTokenUpdatedAt,omitempty"`
}

func (p *UserProfile) HasEndpoint() bool {
	return p != nil && p.PushToken != ""
}
