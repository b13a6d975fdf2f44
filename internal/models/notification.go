package models

// NotificationKind identifies which lifecycle reaction produced a payload.
type NotificationKind string

const (
	KindAlertRaised    NotificationKind = "alert_raised"
	KindAlertCancelled NotificationKind = "alert_cancelled"
	KindAlertResolved  NotificationKind = "alert_resolved"
)

// WireType is the "type" data value the mobile client switches on.
func (k NotificationKind) WireType() string {
	switch k {
	case KindAlertRaised:
		return "sos"
	case KindAlertCancelled:
		return "sos_cancelled"
	case KindAlertResolved:
		return "sos_resolved"
	}
	return string(k)
}

// Structured data keys carried in every payload.
const (
	DataAlertID    = "sosId"
	DataSenderID   = "senderId"
	DataSenderName = "senderName"
	DataType       = "type"
	DataPhone      = "senderPhone"
	DataMapURL     = "googleMapsUrl"
	DataMessage    = "message"
	DataLatitude   = "latitude"
	DataLongitude  = "longitude"
)

// Priority is the delivery urgency requested from the transport.
type Priority string

const (
	PriorityMax  Priority = "max"
	PriorityHigh Priority = "high"
)

// Presentation carries platform hints. Channel ids are static and must match the mobile app.
type Presentation struct {
	Priority         Priority
	AndroidChannelID string
	Sound            string
	PublicVisibility bool
	Color            string
	VibrateMillis    []int64
	CriticalAlert    bool
	Badge            *int
}

// NotificationPayload is built per reaction and never persisted.
type NotificationPayload struct {
	Kind         NotificationKind
	AlertID      string
	Title        string
	Body         string
	Data         map[string]string
	Tokens       []string
	GroupingKey  string
	Presentation Presentation
}
