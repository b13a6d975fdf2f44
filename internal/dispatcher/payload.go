// internal/dispatcher/payload.go
package dispatcher

import (
	"fmt"

	"sos-workers/internal/models"
)

// Android channel ids registered by the mobile app.
const (
	ChannelSOS            = "sos_channel"
	ChannelHighImportance = "high_importance_channel"
)

var raiseVibration = []int64{0, 1000, 500, 1000, 500, 1000}

// BuildPayload renders the notification for kind. Tokens are used as given.
func BuildPayload(kind models.NotificationKind, alertID string, alert *models.Alert, tokens []string) *models.NotificationPayload {
	name := alert.DisplayName()

	p := &models.NotificationPayload{
		Kind:        kind,
		AlertID:     alertID,
		Tokens:      tokens,
		GroupingKey: alertID,
		Data: map[string]string{
			models.DataAlertID:    alertID,
			models.DataSenderID:   alert.SenderID,
			models.DataSenderName: name,
			models.DataType:       kind.WireType(),
		},
	}

	switch kind {
	case models.KindAlertRaised:
		badge := 1
		p.Title = "EMERGENCY SOS"
		p.Body = fmt.Sprintf("%s sent an emergency SOS! Tap to view location.", name)
		p.Data[models.DataPhone] = alert.SenderPhone
		p.Data[models.DataMapURL] = alert.MapLink()
		p.Data[models.DataMessage] = alert.Message
		if alert.Location != nil {
			p.Data[models.DataLatitude] = models.FormatCoordinate(alert.Location.Latitude)
			p.Data[models.DataLongitude] = models.FormatCoordinate(alert.Location.Longitude)
		}
		p.Presentation = models.Presentation{
			Priority:         models.PriorityMax,
			AndroidChannelID: ChannelSOS,
			Sound:            "default",
			PublicVisibility: true,
			Color:            "#FF0000",
			VibrateMillis:    raiseVibration,
			CriticalAlert:    true,
			Badge:            &badge,
		}
	case models.KindAlertCancelled:
		p.Title = fmt.Sprintf("SOS Cancelled - %s", name)
		p.Body = fmt.Sprintf("%s has cancelled the emergency SOS.", name)
		p.Presentation = followUpPresentation()
	case models.KindAlertResolved:
		p.Title = fmt.Sprintf("SOS Resolved - %s", name)
		p.Body = fmt.Sprintf("%s's emergency has been resolved.", name)
		p.Presentation = followUpPresentation()
	}
	return p
}

func followUpPresentation() models.Presentation {
	return models.Presentation{
		Priority:         models.PriorityHigh,
		AndroidChannelID: ChannelHighImportance,
		Sound:            "default",
	}
}

// validateForKind returns a description of the first missing field, or "".
func validateForKind(kind models.NotificationKind, alert *models.Alert) string {
	if alert.SenderID == "" {
		return "senderId is required"
	}
	if kind == models.KindAlertRaised && alert.Location == nil {
		return "location is required to raise an alert"
	}
	return ""
}
