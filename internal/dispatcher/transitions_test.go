package dispatcher

import (
	"testing"

	"sos-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	alert := func(s models.AlertStatus) *models.Alert { return &models.Alert{SenderID: "S", Status: s} }

	tests := []struct {
		name     string
		trigger  Trigger
		before   *models.Alert
		after    *models.Alert
		kind     models.NotificationKind
		audience Audience
		reason   string
	}{
		{"create active", TriggerCreated, nil, alert(models.StatusActive), models.KindAlertRaised, AudienceContacts, ""},
		{"create cancelled", TriggerCreated, nil, alert(models.StatusCancelled), "", 0, ReasonNotActiveOnCreate},
		{"create ignores before", TriggerCreated, alert(models.StatusResolved), alert(models.StatusActive), models.KindAlertRaised, AudienceContacts, ""},
		{"cancel", TriggerUpdated, alert(models.StatusActive), alert(models.StatusCancelled), models.KindAlertCancelled, AudienceContacts, ""},
		{"resolve", TriggerUpdated, alert(models.StatusActive), alert(models.StatusResolved), models.KindAlertResolved, AudienceSender, ""},
		{"unchanged", TriggerUpdated, alert(models.StatusActive), alert(models.StatusActive), "", 0, ReasonStatusUnchanged},
		{"reactivate", TriggerUpdated, alert(models.StatusResolved), alert(models.StatusActive), "", 0, ReasonInvalidTransition},
		{"unknown status kept", TriggerUpdated, alert("paused"), alert("paused"), "", 0, ReasonInvalidTransition},
		{"cancelled edit", TriggerUpdated, alert(models.StatusCancelled), alert(models.StatusCancelled), "", 0, ReasonStatusUnchanged},
		{"terminal hop", TriggerUpdated, alert(models.StatusCancelled), alert(models.StatusResolved), "", 0, ReasonInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.trigger, tt.before, tt.after)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.kind != "", got.Actionable())
			if got.Actionable() {
				assert.Equal(t, tt.audience, got.Audience)
			}
		})
	}
}

func TestAudienceFor(t *testing.T) {
	a := &models.Alert{SenderID: "S", EmergencyContactIDs: []string{"C2", "S", "C1", "", "C2"}}

	assert.Equal(t, []string{"C2", "C1"}, audienceFor(AudienceContacts, a))
	assert.Equal(t, []string{"S"}, audienceFor(AudienceSender, a))
	assert.Empty(t, audienceFor(AudienceContacts, &models.Alert{SenderID: "S"}))
}

func TestBuildPayload_DerivesMapLinkAndKeepsStoredOne(t *testing.T) {
	a := &models.Alert{SenderID: "S", SenderName: "", Location: &models.Location{Latitude: -33.5, Longitude: 151}}

	p := BuildPayload(models.KindAlertRaised, "sos-1", a, []string{"t"})
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=-33.5,151", p.Data[models.DataMapURL])
	assert.Equal(t, "S sent an emergency SOS! Tap to view location.", p.Body)
	assert.Equal(t, []int64{0, 1000, 500, 1000, 500, 1000}, p.Presentation.VibrateMillis)

	a.MapURL = "https://maps.example/x"
	p = BuildPayload(models.KindAlertRaised, "sos-1", a, []string{"t"})
	assert.Equal(t, "https://maps.example/x", p.Data[models.DataMapURL])

	p = BuildPayload(models.KindAlertResolved, "sos-1", a, []string{"t"})
	_, hasMap := p.Data[models.DataMapURL]
	assert.False(t, hasMap)
	assert.Equal(t, "sos_resolved", p.Data[models.DataType])
}
