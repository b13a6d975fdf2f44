package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "sos-workers/internal/common/errors"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/push"
	"sos-workers/internal/models"
	"sos-workers/internal/profiles"
	"sos-workers/internal/resolver"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ==========================
// Mock Implementations
// ==========================

type MockStore struct {
	GetProfileFunc func(ctx context.Context, userID string) (*models.UserProfile, error)
}

func (m *MockStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return m.GetProfileFunc(ctx, userID)
}

func tokenStore(tokens map[string]string) *MockStore {
	return &MockStore{GetProfileFunc: func(_ context.Context, userID string) (*models.UserProfile, error) {
		token, ok := tokens[userID]
		if !ok {
			return nil, profiles.ErrProfileNotFound
		}
		return &models.UserProfile{ID: userID, PushToken: token}, nil
	}}
}

type MockGateway struct {
	mu                sync.Mutex
	calls             []*models.NotificationPayload
	SendMulticastFunc func(ctx context.Context, payload *models.NotificationPayload) (*push.BatchResponse, error)
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) SendMulticast(ctx context.Context, payload *models.NotificationPayload) (*push.BatchResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, payload)
	m.mu.Unlock()
	if m.SendMulticastFunc != nil {
		return m.SendMulticastFunc(ctx, payload)
	}
	resp := &push.BatchResponse{SuccessCount: len(payload.Tokens)}
	for _, tok := range payload.Tokens {
		resp.Responses = append(resp.Responses, push.TokenResponse{Token: tok, Success: true})
	}
	return resp, nil
}

// ==========================
// Test Helper Functions
// ==========================

// S is the sender; C1 has a token, C2 has none.
var scenarioTokens = map[string]string{"S": "tokS", "C1": "tok1", "C2": ""}

func newTestDispatcher(t *testing.T, store profiles.Store, gw push.Gateway, guard DuplicateGuard) *Dispatcher {
	log := logger.NewTestLogger(t)
	return New(Config{ReactionTimeout: time.Second}, Deps{
		Resolver: resolver.New(store, 4, log),
		Gateway:  gw,
		Guard:    guard,
		Logger:   log,
	})
}

func activeAlert(contacts ...string) *models.Alert {
	return &models.Alert{
		SenderID:            "S",
		SenderName:          "Sam",
		SenderPhone:         "+15550100",
		EmergencyContactIDs: contacts,
		Location:            &models.Location{Latitude: 12.9716, Longitude: 77.5946},
		Status:              models.StatusActive,
	}
}

func withStatus(a *models.Alert, s models.AlertStatus) *models.Alert {
	c := *a
	c.Status = s
	return &c
}

// ==========================
// Scenarios
// ==========================

func TestScenarioA_RaiseTargetsResolvedContactsOnly(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnCreated(context.Background(), "sos-1", activeAlert("S", "C1", "C2"))

	assert.Equal(t, StatusDelivered, out.Status)
	assert.Equal(t, models.KindAlertRaised, out.Kind)
	assert.Equal(t, 2, out.AudienceSize)
	assert.Equal(t, 1, out.SuccessCount)
	assert.NotEmpty(t, out.ReactionID)

	require.Len(t, gw.calls, 1)
	p := gw.calls[0]
	assert.Equal(t, []string{"tok1"}, p.Tokens)
	assert.NotContains(t, p.Tokens, "tokS")
	assert.Equal(t, models.KindAlertRaised, p.Kind)
	assert.Equal(t, "sos-1", p.GroupingKey)
	assert.Equal(t, "EMERGENCY SOS", p.Title)
	assert.Equal(t, "Sam sent an emergency SOS! Tap to view location.", p.Body)
	assert.Equal(t, "sos", p.Data[models.DataType])
	assert.Equal(t, "12.9716", p.Data[models.DataLatitude])
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=12.9716,77.5946", p.Data[models.DataMapURL])
	assert.Equal(t, models.PriorityMax, p.Presentation.Priority)
	assert.True(t, p.Presentation.CriticalAlert)
}

func TestScenarioB_CancelUsesSameGroupingKey(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)
	alert := activeAlert("S", "C1", "C2")

	raised := d.OnCreated(context.Background(), "sos-1", alert)
	require.Equal(t, StatusDelivered, raised.Status)

	out := d.OnUpdated(context.Background(), "sos-1", alert, withStatus(alert, models.StatusCancelled))
	assert.Equal(t, StatusDelivered, out.Status)
	assert.Equal(t, models.KindAlertCancelled, out.Kind)

	require.Len(t, gw.calls, 2)
	p := gw.calls[1]
	assert.Equal(t, []string{"tok1"}, p.Tokens)
	assert.Equal(t, gw.calls[0].GroupingKey, p.GroupingKey)
	assert.Equal(t, "SOS Cancelled - Sam", p.Title)
	assert.Equal(t, "Sam has cancelled the emergency SOS.", p.Body)
	assert.Equal(t, "sos_cancelled", p.Data[models.DataType])
	assert.Equal(t, models.PriorityHigh, p.Presentation.Priority)
	assert.Equal(t, ChannelHighImportance, p.Presentation.AndroidChannelID)
	assert.False(t, p.Presentation.CriticalAlert)
}

func TestScenarioC_ResolveTargetsSenderOnly(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)
	alert := activeAlert("C1", "C2")

	out := d.OnUpdated(context.Background(), "sos-2", alert, withStatus(alert, models.StatusResolved))
	assert.Equal(t, StatusDelivered, out.Status)
	assert.Equal(t, models.KindAlertResolved, out.Kind)
	assert.Equal(t, 1, out.AudienceSize)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, []string{"tokS"}, gw.calls[0].Tokens)
	assert.Equal(t, "SOS Resolved - Sam", gw.calls[0].Title)
	assert.Equal(t, "Sam's emergency has been resolved.", gw.calls[0].Body)
}

func TestScenarioD_SenderOnlyAudienceIsNoop(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewZapAdapter(zap.New(core))
	gw := &MockGateway{}
	d := New(Config{}, Deps{
		Resolver: resolver.New(tokenStore(scenarioTokens), 2, log),
		Gateway:  gw,
		Logger:   log,
	})

	out := d.OnCreated(context.Background(), "sos-3", activeAlert("S"))
	assert.Equal(t, StatusNoop, out.Status)
	assert.Equal(t, ReasonEmptyAudience, out.Reason)
	assert.Empty(t, gw.calls)
	assert.Equal(t, 1, logs.FilterMessage("no audience for reaction").Len())
}

// ==========================
// No-op transitions
// ==========================

func TestIrrelevantTransitionsMakeNoCalls(t *testing.T) {
	base := activeAlert("C1")
	tests := []struct {
		name   string
		before models.AlertStatus
		after  models.AlertStatus
		reason string
	}{
		{"status unchanged", models.StatusActive, models.StatusActive, ReasonStatusUnchanged},
		{"cancelled again", models.StatusCancelled, models.StatusCancelled, ReasonStatusUnchanged},
		{"cancelled to resolved", models.StatusCancelled, models.StatusResolved, ReasonInvalidTransition},
		{"resolved to cancelled", models.StatusResolved, models.StatusCancelled, ReasonInvalidTransition},
		{"re-enter active", models.StatusCancelled, models.StatusActive, ReasonInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &MockGateway{}
			d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

			out := d.OnUpdated(context.Background(), "sos-4", withStatus(base, tt.before), withStatus(base, tt.after))
			assert.Equal(t, StatusNoop, out.Status)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Empty(t, gw.calls)
		})
	}
}

func TestCreatedNotActiveIsNoop(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnCreated(context.Background(), "sos-5", withStatus(activeAlert("C1"), models.StatusResolved))
	assert.Equal(t, StatusNoop, out.Status)
	assert.Equal(t, ReasonNotActiveOnCreate, out.Reason)
	assert.Empty(t, gw.calls)
}

func TestNoEndpointsIsNoop(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnCreated(context.Background(), "sos-6", activeAlert("C2", "ghost"))
	assert.Equal(t, StatusNoop, out.Status)
	assert.Equal(t, ReasonNoEndpoints, out.Reason)
	assert.Empty(t, gw.calls)
}

func TestRaiseNeverTargetsSenderEndpoint(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewZapAdapter(zap.New(core))
	gw := &MockGateway{}
	store := tokenStore(map[string]string{"S": "tokS", "C1": "tokS", "C2": "tok2"})
	d := New(Config{ReactionTimeout: time.Second}, Deps{Resolver: resolver.New(store, 2, log), Gateway: gw, Logger: log})

	out := d.OnCreated(context.Background(), "sos-11", activeAlert("C1", "C2"))
	assert.Equal(t, StatusDelivered, out.Status)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, []string{"tok2"}, gw.calls[0].Tokens)
	assert.Equal(t, 1, logs.FilterMessage("sender endpoint removed from recipients").Len())
	assert.Equal(t, 1, logs.FilterMessage("push token shared by multiple users").Len())

	out = d.OnUpdated(context.Background(), "sos-11", activeAlert("C1", "C2"), withStatus(activeAlert("C1", "C2"), models.StatusCancelled))
	assert.Equal(t, StatusDelivered, out.Status)
	require.Len(t, gw.calls, 2)
	assert.Equal(t, []string{"tok2"}, gw.calls[1].Tokens)
}

func TestRaiseOnlyToSenderEndpointIsNoop(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(map[string]string{"S": "tokS", "C1": "tokS"}), gw, nil)

	out := d.OnCreated(context.Background(), "sos-12", activeAlert("C1"))
	assert.Equal(t, StatusNoop, out.Status)
	assert.Equal(t, ReasonNoEndpoints, out.Reason)
	assert.Empty(t, gw.calls)
}

func TestDuplicateContactsResolvedOnce(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnCreated(context.Background(), "sos-7", activeAlert("C1", "S", "C1"))
	assert.Equal(t, 1, out.AudienceSize)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, []string{"tok1"}, gw.calls[0].Tokens)
}

// ==========================
// Failures
// ==========================

func TestPartialDeliveryFailureStillDelivered(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewZapAdapter(zap.New(core))

	gw := &MockGateway{SendMulticastFunc: func(_ context.Context, p *models.NotificationPayload) (*push.BatchResponse, error) {
		return &push.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []push.TokenResponse{
				{Token: p.Tokens[0], Success: true},
				{Token: p.Tokens[1], Err: errors.New("registration-token-not-registered")},
			},
		}, nil
	}}
	store := tokenStore(map[string]string{"C1": "token-one-abcdef", "C2": "token-two-abcdef"})
	d := New(Config{}, Deps{Resolver: resolver.New(store, 2, log), Gateway: gw, Logger: log})

	out := d.OnCreated(context.Background(), "sos-8", activeAlert("C1", "C2"))
	assert.Equal(t, StatusDelivered, out.Status)
	assert.Equal(t, 1, out.SuccessCount)
	assert.Equal(t, 1, out.FailureCount)
	assert.Nil(t, out.Err)
	require.Len(t, gw.calls, 1)

	failed := logs.FilterMessage("push delivery failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "token-tw...cdef", failed[0].ContextMap()["token"])
}

func TestTransportErrorAborts(t *testing.T) {
	gw := &MockGateway{SendMulticastFunc: func(context.Context, *models.NotificationPayload) (*push.BatchResponse, error) {
		return nil, errors.New("503 service unavailable")
	}}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnCreated(context.Background(), "sos-9", activeAlert("C1"))
	assert.Equal(t, StatusAborted, out.Status)
	require.NotNil(t, out.Err)
	assert.Equal(t, apperrors.ErrCodePushTransportFailed, out.Err.Code)
	assert.False(t, out.Err.Retryable)
	assert.Len(t, gw.calls, 1)
}

func TestResolutionDeadlineAborts(t *testing.T) {
	store := &MockStore{GetProfileFunc: func(ctx context.Context, _ string) (*models.UserProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	gw := &MockGateway{}
	log := logger.NewTestLogger(t)
	d := New(Config{ReactionTimeout: 20 * time.Millisecond}, Deps{Resolver: resolver.New(store, 2, log), Gateway: gw, Logger: log})

	out := d.OnCreated(context.Background(), "sos-10", activeAlert("C1"))
	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, apperrors.ErrCodeReactionTimeout, out.Err.Code)
	assert.Empty(t, gw.calls)
}

func TestRaiseWithoutLocationAborts(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	alert := activeAlert("C1")
	alert.Location = nil
	out := d.OnCreated(context.Background(), "sos-11", alert)
	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, apperrors.ErrCodeAlertValidationFailed, out.Err.Code)
	assert.Empty(t, gw.calls)

	// follow-ups do not need a location
	out = d.OnUpdated(context.Background(), "sos-11", alert, withStatus(alert, models.StatusCancelled))
	assert.Equal(t, StatusDelivered, out.Status)
}

func TestMissingDocumentAborts(t *testing.T) {
	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	out := d.OnUpdated(context.Background(), "sos-12", nil, activeAlert("C1"))
	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, apperrors.ErrCodeAlertValidationFailed, out.Err.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	gw := &MockGateway{SendMulticastFunc: func(context.Context, *models.NotificationPayload) (*push.BatchResponse, error) {
		panic("nil map write")
	}}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, nil)

	var out *Outcome
	require.NotPanics(t, func() {
		out = d.OnCreated(context.Background(), "sos-13", activeAlert("C1"))
	})
	require.NotNil(t, out)
	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, apperrors.ErrCodeReactionPanic, out.Err.Code)
	assert.Equal(t, "aborted", out.Variables()["outcome"])
	assert.Equal(t, "REACTION_PANIC", out.Variables()["errorCode"])
}

// ==========================
// Duplicate guard
// ==========================

func TestRedisGuardSuppressesRedelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, NewRedisGuard(rdb, time.Hour))
	alert := activeAlert("C1")

	first := d.OnCreated(context.Background(), "sos-14", alert)
	second := d.OnCreated(context.Background(), "sos-14", alert)

	assert.Equal(t, StatusDelivered, first.Status)
	assert.Equal(t, StatusNoop, second.Status)
	assert.Equal(t, ReasonDuplicateEvent, second.Reason)
	assert.Len(t, gw.calls, 1)
	assert.True(t, mr.Exists(GuardKey("sos-14", models.KindAlertRaised)))

	// a different kind for the same alert is a separate reaction
	cancelled := d.OnUpdated(context.Background(), "sos-14", alert, withStatus(alert, models.StatusCancelled))
	assert.Equal(t, StatusDelivered, cancelled.Status)
	assert.Len(t, gw.calls, 2)
}

func TestRedisGuardFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	gw := &MockGateway{}
	d := newTestDispatcher(t, tokenStore(scenarioTokens), gw, NewRedisGuard(rdb, time.Hour))

	out := d.OnCreated(context.Background(), "sos-15", activeAlert("C1"))
	assert.Equal(t, StatusDelivered, out.Status)
	assert.Len(t, gw.calls, 1)
}
