package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/metrics"
	"sos-workers/internal/models"
	"sos-workers/internal/profiles"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockStore struct {
	calls          atomic.Int32
	GetProfileFunc func(ctx context.Context, userID string) (*models.UserProfile, error)
}

func (m *MockStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	m.calls.Add(1)
	return m.GetProfileFunc(ctx, userID)
}

// profileTable serves tokens from a map; ids missing from the map are not found.
func profileTable(tokens map[string]string) *MockStore {
	return &MockStore{GetProfileFunc: func(_ context.Context, userID string) (*models.UserProfile, error) {
		token, ok := tokens[userID]
		if !ok {
			return nil, profiles.ErrProfileNotFound
		}
		return &models.UserProfile{ID: userID, DisplayName: userID, PushToken: token}, nil
	}}
}

func TestResolve_ExcludesWithReasons(t *testing.T) {
	store := &MockStore{GetProfileFunc: func(_ context.Context, userID string) (*models.UserProfile, error) {
		switch userID {
		case "c1":
			return &models.UserProfile{ID: "c1", PushToken: "tok1"}, nil
		case "c2":
			return &models.UserProfile{ID: "c2"}, nil
		case "c3":
			return nil, errors.New("connection reset")
		}
		return nil, profiles.ErrProfileNotFound
	}}

	core, logs := observer.New(zapcore.DebugLevel)
	r := New(store, 4, logger.NewZapAdapter(zap.New(core)))

	before := testutil.ToFloat64(metrics.RecipientsUnresolved.WithLabelValues(ReasonNoEndpoint))

	res, err := r.Resolve(context.Background(), []string{"c1", "c2", "c3", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok1"}, res.Tokens)
	require.Len(t, res.Unresolved, 3)
	assert.Equal(t, Unresolved{UserID: "c2", Reason: ReasonNoEndpoint}, res.Unresolved[0])
	assert.Equal(t, ReasonLookupFailed, res.Unresolved[1].Reason)
	assert.Error(t, res.Unresolved[1].Err)
	assert.Equal(t, Unresolved{UserID: "ghost", Reason: ReasonUserNotFound}, res.Unresolved[2])

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RecipientsUnresolved.WithLabelValues(ReasonNoEndpoint)))
	assert.Equal(t, 2, logs.FilterMessage("recipient excluded").Len())
	assert.Equal(t, 1, logs.FilterMessage("recipient lookup failed").Len())
}

func TestResolve_DedupesIdentities(t *testing.T) {
	store := profileTable(map[string]string{"c1": "tok1", "c2": "tok2"})
	r := New(store, 2, logger.NewTestLogger(t))

	res, err := r.Resolve(context.Background(), []string{"c1", "c2", "c1", "", "c2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok1", "tok2"}, res.Tokens)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestResolve_SharedTokenSurfacedOnce(t *testing.T) {
	store := profileTable(map[string]string{"c1": "stale-token-abcdef", "c2": "stale-token-abcdef", "c3": "tok3"})

	core, logs := observer.New(zapcore.DebugLevel)
	r := New(store, 4, logger.NewZapAdapter(zap.New(core)))

	before := testutil.ToFloat64(metrics.SharedTokenAnomalies)

	res, err := r.Resolve(context.Background(), []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-token-abcdef", "tok3"}, res.Tokens)
	require.Len(t, res.SharedTokens, 1)
	assert.Equal(t, []string{"c1", "c2"}, res.SharedTokens[0].UserIDs)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SharedTokenAnomalies))
	warn := logs.FilterMessage("push token shared by multiple users").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "stale-to...cdef", warn[0].ContextMap()["token"])
}

func TestResolve_ExcludedIdentityTokenIsDropped(t *testing.T) {
	store := profileTable(map[string]string{"S": "tokS", "c1": "tokS", "c2": "tok2", "c3": ""})
	r := New(store, 2, logger.NewNoOpLogger())

	res, err := r.Resolve(context.Background(), []string{"c1", "c2", "c3"}, "S")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok2"}, res.Tokens)
	assert.Equal(t, []string{"tokS"}, res.Excluded)
	require.Len(t, res.SharedTokens, 1)
	assert.Equal(t, []string{"c1", "S"}, res.SharedTokens[0].UserIDs)

	// only recipients are reported as unresolved
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "c3", res.Unresolved[0].UserID)
}

func TestResolve_UnknownExcludedIdentityIsIgnored(t *testing.T) {
	r := New(profileTable(map[string]string{"c1": "tok1"}), 2, logger.NewNoOpLogger())

	res, err := r.Resolve(context.Background(), []string{"c1"}, "ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok1"}, res.Tokens)
	assert.Empty(t, res.Excluded)
	assert.Empty(t, res.Unresolved)
}

func TestResolve_Idempotent(t *testing.T) {
	store := profileTable(map[string]string{"a": "ta", "b": "tb", "c": "tc", "d": "td"})
	r := New(store, 3, logger.NewNoOpLogger())
	ids := []string{"d", "a", "x", "c", "b"}

	first, err := r.Resolve(context.Background(), ids)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Equal(t, []string{"td", "ta", "tc", "tb"}, first.Tokens)
}

func TestResolve_EmptyInput(t *testing.T) {
	r := New(profileTable(nil), 2, logger.NewNoOpLogger())
	res, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Tokens)
	assert.Empty(t, res.Unresolved)
}

func TestResolve_DeadlineAborts(t *testing.T) {
	store := &MockStore{GetProfileFunc: func(ctx context.Context, userID string) (*models.UserProfile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := New(store, 2, logger.NewNoOpLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := r.Resolve(ctx, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
