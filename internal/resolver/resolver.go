// internal/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"fmt"

	"sos-workers/internal/common/logger"
	"sos-workers/internal/common/metrics"
	"sos-workers/internal/common/push"
	"sos-workers/internal/models"
	"sos-workers/internal/profiles"

	"golang.org/x/sync/errgroup"
)

// Unresolved reasons.
const (
	ReasonUserNotFound = "user_not_found"
	ReasonNoEndpoint   = "no_endpoint"
	ReasonLookupFailed = "lookup_failed"
)

type Unresolved struct {
	UserID string
	Reason string
	Err    error
}

// SharedToken is one push token resolved for more than one identity.
type SharedToken struct {
	Token   string
	UserIDs []string
}

// Resolution is the result of mapping identities to push endpoints.
// Tokens keeps input order and holds each token once. Excluded lists recipient tokens that were
// dropped because an excluded identity is registered with them.
type Resolution struct {
	Tokens       []string
	Unresolved   []Unresolved
	SharedTokens []SharedToken
	Excluded     []string
}

type Resolver struct {
	store       profiles.Store
	concurrency int
	logger      logger.Logger
}

func New(store profiles.Store, concurrency int, log logger.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{
		store:       store,
		concurrency: concurrency,
		logger:      log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

type lookup struct {
	profile *models.UserProfile
	err     error
}

// Resolve looks up every distinct identity concurrently. A failed lookup only excludes that
// identity; the returned error is non-nil only when ctx ended before all lookups finished.
//
// Identities in exclude are looked up alongside userIDs but are never recipients: any token they
// hold is removed from Tokens even when a recipient is registered with the same token.
func (r *Resolver) Resolve(ctx context.Context, userIDs []string, exclude ...string) (*Resolution, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		if id != "" {
			excluded[id] = true
		}
	}
	ids := dedupe(append(append([]string(nil), userIDs...), exclude...))
	results := make([]lookup, len(ids))

	var eg errgroup.Group
	eg.SetLimit(r.concurrency)
	for i, id := range ids {
		eg.Go(func() error {
			p, err := r.store.GetProfile(ctx, id)
			results[i] = lookup{profile: p, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	res := &Resolution{}
	owners := make(map[string][]string)
	blocked := make(map[string]bool)
	seen := make(map[string]bool)
	var order []string
	for i, id := range ids {
		l := results[i]
		if excluded[id] {
			switch {
			case l.err == nil && l.profile.HasEndpoint():
				blocked[l.profile.PushToken] = true
				owners[l.profile.PushToken] = append(owners[l.profile.PushToken], id)
			case l.err != nil && !errors.Is(l.err, profiles.ErrProfileNotFound):
				r.logger.Warn("excluded identity lookup failed", map[string]interface{}{
					"userId": id,
					"error":  l.err,
				})
			}
			continue
		}

		switch {
		case errors.Is(l.err, profiles.ErrProfileNotFound):
			r.unresolved(res, Unresolved{UserID: id, Reason: ReasonUserNotFound})
		case l.err != nil:
			r.unresolved(res, Unresolved{UserID: id, Reason: ReasonLookupFailed, Err: l.err})
		case !l.profile.HasEndpoint():
			r.unresolved(res, Unresolved{UserID: id, Reason: ReasonNoEndpoint})
		default:
			token := l.profile.PushToken
			if !seen[token] {
				seen[token] = true
				order = append(order, token)
			}
			owners[token] = append(owners[token], id)
		}
	}

	for _, token := range order {
		if ids := owners[token]; len(ids) > 1 {
			res.SharedTokens = append(res.SharedTokens, SharedToken{Token: token, UserIDs: ids})
			metrics.SharedTokenAnomalies.Inc()
			r.logger.Warn("push token shared by multiple users", map[string]interface{}{
				"token":   push.RedactToken(token),
				"userIds": ids,
			})
		}
		if blocked[token] {
			res.Excluded = append(res.Excluded, token)
			continue
		}
		res.Tokens = append(res.Tokens, token)
	}

	return res, nil
}

func (r *Resolver) unresolved(res *Resolution, u Unresolved) {
	res.Unresolved = append(res.Unresolved, u)
	metrics.RecipientsUnresolved.WithLabelValues(u.Reason).Inc()

	fields := map[string]interface{}{
		"userId": u.UserID,
		"reason": u.Reason,
	}
	if u.Err != nil {
		fields["error"] = u.Err
		r.logger.Warn("recipient lookup failed", fields)
		return
	}
	r.logger.Info("recipient excluded", fields)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
