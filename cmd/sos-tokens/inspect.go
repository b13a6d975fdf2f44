// cmd/sos-tokens/inspect.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	apperrors "sos-workers/internal/common/errors"
	"sos-workers/internal/common/push"
	"sos-workers/internal/models"
	"sos-workers/internal/profiles"
)

type report struct {
	NotFound []string
	NoToken  []string
	// Shared maps a token to the users registered with it, for tokens held by two or more users.
	Shared map[string][]string
}

// inspect prints one block per user and the anomalies found across them. It stops at the first
// lookup error other than an unknown user.
func inspect(ctx context.Context, store profiles.Store, ids []string, redact bool, w io.Writer) (*report, error) {
	rep := &report{Shared: make(map[string][]string)}
	owners := make(map[string][]string)

	fmt.Fprintln(w, "=== Checking push tokens ===")
	fmt.Fprintln(w)

	for _, id := range ids {
		p, err := store.GetProfile(ctx, id)
		if errors.Is(err, profiles.ErrProfileNotFound) {
			rep.NotFound = append(rep.NotFound, id)
			fmt.Fprintf(w, "User %s not found\n\n", id)
			continue
		}
		if err != nil {
			return rep, apperrors.NewProfileLookupFailedError(id, err)
		}

		fmt.Fprintf(w, "User %s:\n", id)
		fmt.Fprintf(w, "  Name:          %s\n", orNA(p.DisplayName))
		fmt.Fprintf(w, "  Contact:       %s\n", orNA(p.ContactInfo))
		fmt.Fprintf(w, "  Push token:    %s\n", displayToken(p, redact))
		fmt.Fprintf(w, "  Token updated: %s\n\n", updatedAt(p))

		if !p.HasEndpoint() {
			rep.NoToken = append(rep.NoToken, id)
			continue
		}
		owners[p.PushToken] = append(owners[p.PushToken], id)
	}

	tokens := make([]string, 0, len(owners))
	for token, users := range owners {
		if len(users) > 1 {
			rep.Shared[token] = users
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		fmt.Fprintf(w, "WARNING: users %v share push token %s; their notifications reach the same device\n",
			rep.Shared[token], push.RedactToken(token))
	}
	for _, id := range rep.NoToken {
		fmt.Fprintf(w, "WARNING: user %s has no push token and cannot be notified\n", id)
	}
	if len(tokens) == 0 && len(rep.NoToken) == 0 && len(rep.NotFound) == 0 {
		fmt.Fprintln(w, "OK: every user has a distinct push token")
	}
	return rep, nil
}

func displayToken(p *models.UserProfile, redact bool) string {
	switch {
	case !p.HasEndpoint():
		return "NO TOKEN"
	case redact:
		return push.RedactToken(p.PushToken)
	}
	return p.PushToken
}

func updatedAt(p *models.UserProfile) string {
	if p.PushTokenUpdatedAt == nil {
		return "N/A"
	}
	return p.PushTokenUpdatedAt.UTC().Format(time.RFC3339)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
