// Package routeguard decides whether an authenticated-only view may render.
package routeguard

import (
	"context"
	"net/url"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/session"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

const SignInPath = "/auth"

type Kind string

const (
	Loading         Kind = "loading"
	RedirectSignIn  Kind = "redirect_sign_in"
	RedirectProfile Kind = "redirect_profile"
	Allow           Kind = "allow"
)

type Decision struct {
	Kind Kind
	// Path is the redirect target for the two redirect kinds.
	Path string
}

// SessionSource is the part of the session holder the guard watches.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

type ProfileFetcher interface {
	GetProfile(ctx context.Context) (*api.Profile, error)
}

type Guard struct {
	Session  SessionSource
	Profiles ProfileFetcher
}

func New(source SessionSource, profiles ProfileFetcher) *Guard {
	return &Guard{Session: source, Profiles: profiles}
}

// Evaluate runs the gate once against the current session.
func (g *Guard) Evaluate(ctx context.Context, inviteCode string) Decision {
	return g.evaluate(ctx, g.Session.Snapshot(), inviteCode)
}

func (g *Guard) evaluate(ctx context.Context, snap session.Snapshot, inviteCode string) Decision {
	switch {
	case snap.State == session.StateLoading:
		return Decision{Kind: Loading}
	case snap.State != session.StateAuthenticated || snap.User == nil:
		return Decision{Kind: RedirectSignIn, Path: signInPath(inviteCode)}
	}

	profilePath := "/profile-set/" + url.PathEscape(snap.User.ID)
	profile, err := g.Profiles.GetProfile(ctx)
	if err != nil {
		logger.WarnWithUser(snap.User.ID, "route_guard_profile_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return Decision{Kind: RedirectProfile, Path: profilePath}
	}
	if profile.Profile.DormitoryID == nil || *profile.Profile.DormitoryID == "" {
		return Decision{Kind: RedirectProfile, Path: profilePath}
	}
	return Decision{Kind: Allow}
}

func signInPath(inviteCode string) string {
	if inviteCode == "" {
		return SignInPath
	}
	return SignInPath + "?" + url.Values{"invite": {inviteCode}}.Encode()
}

// Watch evaluates now and again on every session change until ctx ends or stop is called.
func (g *Guard) Watch(ctx context.Context, inviteCode string, fn func(Decision)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	changes := make(chan session.Snapshot, 1)

	unsubscribe := g.Session.Subscribe(func(s session.Snapshot) {
		// Keep only the newest snapshot.
		select {
		case <-changes:
		default:
		}
		select {
		case changes <- s:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(g.evaluate(ctx, g.Session.Snapshot(), inviteCode))
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-changes:
				fn(g.evaluate(ctx, s, inviteCode))
			}
		}
	}()

	return func() {
		unsubscribe()
		cancel()
		<-done
	}
}
