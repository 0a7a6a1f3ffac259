// Package session holds the signed-in user and session for one client process
// and keeps them in step with the backend's own session lifecycle.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

var ErrInvalidInvitation = errors.New("invalid or expired invitation code")

const EventUserSignedIn = "user_signed_in"

// Backend is the identity part of the API client.
type Backend interface {
	GetSession(ctx context.Context) (*api.Session, error)
	OnAuthStateChange(fn func(api.AuthEvent, *api.Session)) func()
	SignUp(ctx context.Context, input api.SignUpInput) (*api.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*api.Session, error)
	SignInWithOAuth(ctx context.Context, provider, invitationCode string) (string, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*api.Session, error)
	ValidateInvitation(ctx context.Context, code string) (bool, error)
	CheckUserExists(ctx context.Context, email string) (bool, error)
	TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{}) error
}

type State string

const (
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Snapshot is what listeners see after every change.
type Snapshot struct {
	State   State
	User    *api.User
	Session *api.Session
}

// Holder is the process-wide auth state container. Create one per client and pass it
// to whatever needs it.
type Holder struct {
	Backend Backend
	// TrackTimeout bounds the fire-and-forget sign-in event.
	TrackTimeout time.Duration

	mu          sync.Mutex
	snap        Snapshot
	listeners   map[int]func(Snapshot)
	nextID      int
	unsubscribe func()
	track       sync.WaitGroup
}

func NewHolder(backend Backend) *Holder {
	return &Holder{
		Backend:      backend,
		TrackTimeout: 10 * time.Second,
		snap:         Snapshot{State: StateLoading},
		listeners:    make(map[int]func(Snapshot)),
	}
}

// Init subscribes to backend auth changes and loads the current session.
func (h *Holder) Init(ctx context.Context) error {
	h.mu.Lock()
	if h.unsubscribe == nil {
		h.unsubscribe = h.Backend.OnAuthStateChange(h.onAuthChange)
	}
	h.mu.Unlock()

	_, err := h.GetSession(ctx)
	return err
}

// Close unsubscribes from backend auth changes and waits for pending background work.
func (h *Holder) Close() {
	h.mu.Lock()
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	h.track.Wait()
}

func (h *Holder) onAuthChange(event api.AuthEvent, s *api.Session) {
	switch event {
	case api.AuthSignedOut:
		h.apply(nil, false)
	case api.AuthUserUpdated:
		// Same token and id, but profile fields changed.
		h.apply(s, true)
	default:
		h.apply(s, false)
	}
}

// apply moves the holder to the state implied by s and notifies listeners when anything
// changed, or always when force is set.
func (h *Holder) apply(s *api.Session, force bool) {
	next := Snapshot{State: StateAnonymous}
	if s != nil && s.AccessToken != "" {
		next = Snapshot{State: StateAuthenticated, User: s.User, Session: s}
	}

	h.mu.Lock()
	if !force && sameSnapshot(h.snap, next) {
		h.mu.Unlock()
		return
	}
	h.snap = next
	listeners := make([]func(Snapshot), 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func sameSnapshot(a, b Snapshot) bool {
	if a.State != b.State {
		return false
	}
	if (a.Session == nil) != (b.Session == nil) {
		return false
	}
	if a.Session != nil && a.Session.AccessToken != b.Session.AccessToken {
		return false
	}
	return userID(a.User) == userID(b.User)
}

func userID(u *api.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// Snapshot returns the current state without contacting the backend.
func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *Holder) State() State {
	return h.Snapshot().State
}

// Subscribe registers fn for every state change and returns its unsubscribe func.
func (h *Holder) Subscribe(fn func(Snapshot)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// GetSession asks the backend for the current session. A nil user and session mean signed out.
func (h *Holder) GetSession(ctx context.Context) (*api.Session, error) {
	s, err := h.Backend.GetSession(ctx)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			h.apply(nil, false)
			return nil, nil
		}
		logger.Warn("session_load_failed", map[string]interface{}{"error": err.Error()})
		if h.State() == StateLoading {
			h.apply(nil, false)
		}
		return nil, err
	}
	h.apply(s, false)
	return s, nil
}

// SignUp creates the account. The invitation code is passed through for the server to check.
func (h *Holder) SignUp(ctx context.Context, email, password, invitationCode string) error {
	s, err := h.Backend.SignUp(ctx, api.SignUpInput{
		Email:          strings.TrimSpace(email),
		Password:       password,
		InvitationCode: strings.TrimSpace(invitationCode),
	})
	if err != nil {
		return err
	}
	h.apply(s, false)
	return nil
}

// SignIn exchanges credentials for a session and records the sign-in in the background.
func (h *Holder) SignIn(ctx context.Context, email, password string) error {
	s, err := h.Backend.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	h.apply(s, false)

	h.track.Add(1)
	go func() {
		defer h.track.Done()
		trackCtx, cancel := context.WithTimeout(context.Background(), h.TrackTimeout)
		defer cancel()
		if err := h.Backend.TrackEvent(trackCtx, EventUserSignedIn, map[string]interface{}{"method": "password"}); err != nil {
			logger.Warn("track_event_failed", map[string]interface{}{
				"event_type": EventUserSignedIn,
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

// SignInWithOAuth returns the provider URL. A supplied invitation code is checked first and an
// invalid one aborts before the provider is contacted.
func (h *Holder) SignInWithOAuth(ctx context.Context, provider, invitationCode string) (string, error) {
	code := strings.TrimSpace(invitationCode)
	if code != "" {
		valid, err := h.Backend.ValidateInvitation(ctx, code)
		if err != nil {
			return "", err
		}
		if !valid {
			return "", ErrInvalidInvitation
		}
	}
	return h.Backend.SignInWithOAuth(ctx, provider, code)
}

// SignOut clears local state once the backend confirms. On error the previous state stays.
func (h *Holder) SignOut(ctx context.Context) error {
	if err := h.Backend.SignOut(ctx); err != nil {
		logger.Warn("sign_out_failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	h.apply(nil, false)
	return nil
}

func (h *Holder) CheckUserExists(ctx context.Context, email string) (bool, error) {
	return h.Backend.CheckUserExists(ctx, strings.TrimSpace(email))
}

// OnForeground refreshes the session when the client becomes active again, so a token that
// expired in the background is replaced before it is used.
func (h *Holder) OnForeground(ctx context.Context) error {
	if h.State() != StateAuthenticated {
		return nil
	}
	s, err := h.Backend.RefreshSession(ctx)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			h.apply(nil, false)
		}
		logger.Warn("session_refresh_failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	h.apply(s, false)
	return nil
}
