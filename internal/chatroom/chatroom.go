// Package chatroom drives the actions available once a pool has become a chatroom and
// keeps the local roster and message list in line with what the backend confirmed.
package chatroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
)

var (
	ErrNotAdmin      = errors.New("only the chatroom admin can do this")
	ErrNotLoaded     = errors.New("chatroom not loaded")
	ErrRemoveSelf    = errors.New("cannot remove yourself, leave the group instead")
	ErrNotMember     = errors.New("user is not a member of this chatroom")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrLeaveRejected = errors.New("leave was rejected")
)

// HomePath is where the client goes after leaving a group.
const HomePath = "/"

const DefaultBannerDuration = 3 * time.Second

// MessageWindow is how many of the newest messages Load keeps.
const MessageWindow = 100

type Backend interface {
	GetChatroom(ctx context.Context, chatroomID string) (*api.Chatroom, error)
	UpdateChatroomState(ctx context.Context, chatroomID, state string) error
	UpdateChatroomBaskets(ctx context.Context, chatroomID, status string) (int64, error)
	TransferAdmin(ctx context.Context, chatroomID, userID string) error
	RemoveMember(ctx context.Context, chatroomID, userID string) error
	LeaveChatroom(ctx context.Context, chatroomID string) (bool, error)
	ListMessages(ctx context.Context, chatroomID string, page, limit int) ([]api.Message, *api.Pagination, error)
	SendMessage(ctx context.Context, chatroomID, content, kind string) (*api.Message, error)
	UploadMedia(ctx context.Context, chatroomID, key, filename string, r io.Reader) (string, error)
}

// MemberView is a roster entry with its derived status line.
type MemberView struct {
	api.Member
	StatusText string
}

type Orchestrator struct {
	Backend    Backend
	ChatroomID string
	UserID     string
	// BannerDuration is how long a success banner stays up.
	BannerDuration time.Duration
	// OnChange, if set, runs after every local state change.
	OnChange func()

	now    func() time.Time
	random func() string

	mu       sync.Mutex
	chatroom *api.Chatroom
	messages []api.Message
	banner   string
	timer    *time.Timer
}

func New(backend Backend, chatroomID, userID string) *Orchestrator {
	return &Orchestrator{
		Backend:        backend,
		ChatroomID:     chatroomID,
		UserID:         userID,
		BannerDuration: DefaultBannerDuration,
		now:            time.Now,
		random:         func() string { return uuid.NewString()[:8] },
	}
}

// Load fetches the chatroom and its first page of messages.
func (o *Orchestrator) Load(ctx context.Context) error {
	if err := o.refetch(ctx); err != nil {
		return err
	}
	messages, err := o.latestMessages(ctx)
	if err != nil {
		o.logError("chatroom_messages_failed", err)
		return err
	}
	o.mu.Lock()
	o.messages = messages
	o.mu.Unlock()
	o.changed()
	return nil
}

// latestMessages returns the newest MessageWindow messages, oldest first. History is
// paged oldest first, so the window is the tail of the last page plus, when that page is
// short, the tail of the one before it.
func (o *Orchestrator) latestMessages(ctx context.Context) ([]api.Message, error) {
	first, page, err := o.Backend.ListMessages(ctx, o.ChatroomID, 1, MessageWindow)
	if err != nil || page == nil || page.TotalPages <= 1 {
		return first, err
	}

	last, _, err := o.Backend.ListMessages(ctx, o.ChatroomID, page.TotalPages, MessageWindow)
	if err != nil || len(last) >= MessageWindow {
		return last, err
	}

	prev := first
	if page.TotalPages > 2 {
		if prev, _, err = o.Backend.ListMessages(ctx, o.ChatroomID, page.TotalPages-1, MessageWindow); err != nil {
			return nil, err
		}
	}
	need := min(MessageWindow-len(last), len(prev))
	return append(append([]api.Message(nil), prev[len(prev)-need:]...), last...), nil
}

func (o *Orchestrator) refetch(ctx context.Context) error {
	room, err := o.Backend.GetChatroom(ctx, o.ChatroomID)
	if err != nil {
		o.logError("chatroom_fetch_failed", err)
		return err
	}
	o.mu.Lock()
	o.chatroom = room
	o.mu.Unlock()
	o.changed()
	return nil
}

// Chatroom returns the last confirmed chatroom view, or nil before Load.
func (o *Orchestrator) Chatroom() *api.Chatroom {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chatroom == nil {
		return nil
	}
	room := *o.chatroom
	room.Members = append([]api.Member(nil), o.chatroom.Members...)
	return &room
}

func (o *Orchestrator) Messages() []api.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]api.Message(nil), o.messages...)
}

// State is the canonical chatroom state, or "" before Load.
func (o *Orchestrator) State() lifecycle.ChatroomState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chatroom == nil {
		return ""
	}
	state, _ := lifecycle.ParseChatroomState(o.chatroom.State)
	return state
}

func (o *Orchestrator) IsAdmin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chatroom != nil && o.chatroom.AdminID == o.UserID
}

// Members returns the roster with each member's status line.
func (o *Orchestrator) Members() []MemberView {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chatroom == nil {
		return nil
	}
	state, _ := lifecycle.ParseChatroomState(o.chatroom.State)
	views := make([]MemberView, 0, len(o.chatroom.Members))
	for _, m := range o.chatroom.Members {
		var (
			ready     bool
			delivered *bool
			amount    float64
		)
		if m.Basket != nil {
			ready = m.Basket.IsReady
			delivered = m.Basket.IsDeliveredByUser
			amount = m.Basket.Amount
		}
		views = append(views, MemberView{
			Member:     m,
			StatusText: lifecycle.MemberStatus(state, ready, delivered, amount),
		})
	}
	return views
}

// requireAdmin refuses admin actions from anyone else without touching the backend.
func (o *Orchestrator) requireAdmin(action Action) error {
	o.mu.Lock()
	loaded := o.chatroom != nil
	admin := loaded && o.chatroom.AdminID == o.UserID
	o.mu.Unlock()

	if !loaded {
		return ErrNotLoaded
	}
	if !admin {
		logger.WarnWithUser(o.UserID, "chatroom_admin_required", map[string]interface{}{
			"chatroom_id": o.ChatroomID,
			"action":      string(action),
		})
		return ErrNotAdmin
	}
	return nil
}

// finish applies the action's policy after the backend accepted it.
func (o *Orchestrator) finish(ctx context.Context, action Action) error {
	policy := Policies[action]
	if policy.Refetch {
		if err := o.refetch(ctx); err != nil {
			return err
		}
	}
	if policy.Banner != "" {
		o.showBanner(policy.Banner)
	}
	return nil
}

func (o *Orchestrator) MarkAsOrdered(ctx context.Context) error {
	if err := o.requireAdmin(ActionMarkOrdered); err != nil {
		return err
	}
	if err := o.Backend.UpdateChatroomState(ctx, o.ChatroomID, string(lifecycle.StateOrdered)); err != nil {
		o.logError("chatroom_state_update_failed", err)
		return err
	}
	return o.finish(ctx, ActionMarkOrdered)
}

// MarkAsDelivered resolves the chatroom and then every basket in it. Both updates are
// attempted. A failure in either is reported and nothing is rolled back; reload to see
// what actually landed.
func (o *Orchestrator) MarkAsDelivered(ctx context.Context) error {
	if err := o.requireAdmin(ActionMarkDelivered); err != nil {
		return err
	}

	var errs []error
	if err := o.Backend.UpdateChatroomState(ctx, o.ChatroomID, string(lifecycle.StateResolved)); err != nil {
		o.logError("chatroom_state_update_failed", err)
		errs = append(errs, fmt.Errorf("resolve chatroom: %w", err))
	}
	if _, err := o.Backend.UpdateChatroomBaskets(ctx, o.ChatroomID, string(lifecycle.BasketResolved)); err != nil {
		o.logError("chatroom_baskets_update_failed", err)
		errs = append(errs, fmt.Errorf("resolve baskets: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return o.finish(ctx, ActionMarkDelivered)
}

func (o *Orchestrator) MakeAdmin(ctx context.Context, userID string) error {
	if err := o.requireAdmin(ActionMakeAdmin); err != nil {
		return err
	}
	if err := o.Backend.TransferAdmin(ctx, o.ChatroomID, userID); err != nil {
		o.logError("chatroom_admin_transfer_failed", err)
		return err
	}
	return o.finish(ctx, ActionMakeAdmin)
}

// RemoveMember drops the member from the local roster before the backend answers and
// puts them back if it refuses.
func (o *Orchestrator) RemoveMember(ctx context.Context, userID string) error {
	if err := o.requireAdmin(ActionRemoveMember); err != nil {
		return err
	}
	if userID == o.UserID {
		return ErrRemoveSelf
	}

	o.mu.Lock()
	idx := indexOf(o.chatroom.Members, userID)
	if idx < 0 {
		o.mu.Unlock()
		return ErrNotMember
	}
	removed := o.chatroom.Members[idx]
	members := append([]api.Member(nil), o.chatroom.Members[:idx]...)
	o.chatroom.Members = append(members, o.chatroom.Members[idx+1:]...)
	o.mu.Unlock()
	o.changed()

	if err := o.Backend.RemoveMember(ctx, o.ChatroomID, userID); err != nil {
		o.logError("chatroom_member_remove_failed", err)
		o.mu.Lock()
		// The roster may have changed while the call was in flight.
		if o.chatroom != nil && indexOf(o.chatroom.Members, userID) < 0 {
			at := min(idx, len(o.chatroom.Members))
			restored := append([]api.Member(nil), o.chatroom.Members[:at]...)
			restored = append(restored, removed)
			o.chatroom.Members = append(restored, o.chatroom.Members[at:]...)
		}
		o.mu.Unlock()
		o.changed()
		return err
	}
	return o.finish(ctx, ActionRemoveMember)
}

func indexOf(members []api.Member, userID string) int {
	for i, m := range members {
		if m.User.ID == userID {
			return i
		}
	}
	return -1
}

// LeaveGroup asks the backend to take the caller out of the chatroom and returns the
// path to navigate to.
func (o *Orchestrator) LeaveGroup(ctx context.Context) (string, error) {
	ok, err := o.Backend.LeaveChatroom(ctx, o.ChatroomID)
	if err != nil {
		o.logError("chatroom_leave_failed", err)
		return "", err
	}
	if !ok {
		return "", ErrLeaveRejected
	}
	logger.InfoWithUser(o.UserID, "chatroom_left", map[string]interface{}{"chatroom_id": o.ChatroomID})
	return HomePath, nil
}

func (o *Orchestrator) SendText(ctx context.Context, content string) (*api.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return o.send(ctx, content, "text")
}

// SendMedia uploads the file first and then posts a message whose content is the
// storage key. Signed URLs are resolved when the message is shown.
func (o *Orchestrator) SendMedia(ctx context.Context, kind lifecycle.MediaType, filename string, r io.Reader) (*api.Message, error) {
	if kind != lifecycle.MediaImage && kind != lifecycle.MediaAudio {
		return nil, fmt.Errorf("unsupported media type %q", kind)
	}
	key := lifecycle.MediaKey(kind, o.ChatroomID, filename, o.now(), o.random())
	stored, err := o.Backend.UploadMedia(ctx, o.ChatroomID, key, filename, r)
	if err != nil {
		o.logError("chatroom_media_upload_failed", err)
		return nil, err
	}
	if stored == "" {
		stored = key
	}
	return o.send(ctx, stored, string(kind))
}

func (o *Orchestrator) send(ctx context.Context, content, kind string) (*api.Message, error) {
	msg, err := o.Backend.SendMessage(ctx, o.ChatroomID, content, kind)
	if err != nil {
		o.logError("chatroom_message_send_failed", err)
		return nil, err
	}
	o.mu.Lock()
	o.messages = append(o.messages, *msg)
	o.mu.Unlock()
	o.changed()
	return msg, nil
}

// Banner is the current success banner text, or "".
func (o *Orchestrator) Banner() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.banner
}

func (o *Orchestrator) showBanner(text string) {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.banner = text
	var t *time.Timer
	t = time.AfterFunc(o.BannerDuration, func() {
		o.mu.Lock()
		if o.timer != t {
			o.mu.Unlock()
			return
		}
		o.banner = ""
		o.timer = nil
		o.mu.Unlock()
		o.changed()
	})
	o.timer = t
	o.mu.Unlock()
	o.changed()
}

// Close stops any pending banner timer.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) changed() {
	if o.OnChange != nil {
		o.OnChange()
	}
}

func (o *Orchestrator) logError(action string, err error) {
	logger.ErrorWithUser(o.UserID, action, err, map[string]interface{}{"chatroom_id": o.ChatroomID})
}
