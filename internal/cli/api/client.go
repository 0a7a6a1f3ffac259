package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Client wraps HTTP calls to the Shelivery API and owns the current session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// StreamClient carries the realtime stream and has no overall timeout.
	StreamClient *http.Client

	mu        sync.RWMutex
	session   *Session
	listeners map[int]func(AuthEvent, *Session)
	nextID    int
}

// NewClient creates a Client from a base URL (e.g. http://localhost:8080) and an optional stored session.
func NewClient(baseURL string, session *Session) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/") + "/api",
		HTTPClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		StreamClient: &http.Client{},
		session:      session,
		listeners:    make(map[int]func(AuthEvent, *Session)),
	}
}

// --- generic response types matching the backend envelope ---

// Response is the standard { success, data, error } envelope.
type Response[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data"`
	Error      string      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// APIError is returned when the server sends a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d - %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// --- session ---

// Session returns the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// OnAuthStateChange registers fn for every session change and returns its unsubscribe func.
func (c *Client) OnAuthStateChange(fn func(AuthEvent, *Session)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) setSession(event AuthEvent, session *Session) {
	c.mu.Lock()
	c.session = session
	listeners := make([]func(AuthEvent, *Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(event, session)
	}
}

// --- low-level helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return &APIError{Status: status, Message: errResp.Error}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(data))}
}

// Get sends a GET request and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

// Post sends a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, path, body, out)
}

// Put sends a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPut, path, body, out)
}

// Delete sends a DELETE, with an optional JSON body.
func (c *Client) Delete(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.sendJSON(ctx, http.MethodDelete, path, body, out)
}

// Upload sends a multipart upload, streaming r as the named file field.
func (c *Client) Upload(ctx context.Context, path, fieldName, filename string, r io.Reader, extraFields map[string]string, out interface{}) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer writer.Close()

		for k, v := range extraFields {
			_ = writer.WriteField(k, v)
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, filepath.Base(filename)))
		header.Set("Content-Type", contentTypeFor(filename))
		part, err := writer.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	req, err := c.newRequest(ctx, http.MethodPost, path, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// --- auth ---

// GetSession confirms the stored session with the server. It returns nil without error when signed out.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	current := c.Session()
	if current == nil || current.AccessToken == "" {
		return nil, nil
	}
	var resp Response[struct {
		User User `json:"user"`
	}]
	if err := c.Get(ctx, "/auth/session", nil, &resp); err != nil {
		return nil, err
	}
	confirmed := *current
	confirmed.User = &resp.Data.User
	return &confirmed, nil
}

func (c *Client) SignUp(ctx context.Context, input SignUpInput) (*Session, error) {
	var resp Response[Session]
	if err := c.Post(ctx, "/auth/signup", input, &resp); err != nil {
		return nil, err
	}
	c.setSession(AuthSignedIn, &resp.Data)
	return &resp.Data, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var resp Response[Session]
	if err := c.Post(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &resp); err != nil {
		return nil, err
	}
	c.setSession(AuthSignedIn, &resp.Data)
	return &resp.Data, nil
}

// SignInWithOAuth returns the provider URL the user must visit.
func (c *Client) SignInWithOAuth(ctx context.Context, provider, invitationCode string) (string, error) {
	params := url.Values{}
	if invitationCode != "" {
		params.Set("invitationCode", invitationCode)
	}
	var resp Response[struct {
		URL string `json:"url"`
	}]
	if err := c.Get(ctx, "/auth/oauth/"+url.PathEscape(provider), params, &resp); err != nil {
		return "", err
	}
	return resp.Data.URL, nil
}

// CompleteOAuth exchanges the provider callback parameters for a session.
func (c *Client) CompleteOAuth(ctx context.Context, provider, code, state string) (*Session, error) {
	params := url.Values{"code": {code}, "state": {state}}
	var resp Response[Session]
	if err := c.Get(ctx, "/auth/oauth/"+url.PathEscape(provider)+"/callback", params, &resp); err != nil {
		return nil, err
	}
	c.setSession(AuthSignedIn, &resp.Data)
	return &resp.Data, nil
}

// SignOut revokes the refresh token. The local session is dropped only once the server confirms.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.Session()
	if current == nil {
		return nil
	}
	if err := c.Post(ctx, "/auth/logout", map[string]string{"refreshToken": current.RefreshToken}, nil); err != nil {
		return err
	}
	c.setSession(AuthSignedOut, nil)
	return nil
}

func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	current := c.Session()
	if current == nil || current.RefreshToken == "" {
		return nil, &APIError{Status: http.StatusUnauthorized, Message: "no session to refresh"}
	}
	var resp Response[Session]
	if err := c.Post(ctx, "/auth/refresh", map[string]string{"refreshToken": current.RefreshToken}, &resp); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			c.setSession(AuthSignedOut, nil)
		}
		return nil, err
	}
	c.setSession(AuthTokenRefreshed, &resp.Data)
	return &resp.Data, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.Post(ctx, "/auth/password/reset", map[string]string{"email": email}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	return c.Post(ctx, "/auth/password/reset/confirm", map[string]string{"token": token, "password": password}, nil)
}

// UpdateUser changes the password or name of the signed-in user.
func (c *Client) UpdateUser(ctx context.Context, password, firstName, lastName *string) (*User, error) {
	body := map[string]*string{}
	if password != nil {
		body["password"] = password
	}
	if firstName != nil {
		body["firstName"] = firstName
	}
	if lastName != nil {
		body["lastName"] = lastName
	}
	var resp Response[User]
	if err := c.Put(ctx, "/auth/user", body, &resp); err != nil {
		return nil, err
	}
	if current := c.Session(); current != nil {
		updated := *current
		updated.User = &resp.Data
		c.setSession(AuthUserUpdated, &updated)
	}
	return &resp.Data, nil
}

// --- remote procedures ---

func (c *Client) CheckUserExists(ctx context.Context, email string) (bool, error) {
	var resp Response[struct {
		Exists bool `json:"exists"`
	}]
	if err := c.Post(ctx, "/rpc/check_user_exists", map[string]string{"email": email}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Exists, nil
}

func (c *Client) ValidateInvitation(ctx context.Context, code string) (bool, error) {
	var resp Response[struct {
		Valid bool `json:"valid"`
	}]
	if err := c.Post(ctx, "/rpc/validate_invitation", map[string]string{"code": code}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Valid, nil
}

func (c *Client) CreateBasketAndJoinPool(ctx context.Context, input BasketInput) (*JoinPoolResult, error) {
	var resp Response[JoinPoolResult]
	if err := c.Post(ctx, "/rpc/create_basket_and_join_pool", input, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) LeaveChatroom(ctx context.Context, chatroomID string) (bool, error) {
	var resp Response[struct {
		Success bool `json:"success"`
	}]
	if err := c.Post(ctx, "/rpc/leave_chatroom", map[string]string{"chatroom_id": chatroomID}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Success, nil
}

func (c *Client) TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{}) error {
	return c.Post(ctx, "/rpc/track_event", map[string]interface{}{
		"event_type": eventType,
		"metadata":   metadata,
	}, nil)
}

// --- rows ---

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var resp Response[Profile]
	if err := c.Get(ctx, "/profile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateProfile saves the profile and announces the new user as AuthUserUpdated.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	var resp Response[Profile]
	if err := c.Put(ctx, "/profile", update, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current != nil {
		next := *current
		user := resp.Data.Profile
		next.User = &user
		c.setSession(AuthUserUpdated, &next)
	}
	return &resp.Data, nil
}

func (c *Client) ListShops(ctx context.Context) ([]Shop, error) {
	var resp Response[[]Shop]
	if err := c.Get(ctx, "/shops", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var resp Response[[]Location]
	if err := c.Get(ctx, "/locations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ListBanners(ctx context.Context) ([]Banner, error) {
	var resp Response[[]Banner]
	if err := c.Get(ctx, "/banners", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListBaskets returns every basket of the signed-in user, active ones first, most recent first within each group.
func (c *Client) ListBaskets(ctx context.Context) ([]Basket, error) {
	var resp Response[BasketList]
	if err := c.Get(ctx, "/baskets", nil, &resp); err != nil {
		return nil, err
	}
	return append(resp.Data.Active, resp.Data.Resolved...), nil
}

func (c *Client) DeleteBasket(ctx context.Context, basketID string) error {
	return c.Delete(ctx, "/baskets/"+url.PathEscape(basketID), nil, nil)
}

func (c *Client) SetBasketReady(ctx context.Context, basketID string, ready bool) (*Basket, error) {
	var resp Response[Basket]
	if err := c.Put(ctx, "/baskets/"+url.PathEscape(basketID)+"/ready", map[string]bool{"isReady": ready}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) SetBasketDelivered(ctx context.Context, basketID string, delivered bool) (*Basket, error) {
	var resp Response[Basket]
	if err := c.Put(ctx, "/baskets/"+url.PathEscape(basketID)+"/delivered", map[string]bool{"delivered": delivered}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) GetPool(ctx context.Context, poolID string) (*Pool, error) {
	var resp Response[Pool]
	if err := c.Get(ctx, "/pools/"+url.PathEscape(poolID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) GetChatroom(ctx context.Context, chatroomID string) (*Chatroom, error) {
	var resp Response[Chatroom]
	if err := c.Get(ctx, "/chatrooms/"+url.PathEscape(chatroomID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) UpdateChatroomState(ctx context.Context, chatroomID, state string) error {
	return c.Put(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/state", map[string]string{"state": state}, nil)
}

func (c *Client) UpdateChatroomBaskets(ctx context.Context, chatroomID, status string) (int64, error) {
	var resp Response[struct {
		Updated int64 `json:"updated"`
	}]
	if err := c.Put(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/baskets", map[string]string{"status": status}, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Updated, nil
}

func (c *Client) TransferAdmin(ctx context.Context, chatroomID, userID string) error {
	return c.Put(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/admin", map[string]string{"userID": userID}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, chatroomID, userID string) error {
	return c.Delete(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/members/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, chatroomID string, page, limit int) ([]Message, *Pagination, error) {
	params := url.Values{"page": {fmt.Sprint(page)}, "limit": {fmt.Sprint(limit)}}
	var resp Response[[]Message]
	if err := c.Get(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/messages", params, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Data, resp.Pagination, nil
}

func (c *Client) SendMessage(ctx context.Context, chatroomID, content, kind string) (*Message, error) {
	var resp Response[Message]
	if err := c.Post(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/messages", map[string]string{
		"content": content,
		"type":    kind,
	}, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UploadMedia stores chat media under key and returns the key the server kept.
func (c *Client) UploadMedia(ctx context.Context, chatroomID, key, filename string, r io.Reader) (string, error) {
	var resp Response[struct {
		Key string `json:"key"`
	}]
	if err := c.Upload(ctx, "/chatrooms/"+url.PathEscape(chatroomID)+"/media", "file", filename, r, map[string]string{"key": key}, &resp); err != nil {
		return "", err
	}
	return resp.Data.Key, nil
}

// MediaURL resolves a stored media key to a short-lived signed URL.
func (c *Client) MediaURL(ctx context.Context, key string) (string, error) {
	var resp Response[struct {
		URL string `json:"url"`
	}]
	if err := c.Get(ctx, "/media/url", url.Values{"key": {key}}, &resp); err != nil {
		return "", err
	}
	return resp.Data.URL, nil
}

// UploadImage stores an avatar or logo and returns its proxied /api/images URL.
func (c *Client) UploadImage(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	var resp Response[struct {
		URL string `json:"url"`
	}]
	if err := c.Upload(ctx, "/images", "file", filename, r, map[string]string{"folder": folder}, &resp); err != nil {
		return "", err
	}
	return resp.Data.URL, nil
}

// --- notifications and push ---

// ListUnreadNotifications returns unread notifications, most recent first.
func (c *Client) ListUnreadNotifications(ctx context.Context) ([]Notification, error) {
	var resp Response[[]Notification]
	if err := c.Get(ctx, "/notifications", url.Values{"unread": {"true"}, "limit": {"100"}}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.Put(ctx, "/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var resp Response[struct {
		Updated int64 `json:"updated"`
	}]
	if err := c.Put(ctx, "/notifications/read-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Updated, nil
}

func (c *Client) ListPushSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	var resp Response[[]PushSubscription]
	if err := c.Get(ctx, "/push/subscriptions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) SubscribePush(ctx context.Context, input PushSubscriptionInput) error {
	return c.Post(ctx, "/push/subscriptions", input, nil)
}

func (c *Client) UnsubscribePush(ctx context.Context, endpoint string) error {
	return c.Delete(ctx, "/push/subscriptions", map[string]string{"endpoint": endpoint}, nil)
}

// --- invitations ---

func (c *Client) CreateInvitation(ctx context.Context) (*Invitation, error) {
	var resp Response[Invitation]
	if err := c.Post(ctx, "/invitations", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) ListInvitations(ctx context.Context) ([]Invitation, error) {
	var resp Response[[]Invitation]
	if err := c.Get(ctx, "/invitations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
