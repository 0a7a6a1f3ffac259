package api

import (
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
)

// User mirrors the backend User model.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Role          string    `json:"role,omitempty"`
	Image         *string   `json:"image,omitempty"`
	FavoriteStore *string   `json:"favoriteStore,omitempty"`
	DormitoryID   *string   `json:"dormitoryID"`
	Dormitory     *Location `json:"dormitory,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DisplayName falls back to the email when no name is set.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// Session is returned by signup, login, refresh and the OAuth callback.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         *User     `json:"user"`
}

// AuthEvent names a change in the client's session, as seen by OnAuthStateChange listeners.
type AuthEvent string

const (
	AuthSignedIn       AuthEvent = "SIGNED_IN"
	AuthSignedOut      AuthEvent = "SIGNED_OUT"
	AuthTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthUserUpdated    AuthEvent = "USER_UPDATED"
)

type SignUpInput struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	InvitationCode string `json:"invitationCode,omitempty"`
}

// Profile is returned by GET /profile.
type Profile struct {
	Profile         User `json:"profile"`
	ProfileComplete bool `json:"profileComplete"`
}

type ProfileUpdate struct {
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	Image         *string `json:"image,omitempty"`
	FavoriteStore *string `json:"favoriteStore,omitempty"`
	DormitoryID   *string `json:"dormitoryID,omitempty"`
}

type Location struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

type Shop struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	LogoURL   *string `json:"logoURL,omitempty"`
	MinAmount float64 `json:"minAmount"`
	IsActive  bool    `json:"isActive"`
}

type Banner struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"imageURL"`
	Link     *string `json:"link,omitempty"`
	Priority int     `json:"priority"`
}

// BasketInput is the create_basket_and_join_pool payload. The owner comes from the access token.
type BasketInput struct {
	ShopID     string  `json:"shop_id"`
	Amount     float64 `json:"amount"`
	Link       *string `json:"link,omitempty"`
	Note       *string `json:"note,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
}

type JoinPoolResult struct {
	PoolID     string  `json:"pool_id"`
	BasketID   string  `json:"basket_id"`
	ChatroomID *string `json:"chatroom_id,omitempty"`
}

type Basket struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userID"`
	ShopID            string    `json:"shopID"`
	PoolID            string    `json:"poolID"`
	ChatroomID        *string   `json:"chatroomID"`
	Link              *string   `json:"link,omitempty"`
	Note              *string   `json:"note,omitempty"`
	Amount            float64   `json:"amount"`
	Status            string    `json:"status"`
	IsReady           bool      `json:"isReady"`
	IsDeliveredByUser *bool     `json:"isDeliveredByUser,omitempty"`
	Shop              *Shop     `json:"shop,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (b Basket) BasketStatus() lifecycle.BasketStatus {
	return lifecycle.BasketStatus(b.Status)
}

// BasketList is the GET /baskets body, already split by the server.
type BasketList struct {
	Active   []Basket `json:"active"`
	Resolved []Basket `json:"resolved"`
}

type Pool struct {
	ID            string             `json:"id"`
	ShopID        string             `json:"shopID"`
	LocationID    *string            `json:"locationID,omitempty"`
	CurrentAmount float64            `json:"currentAmount"`
	MinAmount     float64            `json:"minAmount"`
	Shop          *Shop              `json:"shop,omitempty"`
	Location      *Location          `json:"location,omitempty"`
	Progress      lifecycle.Progress `json:"progress"`
	ChatroomID    *string            `json:"chatroomID,omitempty"`
}

type Member struct {
	User     User      `json:"user"`
	Basket   *Basket   `json:"basket,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
	IsAdmin  bool      `json:"isAdmin"`
	Status   string    `json:"status"`
}

// Chatroom is the GET /chatrooms/:id view: the row plus its active roster.
type Chatroom struct {
	ID       string             `json:"id"`
	PoolID   string             `json:"poolID"`
	State    string             `json:"state"`
	AdminID  string             `json:"adminID"`
	ExpireAt time.Time          `json:"expireAt"`
	Pool     *Pool              `json:"pool,omitempty"`
	Members  []Member           `json:"members"`
	Progress lifecycle.Progress `json:"progress"`
}

type Message struct {
	ID         string    `json:"id"`
	ChatroomID string    `json:"chatroomID"`
	UserID     string    `json:"userID"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	SentAt     time.Time `json:"sentAt"`
	User       *User     `json:"user,omitempty"`
}

type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userID"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	ChatroomID *string   `json:"chatroomID,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscriptionInput is what a device registers with POST /push/subscriptions.
type PushSubscriptionInput struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type PushSubscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

type Invitation struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	InvitedBy string     `json:"invitedBy"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedBy    *string    `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Valid applies the server's rule locally: unused and not yet expired.
func (i Invitation) Valid(now time.Time) bool {
	return lifecycle.InvitationValid(i.UsedBy != nil, i.ExpiresAt, now)
}
