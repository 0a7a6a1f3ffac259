package services

import "errors"

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidInvitation    = errors.New("invalid or expired invitation code")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
	ErrUserNotFound         = errors.New("user not found")
	ErrShopNotFound         = errors.New("shop not found")
	ErrLocationNotFound     = errors.New("location not found")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrBasketNotFound       = errors.New("basket not found")
	ErrBasketNotRemovable   = errors.New("basket can only be removed while waiting in the pool")
	ErrChatroomNotFound     = errors.New("chatroom not found")
	ErrNotChatroomMember    = errors.New("not a member of this chatroom")
	ErrNotChatroomAdmin     = errors.New("only the chatroom admin can do this")
	ErrInvalidTransition    = errors.New("chatroom state change not allowed")
	ErrCannotRemoveSelf     = errors.New("admins cannot remove themselves, leave the group instead")
	ErrTargetNotMember      = errors.New("target user is not an active member")
	ErrEmptyMessage         = errors.New("message content is required")
	ErrInvalidMediaKey      = errors.New("media key does not belong to this chatroom")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)
