// Package lifecycle holds the pure derivations shared by the server and the client:
// pool progress, basket partitioning, chatroom state parsing and member status text.
package lifecycle

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"
)

type BasketStatus string

const (
	BasketInPool   BasketStatus = "in_pool"
	BasketInChat   BasketStatus = "in_chat"
	BasketResolved BasketStatus = "resolved"
)

type ChatroomState string

const (
	StateWaiting  ChatroomState = "waiting"
	StateActive   ChatroomState = "active"
	StateOrdered  ChatroomState = "ordered"
	StateResolved ChatroomState = "resolved"
)

// ParseChatroomState maps stored or user-supplied text onto the four canonical states.
// "delivered" is read as resolved.
func ParseChatroomState(s string) (ChatroomState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "waiting":
		return StateWaiting, nil
	case "active":
		return StateActive, nil
	case "ordered":
		return StateOrdered, nil
	case "resolved", "delivered":
		return StateResolved, nil
	default:
		return "", fmt.Errorf("unknown chatroom state %q", s)
	}
}

// CanTransition reports whether from -> to is a forward move an admin may make.
func CanTransition(from, to ChatroomState) bool {
	switch from {
	case StateWaiting:
		return to == StateActive || to == StateOrdered
	case StateActive:
		return to == StateOrdered
	case StateOrdered:
		return to == StateResolved
	default:
		return false
	}
}

// PoolProgress is the fill percentage, clamped to [0, 100].
func PoolProgress(current, minimum float64) float64 {
	if minimum <= 0 {
		return 100
	}
	pct := 100 * current / minimum
	return math.Max(0, math.Min(100, pct))
}

func Remaining(current, minimum float64) float64 {
	return math.Max(0, minimum-current)
}

func IsFilled(current, minimum float64) bool {
	return current >= minimum
}

type Progress struct {
	Percentage float64 `json:"percentage"`
	Remaining  float64 `json:"remaining"`
	Filled     bool    `json:"filled"`
}

func ProgressOf(current, minimum float64) Progress {
	return Progress{
		Percentage: PoolProgress(current, minimum),
		Remaining:  Remaining(current, minimum),
		Filled:     IsFilled(current, minimum),
	}
}

// Statused is anything carrying a basket status.
type Statused interface {
	BasketStatus() BasketStatus
}

// PartitionBaskets splits baskets into active (in_pool, in_chat) and resolved, keeping input order.
func PartitionBaskets[T Statused](baskets []T) (active, resolved []T) {
	for _, b := range baskets {
		switch b.BasketStatus() {
		case BasketResolved:
			resolved = append(resolved, b)
		case BasketInPool, BasketInChat:
			active = append(active, b)
		}
	}
	return active, resolved
}

// BasketConsistent checks that in_pool baskets have no chatroom and all others have one.
func BasketConsistent(status BasketStatus, hasChatroom bool) bool {
	if status == BasketInPool {
		return !hasChatroom
	}
	return hasChatroom
}

const (
	StatusDeliveryConfirmed = "Delivery Confirmed"
	StatusReadyToOrder      = "Ready to order"
)

// MemberStatus renders a member's roster line. Precedence: delivery confirmed, ready, amount.
func MemberStatus(state ChatroomState, isReady bool, deliveredByUser *bool, amount float64) string {
	if state == StateResolved && deliveredByUser != nil && *deliveredByUser {
		return StatusDeliveryConfirmed
	}
	if isReady {
		return StatusReadyToOrder
	}
	return FormatCHF(amount) + " CHF order"
}

// FormatCHF prints whole francs without decimals and everything else with two.
func FormatCHF(amount float64) string {
	if amount == math.Trunc(amount) {
		return fmt.Sprintf("%.0f", amount)
	}
	return fmt.Sprintf("%.2f", amount)
}

// InvitationValid mirrors the server rule: unused and not yet expired.
func InvitationValid(used bool, expiresAt, now time.Time) bool {
	return !used && now.Before(expiresAt)
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
)

// MediaKey builds the storage key for chat media: {type}/{chatroomId}_{unixMillis}_{random}_{filename}.
func MediaKey(kind MediaType, chatroomID, filename string, now time.Time, random string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '/' || r == '?' || r == '#':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." {
		name = "file"
	}
	return fmt.Sprintf("%s/%s_%d_%s_%s", kind, chatroomID, now.UnixMilli(), random, name)
}

// MediaKeyChatroom extracts the chatroom id from a key built by MediaKey.
func MediaKeyChatroom(key string) (MediaType, string, bool) {
	kind, rest, ok := strings.Cut(key, "/")
	if !ok {
		return "", "", false
	}
	if kind != string(MediaImage) && kind != string(MediaAudio) {
		return "", "", false
	}
	chatroomID, _, ok := strings.Cut(rest, "_")
	if !ok || chatroomID == "" {
		return "", "", false
	}
	return MediaType(kind), chatroomID, true
}
