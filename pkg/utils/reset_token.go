package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	resetTokenExpiry = 30 * time.Minute
	resetTokenType   = "password_reset"
)

type ResetClaims struct {
	UserID uuid.UUID `json:"userID"`
	Email  string    `json:"email"`
	Type   string    `json:"typ"`
	jwt.RegisteredClaims
}

func GenerateResetToken(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := ResetClaims{
		UserID: userID,
		Email:  email,
		Type:   resetTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(resetTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateResetToken(tokenString string) (*ResetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid reset token")
	}
	if claims.Type != resetTokenType {
		return nil, fmt.Errorf("invalid token type")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("missing token ID")
	}

	return claims, nil
}

var (
	consumedResetIDs = make(map[string]time.Time)
	resetMu          sync.Mutex
)

// ConsumeResetToken marks the token id as used and reports whether it was still unused.
func ConsumeResetToken(jti string) bool {
	resetMu.Lock()
	defer resetMu.Unlock()

	now := time.Now()
	for id, consumedAt := range consumedResetIDs {
		if now.Sub(consumedAt) > resetTokenExpiry {
			delete(consumedResetIDs, id)
		}
	}

	if _, used := consumedResetIDs[jti]; used {
		return false
	}
	consumedResetIDs[jti] = now
	return true
}
