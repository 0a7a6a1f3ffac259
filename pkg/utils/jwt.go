package utils

import (
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenIssuer     = "shelivery"
	accessTokenType = "access"
	clockLeeway     = 30 * time.Second
)

var (
	jwtSecret    = []byte("change-me-in-production")
	accessTTL    = time.Hour
	parseOptions = []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	}
)

// AccessClaims identify the caller of every authenticated request.
type AccessClaims struct {
	UserID uuid.UUID       `json:"userID"`
	Email  string          `json:"email"`
	Role   models.UserRole `json:"role"`
	Type   string          `json:"typ"`
	jwt.RegisteredClaims
}

// ConfigureJWT sets the signing secret and the access token lifetime. Empty or
// non-positive values keep the current setting.
func ConfigureJWT(secret string, expirationHours int) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expirationHours > 0 {
		accessTTL = time.Duration(expirationHours) * time.Hour
	}
}

func AccessTokenTTL() time.Duration {
	return accessTTL
}

// IssueAccessToken signs a short-lived token for user and returns it with its expiry.
// Sessions pair it with an opaque refresh token.
func IssueAccessToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(accessTTL)
	claims := AccessClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies signature, issuer and expiry. Errors wrap the jwt sentinels
// (jwt.ErrTokenExpired, jwt.ErrTokenSignatureInvalid, ...).
func ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, parseOptions...); err != nil {
		return nil, err
	}
	if claims.Type != accessTokenType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
