package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidJWT      = errors.New("invalid JWT token")
	ErrExpiredJWT      = errors.New("JWT token expired")
	ErrUnauthenticated = errors.New("authentication required")
)

// serverTokenTTL is how long outbound pub/sub server tokens stay valid.
const serverTokenTTL = 30 * time.Second

// PubSubPerms mirrors the pubsub_perms claim of extension tokens.
type PubSubPerms struct {
	Send   []string `json:"send,omitempty"`
	Listen []string `json:"listen,omitempty"`
}

// ExtensionClaims represents the JWT claims Twitch attaches to extension
// bearer tokens.
type ExtensionClaims struct {
	ChannelID    string       `json:"channel_id"`
	OpaqueUserID string       `json:"opaque_user_id,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
	Role         string       `json:"role"`
	PubSubPerms  *PubSubPerms `json:"pubsub_perms,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller identity handed to handlers.
type Identity struct {
	ChannelID    string
	OpaqueUserID string
	UserID       string
	Role         string
}

// VerifyExtensionToken validates an extension bearer token and returns its
// claims.
func VerifyExtensionToken(tokenString string, secret []byte) (*ExtensionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExtensionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify the signing method to prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredJWT
		}
		return nil, ErrInvalidJWT
	}

	if claims, ok := token.Claims.(*ExtensionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidJWT
}

// SignServerToken creates a short-lived token authorizing the backend to
// broadcast on a channel's pub/sub topic.
func SignServerToken(channelID, ownerID string, secret []byte) (string, error) {
	claims := &ExtensionClaims{
		ChannelID: channelID,
		UserID:    ownerID,
		Role:      "external",
		PubSubPerms: &PubSubPerms{
			Send: []string{"broadcast"},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(serverTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
