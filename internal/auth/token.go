package auth

import (
	"errors"
	"time"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrNotConfigured = errors.New("api key or secret not configured")
)

// VideoGrant mirrors the LiveKit video grant.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// Claims is a LiveKit-style access token: issuer is the API key, subject the identity.
type Claims struct {
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() domain.Identity { return domain.Identity(c.Subject) }

func (c *Claims) RoomName() domain.RoomName { return domain.RoomName(c.Video.Room) }

// Issuer mints and validates room access tokens.
type Issuer struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Issuer{apiKey: apiKey, secret: []byte(apiSecret), ttl: ttl}
}

func (i *Issuer) Configured() bool {
	return i.apiKey != "" && len(i.secret) > 0
}

// Issue grants identity join, publish and subscribe rights on room.
func (i *Issuer) Issue(identity domain.Identity, room domain.RoomName) (string, error) {
	if !i.Configured() {
		return "", ErrNotConfigured
	}
	now := time.Now()
	claims := Claims{
		Name: string(identity),
		Video: VideoGrant{
			RoomJoin:     true,
			Room:         string(room),
			CanPublish:   true,
			CanSubscribe: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   string(identity),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses a token and checks it grants joining a room.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	if !i.Configured() {
		return nil, ErrNotConfigured
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.apiKey))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Video.RoomJoin || claims.Video.Room == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
