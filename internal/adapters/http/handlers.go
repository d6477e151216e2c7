package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/dkeye/roomview/internal/auth"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionUsernameKey = "username"

type TokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type TokenHandler struct {
	Issuer  *auth.Issuer
	Limiter *GrantLimiter
	WSURL   string
}

// GetToken answers GET /api/get-token?room=&username=.
func (h *TokenHandler) GetToken(c *gin.Context) {
	room := c.Query("room")
	username := c.Query("username")
	if room == "" || username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name and participant name are required"})
		return
	}
	identity, err := domain.NewIdentity(username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomName, err := domain.NewRoomName(room)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.Issuer.Configured() {
		log.Error().Str("module", "adapters.http").Msg("token requested but api key or secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "LiveKit API key or secret not configured"})
		return
	}
	if h.Limiter != nil {
		if wait, ok := h.Limiter.Allow(c.GetString("client_token"), roomName); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			log.Warn().Str("module", "adapters.http").Str("room", string(roomName)).Dur("retry_after", wait).Msg("token requests limited")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many token requests"})
			return
		}
	}

	token, err := h.Issuer.Issue(identity, roomName)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUsernameKey, string(identity))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}

	log.Info().Str("module", "adapters.http").Str("identity", string(identity)).Str("room", string(roomName)).Msg("token issued")
	c.JSON(http.StatusOK, TokenResponse{Token: token, URL: h.WSURL})
}

// WhoAmI returns the name used for the last token this browser requested.
func WhoAmI(c *gin.Context) {
	name, _ := sessions.Default(c).Get(sessionUsernameKey).(string)
	c.JSON(http.StatusOK, gin.H{"username": name})
}
