package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/roomview/internal/auth"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/hub"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

type SignalWSController struct {
	Hub        *hub.Hub
	Issuer     *auth.Issuer
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(h *hub.Hub, issuer *auth.Issuer, readLimit int64, pingPeriod time.Duration) *SignalWSController {
	return &SignalWSController{
		Hub:        h,
		Issuer:     issuer,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan hub.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f hub.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearer reads the access token from ?token= or the Authorization header.
func bearer(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func NewParticipantID() domain.ParticipantID {
	return domain.ParticipantID("PA_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	claims, err := ctl.Issuer.Validate(bearer(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("remote", c.ClientIP()).Msg("rejected token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	identity, err := domain.NewIdentity(string(claims.Identity()))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	room, err := domain.NewRoomName(string(claims.RoomName()))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan hub.Frame, sendBuffer),
	}
	ref := domain.ParticipantRef{ID: NewParticipantID(), Identity: identity}
	log.Info().Str("module", "signal").Str("sid", string(ref.ID)).Str("identity", string(identity)).Str("room", string(room)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	joined := ctl.Hub.Join(ref, room, conn, cancel)
	ctl.sendJSON(conn, joined)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, ref.ID, conn)
}
