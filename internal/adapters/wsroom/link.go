package wsroom

import (
	"sync"
	"time"

	"github.com/dkeye/roomview/internal/proto"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// link is one websocket connection and its outbound queue.
type link struct {
	conn       *websocket.Conn
	out        chan []byte
	bye        chan struct{}
	stop       chan struct{}
	writerDone chan struct{}

	byeOnce  sync.Once
	stopOnce sync.Once

	mu       sync.Mutex
	pingSent time.Time
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn:       conn,
		out:        make(chan []byte, sendBuffer),
		bye:        make(chan struct{}),
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (l *link) send(m proto.Message) {
	data := encode(m)
	if data == nil {
		return
	}
	select {
	case l.out <- data:
	case <-l.stop:
	default:
		log.Warn().Str("module", "wsroom").Str("type", m.Type).Msg("send queue full, dropping")
	}
}

// leave asks the writer to flush a leave message and close.
func (l *link) leave() {
	l.byeOnce.Do(func() { close(l.bye) })
}

func (l *link) shutdown() {
	l.stopOnce.Do(func() {
		close(l.stop)
		_ = l.conn.Close()
	})
}

func (l *link) markPing() {
	l.mu.Lock()
	l.pingSent = time.Now()
	l.mu.Unlock()
}

// rtt reports the time since the last ping, or false if none is pending.
func (l *link) rtt() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pingSent.IsZero() {
		return 0, false
	}
	d := time.Since(l.pingSent)
	l.pingSent = time.Time{}
	return d, true
}

func (l *link) write(data []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}
