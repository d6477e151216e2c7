package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// Client joins rooms and owns at most one live Session.
type Client struct {
	tokens   TokenSource
	newRoom  func() Room
	renderer core.Renderer
	notifier core.Notifier
	names    NameStore
	opts     Options

	joinMu  sync.Mutex
	current atomic.Pointer[Session]
}

func NewClient(
	tokens TokenSource,
	newRoom func() Room,
	renderer core.Renderer,
	notifier core.Notifier,
	names NameStore,
	opts Options,
) *Client {
	return &Client{
		tokens:   tokens,
		newRoom:  newRoom,
		renderer: renderer,
		notifier: notifier,
		names:    names,
		opts:     opts.withDefaults(),
	}
}

// Current returns the live session or nil.
func (c *Client) Current() *Session { return c.current.Load() }

// LastName is the display name used on the previous successful join.
func (c *Client) LastName() string {
	if c.names == nil {
		return ""
	}
	return c.names.LastName()
}

// Join fetches a token, replaces any live session and connects. A token or
// connect failure wraps core.ErrConnectionFailure and leaves no session.
func (c *Client) Join(ctx context.Context, username, room string) (*Session, error) {
	identity, err := domain.NewIdentity(username)
	if err != nil {
		return nil, err
	}
	roomName, err := domain.NewRoomName(room)
	if err != nil {
		return nil, err
	}

	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	grant, err := c.tokens.Fetch(ctx, roomName, identity)
	if err == nil && grant.Token == "" {
		err = fmt.Errorf("%w: no token in response", core.ErrConnectionFailure)
	}
	if err != nil {
		if !errors.Is(err, core.ErrConnectionFailure) {
			err = fmt.Errorf("%w: %w", core.ErrConnectionFailure, err)
		}
		c.toast("Failed to join: " + err.Error())
		log.Error().Err(err).Str("module", "app.client").Str("room", string(roomName)).Msg("token fetch")
		return nil, err
	}

	if prev := c.current.Load(); prev != nil {
		log.Info().Str("module", "app.client").Str("room", string(prev.RoomName())).Msg("leaving previous room")
		if err := prev.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "app.client").Msg("leave previous")
		}
		c.current.CompareAndSwap(prev, nil)
		if err := sleepCtx(ctx, c.opts.SettleDelay); err != nil {
			return nil, err
		}
	}

	url := NormalizeServerURL(grant.URL)
	s := newSession(c.newRoom(), roomName, identity, c.renderer, c.notifier, c.opts)
	s.onEnded = func(ended *Session) { c.current.CompareAndSwap(ended, nil) }

	if err := s.connect(ctx, url, grant.Token); err != nil {
		c.toast("Failed to join: " + err.Error())
		log.Error().Err(err).Str("module", "app.client").Str("url", url).Msg("connect")
		return nil, err
	}
	c.current.Store(s)

	// devices are best effort, a refusal never aborts the join
	for _, kind := range []domain.TrackKind{domain.TrackVideo, domain.TrackAudio} {
		if err := s.setMedia(ctx, kind, true); err != nil {
			log.Warn().Err(err).Str("module", "app.client").Str("device", deviceName(kind)).Msg("initial media")
		}
	}

	if err := s.startReconciliation(); err != nil {
		return nil, err
	}
	c.toast("Joined room: " + string(roomName))
	if c.names != nil {
		if err := c.names.SaveName(string(identity)); err != nil {
			log.Warn().Err(err).Str("module", "app.client").Msg("save name")
		}
	}
	log.Info().Str("module", "app.client").Str("room", string(roomName)).Str("identity", string(identity)).Msg("joined")
	return s, nil
}

// Leave ends the live session, if any.
func (c *Client) Leave(ctx context.Context) error {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	s := c.current.Load()
	if s == nil {
		return nil
	}
	err := s.Leave(ctx)
	c.current.CompareAndSwap(s, nil)
	return err
}

func (c *Client) toast(msg string) {
	if c.notifier != nil {
		c.notifier.Toast(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
