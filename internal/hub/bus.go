package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	channelPrefix = "roomview:room:"
	publishTTL    = 5 * time.Second
)

// Bus fans room broadcasts out to other server instances.
type Bus interface {
	Publish(ctx context.Context, room domain.RoomName, from domain.ParticipantID, data []byte) error
	// Subscribe blocks until ctx ends.
	Subscribe(ctx context.Context, handler func(room domain.RoomName, from domain.ParticipantID, data []byte)) error
}

type busPayload struct {
	Origin string               `json:"origin"`
	From   domain.ParticipantID `json:"from,omitempty"`
	Data   json.RawMessage      `json:"data"`
	At     int64                `json:"at"`
}

// RedisBus is a Bus over redis pub/sub. Messages this instance published
// are skipped on receive.
type RedisBus struct {
	client   *redis.Client
	instance string
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, instance: uuid.NewString()}
}

func (b *RedisBus) Publish(ctx context.Context, room domain.RoomName, from domain.ParticipantID, data []byte) error {
	body, err := encodeBusPayload(b.instance, from, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()
	return b.client.Publish(ctx, channelPrefix+string(room), body).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(domain.RoomName, domain.ParticipantID, []byte)) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("module", "hub.bus").Str("instance", b.instance).Msg("subscribed")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			room, from, data, ok := decodeBusPayload(b.instance, msg.Channel, msg.Payload)
			if !ok {
				continue
			}
			handler(room, from, data)
		}
	}
}

func (b *RedisBus) Close() error { return b.client.Close() }

func encodeBusPayload(instance string, from domain.ParticipantID, data []byte) ([]byte, error) {
	return json.Marshal(busPayload{Origin: instance, From: from, Data: data, At: time.Now().Unix()})
}

// decodeBusPayload reports ok=false for own or unreadable messages.
func decodeBusPayload(instance, channel, payload string) (domain.RoomName, domain.ParticipantID, []byte, bool) {
	room, found := strings.CutPrefix(channel, channelPrefix)
	if !found || room == "" {
		return "", "", nil, false
	}
	var p busPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		log.Debug().Err(err).Str("module", "hub.bus").Msg("bad payload")
		return "", "", nil, false
	}
	if p.Origin == instance {
		return "", "", nil, false
	}
	return domain.RoomName(room), p.From, p.Data, true
}
