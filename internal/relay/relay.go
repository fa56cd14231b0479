// Package relay fans room traffic out across hub instances.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Relay publishes frames a room produced locally and delivers frames other
// instances produced. Frames published by this instance are never
// delivered back to it.
type Relay interface {
	Publish(ctx context.Context, roomID string, msg types.ServerMessage) error
	Subscribe(ctx context.Context, roomID string, fn func(types.ServerMessage)) (unsubscribe func(), err error)
	Close() error
}

// Noop is the single-instance relay.
type Noop struct{}

func (Noop) Publish(context.Context, string, types.ServerMessage) error { return nil }

func (Noop) Subscribe(context.Context, string, func(types.ServerMessage)) (func(), error) {
	return func() {}, nil
}

func (Noop) Close() error { return nil }

type envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Redis relays over pub/sub, one channel per room.
type Redis struct {
	client *redis.Client
	origin string
	prefix string
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		origin: ksuid.New().String(),
		prefix: "whiteboard:room:",
		logger: logger,
	}
}

// DialRedis parses a redis:// URL and checks the server answers.
func DialRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, logger), nil
}

func (r *Redis) Channel(roomID string) string { return r.prefix + roomID }

func (r *Redis) Publish(ctx context.Context, roomID string, msg types.ServerMessage) error {
	frame, err := types.Encode(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Origin: r.origin, Frame: frame})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(roomID), payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, roomID string, fn func(types.ServerMessage)) (func(), error) {
	sub := r.client.Subscribe(ctx, r.Channel(roomID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", roomID, err)
	}

	log := r.logger.With(zap.String("room_id", roomID))
	go func() {
		for m := range sub.Channel() {
			msg, ok := r.decode([]byte(m.Payload), log)
			if ok {
				fn(msg)
			}
		}
	}()
	return func() { _ = sub.Close() }, nil
}

func (r *Redis) decode(payload []byte, log *zap.Logger) (types.ServerMessage, bool) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn("bad relay envelope", zap.Error(err))
		return nil, false
	}
	if env.Origin == r.origin {
		return nil, false
	}
	msg, err := types.DecodeServer(env.Frame)
	if err != nil {
		log.Warn("bad relayed frame", zap.String("origin", env.Origin), zap.Error(err))
		return nil, false
	}
	return msg, true
}

func (r *Redis) Close() error { return r.client.Close() }
