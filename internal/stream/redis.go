package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMirrorMaxLen = 5000
	defaultMirrorTTL    = time.Hour
	tailBlock           = 25 * time.Second
)

// StreamName is the Redis stream holding the events of one turn.
func StreamName(turnID int64) string {
	return fmt.Sprintf("turn-events:%d", turnID)
}

type RedisMirrorConfig struct {
	MaxLen int64
	TTL    time.Duration
}

// RedisMirror copies turn events to a per-turn Redis stream so a client can
// reconnect and replay, and so turns run by the worker are observable.
type RedisMirror struct {
	client *redis.Client
	maxLen int64
	ttl    time.Duration
}

func NewRedisMirror(client *redis.Client, cfg RedisMirrorConfig) *RedisMirror {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMirrorMaxLen
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultMirrorTTL
	}
	return &RedisMirror{client: client, maxLen: cfg.MaxLen, ttl: cfg.TTL}
}

// Sink returns a Sink that mirrors each event to its turn stream.
func (m *RedisMirror) Sink() Sink {
	return SinkFunc(m.write)
}

func (m *RedisMirror) write(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	stream := StreamName(ev.TurnID)
	pipe := m.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]any{
			"seq":     ev.Seq,
			"type":    string(ev.Type),
			"payload": payload,
		},
	})
	pipe.Expire(ctx, stream, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror event %d: %w", ev.Seq, err)
	}
	return nil
}

// TailFunc receives a mirrored event with its Redis stream id.
type TailFunc func(id string, ev Event) error

// KeepaliveFunc is called whenever a blocking read times out without data.
type KeepaliveFunc func() error

// Tail replays the events of turnID after lastID ("0" for all) and then
// follows the stream until a terminal event is delivered or ctx is done.
func (m *RedisMirror) Tail(ctx context.Context, turnID int64, lastID string, fn TailFunc, keepalive KeepaliveFunc) error {
	if lastID == "" {
		lastID = "0"
	}
	stream := StreamName(turnID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := m.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   tailBlock,
			Count:   100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if keepalive != nil {
					if err := keepalive(); err != nil {
						return err
					}
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", stream, err)
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				ev, err := decodeMessage(msg)
				if err != nil {
					return err
				}
				if err := fn(msg.ID, ev); err != nil {
					return err
				}
				if ev.Type.Terminal() {
					return nil
				}
			}
		}
	}
}

// Exists reports whether any events were mirrored for turnID.
func (m *RedisMirror) Exists(ctx context.Context, turnID int64) (bool, error) {
	n, err := m.client.Exists(ctx, StreamName(turnID)).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", StreamName(turnID), err)
	}
	return n > 0, nil
}

func decodeMessage(msg redis.XMessage) (Event, error) {
	var ev Event
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return ev, fmt.Errorf("stream message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("decode stream message %s: %w", msg.ID, err)
	}
	return ev, nil
}
