// Package realtime carries match events to subscribers. Each match owns
// one channel id; the core only ever publishes to it.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers one named event to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data any) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisPublisher fans events out over Redis pub/sub, one pub/sub channel
// per match channel id.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channel, payload).Err()
}

// RecordedEvent is one captured publish, for assertions in tests.
type RecordedEvent struct {
	Channel string
	Event   string
	Data    any
}

// Recorder is an in-memory Publisher for tests.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, channel, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Channel: channel, Event: event, Data: data})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// ByEvent filters captured events by name.
func (r *Recorder) ByEvent(event string) []RecordedEvent {
	var out []RecordedEvent
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
