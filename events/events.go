// Package events carries committed marketplace events to the outside world:
// a NATS subject tree for services and a websocket feed for browsers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON form of every published event.
type Envelope struct {
	ID    string          `json:"id"`
	Topic string          `json:"topic"`
	Time  time.Time       `json:"time"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope wraps event for topic with a fresh id.
func NewEnvelope(topic string, event any) (*Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Envelope{ID: uuid.NewString(), Topic: topic, Time: time.Now().UTC(), Data: data}, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw envelopes on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// MatchTopic reports whether topic matches pattern using NATS subject rules:
// "*" matches one token and a trailing ">" matches the rest.
func MatchTopic(pattern, topic string) bool {
	if pattern == "" || pattern == ">" {
		return true
	}
	p, t := splitTokens(pattern), splitTokens(topic)
	for i, tok := range p {
		if tok == ">" {
			return len(t) > i
		}
		if i >= len(t) {
			return false
		}
		if tok != "*" && tok != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

func splitTokens(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
