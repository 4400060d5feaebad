package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

type recorder struct {
	topics []string
	err    error
	closed bool
}

func (r *recorder) Publish(ctx context.Context, topic string, event any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return r.err
}

type sold struct {
	Mint  string `json:"mint"`
	Price uint64 `json:"price"`
}

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestPublishersImplementInterface(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*Feed)(nil)
	var _ Publisher = Fanout(nil)
	var _ Subscriber = (*NATSSubscriber)(nil)
}

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), "market.prompt.sold", sold{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFanoutDeliversPastFailures(t *testing.T) {
	boom := errors.New("boom")
	bad, good := &recorder{err: boom}, &recorder{}
	f := Fanout{bad, good}
	err := f.Publish(context.Background(), "market.prompt.listed", sold{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(good.topics) != 1 || good.topics[0] != "market.prompt.listed" {
		t.Fatalf("good sink got %v", good.topics)
	}
	if err := f.Close(); !errors.Is(err, boom) || !good.closed {
		t.Fatalf("Close: %v", err)
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"", "market.prompt.sold", true},
		{">", "market.config", true},
		{"market.>", "market.prompt.sold", true},
		{"market.prompt.>", "market.config", false},
		{"market.*.sold", "market.prompt.sold", true},
		{"market.*", "market.prompt.sold", false},
		{"market.prompt.sold", "market.prompt.sold", true},
		{"market.prompt.sold.x", "market.prompt.sold", false},
		{"market.>", "market", false},
	}
	for _, tc := range cases {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Fatalf("MatchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	a, err := NewEnvelope("market.prompt.sold", sold{Mint: "m", Price: 7})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	b, _ := NewEnvelope("market.prompt.sold", sold{})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("envelope ids must be unique: %q %q", a.ID, b.ID)
	}
	if string(a.Data) != `{"mint":"m","price":7}` {
		t.Fatalf("data = %s", a.Data)
	}
}

func TestNATSRoundTrip(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("market.prompt.>")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := pub.Publish(context.Background(), "market.config", sold{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish(context.Background(), "market.prompt.sold", sold{Mint: "abc", Price: 9}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case raw := <-ch:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Topic != "market.prompt.sold" {
			t.Fatalf("topic = %q", env.Topic)
		}
		var got sold
		if err := json.Unmarshal(env.Data, &got); err != nil || got.Mint != "abc" || got.Price != 9 {
			t.Fatalf("data = %+v, %v", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestFeedFiltersByTopic(t *testing.T) {
	feed := NewFeed(nil)
	srv := httptest.NewServer(feed)
	defer srv.Close()
	defer feed.Close()

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/?topic=market.prompt.>"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for feed.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx := context.Background()
	if err := feed.Publish(ctx, "market.config", sold{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := feed.Publish(ctx, "market.prompt.listed", sold{Mint: "xyz", Price: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Topic != "market.prompt.listed" {
		t.Fatalf("first delivered topic = %q", env.Topic)
	}
}
