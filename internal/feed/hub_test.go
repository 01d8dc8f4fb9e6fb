package feed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/kiliankoe/albumnight/internal/game"
)

func recv(t *testing.T, ch <-chan game.Change) game.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}
	return game.Change{}
}

func TestHubDeliversPerSession(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("AAAAAA")
	defer cancelA()
	b, cancelB := h.Subscribe("BBBBBB")
	defer cancelB()
	all, cancelAll := h.Subscribe("")
	defer cancelAll()

	_ = h.Notify(context.Background(), game.Change{Code: "AAAAAA", Action: "start"})

	if c := recv(t, a); c.Action != "start" {
		t.Fatalf("unexpected change: %+v", c)
	}
	if c := recv(t, all); c.Code != "AAAAAA" {
		t.Fatalf("unexpected change on wildcard: %+v", c)
	}
	select {
	case c := <-b:
		t.Fatalf("other session received %+v", c)
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("AAAAAA")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = h.Notify(context.Background(), game.Change{Code: "AAAAAA", Action: "submit"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("expected one buffered change, got %d", len(ch))
	}
}

func TestCancelClosesAndUnsubscribes(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("AAAAAA")
	if h.Subscribers("AAAAAA") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if h.Subscribers("AAAAAA") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	_ = h.Notify(context.Background(), game.Change{Code: "AAAAAA"})
}

func TestRelaySkipsOwnOrigin(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe("AAAAAA")
	defer cancel()
	b := NewRedisBridge(nil, "", h)

	own, _ := json.Marshal(envelope{Origin: b.origin, Change: game.Change{Code: "AAAAAA", Action: "own"}})
	other, _ := json.Marshal(envelope{Origin: "elsewhere", Change: game.Change{Code: "AAAAAA", Action: "other"}})
	b.relay(context.Background(), own)
	b.relay(context.Background(), []byte("not json"))
	b.relay(context.Background(), other)

	if c := recv(t, ch); c.Action != "other" {
		t.Fatalf("expected only the foreign change, got %+v", c)
	}
}

func TestRedisBridgeRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialRedis(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	hub := NewHub(4)
	ch, unsub := hub.Subscribe("AAAAAA")
	defer unsub()
	listener := NewRedisBridge(client, "albumnight:test", hub)
	publisher := NewRedisBridge(client, "albumnight:test", NewHub(1))
	go func() { _ = listener.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := publisher.Notify(ctx, game.Change{Code: "AAAAAA", Action: "lock"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if c := recv(t, ch); c.Action != "lock" {
		t.Fatalf("unexpected change: %+v", c)
	}
}
