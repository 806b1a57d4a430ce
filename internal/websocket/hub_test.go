package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"go.uber.org/goleak"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c2) // second call is a no-op
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(NewMessage("meal", "favorited", "abc-123", map[string]any{"isFavorite": true}))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "meal_favorited" {
				t.Errorf("type = %s, want meal_favorited", got.Type)
			}
			if got.ID != "abc-123" {
				t.Errorf("id = %s, want abc-123", got.ID)
			}
			payload, ok := got.Data.(map[string]any)
			if !ok || payload["isFavorite"] != true {
				t.Errorf("data = %#v", got.Data)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Broadcast(NewMessage("meal", "created", "x", nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("meal", "created", "fill", nil))
	}
	// Dropped rather than blocking.
	hub.Broadcast(NewMessage("meal", "created", "dropped", nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
	if !c.lagged.Load() {
		t.Error("overflowing client not marked lagged")
	}

	hub.Unregister(c)
}

func TestLaggedClientGetsOneResync(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize+3; i++ {
		hub.Broadcast(NewMessage("meal", "favorited", "m1", nil))
	}

	var written []string
	for len(c.send) > 0 {
		for _, f := range c.frames(<-c.send) {
			var got Message
			if err := json.Unmarshal(f, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			written = append(written, got.Type)
		}
	}

	if len(written) != sendBufferSize+1 {
		t.Fatalf("wrote %d frames, want %d: %v", len(written), sendBufferSize+1, written)
	}
	if last := written[len(written)-1]; last != "meal_resync" {
		t.Errorf("last frame = %s, want meal_resync", last)
	}
	for _, typ := range written[:sendBufferSize] {
		if typ == "meal_resync" {
			t.Fatalf("resync sent before queue drained: %v", written)
		}
	}
	if c.lagged.Load() {
		t.Error("lagged flag not cleared after resync")
	}

	// A client that keeps up gets no further resync.
	hub.Broadcast(NewMessage("meal", "created", "m2", nil))
	if got := c.frames(<-c.send); len(got) != 1 {
		t.Errorf("frames after catching up = %d, want 1", len(got))
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("meal", "reloaded", "", map[string]any{"outcome": "fresh"})
	if msg.Type != "meal_reloaded" {
		t.Errorf("type = %s, want meal_reloaded", msg.Type)
	}
	if msg.Entity != "meal" || msg.Action != "reloaded" {
		t.Errorf("entity/action = %s/%s", msg.Entity, msg.Action)
	}

	data, _ := json.Marshal(msg)
	if strings.Contains(string(data), `"id"`) {
		t.Errorf("empty id should be omitted: %s", data)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(NewMessage("meal", "created", "concurrent", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocketDelivers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(slog.Default())
	srv := httptest.NewServer(HandleWebSocket(hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Wait for the server side to register.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(NewMessage("meal", "created", "m1", nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "meal_created" || got.ID != "m1" {
		t.Errorf("message = %+v", got)
	}

	conn.Close(ws.StatusNormalClosure, "")

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
