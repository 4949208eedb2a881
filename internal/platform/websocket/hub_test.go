package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient([]string{"account:1", AdminsTopic})

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(AdminsTopic) != 1 {
		t.Fatalf("expected 1 admin subscriber, got %d", hub.TopicCount(AdminsTopic))
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("account:1") != 0 {
		t.Fatal("expected the hub to be empty")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send to be closed")
	}
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	id := uuid.New()
	mine := NewClient([]string{AccountTopic(id)})
	other := NewClient([]string{AccountTopic(uuid.New())})
	hub.Register(mine)
	hub.Register(other)

	ev := NewEvent(AccountTopic(id), "doctor.approved", id, map[string]string{"name": "Lee"})
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-mine.Send:
		var got Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != "doctor.approved" || got.EntityID != id.String() {
			t.Errorf("unexpected event %+v", got)
		}
		if !strings.Contains(string(got.Data), `"name":"Lee"`) {
			t.Errorf("expected data payload, got %s", got.Data)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber received the event")
	default:
	}
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{AdminsTopic}, Send: make(chan []byte, 1)}
	hub.Register(client)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), NewEvent(AdminsTopic, "tick", uuid.Nil, nil)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(client.Send) != 1 {
		t.Fatalf("expected 1 buffered message, got %d", len(client.Send))
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient([]string{AdminsTopic})
			hub.Register(c)
			_ = hub.Publish(context.Background(), NewEvent(AdminsTopic, "tick", uuid.Nil, nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func newWSServer(t *testing.T, hub *Hub, topics func(echo.Context) ([]string, error)) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/ws", NewHandler(hub, []string{"http://app.example.com"}, topics).Connect)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestHandler_DeliversEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	id := uuid.New()
	server := newWSServer(t, hub, func(echo.Context) ([]string, error) {
		return []string{AccountTopic(id)}, nil
	})

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(AccountTopic(id)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Publish(context.Background(), NewEvent(AccountTopic(id), "appointment.accepted", id, nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "appointment.accepted" {
		t.Errorf("expected appointment.accepted, got %s", got.Type)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("expected the client to be unregistered after close")
	}
}

func TestHandler_TopicsErrorAbortsUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := newWSServer(t, hub, func(echo.Context) ([]string, error) {
		return nil, echo.NewHTTPError(http.StatusUnauthorized)
	})

	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL(server), nil)
	if !errors.Is(err, gorillawebsocket.ErrBadHandshake) {
		t.Fatalf("expected a bad handshake, got %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if hub.ClientCount() != 0 {
		t.Error("no client should be registered")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := newWSServer(t, hub, func(echo.Context) ([]string, error) { return nil, nil })

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	if _, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(server), header); err == nil {
		t.Fatal("expected a foreign origin to be rejected")
	}

	header.Set("Origin", "http://app.example.com")
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(server), header)
	if err != nil {
		t.Fatalf("expected an allowed origin to connect: %v", err)
	}
	conn.Close()
}
