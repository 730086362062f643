package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/wsproto"
)

func newTestServer(t *testing.T, h *Handler) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):]
	return srv, wsURL
}

func TestHandlerHelloRegistersListener(t *testing.T) {
	registry := session.NewRegistry()
	h := NewHandler(Config{Registry: registry, FrameMagic: "EXA1"})
	_, wsURL := newTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL+"?sessionId=s1&tenantId=t1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello := wsproto.AudioHello{Type: wsproto.TypeAudioHello, ClientID: "c1", DesiredCodec: "mp3", TargetLang: "es"}
	data, _ := json.Marshal(hello)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read ready: %v", err)
	}
	var ready wsproto.AudioReady
	if err := json.Unmarshal(reply, &ready); err != nil {
		t.Fatalf("unmarshal ready: %v", err)
	}
	if ready.Type != wsproto.TypeAudioReady {
		t.Errorf("Type = %q, want audio.ready", ready.Type)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := registry.Get("s1"); ok && s.ListenerCount() == 1 {
			l, _ := s.Listener("c1")
			if l.Lang() == "es" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("listener was not registered with expected language scope")
}

func TestHandlerRejectsHelloFromOnHello(t *testing.T) {
	registry := session.NewRegistry()
	h := NewHandler(Config{
		Registry: registry,
		OnHello: func(ctx context.Context, sessionID, tenantID string, hello wsproto.AudioHello) (session.Entitlements, error) {
			return session.Entitlements{}, context.DeadlineExceeded
		},
	})
	_, wsURL := newTestServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL+"?sessionId=s1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello := wsproto.AudioHello{Type: wsproto.TypeAudioHello, ClientID: "c1"}
	data, _ := json.Marshal(hello)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read error message: %v", err)
	}
	var errMsg wsproto.AudioError
	if err := json.Unmarshal(reply, &errMsg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errMsg.Type != wsproto.TypeAudioError {
		t.Errorf("Type = %q, want audio.error", errMsg.Type)
	}

	if _, ok := registry.Get("s1"); ok {
		t.Error("session should not have been created for a rejected hello")
	}
}

func TestBroadcastIsolatesFailingListener(t *testing.T) {
	registry := session.NewRegistry()
	ent := session.Entitlements{}
	ent.Subscription.Status = "active"

	var goodReceived [][]byte
	good := &session.Listener{ClientID: "good", Send: func(frame []byte) error {
		goodReceived = append(goodReceived, frame)
		return nil
	}}
	bad := &session.Listener{ClientID: "bad", Send: func(frame []byte) error {
		return context.DeadlineExceeded
	}}
	registry.AddListener("s1", "t1", ent, good)
	registry.AddListener("s1", "t1", ent, bad)

	b := NewBroadcaster(registry, "EXA1", nil)
	if err := b.Broadcast("s1", "", wsproto.FrameMeta{StreamID: "s1", SegmentID: "seg1"}, []byte("hi")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	if len(goodReceived) != 1 {
		t.Fatalf("expected the healthy listener to receive 1 frame, got %d", len(goodReceived))
	}
}
