package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// fakeTranslationServer emulates the remote realtime translation API
// well enough to exercise a PoolSession: it echoes back a
// response.text.done event containing the input text prefixed with
// "echo:", so
// tests can assert strict per-item correlation without a real backend.
func fakeTranslationServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := context.Background()

		var pendingItemID, pendingText string
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg["type"] {
			case "item.create":
				item, _ := msg["item"].(map[string]any)
				content, _ := item["content"].([]any)
				if len(content) > 0 {
					first, _ := content[0].(map[string]any)
					pendingText, _ = first["text"].(string)
				}
				pendingItemID, _ = item["id"].(string)
			case "response.create":
				reply := map[string]any{
					"type":    "response.text.done",
					"item_id": pendingItemID,
					"text":    "echo:" + pendingText,
				}
				out, _ := json.Marshal(reply)
				_ = conn.Write(ctx, websocket.MessageText, out)
			}
		}
	}))
}

func newTestPool(t *testing.T, url string) *Pool {
	t.Helper()
	p, err := NewPool(Config{
		APIURL:           url,
		ConnectTimeout:   2 * time.Second,
		PartialTimeout:   2 * time.Second,
		FinalTimeout:     2 * time.Second,
		PartialCacheSize: 100,
		PartialCacheTTL:  time.Minute,
		FinalCacheSize:   100,
		FinalCacheTTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolTranslateRoundTrip(t *testing.T) {
	srv := fakeTranslationServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	p := newTestPool(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := p.Translate(ctx, "en", "es", "hello", false)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "echo:hello" {
		t.Errorf("Translate = %q, want %q", got, "echo:hello")
	}
}

func TestPoolTranslateCachesResult(t *testing.T) {
	srv := fakeTranslationServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	p := newTestPool(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first, err := p.Translate(ctx, "en", "fr", "reuse me", false)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	s, err := p.getOrCreate(ctx, "en", "fr", false)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if _, ok := s.cacheGet("reuse me"); !ok {
		t.Fatal("expected cache to hold the first result")
	}

	second, err := p.Translate(ctx, "en", "fr", "reuse me", false)
	if err != nil {
		t.Fatalf("Translate (cached): %v", err)
	}
	if second != first {
		t.Errorf("cached Translate = %q, want %q", second, first)
	}
}

func TestPoolTranslateToManyFansOut(t *testing.T) {
	srv := fakeTranslationServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	p := newTestPool(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out, err := p.TranslateToMany(ctx, "en", []string{"es", "fr", "de"}, "hi", true)
	if err != nil {
		t.Fatalf("TranslateToMany: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for _, lang := range []string{"es", "fr", "de"} {
		if out[lang] != "echo:hi" {
			t.Errorf("out[%q] = %q, want %q", lang, out[lang], "echo:hi")
		}
	}
}
