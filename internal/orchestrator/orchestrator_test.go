package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/jkang1643/exbabel/internal/route"
	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/translation"
	"github.com/jkang1643/exbabel/internal/tts"
	"github.com/jkang1643/exbabel/internal/wsproto"
)

// fakeEchoTranslationServer always replies with the requested item's
// text unchanged, enough to drive the orchestrator's translate step
// without a real backend.
func fakeEchoTranslationServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := context.Background()
		var itemID, text string
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			_ = json.Unmarshal(data, &msg)
			switch msg["type"] {
			case "item.create":
				item, _ := msg["item"].(map[string]any)
				itemID, _ = item["id"].(string)
				content, _ := item["content"].([]any)
				if len(content) > 0 {
					first, _ := content[0].(map[string]any)
					text, _ = first["text"].(string)
				}
			case "response.create":
				reply := map[string]any{"type": "response.text.done", "item_id": itemID, "text": text}
				out, _ := json.Marshal(reply)
				_ = conn.Write(ctx, websocket.MessageText, out)
			}
		}
	}))
}

type fakeProvider struct {
	chunks [][]byte
}

func (p *fakeProvider) StreamTTS(ctx context.Context, req tts.Request) (*tts.ChunkStream, error) {
	stream := tts.NewChunkStream(len(p.chunks)+1, func() {})
	go func() {
		for _, c := range p.chunks {
			stream.Push(ctx, c)
		}
		stream.Close(nil)
	}()
	return stream, nil
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	frames  []wsproto.FrameMeta
	control []any
}

func (b *recordingBroadcaster) Broadcast(sessionID, lang string, meta wsproto.FrameMeta, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, meta)
	return nil
}

func (b *recordingBroadcaster) SendControl(sessionID, lang string, msg any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.control = append(b.control, msg)
	return nil
}

func (b *recordingBroadcaster) frameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func (b *recordingBroadcaster) controlCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.control)
}

func TestOrchestratorProcessesSegmentEndToEnd(t *testing.T) {
	srv := fakeEchoTranslationServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	pool, err := translation.NewPool(translation.Config{
		APIURL:           wsURL,
		ConnectTimeout:   2 * time.Second,
		PartialTimeout:   2 * time.Second,
		FinalTimeout:     2 * time.Second,
		PartialCacheSize: 10,
		PartialCacheTTL:  time.Minute,
		FinalCacheSize:   10,
		FinalCacheTTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	registry := session.NewRegistry()
	ent := session.Entitlements{}
	ent.Subscription.Status = "active"
	ent.Routing = map[string]string{"standard": "minimax"}
	listener := &session.Listener{ClientID: "c1"}
	listener.SetLang("es")
	registry.AddListener("s1", "t1", ent, listener)

	providers := tts.NewRegistry()
	providers.Register("minimax", &fakeProvider{chunks: [][]byte{[]byte("chunk1"), []byte("chunk2")}})

	broadcaster := &recordingBroadcaster{}

	orch := New(Config{
		MaxQueued:     10,
		MaxConcurrent: 2,
		FrameMagic:    "EXA1",
		Registry:      registry,
		Resolver:      route.NewResolver(session.NewEntitlementGate()),
		Pool:          pool,
		Providers:     providers,
		Broadcaster:   broadcaster,
		Control:       broadcaster,
	})

	orch.EnqueueSegment("s1", QueuedSegment{
		Text:       "hello",
		SourceLang: "en",
		Voice:      "mm_speaker1",
		Tier:       route.TierStandard,
		IsFinal:    true,
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if broadcaster.frameCount() >= 2 && broadcaster.controlCount() >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for broadcast: frames=%d control=%d", broadcaster.frameCount(), broadcaster.controlCount())
}
