// Package transport implements the Streaming Transport (spec.md §4.A):
// WebSocket accept and negotiation, listener registration against the
// session registry, binary frame send, and language-scoped broadcast.
// Generalised from the teacher's client-side Dial/readLoop shape
// (livetranslate/realtime/client.go) onto the server role via
// websocket.Accept.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/wsproto"
)

// Handler mediates one inbound WebSocket connection: accepting it,
// running its control-message read loop, and registering/removing its
// Listener in the session Registry.
type Handler struct {
	registry      *session.Registry
	frameMagic    string
	writeTimeout  time.Duration
	onHello       func(ctx context.Context, sessionID, tenantID string, hello wsproto.AudioHello) (session.Entitlements, error)
	onSetLang     func(sessionID, clientID, lang string)
	onStart       func(ctx context.Context, sessionID, clientID string, start wsproto.AudioStart)
	onEnd         func(ctx context.Context, sessionID, clientID string, end wsproto.AudioEnd)
	onCancel      func(ctx context.Context, sessionID, clientID string, cancel wsproto.AudioCancel)
	log           *slog.Logger
}

// Config carries the Handler's dependencies and callbacks, wired by
// cmd/streamcore at startup.
type Config struct {
	Registry     *session.Registry
	FrameMagic   string
	WriteTimeout time.Duration
	Logger       *slog.Logger

	// OnHello authenticates/authorises a new listener and returns its
	// entitlements snapshot, or an error to reject the connection.
	OnHello func(ctx context.Context, sessionID, tenantID string, hello wsproto.AudioHello) (session.Entitlements, error)
	// OnSetLang is invoked whenever a listener changes its language scope.
	OnSetLang func(sessionID, clientID, lang string)
	// OnStart/OnEnd/OnCancel notify the orchestrator of a caller-driven
	// capture lifecycle event (reserved for ingress-side wiring).
	OnStart  func(ctx context.Context, sessionID, clientID string, start wsproto.AudioStart)
	OnEnd    func(ctx context.Context, sessionID, clientID string, end wsproto.AudioEnd)
	OnCancel func(ctx context.Context, sessionID, clientID string, cancel wsproto.AudioCancel)
}

// NewHandler constructs a transport Handler from cfg.
func NewHandler(cfg Config) *Handler {
	magic := cfg.FrameMagic
	if magic == "" {
		magic = "EXA1"
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:     cfg.Registry,
		frameMagic:   magic,
		writeTimeout: timeout,
		onHello:      cfg.OnHello,
		onSetLang:    cfg.OnSetLang,
		onStart:      cfg.OnStart,
		onEnd:        cfg.OnEnd,
		onCancel:     cfg.OnCancel,
		log:          logger,
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs its control
// loop until the client disconnects or the request context is done.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	tenantID := r.URL.Query().Get("tenantId")
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	h.serve(ctx, conn, sessionID, tenantID)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sessionID, tenantID string) {
	var clientID string
	var helloed bool

	defer func() {
		if helloed {
			h.registry.RemoveListener(sessionID, clientID)
			h.log.Info("listener removed", "sessionId", sessionID, "clientId", clientID)
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !helloed {
				h.log.Debug("connection closed before hello", "sessionId", sessionID, "error", err)
			}
			return
		}

		msgType, err := wsproto.ParseType(data)
		if err != nil {
			h.sendError(ctx, conn, "", "invalid control message")
			continue
		}

		switch msgType {
		case wsproto.TypeAudioHello:
			var hello wsproto.AudioHello
			if err := json.Unmarshal(data, &hello); err != nil {
				h.sendError(ctx, conn, "", "malformed audio.hello")
				continue
			}
			clientID = hello.ClientID
			ent, err := h.callHello(ctx, sessionID, tenantID, hello)
			if err != nil {
				h.sendError(ctx, conn, clientID, err.Error())
				return
			}

			listener := &session.Listener{
				ClientID:   clientID,
				Codec:      hello.DesiredCodec,
				SampleRate: hello.DesiredSampleRate,
				Send: func(payload []byte) error {
					writeCtx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
					defer cancel()
					return conn.Write(writeCtx, websocket.MessageBinary, payload)
				},
				SendText: func(payload []byte) error {
					writeCtx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
					defer cancel()
					return conn.Write(writeCtx, websocket.MessageText, payload)
				},
			}
			if hello.TargetLang != "" {
				listener.SetLang(hello.TargetLang)
			}
			h.registry.AddListener(sessionID, tenantID, ent, listener)
			h.sendReady(ctx, conn, sessionID, hello.DesiredCodec, hello.DesiredSampleRate)
			helloed = true

		case wsproto.TypeAudioSetLang:
			var setLang wsproto.AudioSetLang
			if err := json.Unmarshal(data, &setLang); err != nil {
				h.sendError(ctx, conn, clientID, "malformed audio.setLang")
				continue
			}
			h.registry.UpdateListenerLanguage(sessionID, clientID, setLang.Lang)
			if h.onSetLang != nil {
				h.onSetLang(sessionID, clientID, setLang.Lang)
			}

		case wsproto.TypeAudioStart:
			var start wsproto.AudioStart
			_ = json.Unmarshal(data, &start)
			if h.onStart != nil {
				h.onStart(ctx, sessionID, clientID, start)
			}

		case wsproto.TypeAudioEnd:
			var end wsproto.AudioEnd
			_ = json.Unmarshal(data, &end)
			if h.onEnd != nil {
				h.onEnd(ctx, sessionID, clientID, end)
			}

		case wsproto.TypeAudioCancel:
			var cancel wsproto.AudioCancel
			_ = json.Unmarshal(data, &cancel)
			if h.onCancel != nil {
				h.onCancel(ctx, sessionID, clientID, cancel)
			}

		case wsproto.TypeAudioAck:
			// advisory, per DESIGN.md Open Question decision: no retransmit logic hangs off this.

		default:
			h.log.Warn("unhandled control message", "type", msgType)
		}
	}
}

func (h *Handler) callHello(ctx context.Context, sessionID, tenantID string, hello wsproto.AudioHello) (session.Entitlements, error) {
	if h.onHello == nil {
		return session.Entitlements{}, nil
	}
	return h.onHello(ctx, sessionID, tenantID, hello)
}

func (h *Handler) sendReady(ctx context.Context, conn *websocket.Conn, streamID, codec string, sampleRate int) {
	ready := wsproto.AudioReady{
		Type:       wsproto.TypeAudioReady,
		StreamID:   streamID,
		Codec:      codec,
		SampleRate: sampleRate,
	}
	data, err := json.Marshal(ready)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, streamID, message string) {
	errMsg := wsproto.AudioError{Type: wsproto.TypeAudioError, StreamID: streamID, Message: message}
	data, err := json.Marshal(errMsg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}

// Broadcaster sends binary audio frames to every Listener in a session
// whose language scope matches the frame, isolating per-listener send
// failures per spec.md §4.A ("an exception never propagates out of a
// broadcast").
type Broadcaster struct {
	registry *session.Registry
	magic    string
	log      *slog.Logger
}

// NewBroadcaster constructs a Broadcaster over registry using magic as
// the wire frame's magic bytes.
func NewBroadcaster(registry *session.Registry, magic string, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{registry: registry, magic: magic, log: logger}
}

// Broadcast encodes one frame and delivers it to every listener of
// sessionID whose language scope matches lang ("" matches everyone
// and is matched by everyone, per spec.md §4.A step 2).
func (b *Broadcaster) Broadcast(sessionID, lang string, meta wsproto.FrameMeta, payload []byte) error {
	sess, ok := b.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("broadcast: unknown session %q", sessionID)
	}

	frame, err := wsproto.EncodeFrame(b.magic, meta, payload)
	if err != nil {
		return fmt.Errorf("broadcast: encode frame: %w", err)
	}

	for _, listener := range sess.Snapshot() {
		if !listener.Matches(lang) {
			continue
		}
		if err := listener.Send(frame); err != nil {
			b.log.Warn("listener send failed", "sessionId", sessionID, "clientId", listener.ClientID, "error", err)
		}
	}
	return nil
}

// SendControl delivers a JSON control message (audio.start/end/error)
// to every listener of sessionID whose language scope matches lang,
// isolating per-listener failures the same way Broadcast does for
// binary audio frames.
func (b *Broadcaster) SendControl(sessionID, lang string, msg any) error {
	sess, ok := b.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("sendControl: unknown session %q", sessionID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sendControl: marshal: %w", err)
	}

	for _, listener := range sess.Snapshot() {
		if listener.SendText == nil {
			continue
		}
		if !listener.Matches(lang) {
			continue
		}
		if err := listener.SendText(payload); err != nil {
			b.log.Warn("listener control send failed", "sessionId", sessionID, "clientId", listener.ClientID, "error", err)
		}
	}
	return nil
}
