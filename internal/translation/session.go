package translation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkang1643/exbabel/internal/streamerr"
)

// State is a PoolSession's lifecycle stage, per spec.md §4.C.
type State int

const (
	StateConnecting State = iota
	StateIdle
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// pendingRequest tracks one in-flight item.create/response.create
// round trip, identified by itemID. Only the head of the FIFO queue
// may legally be "active" on the wire at any time, per spec.md §9's
// redesign note replacing a scan-for-oldest-pending heuristic with
// strict local FIFO binding (decision recorded in DESIGN.md).
type pendingRequest struct {
	itemID string
	delta  strings.Builder
	result chan translateResult
}

type translateResult struct {
	text string
	err  error
}

// PoolSession owns one long-lived WebSocket connection to the remote
// translation API for a single (sourceLang, targetLang) pair. It
// enforces at most one in-flight response at a time: callers queue and
// are served strictly in arrival order.
//
// Grounded on livetranslate/realtime/service.go's processEvents/
// handleTextDelta/handleTextDone accumulation, generalised from a
// single hardcoded session into one of many pool-managed sessions and
// from a callback API into a blocking translate() call per request.
type PoolSession struct {
	sourceLang string
	targetLang string

	wire *wireClient
	log  *slog.Logger

	mu    sync.Mutex
	state State
	queue []*pendingRequest

	sem chan struct{} // depth-1: enforces at-most-one-in-flight

	cache *resultCache

	cancelCtx context.CancelFunc
	closeOnce sync.Once
	doneCh    chan struct{}
}

// sessionConfig carries everything a PoolSession needs to dial and run.
type sessionConfig struct {
	URL             string
	APIKey          string
	Minter          *ephemeralKeyMinter
	SourceLang      string
	TargetLang      string
	ConnectTimeout  time.Duration
	PartialTimeout  time.Duration
	FinalTimeout    time.Duration
	HeartbeatEvery  time.Duration
	Cache           *resultCache
	Logger          *slog.Logger
}

// newPoolSession dials the remote endpoint and starts the session's
// background event and heartbeat loops. Returns once connected or ctx
// expires, per spec.md §4.C step 1's POOL_CONNECT_TIMEOUT.
func newPoolSession(ctx context.Context, cfg sessionConfig) (*PoolSession, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx := ctx
	var cancelConnect context.CancelFunc
	if cfg.ConnectTimeout > 0 {
		connectCtx, cancelConnect = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancelConnect()
	}

	apiKey := cfg.APIKey
	if cfg.Minter != nil {
		minted, err := cfg.Minter.mint(connectCtx, cfg.SourceLang)
		if err != nil {
			return nil, streamerr.Wrap(streamerr.StreamingError, "mint ephemeral translation key", err)
		}
		apiKey = minted
	}

	wire := newWireClient(cfg.URL, apiKey)
	if err := wire.connect(connectCtx); err != nil {
		return nil, streamerr.Wrap(streamerr.StreamingError, "connect translation session", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &PoolSession{
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		wire:       wire,
		log:        logger,
		state:      StateIdle,
		sem:        make(chan struct{}, 1),
		cache:      cfg.Cache,
		cancelCtx:  cancel,
		doneCh:     make(chan struct{}),
	}

	if err := wire.send(ctx, eventSessionUpdate(cfg.SourceLang)); err != nil {
		s.log.Warn("session.update failed", "error", err)
	}

	go s.eventLoop(runCtx)
	if cfg.HeartbeatEvery > 0 {
		go s.heartbeatLoop(runCtx, cfg.HeartbeatEvery)
	}

	return s, nil
}

// Translate sends text through this session and blocks for the final
// translated text, or until ctx is cancelled. Requests are served in
// strict FIFO arrival order (spec.md §4.C step 3).
func (s *PoolSession) Translate(ctx context.Context, text string) (string, error) {
	if cached, ok := s.cacheGet(text); ok {
		return cached, nil
	}

	itemID := uuid.NewString()
	req := &pendingRequest{itemID: itemID, result: make(chan translateResult, 1)}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	s.state = StateActive
	s.queue = append(s.queue, req)
	s.mu.Unlock()

	if err := s.wire.send(ctx, eventItemCreate(itemID, text, s.sourceLang)); err != nil {
		s.dropHead()
		return "", streamerr.Wrap(streamerr.StreamingError, "send item.create", err)
	}
	if err := s.wire.send(ctx, eventResponseCreate(itemID, s.targetLang)); err != nil {
		s.dropHead()
		return "", streamerr.Wrap(streamerr.StreamingError, "send response.create", err)
	}

	select {
	case res := <-req.result:
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		if res.err != nil {
			return "", res.err
		}
		s.cacheSet(text, res.text)
		return res.text, nil
	case <-ctx.Done():
		s.dropHead()
		return "", streamerr.Wrap(streamerr.TranslationTimeout, "translation timed out", ctx.Err())
	case <-s.doneCh:
		return "", streamerr.New(streamerr.StreamingError, "translation session closed")
	}
}

func (s *PoolSession) dropHead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
	s.state = StateIdle
}

func (s *PoolSession) cacheGet(text string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	return s.cache.Get(s.cacheKey(text))
}

func (s *PoolSession) cacheSet(text, result string) {
	if s.cache == nil {
		return
	}
	s.cache.Set(s.cacheKey(text), result)
}

func (s *PoolSession) cacheKey(text string) string {
	return fmt.Sprintf("%s:%s:%s", s.sourceLang, s.targetLang, text)
}

// eventLoop binds every delta/done/error event to the current head of
// the FIFO queue. It never scans for "the matching item_id" among
// several candidates: the wire-level at-most-one-in-flight invariant
// means the head is always the only legitimate recipient.
func (s *PoolSession) eventLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-s.wire.errors():
			if ok && err != nil {
				s.failHead(err)
			}
			return
		case event, ok := <-s.wire.messages():
			if !ok {
				return
			}
			s.handleEvent(event)
		}
	}
}

func (s *PoolSession) handleEvent(event Event) {
	switch event.Type {
	case "response.text.delta":
		delta, _ := event.Delta()
		s.withHead(func(req *pendingRequest) {
			req.delta.WriteString(delta)
		})
	case "response.text.done":
		text, ok := event.Text()
		s.mu.Lock()
		var head *pendingRequest
		if len(s.queue) > 0 {
			head = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
		if head == nil {
			return
		}
		if !ok {
			text = head.delta.String()
		}
		head.result <- translateResult{text: text}
	case "error":
		if event.Error != nil {
			s.failHead(fmt.Errorf("%s: %s", event.Error.Code, event.Error.Message))
		}
	}
}

func (s *PoolSession) withHead(fn func(*pendingRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		fn(s.queue[0])
	}
}

func (s *PoolSession) failHead(err error) {
	s.mu.Lock()
	var head *pendingRequest
	if len(s.queue) > 0 {
		head = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.state = StateClosed
	s.mu.Unlock()
	if head != nil {
		head.result <- translateResult{err: err}
	}
}

func (s *PoolSession) heartbeatLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := s.state == StateIdle
			s.mu.Unlock()
			if idle {
				_ = s.wire.send(ctx, map[string]any{"type": "ping"})
			}
		}
	}
}

// Close tears down the session's connection and background loops.
func (s *PoolSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.cancelCtx()
		err = s.wire.close()
	})
	return err
}

// CurrentState reports the session's lifecycle stage.
func (s *PoolSession) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
