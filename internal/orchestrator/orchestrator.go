// Package orchestrator implements the TTS Streaming Orchestrator
// (spec.md §4.E): a per-session bounded FIFO queue of committed
// segments, serialized synthesis (one segment's audio in flight per
// session at a time), and chunk broadcast through the transport layer.
// Grounded on internal/app/live.go's LiveAdapter: a mutex-guarded
// owner of one long-running forwarding loop per session, generalised
// from a single global session into a registry of per-session queues.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jkang1643/exbabel/internal/route"
	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/streamerr"
	"github.com/jkang1643/exbabel/internal/translation"
	"github.com/jkang1643/exbabel/internal/tts"
	"github.com/jkang1643/exbabel/internal/usage"
	"github.com/jkang1643/exbabel/internal/wsproto"
)

// QueuedSegment is one committed source-language segment awaiting
// synthesis, per spec.md §3. SegmentID and Version are always assigned
// server-side by EnqueueSegment; any client-supplied SegmentID is
// ignored.
type QueuedSegment struct {
	SegmentID  string
	Version    int
	Text       string
	SourceLang string
	Voice      string
	Tier       route.Tier
	IsFinal    bool
	EnqueuedAt time.Time
}

// Broadcaster is the subset of internal/transport's Broadcaster the
// orchestrator depends on, kept as an interface so tests can fake it.
type Broadcaster interface {
	Broadcast(sessionID, lang string, meta wsproto.FrameMeta, payload []byte) error
}

// ControlSender delivers a JSON control message to the listeners of a
// session subscribed to lang, used for audio.start/audio.end/
// audio.error. Kept separate from Broadcaster because control messages
// are text frames, not binary audio frames.
type ControlSender interface {
	SendControl(sessionID, lang string, msg any) error
}

// Config carries the orchestrator's tunables, sourced from
// internal/config.Config.
type Config struct {
	MaxQueued      int
	MaxConcurrent  int
	FrameMagic     string
	Registry       *session.Registry
	Resolver       *route.Resolver
	Pool           *translation.Pool
	Providers      *tts.Registry
	Broadcaster    Broadcaster
	Control        ControlSender
	Ledger         *usage.Ledger
	Logger         *slog.Logger
}

// Orchestrator owns one sessionQueue per live session.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	queues map[string]*sessionQueue

	sem chan struct{} // bounds MaxConcurrent synthesis calls across all sessions
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Orchestrator{
		cfg:    cfg,
		log:    logger,
		queues: make(map[string]*sessionQueue),
		sem:    make(chan struct{}, maxConcurrent),
	}
}

// sessionQueue is a bounded FIFO of QueuedSegment plus the single
// worker goroutine that serializes their synthesis, per spec.md §4.E
// step 2: "one segment's audio chunks in flight per session at a
// time".
type sessionQueue struct {
	sessionID string

	mu             sync.Mutex
	items          []QueuedSegment
	closed         atomic.Bool
	wake           chan struct{}
	current        string // segmentId currently being synthesized, "" if idle
	cancelCurrent  context.CancelFunc
	segmentCounter uint64 // monotone per-session counter, spec.md §4.E
}

// nextSegmentID derives the next server-assigned segmentId for this
// session, per spec.md §3's "sessionId:seg:N" format.
func (q *sessionQueue) nextSegmentID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.segmentCounter++
	return fmt.Sprintf("%s:seg:%d", q.sessionID, q.segmentCounter)
}

func newSessionQueue(sessionID string) *sessionQueue {
	return &sessionQueue{sessionID: sessionID, wake: make(chan struct{}, 1)}
}

func (q *sessionQueue) push(seg QueuedSegment, maxQueued int, onEvict func(QueuedSegment)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxQueued > 0 && len(q.items) >= maxQueued {
		evicted := q.items[0]
		q.items = q.items[1:]
		if onEvict != nil {
			onEvict(evicted)
		}
	}
	q.items = append(q.items, seg)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *sessionQueue) pop() (QueuedSegment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedSegment{}, false
	}
	seg := q.items[0]
	q.items = q.items[1:]
	return seg, true
}

func (q *sessionQueue) cancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}
}

func (q *sessionQueue) cancelSegment(segmentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := q.items[:0]
	found := false
	for _, it := range q.items {
		if it.SegmentID == segmentID {
			found = true
			continue
		}
		filtered = append(filtered, it)
	}
	q.items = filtered

	if q.current == segmentID && q.cancelCurrent != nil {
		q.cancelCurrent()
		found = true
	}
	return found
}

// EnqueueSegment implements spec.md §6.3's onCommittedSegment entry
// point: it never blocks on remote I/O, only on the in-process queue
// mutex.
func (o *Orchestrator) EnqueueSegment(sessionID string, seg QueuedSegment) {
	q := o.queueFor(sessionID)
	seg.SegmentID = q.nextSegmentID()
	seg.Version = 1
	seg.EnqueuedAt = time.Now()

	q.push(seg, o.cfg.MaxQueued, func(evicted QueuedSegment) {
		o.log.Warn("segment evicted from full queue", "sessionId", sessionID, "segmentId", evicted.SegmentID)
	})
}

// CancelSegment aborts one queued or in-flight segment.
func (o *Orchestrator) CancelSegment(sessionID, segmentID string) {
	if q := o.queueForIfExists(sessionID); q != nil {
		q.cancelSegment(segmentID)
	}
}

// CancelSession aborts every queued and in-flight segment for a
// session and stops its worker.
func (o *Orchestrator) CancelSession(sessionID string) {
	o.mu.Lock()
	q, ok := o.queues[sessionID]
	if ok {
		delete(o.queues, sessionID)
	}
	o.mu.Unlock()
	if ok {
		q.closed.Store(true)
		q.cancelAll()
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

func (o *Orchestrator) queueFor(sessionID string) *sessionQueue {
	o.mu.Lock()
	q, ok := o.queues[sessionID]
	if !ok {
		q = newSessionQueue(sessionID)
		o.queues[sessionID] = q
		o.mu.Unlock()
		go o.processQueue(q)
		return q
	}
	o.mu.Unlock()
	return q
}

func (o *Orchestrator) queueForIfExists(sessionID string) *sessionQueue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queues[sessionID]
}

// processQueue is the single worker serializing a session's segments:
// translate, then per target language resolve route, synthesize, and
// broadcast start/chunks/end.
func (o *Orchestrator) processQueue(q *sessionQueue) {
	for !q.closed.Load() {
		seg, ok := q.pop()
		if !ok {
			<-q.wake
			continue
		}
		o.processSegment(q, seg)
	}
}

func (o *Orchestrator) processSegment(q *sessionQueue, seg QueuedSegment) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.current = seg.SegmentID
	q.cancelCurrent = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.current = ""
		q.cancelCurrent = nil
		q.mu.Unlock()
		cancel()
	}()

	langs := o.cfg.Registry.GetSessionLanguages(q.sessionID)
	if len(langs) == 0 {
		langs = []string{seg.SourceLang}
	}

	translations, err := o.cfg.Pool.TranslateToMany(ctx, seg.SourceLang, langs, seg.Text, seg.IsFinal)
	if err != nil {
		// Not scoped to one target language: broadcast to every listener.
		o.sendError(q.sessionID, "", seg.SegmentID, err)
		return
	}

	sess, ok := o.cfg.Registry.Get(q.sessionID)
	if !ok {
		return
	}

	for _, lang := range langs {
		text, ok := translations[lang]
		if !ok {
			continue
		}
		o.synthesizeAndBroadcast(ctx, q, sess, seg, lang, text)
	}
}

func (o *Orchestrator) synthesizeAndBroadcast(ctx context.Context, q *sessionQueue, sess *session.Session, seg QueuedSegment, lang, text string) {
	dec, err := o.cfg.Resolver.Resolve(route.Request{
		Tier:         seg.Tier,
		Voice:        seg.Voice,
		LanguageCode: lang,
	}, sess.Entitlements)
	if err != nil {
		o.sendError(q.sessionID, lang, seg.SegmentID, err)
		return
	}

	provider, ok := o.cfg.Providers.Get(string(dec.Provider))
	if !ok {
		o.sendError(q.sessionID, lang, seg.SegmentID, streamerr.New(streamerr.NoCompatibleCodec, "no provider registered for "+string(dec.Provider)))
		return
	}

	seqID := sess.NextSeq()
	o.sendControl(q.sessionID, lang, wsproto.AudioStart{
		Type:      wsproto.TypeAudioStart,
		StreamID:  q.sessionID,
		SegmentID: seg.SegmentID,
		SeqID:     seqID,
		Lang:      lang,
		VoiceID:   dec.VoiceName,
		Codec:     string(dec.Codec),
	})

	stream, err := provider.StreamTTS(ctx, tts.Request{
		Text:         text,
		VoiceName:    dec.VoiceName,
		LanguageCode: lang,
		Model:        dec.Model,
		AudioEncoding: string(dec.Codec),
	})
	if err != nil {
		o.sendError(q.sessionID, lang, seg.SegmentID, err)
		return
	}

	idx := 0
	for chunk := range stream.Chunks() {
		err := o.cfg.Broadcaster.Broadcast(q.sessionID, lang, wsproto.FrameMeta{
			StreamID:   q.sessionID,
			SegmentID:  seg.SegmentID,
			Version:    seg.Version,
			ChunkIndex: idx,
		}, chunk)
		if err != nil {
			o.log.Warn("broadcast failed", "sessionId", q.sessionID, "segmentId", seg.SegmentID, "error", err)
		}
		idx++
	}
	if err := stream.Err(); err != nil {
		o.sendError(q.sessionID, lang, seg.SegmentID, err)
		return
	}

	// Zero-length isLast frame signals segment completion on the binary
	// channel, ahead of the audio.end control message.
	if err := o.cfg.Broadcaster.Broadcast(q.sessionID, lang, wsproto.FrameMeta{
		StreamID:   q.sessionID,
		SegmentID:  seg.SegmentID,
		Version:    seg.Version,
		ChunkIndex: idx,
		IsLast:     true,
	}, []byte{}); err != nil {
		o.log.Warn("broadcast failed", "sessionId", q.sessionID, "segmentId", seg.SegmentID, "error", err)
	}

	o.sendControl(q.sessionID, lang, wsproto.AudioEnd{
		Type:      wsproto.TypeAudioEnd,
		StreamID:  q.sessionID,
		SegmentID: seg.SegmentID,
	})

	if o.cfg.Ledger != nil {
		ledgerKey := fmt.Sprintf("%s:%s:%s", q.sessionID, seg.SegmentID, lang)
		if _, err := o.cfg.Ledger.Record(ledgerKey); err != nil {
			o.log.Warn("usage record failed", "error", err)
		}
	}
}

func (o *Orchestrator) sendControl(sessionID, lang string, msg any) {
	if o.cfg.Control == nil {
		return
	}
	if err := o.cfg.Control.SendControl(sessionID, lang, msg); err != nil {
		o.log.Warn("send control message failed", "sessionId", sessionID, "error", err)
	}
}

// sendError delivers audio.error to listeners of lang, or every
// listener if lang is empty (a translation-wide failure not scoped to
// one target language).
func (o *Orchestrator) sendError(sessionID, lang, segmentID string, err error) {
	code := string(streamerr.StreamingError)
	if se, ok := streamerr.AsError(err); ok {
		code = string(se.Code)
	}
	o.log.Error("segment processing failed", "sessionId", sessionID, "segmentId", segmentID, "error", err)
	o.sendControl(sessionID, lang, wsproto.AudioError{
		Type:      wsproto.TypeAudioError,
		StreamID:  sessionID,
		ErrorCode: code,
		Message:   err.Error(),
	})
}
