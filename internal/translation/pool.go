// Package translation implements the Translation Connection Pool
// (spec.md §4.C): up to MaxConcurrent long-lived WebSocket sessions per
// (sourceLang, targetLang) pair to a remote realtime translation API,
// each serving at most one in-flight response at a time, plus a TTL
// result cache.
package translation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkang1643/exbabel/internal/streamerr"
)

// Config carries the pool's connection and cache parameters, sourced
// from internal/config.Config.
type Config struct {
	APIURL         string
	APIKey         string
	ConnectTimeout time.Duration
	PartialTimeout time.Duration
	FinalTimeout   time.Duration
	HeartbeatEvery time.Duration

	// MaxConcurrent caps the number of PoolSessions grown per "src:tgt"
	// key (spec.md §4.C: "up to MAX_CONCURRENT PoolSessions"). Requests
	// beyond the cap are handed an existing session and wait on its own
	// at-most-one-in-flight semaphore. Defaults to 5 if unset.
	MaxConcurrent int

	// EphemeralKeyProviderAPIKey, when set, makes the pool mint a
	// short-lived client secret per session instead of handing APIKey
	// to the wire directly (see ephemeralKeyMinter).
	EphemeralKeyProviderAPIKey string

	PartialCacheSize int
	PartialCacheTTL  time.Duration
	FinalCacheSize   int
	FinalCacheTTL    time.Duration

	Logger *slog.Logger
}

// sessionGroup is every PoolSession dialed for one "src:tgt" key, plus
// enough state to bound concurrent creation at MaxConcurrent and to
// round-robin dispatch across the sessions once at cap.
type sessionGroup struct {
	sessions []*PoolSession
	pending  int // dials in flight, counted against the cap before the session exists
	nextRR   int
}

// Pool owns every PoolSession, keyed by "sourceLang:targetLang".
type Pool struct {
	cfg Config
	log *slog.Logger

	partialCache *resultCache
	finalCache   *resultCache

	minter *ephemeralKeyMinter

	mu     sync.Mutex
	groups map[string]*sessionGroup
}

// NewPool constructs a Pool. It does not dial any session eagerly;
// sessions are created lazily on first use, per spec.md §4.C step 1.
func NewPool(cfg Config) (*Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	partial, err := newResultCache(cfg.PartialCacheSize, cfg.PartialCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("translation: partial cache: %w", err)
	}
	final, err := newResultCache(cfg.FinalCacheSize, cfg.FinalCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("translation: final cache: %w", err)
	}

	var minter *ephemeralKeyMinter
	if cfg.EphemeralKeyProviderAPIKey != "" {
		minter = newEphemeralKeyMinter(cfg.EphemeralKeyProviderAPIKey)
	}

	return &Pool{
		cfg:          cfg,
		log:          logger,
		partialCache: partial,
		finalCache:   final,
		minter:       minter,
		groups:       make(map[string]*sessionGroup),
	}, nil
}

func key(sourceLang, targetLang string) string {
	return sourceLang + ":" + targetLang
}

func (p *Pool) maxConcurrent() int {
	if p.cfg.MaxConcurrent > 0 {
		return p.cfg.MaxConcurrent
	}
	return 5
}

// getOrCreate returns a session for (sourceLang, targetLang), growing
// the key's group up to MaxConcurrent sessions (spec.md §4.C step 2)
// before reusing one round-robin. A request landing on a reused,
// already-busy session simply blocks on that session's own
// at-most-one-in-flight semaphore inside Translate — the "callers
// wait" half of step 3.
func (p *Pool) getOrCreate(ctx context.Context, sourceLang, targetLang string, isFinal bool) (*PoolSession, error) {
	k := key(sourceLang, targetLang)
	maxConcurrent := p.maxConcurrent()

	p.mu.Lock()
	g, ok := p.groups[k]
	if !ok {
		g = &sessionGroup{}
		p.groups[k] = g
	}
	live := g.sessions[:0]
	for _, s := range g.sessions {
		if s.CurrentState() != StateClosed {
			live = append(live, s)
		}
	}
	g.sessions = live

	if len(g.sessions)+g.pending >= maxConcurrent {
		if len(g.sessions) == 0 {
			// Every slot is held by a dial still in flight; nothing to
			// dispatch to yet, so wait briefly and retry until ctx ends.
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, streamerr.Wrap(streamerr.StreamingError, "no translation session available yet", ctx.Err())
			case <-time.After(10 * time.Millisecond):
			}
			return p.getOrCreate(ctx, sourceLang, targetLang, isFinal)
		}
		s := g.sessions[g.nextRR%len(g.sessions)]
		g.nextRR++
		p.mu.Unlock()
		return s, nil
	}

	g.pending++
	p.mu.Unlock()

	cache := p.partialCache
	if isFinal {
		cache = p.finalCache
	}

	s, err := newPoolSession(ctx, sessionConfig{
		URL:            p.cfg.APIURL,
		APIKey:         p.cfg.APIKey,
		Minter:         p.minter,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		ConnectTimeout: p.cfg.ConnectTimeout,
		PartialTimeout: p.cfg.PartialTimeout,
		FinalTimeout:   p.cfg.FinalTimeout,
		HeartbeatEvery: p.cfg.HeartbeatEvery,
		Cache:          cache,
		Logger:         p.log,
	})

	p.mu.Lock()
	g.pending--
	if err == nil {
		g.sessions = append(g.sessions, s)
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return s, nil
}

// Translate resolves (or dials) the session for the given language
// pair and translates text, bounded by PartialTimeout or FinalTimeout
// depending on isFinal, per spec.md §6.5's two timeout knobs.
func (p *Pool) Translate(ctx context.Context, sourceLang, targetLang, text string, isFinal bool) (string, error) {
	s, err := p.getOrCreate(ctx, sourceLang, targetLang, isFinal)
	if err != nil {
		return "", err
	}

	timeout := p.cfg.PartialTimeout
	if isFinal {
		timeout = p.cfg.FinalTimeout
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return s.Translate(callCtx, text)
}

// TranslateToMany fans text out to every target language concurrently,
// returning a map of targetLang to translated text. A target whose
// translation fails is left out of the map; an error (wrapping the
// first failure) is returned only when no target produced a result.
// Used when a committed segment has more than one
// distinct listener language subscribed, per spec.md §4.C step 7. If
// sourceLang is itself among targetLangs, that entry is copied
// straight from text with no remote call, per spec.md §4.C's
// translateToMany rule.
func (p *Pool) TranslateToMany(ctx context.Context, sourceLang string, targetLangs []string, text string, isFinal bool) (map[string]string, error) {
	type outcome struct {
		lang string
		text string
		err  error
	}

	remote := make([]string, 0, len(targetLangs))
	out := make(map[string]string, len(targetLangs))
	for _, tgt := range targetLangs {
		if tgt == sourceLang {
			out[tgt] = text
			continue
		}
		remote = append(remote, tgt)
	}

	results := make(chan outcome, len(remote))
	for _, tgt := range remote {
		tgt := tgt
		go func() {
			text, err := p.Translate(ctx, sourceLang, tgt, text, isFinal)
			results <- outcome{lang: tgt, text: text, err: err}
		}()
	}

	var firstErr error
	for range remote {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[r.lang] = r.text
	}

	if firstErr != nil && len(out) == 0 {
		return nil, streamerr.Wrap(streamerr.StreamingError, "all translations failed", firstErr)
	}
	return out, nil
}

// Close tears down every session and cache in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, g := range p.groups {
		for _, s := range g.sessions {
			if err := s.Close(); err != nil {
				p.log.Warn("close session", "error", err)
			}
		}
	}
	p.partialCache.Close()
	p.finalCache.Close()
	return nil
}
