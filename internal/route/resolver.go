// Package route implements the Route Resolver (spec.md §4.B): a pure
// function from (requested tier, requested voice, language, mode,
// entitlements) to a concrete RouteDecision. Generalised from the
// teacher's per-provider switch (llm/client.go NewCompleter) into a
// static table per spec.md §9's redesign note.
package route

import (
	"strings"

	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/streamerr"
	"golang.org/x/text/language"
)

// Decision is the output of the resolver: the concrete provider, tier,
// voice, model and codec for one segment, per spec.md §3 RouteDecision.
type Decision struct {
	Provider     Provider
	Tier         Tier
	VoiceName    string
	Model        string // empty if not applicable
	LanguageCode string // normalised BCP-47
	Codec        Codec
}

// Request describes the caller's ask, before entitlement checks.
type Request struct {
	Tier         Tier
	Voice        string // "provider:tier:engine:voiceName", bare name, or "-" fields
	LanguageCode string
	Mode         string // reserved for future streaming/non-streaming selection
}

// Resolver is a pure function of its inputs; it performs no I/O.
type Resolver struct {
	gate *session.EntitlementGate
}

// NewResolver constructs a Resolver backed by the given entitlement gate.
func NewResolver(gate *session.EntitlementGate) *Resolver {
	return &Resolver{gate: gate}
}

// Resolve implements the algorithm of spec.md §4.B steps 1-6.
func (r *Resolver) Resolve(req Request, ent session.Entitlements) (Decision, error) {
	if req.Voice == "" {
		return Decision{}, streamerr.New(streamerr.InvalidRequest, "voice is required")
	}

	provider, tier, _, voiceName, err := parseVoice(req.Voice)
	if err != nil {
		return Decision{}, err
	}
	if req.Tier != "" {
		tier = req.Tier
	}

	if !knownTiers[tier] {
		return Decision{}, streamerr.New(streamerr.InvalidRequest, "unknown tier: "+string(tier))
	}

	if err := r.assertTierAllowed(tier, ent); err != nil {
		return Decision{}, err
	}

	locale, err := normaliseLanguage(req.LanguageCode)
	if err != nil {
		return Decision{}, streamerr.Wrap(streamerr.InvalidRequest, "invalid language code", err)
	}

	model := ""
	if provider == ProviderGemini {
		if sub, notStreaming := geminiStreamingSubstitutes[voiceName]; notStreaming {
			voiceName = sub.voice
			model = sub.model
		}
	}

	codec, ok := providerNativeCodec[provider]
	if !ok {
		codec = CodecMP3
	}

	return Decision{
		Provider:     provider,
		Tier:         tier,
		VoiceName:    voiceName,
		Model:        model,
		LanguageCode: locale,
		Codec:        codec,
	}, nil
}

// assertTierAllowed checks the caller's plan routing table includes
// this tier, per spec.md §4.B step 3.
func (r *Resolver) assertTierAllowed(tier Tier, ent session.Entitlements) error {
	if ent.Routing == nil {
		return streamerr.New(streamerr.TierNotAllowed, "no routing table for caller")
	}
	if _, ok := ent.Routing[string(tier)]; !ok {
		return streamerr.New(streamerr.TierNotAllowed, "tier not in plan: "+string(tier))
	}
	return nil
}

// parseVoice implements spec.md §4.B step 1: a colon-separated
// "provider:tier:engine:voiceName" tuple where any field may be "-",
// or a bare voice name whose provider is inferred by pattern.
func parseVoice(voice string) (provider Provider, tier Tier, engine, voiceName string, err error) {
	if strings.Contains(voice, ":") {
		parts := strings.SplitN(voice, ":", 4)
		for len(parts) < 4 {
			parts = append(parts, "-")
		}
		if parts[0] != "-" {
			provider = Provider(parts[0])
		}
		if parts[1] != "-" {
			tier = Tier(parts[1])
		}
		if parts[2] != "-" {
			engine = parts[2]
		}
		voiceName = parts[3]
		if provider == "" {
			provider, err = inferProvider(voiceName)
		}
		return provider, tier, engine, voiceName, err
	}

	voiceName = voice
	provider, err = inferProvider(voiceName)
	return provider, tier, engine, voiceName, err
}

// inferProvider matches a bare voice name against the documented
// pattern table, per spec.md §4.B step 1.
func inferProvider(voiceName string) (Provider, error) {
	for _, p := range voicePatternProviders {
		if strings.HasPrefix(voiceName, p.prefix) {
			return p.provider, nil
		}
	}
	return "", streamerr.New(streamerr.VoiceNotAllowed, "cannot infer provider for voice: "+voiceName)
}

// normaliseLanguage converts a bare ISO-639-1 code (or an already
// BCP-47 locale) to its canonical BCP-47 form, per spec.md §4.B step 4.
func normaliseLanguage(code string) (string, error) {
	if code == "" {
		return "", streamerr.New(streamerr.InvalidRequest, "language code is required")
	}
	if locale, ok := bcp47[code]; ok {
		return locale, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}
