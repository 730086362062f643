package route

import (
	"testing"

	"github.com/jkang1643/exbabel/internal/session"
	"github.com/jkang1643/exbabel/internal/streamerr"
)

func activeEnt(routing map[string]string) session.Entitlements {
	var ent session.Entitlements
	ent.Subscription.Status = "active"
	ent.Routing = routing
	return ent
}

func TestResolveFullVoiceTuple(t *testing.T) {
	r := NewResolver(session.NewEntitlementGate())
	ent := activeEnt(map[string]string{"elevenlabs_flash": "elevenlabs"})

	dec, err := r.Resolve(Request{
		Voice:        "elevenlabs:elevenlabs_flash:-:3qAbeQHx5LFO5BGhoRFu",
		LanguageCode: "es",
	}, ent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Provider != ProviderElevenLabs {
		t.Errorf("Provider = %q, want elevenlabs", dec.Provider)
	}
	if dec.Tier != TierElevenFlash {
		t.Errorf("Tier = %q, want elevenlabs_flash", dec.Tier)
	}
	if dec.VoiceName != "3qAbeQHx5LFO5BGhoRFu" {
		t.Errorf("VoiceName = %q", dec.VoiceName)
	}
	if dec.LanguageCode != "es-ES" {
		t.Errorf("LanguageCode = %q, want es-ES", dec.LanguageCode)
	}
	if dec.Codec != CodecOpusWebM {
		t.Errorf("Codec = %q, want opus-webm", dec.Codec)
	}
}

func TestResolveTierNotAllowed(t *testing.T) {
	r := NewResolver(session.NewEntitlementGate())
	ent := activeEnt(map[string]string{"standard": "google"}) // no studio

	_, err := r.Resolve(Request{
		Voice:        "el_rachel",
		Tier:         TierStudio,
		LanguageCode: "en",
	}, ent)

	se, ok := streamerr.AsError(err)
	if !ok || se.Code != streamerr.TierNotAllowed {
		t.Fatalf("expected TIER_NOT_ALLOWED, got %v", err)
	}
}

func TestResolveBareVoiceInference(t *testing.T) {
	r := NewResolver(session.NewEntitlementGate())
	ent := activeEnt(map[string]string{"standard": "google"})

	dec, err := r.Resolve(Request{Voice: "mm_speaker1", Tier: TierStandard, LanguageCode: "fr"}, ent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Provider != ProviderMinimax {
		t.Errorf("Provider = %q, want minimax", dec.Provider)
	}
}

func TestResolveGeminiStreamingSubstitution(t *testing.T) {
	r := NewResolver(session.NewEntitlementGate())
	ent := activeEnt(map[string]string{"gemini": "gemini"})

	dec, err := r.Resolve(Request{Voice: "gemini:gemini:-:gemini-orus", Tier: TierGemini, LanguageCode: "en"}, ent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.VoiceName != "gemini-orus-live" {
		t.Errorf("VoiceName = %q, want substituted streaming voice", dec.VoiceName)
	}
	if dec.Model != "gemini-2.0-flash-live" {
		t.Errorf("Model = %q, want downgraded streaming model", dec.Model)
	}
}

func TestResolveUnknownTier(t *testing.T) {
	r := NewResolver(session.NewEntitlementGate())
	ent := activeEnt(map[string]string{"made_up": "x"})

	_, err := r.Resolve(Request{Voice: "el_rachel", Tier: "made_up", LanguageCode: "en"}, ent)
	se, ok := streamerr.AsError(err)
	if !ok || se.Code != streamerr.InvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for unknown tier, got %v", err)
	}
}
