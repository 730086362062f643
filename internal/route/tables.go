package route

// Tier is a grouping of voices by capability/price; tiers are gated by
// entitlements, per spec.md §4.B step 2.
type Tier string

const (
	TierStandard      Tier = "standard"
	TierNeural2       Tier = "neural2"
	TierWavenet       Tier = "wavenet"
	TierStudio        Tier = "studio"
	TierChirp3HD       Tier = "chirp3_hd"
	TierGemini        Tier = "gemini"
	// vendor-named streaming tiers
	TierElevenFlash   Tier = "elevenlabs_flash"
	TierElevenTurbo   Tier = "elevenlabs_turbo"
	TierMinimaxSpeech Tier = "minimax_speech"
)

var knownTiers = map[Tier]bool{
	TierStandard: true, TierNeural2: true, TierWavenet: true,
	TierStudio: true, TierChirp3HD: true, TierGemini: true,
	TierElevenFlash: true, TierElevenTurbo: true, TierMinimaxSpeech: true,
}

// Provider identifies a concrete TTS backend.
type Provider string

const (
	ProviderGoogle     Provider = "google"
	ProviderElevenLabs Provider = "elevenlabs"
	ProviderMinimax    Provider = "minimax"
	ProviderGemini     Provider = "gemini"
)

// Codec is the wire audio codec emitted to listeners.
type Codec string

const (
	CodecOpusWebM Codec = "opus-webm"
	CodecMP3      Codec = "mp3"
)

// voicePatternProviders maps a voice-name prefix to the
// provider it implies, used when a bare voice name (no provider
// prefix) is supplied. Documented per spec.md §4.B step 1.
var voicePatternProviders = []struct {
	prefix   string
	provider Provider
}{
	{"el_", ProviderElevenLabs},
	{"mm_", ProviderMinimax},
	{"gemini-", ProviderGemini},
	{"en-US-", ProviderGoogle},
	{"en-GB-", ProviderGoogle},
}

// providerNativeCodec records whether a provider's native wire format
// is Opus-in-Ogg (in which case we re-wrap to Opus-in-WebM) or
// something else (in which case we emit MP3), per spec.md §4.B step 5.
var providerNativeCodec = map[Provider]Codec{
	ProviderElevenLabs: CodecOpusWebM,
	ProviderMinimax:    CodecOpusWebM,
	ProviderGoogle:     CodecMP3,
	ProviderGemini:     CodecMP3,
}

// bcp47 maps a bare ISO-639-1 code to its default BCP-47 locale, per
// spec.md §4.B step 4. Unknown codes pass through language.Parse.
var bcp47 = map[string]string{
	"es": "es-ES",
	"en": "en-US",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
	"ar": "ar-SA",
	"ru": "ru-RU",
}

// geminiStreamingSubstitutes maps a non-streaming Gemini voice to an
// equivalent streaming-capable voice plus the model to downgrade to,
// per spec.md §4.B step 6.
var geminiStreamingSubstitutes = map[string]struct {
	voice string
	model string
}{
	"gemini-orus":   {voice: "gemini-orus-live", model: "gemini-2.0-flash-live"},
	"gemini-aoede":  {voice: "gemini-aoede-live", model: "gemini-2.0-flash-live"},
}
