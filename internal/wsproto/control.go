package wsproto

import "encoding/json"

// Control message type discriminators, per spec.md §4.A.
const (
	TypeAudioHello  = "audio.hello"
	TypeAudioReady  = "audio.ready"
	TypeAudioSetLang = "audio.set_lang"
	TypeAudioAck    = "audio.ack"
	TypeAudioStart  = "audio.start"
	TypeAudioEnd    = "audio.end"
	TypeAudioCancel = "audio.cancel"
	TypeAudioError  = "audio.error"
)

// Envelope is the discriminator every control message carries. Callers
// unmarshal into Envelope first to dispatch on Type, then unmarshal the
// full payload into the concrete message struct.
type Envelope struct {
	Type string `json:"type"`
}

// ParseType extracts the type discriminator from a raw control message,
// per spec.md §6.2: unknown types are ignored with a warning, never an
// error that closes the connection.
func ParseType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// AudioHello is the client->server capability negotiation message.
type AudioHello struct {
	Type              string   `json:"type"`
	ClientID          string   `json:"clientId"`
	Capabilities      []string `json:"capabilities"`
	DesiredCodec      string   `json:"desiredCodec"`
	DesiredSampleRate int      `json:"desiredSampleRate"`
	TargetLang        string   `json:"targetLang,omitempty"`
}

// AudioSetLang updates a listener's subscribed language mid-session.
type AudioSetLang struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Lang     string `json:"lang"`
}

// AudioAck is an optional, advisory diagnostic acknowledgement from a
// listener. Per spec.md §9 Open Questions, it never gates flow control.
type AudioAck struct {
	Type       string `json:"type"`
	StreamID   string `json:"streamId"`
	SegmentID  string `json:"segmentId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// AudioReady is sent exactly once in reply to audio.hello.
type AudioReady struct {
	Type       string `json:"type"`
	StreamID   string `json:"streamId"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	// JitterBufferHintMs is purely advisory, per spec.md §6.5.
	JitterBufferHintMs int `json:"jitterBufferHintMs,omitempty"`
}

// AudioStart is the preamble broadcast before a segment's audio chunks.
type AudioStart struct {
	Type        string `json:"type"`
	StreamID    string `json:"streamId"`
	SegmentID   string `json:"segmentId"`
	Version     int    `json:"version"`
	SeqID       uint64 `json:"seqId"`
	Lang        string `json:"lang"`
	VoiceID     string `json:"voiceId"`
	TextPreview string `json:"textPreview"`
	Codec       string `json:"codec"`
	Routing     any    `json:"routing,omitempty"`
}

// AudioEnd marks a segment's audio as complete.
type AudioEnd struct {
	Type      string `json:"type"`
	StreamID  string `json:"streamId"`
	SegmentID string `json:"segmentId"`
	Version   int    `json:"version"`
}

// AudioCancel reports a segment or session cancellation.
type AudioCancel struct {
	Type      string `json:"type"`
	StreamID  string `json:"streamId"`
	Reason    string `json:"reason"`
	SegmentID string `json:"segmentId,omitempty"`
}

// AudioError is the sole error-shaped message a listener ever receives.
type AudioError struct {
	Type      string `json:"type"`
	StreamID  string `json:"streamId,omitempty"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}
