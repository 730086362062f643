package tts

import (
	"context"
	"encoding/binary"

	opuscodec "github.com/jj11hh/opus"
)

// rewrapSampleRate/rewrapChannels match the linear PCM a raw-PCM
// backend emits before container rewrap, chosen to match common TTS
// output rates (mono, speech-bandwidth).
const (
	rewrapSampleRate = 24000
	rewrapChannels   = 1
	rewrapFrameSize  = 960 // 40ms at 24kHz, within Opus's fixed frame durations
	rewrapPacketSize = 1275
)

// OpusRewrapProvider wraps a Provider whose native output is linear
// PCM16 and re-encodes every chunk to Opus before it reaches the
// listener, used for the cold path of spec.md §4.D's container rewrap
// step: a provider whose backend cannot itself emit Opus still yields
// Opus audio. Each chunk it emits is one bare Opus packet; no Ogg or
// WebM container is written around the packets.
//
// Grounded on livetranslate/realtime/webrtc_client.go's
// opusEncoder/EncodeFloat32 usage (there encoding microphone capture
// for WebRTC; here encoding synthesized speech for broadcast).
type OpusRewrapProvider struct {
	inner Provider
}

// NewOpusRewrapProvider constructs a rewrap decorator around inner.
func NewOpusRewrapProvider(inner Provider) *OpusRewrapProvider {
	return &OpusRewrapProvider{inner: inner}
}

// StreamTTS requests PCM16 from the wrapped provider and re-encodes
// each chunk to Opus before forwarding it on a new ChunkStream.
func (p *OpusRewrapProvider) StreamTTS(ctx context.Context, req Request) (*ChunkStream, error) {
	pcmReq := req
	pcmReq.AudioEncoding = "pcm16"

	inner, err := p.inner.StreamTTS(ctx, pcmReq)
	if err != nil {
		return nil, err
	}

	encoder, err := opuscodec.NewEncoder(rewrapSampleRate, rewrapChannels, opuscodec.AppVoIP)
	if err != nil {
		inner.Cancel()
		return nil, err
	}

	out := NewChunkStream(8, inner.Cancel)
	go func() {
		defer out.Close(inner.Err())
		var pending []float32
		for chunk := range inner.Chunks() {
			pending = append(pending, pcm16ToFloat32(chunk)...)
			for len(pending) >= rewrapFrameSize {
				frame := pending[:rewrapFrameSize]
				pending = pending[rewrapFrameSize:]

				packet := make([]byte, rewrapPacketSize)
				n, encErr := encoder.EncodeFloat32(frame, packet)
				if encErr != nil {
					continue
				}
				if !out.Push(ctx, packet[:n]) {
					return
				}
			}
		}
	}()

	return out, nil
}

// pcm16ToFloat32 converts little-endian signed 16-bit PCM samples to
// the float32 range Opus's encoder expects.
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(sample) / 32768.0
	}
	return out
}
