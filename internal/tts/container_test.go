package tts

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
)

type pcmProvider struct {
	samples int
}

func (p *pcmProvider) StreamTTS(ctx context.Context, req Request) (*ChunkStream, error) {
	stream := NewChunkStream(4, func() {})
	go func() {
		buf := make([]byte, p.samples*2)
		for i := 0; i < p.samples; i++ {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(1000)))
		}
		stream.Push(ctx, buf)
		stream.Close(nil)
	}()
	return stream, nil
}

func TestOpusRewrapProviderEncodesPCMChunks(t *testing.T) {
	inner := &pcmProvider{samples: rewrapFrameSize * 2}
	wrapped := NewOpusRewrapProvider(inner)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream, err := wrapped.StreamTTS(ctx, Request{Text: "hola", AudioEncoding: "opus-webm"})
	if err != nil {
		t.Fatalf("StreamTTS: %v", err)
	}

	var packets int
	for range stream.Chunks() {
		packets++
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if packets == 0 {
		t.Fatal("expected at least one encoded opus packet")
	}
}
