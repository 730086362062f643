package wsproto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	meta := FrameMeta{
		StreamID:   "s1:1690000000",
		SegmentID:  "s1:seg:3",
		Version:    1,
		ChunkIndex: 2,
		IsLast:     false,
	}
	payload := []byte{0x01, 0x02, 0x03, 0x04}

	encoded, err := EncodeFrame("EXA1", meta, payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	if !bytes.HasPrefix(encoded, []byte("EXA1")) {
		t.Fatalf("encoded frame missing magic prefix: %x", encoded[:4])
	}

	gotMeta, gotPayload, err := DecodeFrame("EXA1", encoded)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	if gotMeta != meta {
		t.Errorf("DecodeFrame meta = %+v, want %+v", gotMeta, meta)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("DecodeFrame payload = %x, want %x", gotPayload, payload)
	}
}

func TestEncodeFrameZeroLengthLastChunk(t *testing.T) {
	meta := FrameMeta{StreamID: "s1:1", SegmentID: "s1:seg:1", Version: 1, ChunkIndex: 5, IsLast: true}

	encoded, err := EncodeFrame("EXA1", meta, nil)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	gotMeta, gotPayload, err := DecodeFrame("EXA1", encoded)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !gotMeta.IsLast {
		t.Error("expected IsLast=true to survive round-trip")
	}
	if len(gotPayload) != 0 {
		t.Errorf("expected zero-length payload, got %d bytes", len(gotPayload))
	}
}

func TestEncodeFrameRejectsOversizedMeta(t *testing.T) {
	meta := FrameMeta{
		StreamID:  strings.Repeat("x", 400),
		SegmentID: "s1:seg:1",
	}

	if _, err := EncodeFrame("EXA1", meta, nil); err == nil {
		t.Fatal("expected error for oversized metadata, got nil")
	}
}

func TestDecodeFrameBadMagic(t *testing.T) {
	if _, _, err := DecodeFrame("EXA1", []byte("NOPE\x00")); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestParseTypeIgnoresUnknown(t *testing.T) {
	typ, err := ParseType([]byte(`{"type":"some.future.message","x":1}`))
	if err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if typ != "some.future.message" {
		t.Errorf("ParseType = %q, want some.future.message", typ)
	}
}
