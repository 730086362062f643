// Package wsproto implements the binary audio frame and JSON control
// channel wire formats described in spec.md §6.1/§6.2.
package wsproto

import (
	"encoding/json"
	"fmt"
)

// FrameMeta is the mandatory metadata carried in every binary audio
// frame header.
type FrameMeta struct {
	StreamID   string `json:"streamId"`
	SegmentID  string `json:"segmentId"`
	Version    int    `json:"version"`
	ChunkIndex int    `json:"chunkIndex"`
	IsLast     bool   `json:"isLast"`
}

// maxHeaderLen is the largest metadata JSON payload the single-byte
// headerLen field can address.
const maxHeaderLen = 255

// EncodeFrame wraps payload with the magic/headerLen/metadata header
// described in spec.md §6.1. It fails if the metadata JSON exceeds 255
// bytes, the header length field's range.
func EncodeFrame(magic string, meta FrameMeta, payload []byte) ([]byte, error) {
	if len(magic) != 4 {
		return nil, fmt.Errorf("wsproto: magic must be 4 bytes, got %d", len(magic))
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("wsproto: marshal frame meta: %w", err)
	}
	if len(metaJSON) > maxHeaderLen {
		return nil, fmt.Errorf("wsproto: frame meta %d bytes exceeds %d-byte limit", len(metaJSON), maxHeaderLen)
	}

	buf := make([]byte, 0, 4+1+len(metaJSON)+len(payload))
	buf = append(buf, magic...)
	buf = append(buf, byte(len(metaJSON)))
	buf = append(buf, metaJSON...)
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeFrame parses a frame produced by EncodeFrame, validating the
// magic prefix.
func DecodeFrame(magic string, data []byte) (FrameMeta, []byte, error) {
	var meta FrameMeta

	if len(data) < 5 {
		return meta, nil, fmt.Errorf("wsproto: frame too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != magic {
		return meta, nil, fmt.Errorf("wsproto: bad magic %q, want %q", data[0:4], magic)
	}

	headerLen := int(data[4])
	if len(data) < 5+headerLen {
		return meta, nil, fmt.Errorf("wsproto: truncated header (want %d bytes, have %d)", headerLen, len(data)-5)
	}

	if err := json.Unmarshal(data[5:5+headerLen], &meta); err != nil {
		return meta, nil, fmt.Errorf("wsproto: unmarshal frame meta: %w", err)
	}

	payload := data[5+headerLen:]
	return meta, payload, nil
}
