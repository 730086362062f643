package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jkang1643/exbabel/internal/streamerr"
)

// HTTPProvider adapts a chunked/SSE HTTP streaming TTS endpoint to the
// Provider contract. Grounded on llm/openai.go's StreamComplete: same
// bufio.Scanner-over-"data: " framing, generalised from JSON text
// deltas to base64-encoded audio chunk deltas.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPProvider constructs an HTTPProvider from cfg.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPProvider{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: client}
}

type httpTTSRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	LanguageCode string `json:"language_code,omitempty"`
	Model        string `json:"model,omitempty"`
	Encoding     string `json:"audio_encoding,omitempty"`
	Stream       bool   `json:"stream"`
}

type httpTTSChunk struct {
	AudioDelta string `json:"audio_delta,omitempty"`
	Done       bool   `json:"done,omitempty"`
}

// StreamTTS posts a streaming synthesis request and decodes the
// provider's server-sent audio-chunk events onto a ChunkStream.
func (p *HTTPProvider) StreamTTS(ctx context.Context, req Request) (*ChunkStream, error) {
	body, err := json.Marshal(httpTTSRequest{
		Text:         req.Text,
		Voice:        req.VoiceName,
		LanguageCode: req.LanguageCode,
		Model:        req.Model,
		Encoding:     req.AudioEncoding,
		Stream:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, streamerr.Wrap(streamerr.StreamingError, "tts http request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, streamerr.New(streamerr.StreamingError, fmt.Sprintf("tts provider error %d: %s", resp.StatusCode, string(errBody)))
	}

	stream := NewChunkStream(16, cancel)

	go func() {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				stream.Close(nil)
				return
			}

			var chunk httpTTSChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Done {
				stream.Close(nil)
				return
			}
			if chunk.AudioDelta == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(chunk.AudioDelta)
			if err != nil {
				continue
			}
			if !stream.Push(streamCtx, audio) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			stream.Close(fmt.Errorf("tts: stream read: %w", err))
			return
		}
		stream.Close(nil)
	}()

	return stream, nil
}
