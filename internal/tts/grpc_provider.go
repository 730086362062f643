package tts

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jkang1643/exbabel/internal/streamerr"
)

// rawCodec passes frames through as opaque bytes. The pack carries no
// protoc-generated stub for any bidi-streaming TTS service, so this
// adapter talks to the wire as JSON-over-length-prefixed-bytes rather
// than fabricating a .proto-derived message type.
type rawCodec struct{}

func (rawCodec) Name() string { return "raw-json" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.(*[]byte); ok {
		return *b, nil
	}
	return json.Marshal(v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	if b, ok := v.(*[]byte); ok {
		*b = append((*b)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, v)
}

// grpcTTSStreamDesc describes the bidi-streaming synthesize RPC. Method
// and service name match spec.md §6's provider-agnostic synthesize
// contract; a real deployment would point this at the vendor's actual
// service/method name via GRPCProviderConfig.
var grpcTTSStreamDesc = grpc.StreamDesc{
	StreamName:    "Synthesize",
	ServerStreams: true,
	ClientStreams: true,
}

// GRPCProvider adapts a bidirectional-streaming gRPC TTS service to the
// Provider contract. It only opens a stream; there is no unary
// fallback, so a server that rejects streaming surfaces as a
// StreamingError on the returned ChunkStream.
type GRPCProvider struct {
	conn       *grpc.ClientConn
	fullMethod string
}

// GRPCProviderConfig configures a GRPCProvider.
type GRPCProviderConfig struct {
	Target     string // host:port
	FullMethod string // e.g. "/tts.v1.Synthesizer/Synthesize"
	Insecure   bool
}

// NewGRPCProvider dials target and returns a ready GRPCProvider.
func NewGRPCProvider(cfg GRPCProviderConfig) (*GRPCProvider, error) {
	var creds grpc.DialOption
	if cfg.Insecure {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	} else {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	}

	conn, err := grpc.NewClient(cfg.Target, creds, grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})))
	if err != nil {
		return nil, fmt.Errorf("tts: dial grpc target %q: %w", cfg.Target, err)
	}
	return &GRPCProvider{conn: conn, fullMethod: cfg.FullMethod}, nil
}

type grpcSynthesizeRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	LanguageCode string `json:"language_code,omitempty"`
	Model        string `json:"model,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
}

type grpcSynthesizeChunk struct {
	Audio []byte `json:"audio"`
	Done  bool   `json:"done"`
}

// StreamTTS opens a bidi stream, sends one synthesis request, and
// relays server chunks onto a ChunkStream until the server half-closes
// or the caller cancels.
func (p *GRPCProvider) StreamTTS(ctx context.Context, req Request) (*ChunkStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	clientStream, err := p.conn.NewStream(streamCtx, &grpcTTSStreamDesc, p.fullMethod)
	if err != nil {
		cancel()
		return nil, streamerr.Wrap(streamerr.StreamingError, "open grpc tts stream", err)
	}

	payload, err := json.Marshal(grpcSynthesizeRequest{
		Text:         req.Text,
		Voice:        req.VoiceName,
		LanguageCode: req.LanguageCode,
		Model:        req.Model,
		Encoding:     req.AudioEncoding,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tts: marshal grpc request: %w", err)
	}
	if err := clientStream.SendMsg(&payload); err != nil {
		cancel()
		return nil, streamerr.Wrap(streamerr.StreamingError, "send grpc tts request", err)
	}
	if err := clientStream.CloseSend(); err != nil {
		cancel()
		return nil, streamerr.Wrap(streamerr.StreamingError, "close grpc send side", err)
	}

	stream := NewChunkStream(16, cancel)

	go func() {
		for {
			var raw []byte
			if err := clientStream.RecvMsg(&raw); err != nil {
				if err == io.EOF {
					stream.Close(nil)
				} else {
					stream.Close(streamerr.Wrap(streamerr.StreamingError, "grpc tts recv", err))
				}
				return
			}

			var chunk grpcSynthesizeChunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				continue
			}
			if chunk.Done {
				stream.Close(nil)
				return
			}
			if !stream.Push(streamCtx, chunk.Audio) {
				return
			}
		}
	}()

	return stream, nil
}

// Close releases the underlying gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}
