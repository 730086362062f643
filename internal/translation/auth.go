package translation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// ephemeralKeyMinter exchanges a long-lived provider API key for a
// short-lived realtime client secret before a PoolSession dials the
// wire, so the bearer token handed to the remote translation endpoint
// expires on its own rather than living for the process's lifetime.
//
// Grounded on livetranslate/realtime/session.go's
// SessionManager.CreateSession, which does the same exchange for a
// WebRTC transcription session; here the minted secret authenticates
// a pool session's translation WebSocket instead.
type ephemeralKeyMinter struct {
	client *openai.Client
}

func newEphemeralKeyMinter(apiKey string) *ephemeralKeyMinter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &ephemeralKeyMinter{client: &client}
}

// mint requests a client secret scoped to sourceLang and returns its
// value, ready to use as the wire client's bearer token.
func (m *ephemeralKeyMinter) mint(ctx context.Context, sourceLang string) (string, error) {
	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						Transcription: realtime.AudioTranscriptionParam{
							Model:    realtime.AudioTranscriptionModelGPT4oTranscribe,
							Language: openai.String(sourceLang),
						},
					},
				},
			},
		},
	}

	resp, err := m.client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("mint ephemeral translation key: %w", err)
	}
	return resp.Value, nil
}
