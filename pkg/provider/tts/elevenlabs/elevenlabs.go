// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider
// interface as the primary (high-fidelity, remote) synthesis tier.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/coder/websocket"

	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_22050"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Only the pcm_* family is
// supported; the sample rate is parsed from the format name.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns "elevenlabs".
func (p *Provider) Name() string { return "elevenlabs" }

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// textMessage carries one text fragment; TryTriggerGeneration forces the
// server to flush audio for short inputs.
type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

// eosMessage (empty text) signals end of input.
type eosMessage struct {
	Text string `json:"text"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends the full text, and
// collects audio chunks until the server marks the stream final. The whole
// exchange is bounded by ctx; the caller applies the tier fallback timeout.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.Params) (tts.Audio, error) {
	if text == "" {
		return tts.Audio{}, errors.New("elevenlabs: empty text")
	}
	voiceID := params.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voiceID, p.model, p.outputFormat)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	settings := &voiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}
	if params.Rate > 0 {
		settings.Speed = params.Rate
	}

	// BOI handshake authenticates and configures the stream. ElevenLabs
	// requires a non-empty first text value.
	if err := writeJSON(ctx, conn, boiMessage{Text: " ", VoiceSettings: settings, XiAPIKey: p.apiKey}); err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}
	if err := writeJSON(ctx, conn, textMessage{Text: text + " ", TryTriggerGeneration: true}); err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	if err := writeJSON(ctx, conn, eosMessage{}); err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: send EOS: %w", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// A normal closure after at least one audio chunk is a
			// complete stream; anything else is a failure.
			if len(pcm) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Audio{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return tts.Audio{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	if len(pcm) == 0 {
		return tts.Audio{}, errors.New("elevenlabs: stream produced no audio")
	}

	return tts.Audio{
		PCM:        pcm,
		SampleRate: sampleRateFromFormat(p.outputFormat),
		Channels:   1,
	}, nil
}

// writeJSON marshals v and writes it as a text frame.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// sampleRateFromFormat parses the rate out of a pcm_NNNNN format name,
// defaulting to 22050 for unrecognised values.
func sampleRateFromFormat(format string) int {
	if len(format) > 4 && format[:4] == "pcm_" {
		if r, err := strconv.Atoi(format[4:]); err == nil {
			return r
		}
	}
	return 22050
}
