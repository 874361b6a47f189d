package wake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine/spotter"
)

// transcribeTimeout bounds one utterance decode. A trigger-phrase utterance
// is at most two seconds of audio; a collaborator slower than this is
// effectively down and the candidate is better dropped than delayed.
const transcribeTimeout = 2 * time.Second

// BusTranscriber decodes candidate wake utterances through the vehicle's
// speech-to-text collaborator over NATS request/reply on
// [protocol.SubjectTranscribe].
type BusTranscriber struct {
	client *bus.Client
}

// Compile-time interface assertion.
var _ spotter.Transcriber = (*BusTranscriber)(nil)

// NewBusTranscriber creates a transcriber on the given bus client.
func NewBusTranscriber(client *bus.Client) *BusTranscriber {
	return &BusTranscriber{client: client}
}

// Transcribe sends the utterance PCM to the collaborator and returns the
// decoded text. An empty transcript is a valid answer (nothing
// intelligible); errors mean the collaborator is unreachable.
func (t *BusTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	conn := t.client.Conn()
	if conn == nil {
		return "", errors.New("wake: transcriber has no bus connection")
	}

	payload, err := json.Marshal(protocol.TranscribeRequest{PCM: pcm, SampleRate: sampleRate})
	if err != nil {
		return "", fmt.Errorf("wake: encode transcribe request: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()
	msg, err := conn.RequestWithContext(rctx, protocol.SubjectTranscribe, payload)
	if err != nil {
		return "", fmt.Errorf("wake: transcribe request: %w", err)
	}

	var reply protocol.TranscribeReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("wake: decode transcribe reply: %w", err)
	}
	return reply.Text, nil
}
