// Package protocol defines the bus subjects and message payloads exchanged
// between carbot and the rest of the vehicle platform.
package protocol

import "time"

const (
	// SubjectWakeEvent carries WakeNotice messages, published by the
	// wake-word monitor for diagnostics and UI consumers.
	SubjectWakeEvent = "carbot.wake.event"

	// SubjectDuckingEvent carries DuckingNotice messages so a UI layer can
	// show visual feedback while assistant speech ducks other audio.
	SubjectDuckingEvent = "carbot.ducking.event"

	// SubjectMediaState carries MediaState messages from the car platform's
	// media-session observer into the ducking coordinator.
	SubjectMediaState = "carbot.media.state"

	// SubjectManualTrigger fires a manual wake event, equivalent to a tap
	// on the assistant UI control.
	SubjectManualTrigger = "carbot.wake.manual"

	// SubjectMediaCommand carries MediaCommand messages to the car
	// platform, e.g. pausing music during an emergency announcement.
	SubjectMediaCommand = "carbot.media.command"

	// SubjectUtterance carries recognized user speech from the vehicle's
	// speech-to-text service into the orchestrator.
	SubjectUtterance = "carbot.speech.utterance"

	// SubjectConversation is the request/reply subject of the conversation
	// collaborator: carbot sends a ConversationRequest and expects a
	// ConversationReply on the reply inbox.
	SubjectConversation = "carbot.conversation.request"

	// SubjectTranscribe is the request/reply subject of the speech-to-text
	// collaborator: carbot sends a TranscribeRequest with a candidate
	// wake utterance and expects a TranscribeReply on the reply inbox.
	SubjectTranscribe = "carbot.speech.transcribe"
)

// TranscribeRequest asks the speech-to-text collaborator to decode a
// candidate utterance.
type TranscribeRequest struct {
	// PCM is the utterance as mono 16-bit little-endian samples,
	// base64-encoded on the wire.
	PCM []byte `json:"pcm"`

	// SampleRate of the PCM in Hz.
	SampleRate int `json:"sample_rate"`
}

// TranscribeReply is the decoded text of a candidate utterance.
type TranscribeReply struct {
	// Text is the transcript; empty when nothing intelligible was heard.
	Text string `json:"text"`
}

// Utterance is recognized user speech awaiting a reply.
type Utterance struct {
	// Text is the recognized utterance.
	Text string `json:"text"`

	// Confidence is the recognizer's confidence in [0.0, 1.0], where
	// available.
	Confidence float64 `json:"confidence,omitempty"`
}

// ConversationRequest asks the conversation collaborator for a reply.
type ConversationRequest struct {
	// Utterance is the recognized user speech.
	Utterance string `json:"utterance"`

	// RequestID correlates the exchange in logs on both sides.
	RequestID string `json:"request_id"`
}

// ConversationReply is the collaborator's answer.
type ConversationReply struct {
	// Text is the reply to speak.
	Text string `json:"text"`

	// Urgent marks safety-relevant replies that must not wait on remote
	// synthesis.
	Urgent bool `json:"urgent,omitempty"`
}

// MediaCommand asks the car platform to act on a competing audio source.
type MediaCommand struct {
	// Action is the requested operation. Currently only "pause".
	Action string `json:"action"`

	// Source is the target audio source ("music"), or empty for all
	// pausable sources.
	Source string `json:"source,omitempty"`
}

// WakeNotice is the bus representation of a wake event.
type WakeNotice struct {
	// Confidence is the detection confidence in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// Source identifies how the event was raised: "engine", "simulated"
	// or "manual".
	Source string `json:"source"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// DuckingNotice reports a ducking state change.
type DuckingNotice struct {
	// Started is true for duckingStarted and false for duckingEnded.
	Started bool `json:"started"`

	// Profile is the ducking profile key that was applied
	// (e.g. "music_loud", "emergency").
	Profile string `json:"profile"`

	// Level is the bus volume after the change.
	Level float64 `json:"level"`

	// TransactionID correlates the started/ended pair.
	TransactionID string `json:"transaction_id"`

	// Timestamp is when the change took effect.
	Timestamp time.Time `json:"timestamp"`
}

// MediaState is a media-session activity signal from the car platform.
type MediaState struct {
	// Source is the competing audio source: "music", "navigation", "phone".
	Source string `json:"source"`

	// Active reports whether the source is currently producing audio.
	Active bool `json:"active"`

	// Volume is the source's own volume in [0.0, 1.0] where exposed.
	Volume float64 `json:"volume,omitempty"`
}
