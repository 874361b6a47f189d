package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
)

// BusResponder is the production [Responder]: it forwards utterances to the
// conversation collaborator over NATS request/reply on
// [protocol.SubjectConversation]. The collaborator runs elsewhere on the
// vehicle platform; carbot only speaks its answers.
type BusResponder struct {
	client *bus.Client
}

// Compile-time interface assertion.
var _ Responder = (*BusResponder)(nil)

// NewBusResponder creates a responder on the given bus client.
func NewBusResponder(client *bus.Client) *BusResponder {
	return &BusResponder{client: client}
}

// Respond sends a ConversationRequest and decodes the ConversationReply.
// The deadline comes from ctx; the orchestrator applies its responder
// timeout before calling.
func (r *BusResponder) Respond(ctx context.Context, utterance string) (Reply, error) {
	conn := r.client.Conn()
	if conn == nil {
		return Reply{}, errors.New("orchestrator: bus responder has no connection")
	}

	payload, err := json.Marshal(protocol.ConversationRequest{
		Utterance: utterance,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("orchestrator: encode conversation request: %w", err)
	}

	msg, err := conn.RequestWithContext(ctx, protocol.SubjectConversation, payload)
	if err != nil {
		return Reply{}, fmt.Errorf("orchestrator: conversation request: %w", err)
	}

	var reply protocol.ConversationReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Reply{}, fmt.Errorf("orchestrator: decode conversation reply: %w", err)
	}
	return Reply{Text: reply.Text, Urgent: reply.Urgent}, nil
}
