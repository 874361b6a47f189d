package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/natsserver"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/protocol"
)

// startBus spins up an embedded NATS server plus a connected client and
// registers cleanup for both.
func startBus(t *testing.T) *bus.Client {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	srv, err := natsserver.Start(log)
	if err != nil {
		t.Fatalf("start embedded NATS: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(config.BusConfig{URL: srv.ClientURL()}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestBusResponder_RoundTrip(t *testing.T) {
	client := startBus(t)

	// Fake conversation collaborator.
	sub, err := client.Conn().Subscribe(protocol.SubjectConversation, func(msg *nats.Msg) {
		var req protocol.ConversationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Utterance != "what is the weather" {
			t.Errorf("utterance = %q", req.Utterance)
		}
		if req.RequestID == "" {
			t.Error("request has no request_id")
		}
		data, _ := json.Marshal(protocol.ConversationReply{Text: "Sunny and 22 degrees.", Urgent: false})
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := NewBusResponder(client).Respond(ctx, "what is the weather")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "Sunny and 22 degrees." {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.Urgent {
		t.Error("reply unexpectedly urgent")
	}
}

func TestBusResponder_NoCollaborator(t *testing.T) {
	client := startBus(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := NewBusResponder(client).Respond(ctx, "anyone there"); err == nil {
		t.Fatal("expected error with no collaborator subscribed")
	}
}
