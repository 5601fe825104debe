// Package chat implements the in-process chat channel. It has no external
// transport: outbound messages land in an in-memory transcript, and user
// messages are answered by the model and appended to the same transcript.
// It exists so the gateway is usable (and testable) with zero credentials.
package chat

import (
	"context"
	"sync"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/llm"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// Protocol is the in-process chat channel.
type Protocol struct {
	*protocol.Runner
	llm     llm.Client
	mu      sync.Mutex
	history []*message.Message
}

// New creates the chat protocol. The client may be nil, in which case user
// messages are recorded without a model reply.
func New(cfg config.ChatConfig, client llm.Client) *Protocol {
	p := &Protocol{llm: client}
	p.Runner = protocol.NewRunner("chat", map[string]interface{}{
		"mode": "in-process",
	}, protocol.Hooks{
		Deliver: p.deliver,
	})
	return p
}

func (p *Protocol) deliver(ctx context.Context, msg *message.Message) error {
	p.append(msg)
	logger.InfoCF("chat", "Message delivered", map[string]interface{}{
		"message_id": msg.ID,
		"sender":     msg.Sender,
	})

	// User-originated messages get a model reply, the channel's receive loop.
	if p.llm == nil || msg.Sender == message.SenderLLM {
		return nil
	}
	text, err := p.llm.Generate(ctx, msg.Content)
	if err != nil {
		return err
	}
	reply, err := message.New(text, message.SenderLLM, p.Name())
	if err != nil {
		return err
	}
	reply.WithRecipient(msg.Sender).WithMetadata(map[string]interface{}{
		message.MetaInResponseTo: msg.ID,
	})
	p.append(reply)
	return nil
}

func (p *Protocol) append(msg *message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, msg)
}

// History returns a copy of the transcript.
func (p *Protocol) History() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*message.Message, len(p.history))
	copy(out, p.history)
	return out
}

var _ protocol.Protocol = (*Protocol)(nil)
