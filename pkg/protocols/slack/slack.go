// Package slack implements the Slack channel over the Web API
// (outbound-only: messages are posted, nothing is polled).
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// Protocol is the Slack channel.
type Protocol struct {
	*protocol.Runner
	cfg    config.SlackConfig
	client *slack.Client
}

// New creates the Slack protocol from its config section.
func New(cfg config.SlackConfig) *Protocol {
	p := &Protocol{cfg: cfg}
	p.Runner = protocol.NewRunner("slack", cfg.Redacted(), protocol.Hooks{
		Connect:    p.connect,
		Disconnect: p.disconnect,
		Deliver:    p.deliver,
	})
	return p
}

func (p *Protocol) connect(ctx context.Context) error {
	if p.cfg.Token == "" {
		return fmt.Errorf("slack: token not configured")
	}
	client := slack.New(p.cfg.Token)
	resp, err := client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	p.client = client
	logger.InfoCF("slack", "Authenticated", map[string]interface{}{
		"team": resp.Team,
		"user": resp.User,
	})
	return nil
}

func (p *Protocol) disconnect(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *Protocol) deliver(ctx context.Context, msg *message.Message) error {
	channel := msg.Recipient
	if channel == "" {
		channel = p.cfg.Channel
	}
	if channel == "" {
		return fmt.Errorf("slack: no target channel for message %s", msg.ID)
	}
	_, _, err := p.client.PostMessageContext(ctx, channel, slack.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("slack: post to %s: %w", channel, err)
	}
	return nil
}

var _ protocol.Protocol = (*Protocol)(nil)
