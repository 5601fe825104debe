// Package discord implements the Discord channel over the gateway API.
// Inbound guild messages are answered by the model; outbound messages are
// posted to the configured channel or the message's recipient channel.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/llm"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// Protocol is the Discord channel.
type Protocol struct {
	*protocol.Runner
	cfg     config.DiscordConfig
	llm     llm.Client
	session *discordgo.Session
}

// New creates the Discord protocol from its config section.
func New(cfg config.DiscordConfig, client llm.Client) *Protocol {
	p := &Protocol{cfg: cfg, llm: client}
	p.Runner = protocol.NewRunner("discord", cfg.Redacted(), protocol.Hooks{
		Connect:    p.connect,
		Disconnect: p.disconnect,
		Deliver:    p.deliver,
	})
	return p
}

func (p *Protocol) connect(ctx context.Context) error {
	if p.cfg.Token == "" {
		return fmt.Errorf("discord: token not configured")
	}
	session, err := discordgo.New("Bot " + p.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	session.AddHandler(p.onMessage)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	p.session = session
	logger.InfoC("discord", "Gateway connected")
	return nil
}

func (p *Protocol) disconnect(ctx context.Context) error {
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

func (p *Protocol) deliver(ctx context.Context, msg *message.Message) error {
	channelID := msg.Recipient
	if channelID == "" {
		channelID = p.cfg.ChannelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no target channel for message %s", msg.ID)
	}
	if _, err := p.session.ChannelMessageSend(channelID, msg.Content); err != nil {
		return fmt.Errorf("discord: send to %s: %w", channelID, err)
	}
	return nil
}

// onMessage answers inbound messages through the model.
func (p *Protocol) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if p.llm == nil || m.Content == "" {
		return
	}
	text, err := p.llm.Generate(context.Background(), m.Content)
	if err != nil {
		logger.ErrorCF("discord", "Model reply failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, text); err != nil {
		logger.ErrorCF("discord", "Reply send failed", map[string]interface{}{
			"channel": m.ChannelID,
			"error":   err.Error(),
		})
	}
}

var _ protocol.Protocol = (*Protocol)(nil)
