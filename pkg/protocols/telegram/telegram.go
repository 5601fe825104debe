// Package telegram implements the Telegram channel via the Bot API with long
// polling. Inbound messages are answered by the model; outbound messages go
// to the message's recipient chat or the configured default chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/llm"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// Protocol is the Telegram channel.
type Protocol struct {
	*protocol.Runner
	cfg    config.TelegramConfig
	llm    llm.Client
	bot    *telego.Bot
	cancel context.CancelFunc
}

// New creates the Telegram protocol from its config section.
func New(cfg config.TelegramConfig, client llm.Client) *Protocol {
	p := &Protocol{cfg: cfg, llm: client}
	p.Runner = protocol.NewRunner("telegram", cfg.Redacted(), protocol.Hooks{
		Connect:    p.connect,
		Disconnect: p.disconnect,
		Deliver:    p.deliver,
	})
	return p
}

func (p *Protocol) connect(ctx context.Context) error {
	if p.cfg.Token == "" {
		return fmt.Errorf("telegram: token not configured")
	}
	bot, err := telego.NewBot(p.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: get me: %w", err)
	}

	// Polling outlives the connect call; it stops on Disconnect.
	pollCtx, cancel := context.WithCancel(context.Background())
	updates, err := bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start polling: %w", err)
	}

	p.bot = bot
	p.cancel = cancel
	go p.poll(pollCtx, bot, updates)

	logger.InfoCF("telegram", "Bot connected", map[string]interface{}{
		"username": me.Username,
	})
	return nil
}

func (p *Protocol) disconnect(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.bot = nil
	return nil
}

func (p *Protocol) deliver(ctx context.Context, msg *message.Message) error {
	chatID := p.cfg.ChatID
	if msg.Recipient != "" {
		id, err := strconv.ParseInt(msg.Recipient, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram: recipient %q is not a chat id", msg.Recipient)
		}
		chatID = id
	}
	if chatID == 0 {
		return fmt.Errorf("telegram: no target chat for message %s", msg.ID)
	}
	if _, err := p.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// poll answers inbound updates through the model. The bot handle is passed
// in rather than read from the struct so a concurrent Disconnect nilling
// p.bot cannot race the loop; the loop itself ends when Disconnect cancels
// ctx and the updates channel closes.
func (p *Protocol) poll(ctx context.Context, bot *telego.Bot, updates <-chan telego.Update) {
	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		if p.llm == nil {
			continue
		}
		text, err := p.llm.Generate(ctx, update.Message.Text)
		if err != nil {
			logger.ErrorCF("telegram", "Model reply failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		chatID := update.Message.Chat.ID
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			logger.ErrorCF("telegram", "Reply send failed", map[string]interface{}{
				"chat_id": chatID,
				"error":   err.Error(),
			})
		}
	}
}

var _ protocol.Protocol = (*Protocol)(nil)
