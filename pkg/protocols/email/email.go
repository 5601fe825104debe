// Package email implements the SMTP outbound channel. Messages are submitted
// once to the configured relay; the recipient comes from the message, with no
// inbox polling (outbound-only).
package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// Protocol is the SMTP channel.
type Protocol struct {
	*protocol.Runner
	cfg config.EmailConfig

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates the email protocol from its config section.
func New(cfg config.EmailConfig) *Protocol {
	p := &Protocol{cfg: cfg, send: smtp.SendMail}
	p.Runner = protocol.NewRunner("email", cfg.Redacted(), protocol.Hooks{
		Connect: p.connect,
		Deliver: p.deliver,
	})
	return p
}

func (p *Protocol) connect(ctx context.Context) error {
	if p.cfg.Host == "" {
		return fmt.Errorf("email: host not configured")
	}
	if p.cfg.From == "" && p.cfg.User == "" {
		return fmt.Errorf("email: neither from address nor user configured")
	}
	logger.InfoCF("email", "SMTP channel ready", map[string]interface{}{
		"host": p.cfg.Host,
		"port": p.cfg.Port,
	})
	return nil
}

func (p *Protocol) deliver(ctx context.Context, msg *message.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("email: message has no recipient")
	}

	from := p.cfg.From
	if from == "" {
		from = p.cfg.User
	}

	subject := "Message from relaygate"
	if s, ok := msg.Metadata["subject"].(string); ok && s != "" {
		subject = s
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		from, msg.Recipient, subject, msg.Content)

	var auth smtp.Auth
	if p.cfg.User != "" && p.cfg.Password != "" {
		auth = smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	if err := p.send(addr, auth, from, []string{msg.Recipient}, []byte(body)); err != nil {
		return fmt.Errorf("email: send to %s: %w", msg.Recipient, err)
	}
	logger.InfoCF("email", "Message sent", map[string]interface{}{
		"message_id": msg.ID,
		"recipient":  msg.Recipient,
	})
	return nil
}

var _ protocol.Protocol = (*Protocol)(nil)
