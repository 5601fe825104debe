// relaygate - one conversational agent reachable over many channels.
// Builds the protocol registry from config, then serves the HTTP API and the
// websocket control API, or an interactive shell with -shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grvsrs/relaygate/pkg/api"
	"github.com/grvsrs/relaygate/pkg/bus"
	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/dispatch"
	"github.com/grvsrs/relaygate/pkg/llm"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/mcp"
	"github.com/grvsrs/relaygate/pkg/protocol"
	"github.com/grvsrs/relaygate/pkg/protocols/chat"
	"github.com/grvsrs/relaygate/pkg/protocols/discord"
	"github.com/grvsrs/relaygate/pkg/protocols/email"
	"github.com/grvsrs/relaygate/pkg/protocols/slack"
	"github.com/grvsrs/relaygate/pkg/protocols/telegram"
	"github.com/grvsrs/relaygate/pkg/shell"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	shellMode := flag.Bool("shell", false, "run the interactive shell instead of the servers")
	flag.Parse()

	if err := run(*configPath, *shellMode); err != nil {
		fmt.Fprintf(os.Stderr, "relaygate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, shellMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}

	registry := protocol.NewRegistry()
	if err := registerProtocols(registry, cfg, client); err != nil {
		return err
	}

	eventBus := bus.New()
	defer eventBus.Close()
	dispatcher := dispatch.New(registry, client, eventBus, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	autostart(ctx, cfg, dispatcher)
	defer registry.StopAll(context.Background())

	if shellMode {
		return shell.New(dispatcher, os.Stdout).Run(ctx)
	}

	apiServer := api.NewServer(cfg.Gateway, dispatcher)
	if err := apiServer.Start(ctx); err != nil {
		return err
	}
	defer apiServer.Stop()

	control := mcp.NewAdapter(cfg.Control, dispatcher, eventBus)
	if err := control.Start(ctx); err != nil {
		return err
	}
	defer control.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.InfoC("main", "Shutting down")
	dispatcher.Wait()
	return nil
}

// registerProtocols builds the registry from the enabled config sections.
// Registration happens once here; the core never mutates the catalog later.
func registerProtocols(registry *protocol.Registry, cfg *config.Config, client llm.Client) error {
	p := cfg.Protocols
	if p.Chat.Enabled {
		if err := registry.Register(chat.New(p.Chat, client)); err != nil {
			return err
		}
	}
	if p.Email.Enabled {
		if err := registry.Register(email.New(p.Email)); err != nil {
			return err
		}
	}
	if p.Discord.Enabled {
		if err := registry.Register(discord.New(p.Discord, client)); err != nil {
			return err
		}
	}
	if p.Slack.Enabled {
		if err := registry.Register(slack.New(p.Slack)); err != nil {
			return err
		}
	}
	if p.Telegram.Enabled {
		if err := registry.Register(telegram.New(p.Telegram, client)); err != nil {
			return err
		}
	}
	return nil
}

// autostart activates the protocols marked for it. Failures are logged, not
// fatal: an unreachable channel should not keep the gateway down.
func autostart(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher) {
	marked := map[string]bool{
		"chat":     cfg.Protocols.Chat.Enabled && cfg.Protocols.Chat.Autostart,
		"email":    cfg.Protocols.Email.Enabled && cfg.Protocols.Email.Autostart,
		"discord":  cfg.Protocols.Discord.Enabled && cfg.Protocols.Discord.Autostart,
		"slack":    cfg.Protocols.Slack.Enabled && cfg.Protocols.Slack.Autostart,
		"telegram": cfg.Protocols.Telegram.Enabled && cfg.Protocols.Telegram.Autostart,
	}
	for name, on := range marked {
		if !on {
			continue
		}
		if _, err := d.Activate(ctx, name); err != nil {
			logger.ErrorCF("main", "Autostart failed", map[string]interface{}{
				"protocol": name,
				"error":    err.Error(),
			})
		}
	}
}
