// Package shell is the interactive operator front-end. It keeps a cursor on
// one "active" protocol so send/simulate work without repeating the name,
// mirroring how an operator actually drives the gateway.
package shell

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/grvsrs/relaygate/pkg/dispatch"
	"github.com/grvsrs/relaygate/pkg/message"
)

// Shell is the interactive front-end over a dispatcher.
type Shell struct {
	dispatcher *dispatch.Dispatcher
	active     string
	out        io.Writer
}

// New creates a shell. Output goes to out (stdout in production, a buffer in
// tests).
func New(d *dispatch.Dispatcher, out io.Writer) *Shell {
	return &Shell{dispatcher: d, out: out}
}

// Run reads and executes commands until exit or EOF.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.New("relaygate> ")
	if err != nil {
		return fmt.Errorf("shell: init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(s.out, "relaygate shell. Type 'help' for commands.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if done := s.Exec(ctx, line); done {
			return nil
		}
	}
}

// Exec runs one command line. Returns true when the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "protocols", "list":
		s.cmdProtocols()
	case "activate":
		s.cmdActivate(ctx, arg)
	case "deactivate":
		s.cmdDeactivate(ctx, arg)
	case "use":
		s.cmdUse(arg)
	case "send":
		s.cmdSend(ctx, arg)
	case "simulate":
		s.cmdSimulate(ctx, arg)
	case "help", "?":
		s.cmdHelp()
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try 'help')\n", cmd)
	}
	return false
}

func (s *Shell) cmdHelp() {
	fmt.Fprintln(s.out, `Commands:
  protocols            list protocols and their status
  activate <name>      start a protocol and make it active
  deactivate <name>    stop a protocol
  use <name>           select the active protocol
  send <message>       send a message through the active protocol
  simulate <message>   preview the model's reply to an inbound message
  exit                 leave the shell`)
}

func (s *Shell) cmdProtocols() {
	statuses := s.dispatcher.List()
	if len(statuses) == 0 {
		fmt.Fprintln(s.out, "No protocols registered")
		return
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	for _, st := range statuses {
		marker := " "
		if st.Name == s.active {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %-10s %s\n", marker, st.Name, st.Status)
	}
}

func (s *Shell) cmdActivate(ctx context.Context, name string) {
	if name == "" {
		fmt.Fprintln(s.out, "Usage: activate <name>")
		return
	}
	status, err := s.dispatcher.Activate(ctx, name)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err.Error())
		return
	}
	s.active = name
	fmt.Fprintf(s.out, "Protocol '%s' is %s\n", name, status.Status)
}

func (s *Shell) cmdDeactivate(ctx context.Context, name string) {
	if name == "" {
		fmt.Fprintln(s.out, "Usage: deactivate <name>")
		return
	}
	status, err := s.dispatcher.Deactivate(ctx, name)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err.Error())
		return
	}
	if s.active == name {
		s.active = ""
	}
	fmt.Fprintf(s.out, "Protocol '%s' is %s\n", name, status.Status)
}

func (s *Shell) cmdUse(name string) {
	if name == "" {
		fmt.Fprintln(s.out, "Usage: use <name>")
		return
	}
	found := false
	for _, st := range s.dispatcher.List() {
		if st.Name == name {
			found = true
			break
		}
	}
	if !found {
		fmt.Fprintf(s.out, "Protocol '%s' not found\n", name)
		return
	}
	s.active = name
	fmt.Fprintf(s.out, "Active protocol: %s\n", name)
}

func (s *Shell) cmdSend(ctx context.Context, content string) {
	if s.active == "" {
		fmt.Fprintln(s.out, "No active protocol. Activate one first.")
		return
	}
	if content == "" {
		fmt.Fprintln(s.out, "Usage: send <message>")
		return
	}
	result, err := s.dispatcher.Send(ctx, dispatch.SendRequest{
		Protocol: s.active,
		Content:  content,
		Sender:   message.SenderUser,
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(s.out, "Queued %s through '%s'\n", result.MessageID, s.active)
}

func (s *Shell) cmdSimulate(ctx context.Context, content string) {
	if s.active == "" {
		fmt.Fprintln(s.out, "No active protocol. Activate one first.")
		return
	}
	if content == "" {
		fmt.Fprintln(s.out, "Usage: simulate <message>")
		return
	}
	result, err := s.dispatcher.Simulate(ctx, dispatch.SimulateRequest{
		Protocol: s.active,
		Content:  content,
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(s.out, "<< %s\n", result.Original.Content)
	fmt.Fprintf(s.out, ">> %s\n", result.Response.Content)
}
