package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grvsrs/relaygate/pkg/bus"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// fakeProtocol counts contract calls so tests can assert the dispatcher's
// ordering rules (no GenerateID/Send against a stopped protocol, no repeated
// setup on redundant activation).
type fakeProtocol struct {
	name      string
	running   atomic.Bool
	startErr  error
	sendErr   error
	starts    atomic.Int32
	stops     atomic.Int32
	idCalls   atomic.Int32
	sendCalls atomic.Int32

	// block, when set, holds every Send until it is closed.
	block chan struct{}

	mu   sync.Mutex
	sent []*message.Message
}

func (f *fakeProtocol) Name() string { return f.name }

func (f *fakeProtocol) Start(ctx context.Context) error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	f.running.Store(true)
	return nil
}

func (f *fakeProtocol) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.running.Store(false)
	return nil
}

func (f *fakeProtocol) Running() bool { return f.running.Load() }

func (f *fakeProtocol) Config() map[string]interface{} {
	return map[string]interface{}{"mode": "fake"}
}

func (f *fakeProtocol) GenerateID() string {
	n := f.idCalls.Add(1)
	return f.name + "-" + string(rune('0'+n%10))
}

func (f *fakeProtocol) Send(ctx context.Context, msg *message.Message) error {
	f.sendCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

var _ protocol.Protocol = (*fakeProtocol)(nil)

// fakeLLM records prompts and returns a canned completion.
type fakeLLM struct {
	calls atomic.Int32
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestDispatcher(t *testing.T, protocols ...protocol.Protocol) (*Dispatcher, *fakeLLM) {
	t.Helper()
	registry := protocol.NewRegistry()
	for _, p := range protocols {
		if err := registry.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.Name(), err)
		}
	}
	model := &fakeLLM{reply: "4"}
	eventBus := bus.New()
	t.Cleanup(eventBus.Close)
	return New(registry, model, eventBus, 4), model
}

func TestUnknownProtocolProducesNotFound(t *testing.T) {
	d, model := newTestDispatcher(t)
	ctx := context.Background()

	checks := []struct {
		name string
		call func() error
	}{
		{"send", func() error {
			_, err := d.Send(ctx, SendRequest{Protocol: "slack", Content: "hi"})
			return err
		}},
		{"simulate", func() error {
			_, err := d.Simulate(ctx, SimulateRequest{Protocol: "slack", Content: "hi"})
			return err
		}},
		{"activate", func() error {
			_, err := d.Activate(ctx, "slack")
			return err
		}},
		{"deactivate", func() error {
			_, err := d.Deactivate(ctx, "slack")
			return err
		}},
	}

	for _, tc := range checks {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			derr, ok := err.(*Error)
			if !ok {
				t.Fatalf("expected *Error, got %T %v", err, err)
			}
			if derr.Kind != KindNotFound {
				t.Errorf("expected not_found, got %s", derr.Kind)
			}
			if derr.Message != "Protocol 'slack' not found" {
				t.Errorf("unexpected message %q", derr.Message)
			}
		})
	}

	if model.calls.Load() != 0 {
		t.Error("unknown protocol must never reach the model backend")
	}
}

func TestSendAgainstStoppedProtocol(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	d, _ := newTestDispatcher(t, p)

	_, err := d.Send(context.Background(), SendRequest{Protocol: "chat", Content: "hello"})
	derr, ok := err.(*Error)
	if !ok || derr.Kind != KindInactive {
		t.Fatalf("expected inactive error, got %v", err)
	}
	if p.idCalls.Load() != 0 {
		t.Error("GenerateID must not be called for an inactive protocol")
	}
	if p.sendCalls.Load() != 0 {
		t.Error("Send must not be called for an inactive protocol")
	}
}

func TestSendRoundTrip(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	p.running.Store(true)
	d, _ := newTestDispatcher(t, p)

	result, err := d.Send(context.Background(), SendRequest{
		Protocol: "chat",
		Content:  "hello",
		Sender:   message.SenderUser,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.MessageID == "" {
		t.Error("expected a non-empty message id")
	}
	if result.Status != StatusQueued {
		t.Errorf("expected status queued, got %q", result.Status)
	}

	d.Wait()
	if p.sendCalls.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", p.sendCalls.Load())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	got := p.sent[0]
	if got.ID != result.MessageID {
		t.Errorf("delivered message id %q != returned id %q", got.ID, result.MessageID)
	}
	if got.Sender != message.SenderUser || got.Content != "hello" {
		t.Errorf("unexpected delivered message %+v", got)
	}
}

func TestSendValidation(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	p.running.Store(true)
	d, _ := newTestDispatcher(t, p)

	_, err := d.Send(context.Background(), SendRequest{Protocol: "chat", Content: ""})
	derr, ok := err.(*Error)
	if !ok || derr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p.idCalls.Load() != 0 || p.sendCalls.Load() != 0 {
		t.Error("invalid message must be rejected before any dispatch attempt")
	}
}

func TestSendDeliveryFailureIsDetached(t *testing.T) {
	p := &fakeProtocol{name: "chat", sendErr: errors.New("wire broke")}
	p.running.Store(true)
	d, _ := newTestDispatcher(t, p)

	// The caller still gets queued; the failure surfaces on the bus and log.
	result, err := d.Send(context.Background(), SendRequest{Protocol: "chat", Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Status != StatusQueued {
		t.Errorf("expected queued, got %q", result.Status)
	}
	d.Wait()
}

func TestSendFailureEventOnBus(t *testing.T) {
	registry := protocol.NewRegistry()
	p := &fakeProtocol{name: "chat", sendErr: errors.New("wire broke")}
	p.running.Store(true)
	registry.Register(p)

	eventBus := bus.New()
	defer eventBus.Close()
	events := eventBus.Subscribe("test")
	d := New(registry, &fakeLLM{}, eventBus, 4)

	result, err := d.Send(context.Background(), SendRequest{Protocol: "chat", Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	d.Wait()

	var types []string
	for i := 0; i < 2; i++ {
		event := <-events
		types = append(types, event.Type)
		if event.MessageID != result.MessageID {
			t.Errorf("event %s has message id %q, want %q", event.Type, event.MessageID, result.MessageID)
		}
	}
	if types[0] != bus.EventMessageQueued || types[1] != bus.EventMessageFailed {
		t.Errorf("unexpected event sequence %v", types)
	}
}

func TestActivateIdempotent(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	d, _ := newTestDispatcher(t, p)
	ctx := context.Background()

	status, err := d.Activate(ctx, "chat")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if status.Status != "active" {
		t.Errorf("expected active, got %q", status.Status)
	}

	// Second activation leaves it running without re-invoking setup.
	if _, err := d.Activate(ctx, "chat"); err != nil {
		t.Fatalf("redundant activate: %v", err)
	}
	if p.starts.Load() != 1 {
		t.Errorf("expected 1 start, got %d", p.starts.Load())
	}

	status, err = d.Deactivate(ctx, "chat")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if status.Status != "inactive" {
		t.Errorf("expected inactive, got %q", status.Status)
	}
	if p.Running() {
		t.Error("expected stopped")
	}
}

func TestActivateStartFailure(t *testing.T) {
	p := &fakeProtocol{name: "discord", startErr: errors.New("bad token")}
	d, _ := newTestDispatcher(t, p)

	_, err := d.Activate(context.Background(), "discord")
	if err == nil {
		t.Fatal("expected error")
	}
	if p.Running() {
		t.Error("failed start must leave the protocol inactive")
	}
}

func TestSimulate(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	p.running.Store(true)
	d, model := newTestDispatcher(t, p)
	model.reply = "2+2 equals 4."

	result, err := d.Simulate(context.Background(), SimulateRequest{
		Protocol: "chat",
		Content:  "What is 2+2?",
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	original := result.Original
	if original.Content != "What is 2+2?" {
		t.Errorf("unexpected original content %q", original.Content)
	}
	if original.Sender != message.SenderExternal || original.Recipient != "system" {
		t.Errorf("unexpected original tags: sender=%q recipient=%q", original.Sender, original.Recipient)
	}

	reply := result.Response
	if reply.Sender != message.SenderLLM {
		t.Errorf("expected llm sender, got %q", reply.Sender)
	}
	if reply.Recipient != original.Sender {
		t.Errorf("expected reply addressed to %q, got %q", original.Sender, reply.Recipient)
	}
	if reply.Content != "2+2 equals 4." {
		t.Errorf("unexpected reply content %q", reply.Content)
	}
	if reply.InResponseTo() != original.ID {
		t.Errorf("expected in_response_to %q, got %q", original.ID, reply.InResponseTo())
	}

	// Simulate never touches the live channel.
	if p.sendCalls.Load() != 0 {
		t.Error("simulate must not deliver through the protocol")
	}
}

func TestSimulateDoesNotRequireRunning(t *testing.T) {
	p := &fakeProtocol{name: "chat"} // stopped
	d, _ := newTestDispatcher(t, p)

	if _, err := d.Simulate(context.Background(), SimulateRequest{Protocol: "chat", Content: "hi"}); err != nil {
		t.Fatalf("simulate against a stopped protocol must work, got %v", err)
	}
}

func TestSimulateUpstreamError(t *testing.T) {
	p := &fakeProtocol{name: "chat"}
	d, model := newTestDispatcher(t, p)
	model.err = errors.New("model unavailable")

	_, err := d.Simulate(context.Background(), SimulateRequest{Protocol: "chat", Content: "hi"})
	derr, ok := err.(*Error)
	if !ok || derr.Kind != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestListStatuses(t *testing.T) {
	running := &fakeProtocol{name: "chat"}
	running.running.Store(true)
	stopped := &fakeProtocol{name: "email"}
	d, _ := newTestDispatcher(t, running, stopped)

	statuses := d.List()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	// Names() is sorted, so chat comes first.
	if statuses[0].Name != "chat" || statuses[0].Status != "active" {
		t.Errorf("unexpected first status %+v", statuses[0])
	}
	if statuses[1].Name != "email" || statuses[1].Status != "inactive" {
		t.Errorf("unexpected second status %+v", statuses[1])
	}
	if statuses[0].Config["mode"] != "fake" {
		t.Errorf("expected config exposed, got %v", statuses[0].Config)
	}
}

// Send must hand back "queued" immediately even when every delivery slot is
// occupied; the new delivery waits for a slot inside its own goroutine.
func TestSendReturnsQueuedAtConcurrencyCap(t *testing.T) {
	p := &fakeProtocol{name: "chat", block: make(chan struct{})}
	registry := protocol.NewRegistry()
	if err := registry.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}
	eventBus := bus.New()
	t.Cleanup(eventBus.Close)
	d := New(registry, &fakeLLM{reply: "4"}, eventBus, 1)

	ctx := context.Background()
	if _, err := d.Activate(ctx, "chat"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := d.Send(ctx, SendRequest{Protocol: "chat", Content: "first"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	// Wait for the first delivery to occupy the only slot.
	deadline := time.Now().Add(time.Second)
	for p.sendCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first delivery never started")
		}
		time.Sleep(time.Millisecond)
	}

	done := make(chan SendResult, 1)
	go func() {
		result, err := d.Send(ctx, SendRequest{Protocol: "chat", Content: "second"})
		if err != nil {
			t.Errorf("second send: %v", err)
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.Status != StatusQueued {
			t.Errorf("expected status %q, got %q", StatusQueued, result.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked while the delivery slots were full")
	}

	close(p.block)
	d.Wait()
	if got := p.sendCalls.Load(); got != 2 {
		t.Errorf("expected both deliveries to run, got %d", got)
	}
}
