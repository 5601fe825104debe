// Package dispatch centralizes the send/simulate/lifecycle orchestration
// that all three front-ends (HTTP API, websocket control API, shell) share.
// Every operation resolves a protocol through the registry, applies the
// lifecycle rules, and converts failures to structured results.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/grvsrs/relaygate/pkg/bus"
	"github.com/grvsrs/relaygate/pkg/llm"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
	"github.com/grvsrs/relaygate/pkg/protocol"
)

// StatusQueued is the status returned once a send is accepted for delivery.
const StatusQueued = "queued"

// deliveryTimeout bounds one detached delivery attempt.
const deliveryTimeout = 60 * time.Second

// Dispatcher is the shared front-end surface over the registry, the model
// backend, and the event bus.
type Dispatcher struct {
	registry *protocol.Registry
	llm      llm.Client
	bus      *bus.Bus
	sendSem  chan struct{}
	wg       sync.WaitGroup
}

// New creates a dispatcher. maxInFlight bounds the number of concurrent
// detached deliveries; values below 1 fall back to the default of 16.
func New(registry *protocol.Registry, client llm.Client, eventBus *bus.Bus, maxInFlight int) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 16
	}
	return &Dispatcher{
		registry: registry,
		llm:      client,
		bus:      eventBus,
		sendSem:  make(chan struct{}, maxInFlight),
	}
}

// ProtocolStatus is the introspection view of one registered protocol.
type ProtocolStatus struct {
	Name   string                 `json:"name"`
	Status string                 `json:"status"`
	Config map[string]interface{} `json:"config"`
}

// List returns name, active/inactive status, and redacted config for every
// registered protocol, sorted by name.
func (d *Dispatcher) List() []ProtocolStatus {
	names := d.registry.Names()
	out := make([]ProtocolStatus, 0, len(names))
	for _, name := range names {
		p, ok := d.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, statusOf(p))
	}
	return out
}

// Activate starts the named protocol. Activating a running protocol is
// idempotent: the second call leaves it running without re-running setup.
func (d *Dispatcher) Activate(ctx context.Context, name string) (ProtocolStatus, error) {
	p, ok := d.registry.Get(name)
	if !ok {
		return ProtocolStatus{}, notFound(name)
	}
	if !p.Running() {
		if err := p.Start(ctx); err != nil {
			logger.ErrorCF("dispatch", "Protocol start failed", map[string]interface{}{
				"protocol": name,
				"error":    err.Error(),
			})
			return ProtocolStatus{}, delivery(err)
		}
		d.bus.Publish(bus.NewEvent(bus.EventProtocolStarted, name, ""))
	}
	return statusOf(p), nil
}

// Deactivate stops the named protocol. Idempotent on already-stopped.
func (d *Dispatcher) Deactivate(ctx context.Context, name string) (ProtocolStatus, error) {
	p, ok := d.registry.Get(name)
	if !ok {
		return ProtocolStatus{}, notFound(name)
	}
	if p.Running() {
		if err := p.Stop(ctx); err != nil {
			return ProtocolStatus{}, delivery(err)
		}
		d.bus.Publish(bus.NewEvent(bus.EventProtocolStopped, name, ""))
	}
	return statusOf(p), nil
}

// SendRequest is the input to Send. Sender identifies the calling front-end
// ("api", "mcp", "user").
type SendRequest struct {
	Protocol  string
	Content   string
	Sender    string
	Recipient string
	Metadata  map[string]interface{}
}

// SendResult reports an accepted send. The message ID is assigned before the
// caller is told delivery is queued, so it can be correlated with later
// delivery-outcome logs.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Send constructs a message, assigns it an ID from the owning protocol, and
// submits it for detached delivery. The call returns as soon as the message
// is queued; delivery outcome is logged and published on the bus, never
// awaited.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	p, ok := d.registry.Get(req.Protocol)
	if !ok {
		return SendResult{}, notFound(req.Protocol)
	}
	if !p.Running() {
		return SendResult{}, inactive(req.Protocol)
	}

	sender := req.Sender
	if sender == "" {
		sender = message.SenderUser
	}
	msg, err := message.New(req.Content, sender, req.Protocol)
	if err != nil {
		return SendResult{}, validation(err)
	}
	msg.WithRecipient(req.Recipient).WithMetadata(req.Metadata)
	msg.ID = p.GenerateID()

	d.bus.Publish(bus.NewEvent(bus.EventMessageQueued, req.Protocol, msg.ID))

	// The in-flight slot is acquired inside the goroutine: at the concurrency
	// cap the delivery queues behind the others, while the caller still gets
	// its "queued" result immediately.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sendSem <- struct{}{}
		defer func() { <-d.sendSem }()
		d.deliver(p, msg)
	}()

	return SendResult{MessageID: msg.ID, Status: StatusQueued}, nil
}

// deliver runs detached from the sending call. It uses its own bounded
// context so a caller hanging up cannot cancel an already-queued delivery.
func (d *Dispatcher) deliver(p protocol.Protocol, msg *message.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := p.Send(ctx, msg); err != nil {
		logger.ErrorCF("dispatch", "Delivery failed", map[string]interface{}{
			"protocol":   msg.Protocol,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		d.bus.Publish(bus.NewEvent(bus.EventMessageFailed, msg.Protocol, msg.ID).WithData(map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}

	logger.DebugCF("dispatch", "Delivered", map[string]interface{}{
		"protocol":   msg.Protocol,
		"message_id": msg.ID,
	})
	d.bus.Publish(bus.NewEvent(bus.EventMessageSent, msg.Protocol, msg.ID))
}

// SimulateRequest is the input to Simulate.
type SimulateRequest struct {
	Protocol string
	Content  string
	Metadata map[string]interface{}
}

// SimulateResult carries the constructed inbound message and the model's
// reply. Simulate never touches the live channel.
type SimulateResult struct {
	Original *message.Message `json:"original_message"`
	Response *message.Message `json:"llm_response"`
}

// Simulate previews how the model would respond to a hypothetical inbound
// message. The protocol name is only used as a tag, so the protocol does not
// have to be running — a deliberate asymmetry with Send.
func (d *Dispatcher) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	if _, ok := d.registry.Get(req.Protocol); !ok {
		return SimulateResult{}, notFound(req.Protocol)
	}

	inbound, err := message.New(req.Content, message.SenderExternal, req.Protocol)
	if err != nil {
		return SimulateResult{}, validation(err)
	}
	inbound.WithRecipient("system").WithMetadata(req.Metadata)

	text, err := d.llm.Generate(ctx, req.Content)
	if err != nil {
		logger.ErrorCF("dispatch", "Simulate failed", map[string]interface{}{
			"protocol": req.Protocol,
			"error":    err.Error(),
		})
		return SimulateResult{}, upstream(err)
	}

	reply, err := message.New(text, message.SenderLLM, req.Protocol)
	if err != nil {
		return SimulateResult{}, upstream(err)
	}
	reply.WithRecipient(inbound.Sender).WithMetadata(map[string]interface{}{
		message.MetaInResponseTo: inbound.ID,
	})

	return SimulateResult{Original: inbound, Response: reply}, nil
}

// Wait blocks until all in-flight detached deliveries finish. Used at
// shutdown and by tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func statusOf(p protocol.Protocol) ProtocolStatus {
	status := "inactive"
	if p.Running() {
		status = "active"
	}
	return ProtocolStatus{Name: p.Name(), Status: status, Config: p.Config()}
}
