// Package mcp is the websocket control front-end. Clients send JSON frames
// {id, action, ...} and receive {id, result}; the adapter also streams bus
// events to every connected client. Like the HTTP API, it is a translation
// shim over the dispatcher.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grvsrs/relaygate/pkg/bus"
	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/dispatch"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Control-plane endpoint for non-browser clients; no origin restriction.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is one inbound control frame.
type Request struct {
	ID           string                 `json:"id,omitempty"`
	Action       string                 `json:"action"`
	Protocol     string                 `json:"protocol,omitempty"`
	ProtocolName string                 `json:"protocol_name,omitempty"`
	Content      string                 `json:"content,omitempty"`
	Recipient    string                 `json:"recipient,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// name returns the protocol name, accepting either field for compatibility
// with both the lifecycle and messaging frame shapes.
func (r Request) name() string {
	if r.ProtocolName != "" {
		return r.ProtocolName
	}
	return r.Protocol
}

type handlerFunc func(ctx context.Context, req Request) map[string]interface{}

// Adapter is the websocket control API server.
type Adapter struct {
	cfg        config.ControlConfig
	dispatcher *dispatch.Dispatcher
	bus        *bus.Bus
	handlers   map[string]handlerFunc
	server     *http.Server

	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewAdapter creates the control API over a dispatcher and event bus.
func NewAdapter(cfg config.ControlConfig, d *dispatch.Dispatcher, eventBus *bus.Bus) *Adapter {
	a := &Adapter{
		cfg:        cfg,
		dispatcher: d,
		bus:        eventBus,
		clients:    make(map[*client]bool),
	}
	a.handlers = map[string]handlerFunc{
		"list_protocols":      a.handleListProtocols,
		"activate_protocol":   a.handleActivate,
		"deactivate_protocol": a.handleDeactivate,
		"send_message":        a.handleSend,
		"simulate_message":    a.handleSimulate,
	}
	return a
}

// Start begins listening and broadcasting bus events. Non-blocking.
func (a *Adapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	a.server = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 0, // websocket connections are long-lived
	}

	logger.InfoCF("mcp", "Control API listening", map[string]interface{}{
		"addr": addr,
	})

	go a.broadcastEvents(ctx)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("mcp", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return nil
}

// Stop shuts down the listener and disconnects all clients.
func (a *Adapter) Stop() error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// HandleWebSocket upgrades a connection and serves control frames on it.
func (a *Adapter) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("mcp", "Upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	a.mu.Lock()
	a.clients[c] = true
	a.mu.Unlock()
	logger.DebugC("mcp", "Client connected")

	go a.writePump(c)
	a.readPump(r.Context(), c)
}

func (a *Adapter) readPump(ctx context.Context, c *client) {
	defer a.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		a.handleFrame(ctx, c, data)
	}
}

func (a *Adapter) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (a *Adapter) drop(c *client) {
	a.mu.Lock()
	if _, ok := a.clients[c]; ok {
		delete(a.clients, c)
		close(c.send)
	}
	a.mu.Unlock()
	c.conn.Close()
	logger.DebugC("mcp", "Client disconnected")
}

func (a *Adapter) handleFrame(ctx context.Context, c *client, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		a.reply(c, map[string]interface{}{"error": "Invalid JSON"})
		return
	}

	handler, ok := a.handlers[req.Action]
	if !ok {
		a.reply(c, map[string]interface{}{
			"id":    req.ID,
			"error": fmt.Sprintf("Unknown action: %s", req.Action),
		})
		return
	}

	a.reply(c, map[string]interface{}{
		"id":     req.ID,
		"result": handler(ctx, req),
	})
}

func (a *Adapter) reply(c *client, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default: // client too slow, drop the frame
	}
}

// broadcastEvents fans bus events out to every connected client.
func (a *Adapter) broadcastEvents(ctx context.Context) {
	events := a.bus.Subscribe("mcp")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]interface{}{"event": event})
			if err != nil {
				continue
			}
			a.mu.RLock()
			for c := range a.clients {
				select {
				case c.send <- data:
				default:
				}
			}
			a.mu.RUnlock()
		}
	}
}

// --- Action handlers ---

func errorResult(err error) map[string]interface{} {
	return map[string]interface{}{
		"error":  err.Error(),
		"status": "error",
	}
}

func (a *Adapter) handleListProtocols(ctx context.Context, req Request) map[string]interface{} {
	return map[string]interface{}{
		"protocols": a.dispatcher.List(),
		"status":    "success",
	}
}

func (a *Adapter) handleActivate(ctx context.Context, req Request) map[string]interface{} {
	name := req.name()
	if name == "" {
		return map[string]interface{}{"error": "Protocol name is required", "status": "error"}
	}
	status, err := a.dispatcher.Activate(ctx, name)
	if err != nil {
		return errorResult(err)
	}
	return map[string]interface{}{
		"protocol": status,
		"status":   "success",
	}
}

func (a *Adapter) handleDeactivate(ctx context.Context, req Request) map[string]interface{} {
	name := req.name()
	if name == "" {
		return map[string]interface{}{"error": "Protocol name is required", "status": "error"}
	}
	status, err := a.dispatcher.Deactivate(ctx, name)
	if err != nil {
		return errorResult(err)
	}
	return map[string]interface{}{
		"protocol": status,
		"status":   "success",
	}
}

func (a *Adapter) handleSend(ctx context.Context, req Request) map[string]interface{} {
	if req.Content == "" {
		return map[string]interface{}{"error": "Message content is required", "status": "error"}
	}
	if req.name() == "" {
		return map[string]interface{}{"error": "Protocol name is required", "status": "error"}
	}
	result, err := a.dispatcher.Send(ctx, dispatch.SendRequest{
		Protocol:  req.name(),
		Content:   req.Content,
		Sender:    message.SenderMCP,
		Recipient: req.Recipient,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return errorResult(err)
	}
	return map[string]interface{}{
		"message_id": result.MessageID,
		"status":     result.Status,
	}
}

func (a *Adapter) handleSimulate(ctx context.Context, req Request) map[string]interface{} {
	if req.Content == "" {
		return map[string]interface{}{"error": "Message content is required", "status": "error"}
	}
	if req.name() == "" {
		return map[string]interface{}{"error": "Protocol name is required", "status": "error"}
	}
	result, err := a.dispatcher.Simulate(ctx, dispatch.SimulateRequest{
		Protocol: req.name(),
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		return errorResult(err)
	}
	return map[string]interface{}{
		"original_message": result.Original,
		"llm_response":     result.Response,
		"status":           "success",
	}
}
