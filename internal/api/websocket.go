package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/dvfs"
	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
)

// Message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeState       = "state"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Broadcast channels.
const (
	ChannelTransition = "transition"
	ChannelCallback   = "callback"
	ChannelDVFS       = "dvfs"
)

var knownChannels = map[string]bool{
	ChannelTransition: true,
	ChannelCallback:   true,
	ChannelDVFS:       true,
}

// wsSendBufferSize is the per-client outbound queue. A full sweep over a
// large manifest produces several callback reports per device, so it is
// sized well above the device count of the sample manifests.
const wsSendBufferSize = 512

// Keepalive defaults for a zero WebSocketConfig.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// keepalive returns the ping interval and the time allowed for a pong or
// a write.
func keepalive(cfg config.WebSocketConfig) (ping, wait time.Duration) {
	ping, wait = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		wait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, wait
}

// WSMessage is the envelope of every message in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// inboundMessage is what clients send. The payload stays raw until the
// type is known.
type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels. Devices narrows the callback
// channel to the named devices; empty means every device.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// StateFunc returns the current state for a channel, sent to a client
// right after it subscribes. ok is false when the channel has no state.
type StateFunc func(channel string) (state any, ok bool)

// Hub fans out transition reports and DVFS changes to WebSocket clients.
//
// It is safe to broadcast before Run is called and after it returns.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	state   StateFunc
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected subscriber.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Int64

	mu       sync.RWMutex
	channels map[string]struct{}
	devices  map[string]struct{}
}

func newWSClient(h *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		devices:  make(map[string]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetState installs the function used to greet new subscribers with the
// current governor or transition state.
func (h *Hub) SetState(fn StateFunc) {
	h.mu.Lock()
	h.state = fn
	h.mu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that actually removes it
// closes the send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	close(client.send)
	if d := client.dropped.Load(); d > 0 {
		h.logger.Warn("websocket client disconnected after dropping messages", "dropped", d, "clients", n)
		return
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.broadcast(channel, "", payload)
}

// Report implements dpm.Sink. Callback reports go to the callback channel
// and honour per-client device filters. Everything else goes to the
// transition channel.
func (h *Hub) Report(r dpm.Report) {
	if r.Kind == dpm.ReportCallback {
		h.broadcast(ChannelCallback, r.Device, r)
		return
	}
	h.broadcast(ChannelTransition, "", r)
}

// ObserveDVFS broadcasts a governor step change. It has the dvfs.Observer
// signature.
func (h *Hub) ObserveDVFS(c dvfs.Change) {
	h.broadcast(ChannelDVFS, "", c)
}

func (h *Hub) broadcast(channel, device string, payload any) {
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	// Snapshot under the hub lock; client locks are taken after release.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.wants(channel, device) {
			c.trySend(data)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestIDFrom(r.Context()))
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, wait := keepalive(cfg)
	deadline := ping + wait
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }
	//nolint:errcheck // Best-effort deadline on connection setup
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		extend()
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, writeWait := keepalive(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// parseSubscription decodes and checks a subscribe or unsubscribe payload.
func parseSubscription(raw json.RawMessage) (WSSubscribePayload, string) {
	var sub WSSubscribePayload
	if len(raw) == 0 {
		return sub, "payload is required"
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, "invalid subscription payload"
	}
	if len(sub.Channels) == 0 {
		return sub, "channels is required"
	}
	for _, ch := range sub.Channels {
		if !knownChannels[ch] {
			return sub, "unknown channel: " + ch
		}
	}
	return sub, ""
}

func (c *WSClient) handleSubscribe(msg inboundMessage) {
	sub, problem := parseSubscription(msg.Payload)
	if problem != "" {
		c.sendError(msg.ID, problem)
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, d := range sub.Devices {
		c.devices[d] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "devices", sub.Devices)
	c.sendMessage(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string]any{
		"subscribed": sub.Channels,
	}})

	c.hub.mu.RLock()
	state := c.hub.state
	c.hub.mu.RUnlock()
	if state == nil {
		return
	}
	for _, ch := range sub.Channels {
		if v, ok := state(ch); ok {
			c.sendMessage(WSMessage{Type: WSTypeState, EventType: ch, Payload: v})
		}
	}
}

func (c *WSClient) handleUnsubscribe(msg inboundMessage) {
	sub, problem := parseSubscription(msg.Payload)
	if problem != "" {
		c.sendError(msg.ID, problem)
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	if _, ok := c.channels[ChannelCallback]; !ok {
		c.devices = make(map[string]struct{})
	}
	c.mu.Unlock()

	c.sendMessage(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string]any{
		"unsubscribed": sub.Channels,
	}})
}

// wants reports whether the client takes an event on channel. device is
// the device the event concerns, or "" for events about the whole system.
func (c *WSClient) wants(channel, device string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if device == "" || len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[device]
	return ok
}

// trySend queues data without blocking. A slow client loses messages
// rather than stalling a transition; the loss is counted.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.dropped.Add(1)
	}
}

func (c *WSClient) sendMessage(msg WSMessage) {
	data, err := encodeMessage(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendMessage(WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}})
}

func encodeMessage(msg WSMessage) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(msg)
}
