package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Camera frames are the largest.
	maxMessageSize = 512 * 1024

	sendBuffer     = 256
	commandTimeout = 5 * time.Second
)

var errHubStopped = errors.New("terminal hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// AssistantCommands is the part of the session controller terminals drive
type AssistantCommands interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetCamera(ctx context.Context, enabled bool) error
	State() usecase.AssistantState
}

// Hub maintains the attached POS terminals. It fans assistant events and
// playback audio out to every terminal and routes terminal commands and
// microphone audio to the assistant.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Closed when Run returns.
	done chan struct{}

	commands  AssistantCommands
	mic       *TerminalMicrophone
	camera    *TerminalCamera
	validator *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(commands AssistantCommands, mic *TerminalMicrophone, camera *TerminalCamera, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		commands:   commands,
		mic:        mic,
		camera:     camera,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.mic.attach()
			h.camera.attach()

			client.sendJSON(CreateSnapshotMessage(h.commands.State()))
			h.logger.Info("Terminal registered",
				zap.String("clientID", client.id),
				zap.String("operatorID", client.operatorID))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.id]
			if ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			if ok {
				h.mic.detach()
				h.camera.detach()
			}
			h.logger.Info("Terminal unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
				h.mic.detach()
				h.camera.detach()
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of attached terminals
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts an assistant event to every terminal. It never blocks.
func (h *Hub) Publish(ev domain.AssistantEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal assistant event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	h.broadcast(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// PlayAudio broadcasts PCM16 playback audio to every terminal
func (h *Hub) PlayAudio(pcm []byte, sampleRate int) {
	h.broadcast(WriteData{Type: websocket.BinaryMessage, Payload: pcm})
}

func (h *Hub) broadcast(data WriteData) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Terminal send buffer full, dropping message", zap.String("clientID", client.id))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id         string
	operatorID string

	logger *zap.Logger
}

// HandleWebSocketWithAuth handles websocket requests from an authenticated operator terminal
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, operatorID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.New().String()
	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan WriteData, sendBuffer),
		id:         id,
		operatorID: operatorID,
		logger:     logger.With(zap.String("clientID", id)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return errHubStopped
	}

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processMicrophoneAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage routes a terminal command to the assistant
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid terminal message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", "Invalid message", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg := parsed.(type) {
	case *ConnectMessage:
		err = c.hub.commands.Connect(ctx)
	case *DisconnectMessage:
		err = c.hub.commands.Disconnect(ctx)
	case *CameraMessage:
		err = c.hub.commands.SetCamera(ctx, *msg.Enabled)
	case *CameraFrameMessage:
		if err := c.hub.camera.Feed(msg.JPEG()); err != nil {
			c.sendJSON(CreateErrorMessage("decode", "Invalid camera frame", err.Error()))
		}
		return
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
		return
	}

	if err != nil {
		c.logger.Info("Terminal command failed", zap.Error(err))
		c.sendJSON(CreateErrorMessage(domain.ErrorKind(err), "Command failed", err.Error()))
	}
}

// processMicrophoneAudio feeds PCM16 audio to the terminal microphone
func (c *Client) processMicrophoneAudio(data []byte) {
	if err := c.hub.mic.Feed(data); err != nil {
		c.logger.Debug("Dropping malformed microphone block", zap.Int("size", len(data)), zap.Error(err))
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	c.hub.sendTo(c, WriteData{Type: websocket.TextMessage, Payload: payload})
}

// sendTo queues data for one client. Clients are only closed under the write
// lock after removal, so a registered client's channel is always open here.
func (h *Hub) sendTo(c *Client, data WriteData) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}
