// Package Bridge is the websocket bridge between browser clients and the
// device: clients send control events and receive the device stream.
package Bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Device"
	"ArteryPulse/Utils/Logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	connectTimeout = 10 * time.Second
)

// Envelope is the frame used in both directions. Requests that carry Ack
// get an "ack" event back with the same id.
type Envelope struct {
	Event string          `json:"event"`
	Ack   int64           `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PortList struct {
	Ports []string `json:"ports"`
	Error string   `json:"error,omitempty"`
}

type CommandRequest struct {
	Command string `json:"command"`
}

// Controller is the part of the device manager the bridge drives.
type Controller interface {
	ListPorts() ([]string, error)
	Connect(ctx context.Context, req Device.ConnectRequest) (Device.Status, error)
	Disconnect() error
	SendCommand(cmd string) error
	Status() Device.Status
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	device   Controller
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub builds a hub. An empty origins list or "*" accepts every origin.
func NewHub(device Controller, origins []string) *Hub {
	h := &Hub{
		device:  device,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			return slices.Contains(origins, strings.TrimSuffix(origin, "/"))
		},
	}
	return h
}

func encode(event string, ack int64, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Ack: ack, Data: data})
}

// Publish sends an event to every client. A client whose buffer is full is
// dropped.
func (h *Hub) Publish(event string, payload any) {
	msg, err := encode(event, 0, payload)
	if err != nil {
		Logger.Log.Errorw("bridge encode failed", "event", event, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			Logger.Log.Warnw("dropping slow bridge client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reply queues a message for one client. It gives up when the client is
// gone or its buffer is full.
func (h *Hub) reply(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Serve upgrades the request and runs the client until it disconnects.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		Logger.Log.Warnw("bridge upgrade failed", "error", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	Logger.Log.Infow("bridge client connected", "remote", conn.RemoteAddr().String())

	if msg, err := encode(Constants.EventConnectionStatus, 0, h.device.Status()); err == nil {
		h.reply(cl, msg)
	}

	go h.writePump(cl)
	h.readPump(c.Request.Context(), cl)
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		Logger.Log.Infow("bridge client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Logger.Log.Warnw("bridge read failed", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.sendError(c, 0, "malformed message")
			continue
		}
		response := h.handle(ctx, env)
		if env.Ack == 0 {
			continue
		}
		if msg, err := encode(Constants.EventAck, env.Ack, response); err == nil {
			h.reply(c, msg)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (h *Hub) sendError(c *client, ack int64, message string) {
	if msg, err := encode(Constants.EventError, ack, Result{Success: false, Message: message}); err == nil {
		h.reply(c, msg)
	}
}

// handle runs one control event and returns the acknowledgement payload.
func (h *Hub) handle(ctx context.Context, env Envelope) any {
	switch env.Event {
	case Constants.EventListPorts:
		ports, err := h.device.ListPorts()
		if err != nil {
			return PortList{Ports: []string{}, Error: err.Error()}
		}
		if ports == nil {
			ports = []string{}
		}
		return PortList{Ports: ports}

	case Constants.EventConnect:
		var req Device.ConnectRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				return Result{Message: "invalid connect request"}
			}
		}
		if strings.TrimSpace(req.Port) == "" {
			return Result{Message: "port is required"}
		}
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if _, err := h.device.Connect(ctx, req); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("Connected to %s", req.Port)}

	case Constants.EventDisconnect:
		if err := h.device.Disconnect(); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: "Disconnected"}

	case Constants.EventSendCommand:
		var req CommandRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				return Result{Message: "invalid command request"}
			}
		}
		if err := h.device.SendCommand(req.Command); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: fmt.Sprintf("Sent %q", strings.TrimSpace(req.Command))}
	}
	return Result{Message: fmt.Sprintf("unknown event %q", env.Event)}
}
