package SSE

import (
	"encoding/json"
	"fmt"
	"sync"

	"ArteryPulse/Utils/Logger"

	"github.com/gin-gonic/gin"
)

const clientBuffer = 64

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// SSEBroadcaster manages SSE connections and broadcasts messages to all clients.
type SSEBroadcaster struct {
	clients map[chan Message]bool
	mu      sync.Mutex
}

func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{
		clients: make(map[chan Message]bool),
	}
}

func (b *SSEBroadcaster) Register(client chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
}

// Unregister removes a client. It is safe to call after the client was
// already dropped by Send.
func (b *SSEBroadcaster) Unregister(client chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[client] {
		delete(b.clients, client)
		close(client)
	}
}

func (b *SSEBroadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Send delivers a message to every client without blocking. Clients whose
// buffer is full are dropped.
func (b *SSEBroadcaster) Send(message Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client <- message:
		default:
			delete(b.clients, client)
			close(client)
			Logger.Log.Warnw("dropping slow sse client")
		}
	}
}

// Broadcast sends a bare notification such as "refresh".
func (b *SSEBroadcaster) Broadcast(event string) {
	b.Send(Message{Event: event, Data: event})
}

// Publish sends payload as JSON under the event name.
func (b *SSEBroadcaster) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		Logger.Log.Errorw("sse encode failed", "event", event, "error", err)
		return
	}
	b.Send(Message{Event: event, Data: string(data)})
}

var Broadcaster = NewSSEBroadcaster()

func StreamSSE(c *gin.Context) {
	serve(c, Broadcaster)
}

func serve(c *gin.Context, b *SSEBroadcaster) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan Message, clientBuffer)
	b.Register(clientChan)
	defer b.Unregister(clientChan)

	fmt.Fprintf(c.Writer, "data: %s\n\n", "connected")
	c.Writer.Flush()
	for {
		select {
		case message, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", message.Event, message.Data)
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
