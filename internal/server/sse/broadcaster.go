// Package sse streams sync events to connected clients as Server-Sent
// Events.
package sse

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventConnected = "connected"
	EventState     = "state"
	EventOutcome   = "outcome"
	EventCycle     = "cycle"
)

// Event is one streamed message. Data is encoded as JSON.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const clientBuffer = 64

// Broadcaster fans events out to every subscribed client. Slow clients
// miss events rather than blocking the sync loop.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	join    chan chan Event
	leave   chan chan Event
	events  chan Event
	done    chan struct{}
	logger  *zerolog.Logger
}

// NewBroadcaster creates a Broadcaster. Run must be started before clients
// connect.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan Event]struct{}),
		join:    make(chan chan Event, 8),
		leave:   make(chan chan Event, 8),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Run dispatches events until ctx is canceled, then closes every client.
// Run must be called once.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				close(client)
			}
			b.clients = make(map[chan Event]struct{})
			b.mu.Unlock()
			return

		case client := <-b.join:
			b.mu.Lock()
			b.clients[client] = struct{}{}
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Debug().Int("clients", n).Msg("SSE client connected")

		case client := <-b.leave:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Debug().Int("clients", n).Msg("SSE client disconnected")

		case event := <-b.events:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- event:
				default:
					b.logger.Warn().Str("event", event.Event).Msg("SSE client buffer full, event skipped")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Broadcast queues event for every client without blocking.
func (b *Broadcaster) Broadcast(event Event) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn().Str("event", event.Event).Msg("SSE broadcast queue full, event dropped")
	}
}

// Subscribe registers a new client. The returned cancel func unregisters it
// and blocks until Run has taken the request or has stopped. After Run has
// stopped the returned channel is already closed.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	client := make(chan Event, clientBuffer)
	select {
	case <-b.done:
		close(client)
		return client, func() {}
	default:
	}
	select {
	case b.join <- client:
	case <-b.done:
		close(client)
		return client, func() {}
	}
	var once sync.Once
	return client, func() {
		once.Do(func() {
			select {
			case b.leave <- client:
			case <-b.done:
			}
		})
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stream is the gin handler for the event stream.
func (b *Broadcaster) Stream(c *gin.Context) {
	events, cancel := b.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent(EventConnected, gin.H{"timestamp": time.Now().UTC()})
	c.Writer.Flush()

	// c.Stream needs http.CloseNotifier, so the loop is written out.
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(event.Event, event.Data)
			c.Writer.Flush()
		}
	}
}
