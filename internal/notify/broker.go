// Package notify fans corpus change events out to subscribers and serves
// them as Server-Sent Events.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Event types.
const (
	EventRefreshed      = "corpus.refreshed"
	EventFiltersChanged = "filters.changed"
	EventInvalidated    = "cache.invalidated"
	EventCleared        = "cache.cleared"
	EventFileChanged    = "file.changed"
	EventFileDeleted    = "file.deleted"
)

// Event is a change notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

type fileEventReq struct {
	kind string
	path string
}

// Broker delivers events to subscribers.
//
// A single event loop goroutine owns the subscriber set. Public methods talk
// to it over channels. Each subscriber gets a raw SSE frame stream and, if it
// asked for one, a typed event stream. Slow subscribers drop events rather
// than stall the loop.
type Broker struct {
	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	watchCh       chan chan Event
	unwatchCh     chan chan Event
	publishCh     chan Event
	fileEventCh   chan fileEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker and starts its loop.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		watchCh:       make(chan chan Event),
		unwatchCh:     make(chan chan Event),
		publishCh:     make(chan Event, 256),
		fileEventCh:   make(chan fileEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	watchers := make(map[chan Event]struct{})

	broadcast := func(event Event) {
		for ch := range watchers {
			select {
			case ch <- event:
			default:
			}
		}
		if len(clients) == 0 {
			return
		}
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		for ch := range clients {
			select {
			case ch <- raw:
			default:
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			for ch := range watchers {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ch := <-b.watchCh:
			watchers[ch] = struct{}{}

		case ch := <-b.unwatchCh:
			if _, ok := watchers[ch]; ok {
				delete(watchers, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.fileEventCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case "changed":
				broadcast(Event{Type: EventFileChanged, Data: data})
			case "deleted":
				broadcast(Event{Type: EventFileDeleted, Data: data})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients) + len(watchers)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers an SSE client and returns its frame channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes an SSE client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// Watch registers an in-process subscriber that receives typed events.
func (b *Broker) Watch() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.watchCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unwatch removes an in-process subscriber and closes its channel.
func (b *Broker) Unwatch(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unwatchCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers of both kinds.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all subscribers.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFileEvent publishes a file.changed or file.deleted event.
func (b *Broker) PublishFileEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileEventCh <- fileEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
