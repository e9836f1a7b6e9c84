package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	w := b.Watch()
	if b.ClientCount() != 2 {
		t.Fatalf("expected 2 clients")
	}
	b.Unsubscribe(ch)
	b.Unwatch(w)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	w := b.Watch()
	defer b.Unwatch(w)

	b.Publish(Event{Type: EventRefreshed, Data: map[string]int{"annotations": 2}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: corpus.refreshed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"annotations":2`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}

	select {
	case ev := <-w:
		if ev.Type != EventRefreshed {
			t.Errorf("type = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typed event")
	}
}

func TestPublishFileEvent(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	w := b.Watch()
	defer b.Unwatch(w)

	b.PublishFileEvent("changed", "/ws/a.go")
	b.PublishFileEvent("deleted", "/ws/b.go")
	b.PublishFileEvent("renamed", "/ws/c.go")

	want := []string{EventFileChanged, EventFileDeleted}
	for _, typ := range want {
		select {
		case ev := <-w:
			if ev.Type != typ {
				t.Errorf("type = %q, want %q", ev.Type, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", typ)
		}
	}

	select {
	case ev := <-w:
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: EventFiltersChanged, Data: map[string]string{"author": "said"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: filters.changed") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	w := b.Watch()
	defer b.Unwatch(w)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	if n := b.ClientCount(); n != 2 {
		t.Errorf("clients = %d", n)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	w := b.Watch()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if _, ok := <-w; ok {
		t.Fatal("expected watcher channel to be closed")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: EventCleared})
	b.PublishFileEvent("changed", "x.go")
	if _, ok := <-b.Watch(); ok {
		t.Error("Watch after Close should return a closed channel")
	}
}
