package broadcast

import (
	"encoding/json"
	"testing"
	"time"
)

func sensitive(key string) bool {
	return key == "auth/session"
}

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(sensitive)

	events, cancel := hub.Subscribe("teachers")
	defer cancel()

	want := Event{
		Key:       "teachers",
		Value:     json.RawMessage(`[{"id":"1"}]`),
		Origin:    "ctx-1",
		UpdatedAt: time.Now(),
	}
	hub.Publish(want)

	select {
	case got := <-events:
		if got.Key != want.Key || string(got.Value) != string(want.Value) || got.Origin != want.Origin {
			t.Errorf("event mismatch: got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubKeyIsolation(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("gallery")
	defer cancel()

	hub.Publish(Event{Key: "teachers", Value: json.RawMessage(`[]`)})

	select {
	case got := <-events:
		t.Errorf("subscriber received event for another key: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSensitiveKeysFiltered(t *testing.T) {
	hub := NewHub(sensitive)

	events, cancel := hub.Subscribe("auth/session")
	defer cancel()

	hub.Publish(Event{Key: "auth/session", Value: json.RawMessage(`"secret"`)})

	select {
	case got := <-events:
		t.Errorf("sensitive event delivered: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	metrics := hub.GetMetrics()
	if metrics.FilteredCount != 1 {
		t.Errorf("expected 1 filtered event, got %d", metrics.FilteredCount)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)

	events, cancel := hub.Subscribe("books")
	cancel()

	// Channel is closed on release; no events follow.
	hub.Publish(Event{Key: "books", Value: json.RawMessage(`[]`)})

	if _, ok := <-events; ok {
		t.Error("event delivered after unsubscribe")
	}
	if hub.SubscriberCount("books") != 0 {
		t.Errorf("subscription not released")
	}

	// Double cancel is safe.
	cancel()
}

func TestHubSlowSubscriberDrops(t *testing.T) {
	hub := NewHub(nil)
	hub.bufferSize = 1

	events, cancel := hub.Subscribe("announcements")
	defer cancel()

	hub.Publish(Event{Key: "announcements", Value: json.RawMessage(`["a"]`)})
	hub.Publish(Event{Key: "announcements", Value: json.RawMessage(`["b"]`)})

	metrics := hub.GetMetrics()
	if metrics.DeliveredCount != 1 {
		t.Errorf("expected 1 delivered event, got %d", metrics.DeliveredCount)
	}
	if metrics.DroppedCount != 1 {
		t.Errorf("expected 1 dropped event, got %d", metrics.DroppedCount)
	}

	got := <-events
	if string(got.Value) != `["a"]` {
		t.Errorf("expected first event retained, got %s", got.Value)
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(nil)

	var cancels []func()
	var channels []<-chan Event
	for i := 0; i < 3; i++ {
		events, cancel := hub.Subscribe("fees")
		channels = append(channels, events)
		cancels = append(cancels, cancel)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	hub.Publish(Event{Key: "fees", Value: json.RawMessage(`[]`)})

	for i, events := range channels {
		select {
		case <-events:
		case <-time.After(time.Second):
			t.Errorf("subscriber %d received no event", i)
		}
	}
}
