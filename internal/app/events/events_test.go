package events

import (
	"context"
	"errors"
	"testing"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) AppendEvent(_ context.Context, evt Event) (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	s.events = append(s.events, evt)
	return evt, nil
}

func TestEmitStampsIdentifiers(t *testing.T) {
	sink := &captureSink{}
	feed := NewFeed(10, sink, nil)
	ctx := context.Background()

	first := feed.Emit(ctx, Event{Type: TypeOrderCreated, OrderID: "1"})
	second := feed.Emit(ctx, Event{Type: TypeBuy, OrderID: "1"})

	if first.ID != "1" || second.ID != "2" {
		t.Fatalf("ids = %q, %q, want sequential", first.ID, second.ID)
	}
	if first.Timestamp.IsZero() {
		t.Fatalf("timestamp not stamped")
	}
	if len(sink.events) != 2 {
		t.Fatalf("sink received %d events, want 2", len(sink.events))
	}
}

func TestEmitSurvivesSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("store down")}
	feed := NewFeed(10, sink, nil)

	evt := feed.Emit(context.Background(), Event{Type: TypeOrderCreated, OrderID: "1"})
	if evt.ID == "" {
		t.Fatalf("event not recorded despite sink failure")
	}
	if got := feed.List("", 0); len(got) != 1 {
		t.Fatalf("buffered events = %d, want 1", len(got))
	}
}

func TestListFiltersByOrder(t *testing.T) {
	feed := NewFeed(10, nil, nil)
	ctx := context.Background()

	feed.Emit(ctx, Event{Type: TypeOrderCreated, OrderID: "1"})
	feed.Emit(ctx, Event{Type: TypeOrderCreated, OrderID: "2"})
	feed.Emit(ctx, Event{Type: TypeBuy, OrderID: "1"})

	if got := feed.List("1", 0); len(got) != 2 {
		t.Fatalf("order 1 events = %d, want 2", len(got))
	}
	if got := feed.List("", 2); len(got) != 2 {
		t.Fatalf("limited events = %d, want 2", len(got))
	}
}

func TestFeedBoundsBuffer(t *testing.T) {
	feed := NewFeed(3, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		feed.Emit(ctx, Event{Type: TypeBuy, OrderID: "1"})
	}

	got := feed.List("", 0)
	if len(got) != 3 {
		t.Fatalf("buffered events = %d, want 3", len(got))
	}
	// Oldest events are evicted; the remaining ids are the newest three.
	if got[0].ID != "3" || got[2].ID != "5" {
		t.Fatalf("retained ids = %q..%q, want 3..5", got[0].ID, got[2].ID)
	}
}
