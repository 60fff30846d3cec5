package bus

import (
	"reflect"
	"testing"
)

func TestBroadcast_SubscriptionOrder(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("a", func(e Event) { got = append(got, "a:"+e.Name) })
	b.Subscribe("b", func(e Event) { got = append(got, "b:"+e.Name) })

	b.Broadcast(Event{Name: "run.started", RunID: "r1"})

	want := []string{"a:run.started", "b:run.started"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Delivered() != 1 {
		t.Errorf("Delivered = %d", b.Delivered())
	}
}

func TestSubscribe_ReplacesSameID(t *testing.T) {
	b := New()
	calls := 0
	b.Subscribe("x", func(Event) { t.Error("replaced handler called") })
	b.Subscribe("x", func(Event) { calls++ })

	b.Broadcast(Event{Name: "tool.call"})
	if calls != 1 || b.Subscribers() != 1 {
		t.Errorf("calls=%d subscribers=%d", calls, b.Subscribers())
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("a", func(Event) { got = append(got, "a") })
	b.Subscribe("b", func(Event) { got = append(got, "b") })
	b.Unsubscribe("a")
	b.Unsubscribe("missing")

	b.Broadcast(Event{Name: "run.completed"})
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("got %v", got)
	}
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	b := New()
	b.Broadcast(Event{Name: "run.failed"})
	if b.Delivered() != 1 {
		t.Errorf("Delivered = %d", b.Delivered())
	}
}
