package events

import (
	"reflect"
	"testing"

	"taskboard/domain"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(Event) { order = append(order, "first") })
	bus.Subscribe(func(Event) { order = append(order, "second") })
	bus.Subscribe(func(Event) { order = append(order, "third") })

	bus.Publish(TasksChanged{})

	if want := []string{"first", "second", "third"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("delivery order = %v, want %v", order, want)
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	bus := NewBus()
	bus.Publish(ProgressChanged{Progress: domain.Progress{Total: 1}})

	var got []Event
	bus.Subscribe(func(ev Event) { got = append(got, ev) })
	if len(got) != 0 {
		t.Fatalf("expected no replay, got %v", got)
	}

	bus.Publish(TasksChanged{})
	if len(got) != 1 || got[0].Kind() != KindTasksChanged {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(TasksChanged{})
	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish(TasksChanged{})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if bus.Len() != 0 {
		t.Fatalf("expected no subscriptions left, got %d", bus.Len())
	}
}

func TestUnsubscribeDuringPublishSkipsLaterHandler(t *testing.T) {
	bus := NewBus()
	var second *Subscription
	secondCalls := 0
	bus.Subscribe(func(Event) { second.Unsubscribe() })
	second = bus.Subscribe(func(Event) { secondCalls++ })

	bus.Publish(TasksChanged{})

	if secondCalls != 0 {
		t.Fatalf("unsubscribed handler was still called")
	}
}

func TestReentrantPublish(t *testing.T) {
	bus := NewBus()
	var kinds []Kind
	bus.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind())
		if ev.Kind() == KindTasksChanged {
			bus.Publish(LoadingChanged{Loading: true})
		}
	})

	bus.Publish(TasksChanged{})

	want := []Kind{KindTasksChanged, KindLoadingChanged}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
}

func TestOnFiltersByVariant(t *testing.T) {
	bus := NewBus()
	var progress []domain.Progress
	On(bus, func(ev ProgressChanged) { progress = append(progress, ev.Progress) })

	bus.Publish(TasksChanged{})
	bus.Publish(ProgressChanged{Progress: domain.Progress{Total: 3, Completed: 1, Percent: 33}})

	if len(progress) != 1 || progress[0].Percent != 33 {
		t.Fatalf("unexpected progress events: %v", progress)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := ConfirmationRequested{ID: "c1", TaskID: "t1", From: domain.StatusInProgress, To: domain.StatusDone}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("decoded %#v, want %#v", out, in)
	}

	if _, err := Decode([]byte(`{"type":"nope","payload":{}}`)); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
}
