package events

import (
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestPublishFansOutInOrder(t *testing.T) {
	bus := NewBus(16)
	a := bus.Subscribe("s1", NamespaceAnalysis)
	b := bus.Subscribe("s1", NamespaceAnalysis)
	defer a.Close()
	defer b.Close()

	for i, typ := range []EventType{AnalysisStarted, DocumentLoading, AnalysisComplete} {
		bus.Publish("s1", NamespaceAnalysis, New(typ, "", map[string]any{"n": i}).WithProgress(float64(i*50)))
	}

	for _, sub := range []*Subscription{a, b} {
		want := []EventType{AnalysisStarted, DocumentLoading, AnalysisComplete}
		for _, typ := range want {
			ev := recv(t, sub)
			if ev.EventType != typ {
				t.Fatalf("expected %s, got %s", typ, ev.EventType)
			}
			if ev.ID == "" {
				t.Fatalf("expected event id to be assigned")
			}
		}
	}
}

func TestSessionsAndNamespacesArePartitioned(t *testing.T) {
	bus := NewBus(4)
	s1 := bus.Subscribe("s1", NamespaceAnalysis)
	s1chat := bus.Subscribe("s1", NamespaceChat)
	s2 := bus.Subscribe("s2", NamespaceAnalysis)
	defer s1.Close()
	defer s1chat.Close()
	defer s2.Close()

	bus.Publish("s2", NamespaceAnalysis, New(AnalysisStarted, "", nil))

	if ev := recv(t, s2); ev.EventType != AnalysisStarted {
		t.Fatalf("unexpected event %s", ev.EventType)
	}
	select {
	case ev := <-s1.Events():
		t.Fatalf("s1 received foreign event %s", ev.EventType)
	case ev := <-s1chat.Events():
		t.Fatalf("s1 chat received foreign event %s", ev.EventType)
	default:
	}
}

func TestLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	bus := NewBus(4)
	bus.Publish("s1", NamespaceAnalysis, New(AnalysisStarted, "", nil))

	sub := bus.Subscribe("s1", NamespaceAnalysis)
	defer sub.Close()
	bus.Publish("s1", NamespaceAnalysis, New(DocumentLoading, "", nil))

	if ev := recv(t, sub); ev.EventType != DocumentLoading {
		t.Fatalf("expected document_loading, got %s", ev.EventType)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(2)
	slow := bus.Subscribe("s1", NamespaceAnalysis)
	fast := bus.Subscribe("s1", NamespaceAnalysis)
	defer slow.Close()
	defer fast.Close()

	var got []float64
	for i := 1; i <= 5; i++ {
		bus.Publish("s1", NamespaceAnalysis, New(DocumentAnalyzing, "", nil).WithProgress(float64(i*10)))
		got = append(got, *recv(t, fast).ProgressPercentage)
	}

	if len(got) != 5 || got[4] != 50 {
		t.Fatalf("fast subscriber missed events: %v", got)
	}

	first := recv(t, slow)
	second := recv(t, slow)
	if *first.ProgressPercentage != 40 || *second.ProgressPercentage != 50 {
		t.Fatalf("expected the two newest events, got %v and %v", *first.ProgressPercentage, *second.ProgressPercentage)
	}
	if slow.Dropped() != 3 {
		t.Fatalf("expected 3 dropped events, got %d", slow.Dropped())
	}
}

func TestCloseIsIdempotentAndRemovesTopic(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe("s1", NamespaceChat)
	if bus.SubscriberCount("s1", NamespaceChat) != 1 {
		t.Fatalf("expected one subscriber")
	}
	sub.Close()
	sub.Close()

	if bus.SubscriberCount("s1", NamespaceChat) != 0 {
		t.Fatalf("expected topic to be empty")
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel")
	}
	bus.Publish("s1", NamespaceChat, New(ChatTyping, "", nil))
}

type recordingForwarder struct {
	mu   sync.Mutex
	seen []Event
}

func (f *recordingForwarder) Forward(_ string, _ Namespace, ev Event) {
	f.mu.Lock()
	f.seen = append(f.seen, ev)
	f.mu.Unlock()
}

func TestForwarderReceivesLocalPublishesOnly(t *testing.T) {
	bus := NewBus(4)
	fw := &recordingForwarder{}
	bus.SetForwarder(fw)
	sub := bus.Subscribe("s1", NamespaceAnalysis)
	defer sub.Close()

	bus.Publish("s1", NamespaceAnalysis, New(AnalysisStarted, "", nil))
	bus.DeliverRemote("s1", NamespaceAnalysis, New(DocumentLoading, "", nil))

	recv(t, sub)
	recv(t, sub)
	if len(fw.seen) != 1 || fw.seen[0].EventType != AnalysisStarted {
		t.Fatalf("expected only the local event to be forwarded, got %+v", fw.seen)
	}
}
