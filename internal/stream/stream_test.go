package stream

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribePublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(DealEvent{Type: TypeContractCreated, ContractID: 3, Actor: "0xagent"})

	select {
	case evt := <-ch:
		if evt.Type != TypeContractCreated || evt.ContractID != 3 {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("publish must stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// Publishing after unsubscribe must not panic or block.
	s.Publish(DealEvent{Type: TypeMilestonePaid})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	// Overfill the buffer; extra events are dropped, not blocked on.
	for i := 0; i < 64; i++ {
		s.Publish(DealEvent{Type: TypeMilestonePaid, ContractID: uint64(i)})
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("buffered = %d, want full buffer %d", got, cap(ch))
	}
}

func TestStartDemoEmitsAndStops(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	stop := s.StartDemo(5*time.Millisecond, func() DealEvent {
		return DealEvent{Type: TypeMilestoneSubmit, ContractID: 1}
	})

	select {
	case evt := <-ch:
		if evt.Type != TypeMilestoneSubmit {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("demo produced no events")
	}
	stop()
}
