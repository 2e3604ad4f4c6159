package events

import "testing"

func TestSubscribePublishDelivers(t *testing.T) {
	b := NewBus(4)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Event{Kind: FileStored, FileStoredPayload: &FileStoredPayload{SOPInstanceUID: "1.2.3"}})

	select {
	case ev := <-ch:
		if ev.Kind != FileStored || ev.FileStoredPayload.SOPInstanceUID != "1.2.3" {
			t.Errorf("got %+v, want FileStored for 1.2.3", ev)
		}
	default:
		t.Fatal("expected event to be delivered to subscriber")
	}
}

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	b := NewBus(4)
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Kind: Connection})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		default:
			t.Errorf("subscriber %d did not receive the published event", i)
		}
	}
}

func TestPublishDropsOnFullBufferWithoutBlocking(t *testing.T) {
	b := NewBus(1)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Event{Kind: Connection})
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: Error}) // buffer already full; must not block
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done // Publish must return promptly even though the subscriber hasn't drained

	first := <-ch
	if first.Kind != Connection {
		t.Errorf("first queued event = %s, want Connection", first.Kind)
	}
	select {
	case <-ch:
		t.Error("expected the second event to have been dropped, not delivered")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(Event{Kind: Connection}) // must not panic sending to an unsubscribed channel

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}
