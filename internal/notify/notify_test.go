package notify

import "testing"

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()

	a := b.Subscribe()
	c := b.Subscribe()

	b.Notify(Error, "must sign in")

	for _, ch := range []chan Notice{a, c} {
		select {
		case n := <-ch:
			if n.Severity != Error || n.Message != "must sign in" {
				t.Errorf("got %+v", n)
			}
		default:
			t.Fatal("subscriber did not receive notice")
		}
	}

	b.Unsubscribe(c)
	b.Notify(Info, "connected")

	select {
	case n := <-c:
		t.Fatalf("unsubscribed channel received %+v", n)
	default:
	}
	if n := <-a; n.Message != "connected" {
		t.Errorf("got %+v", n)
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()

	// One more than the subscriber buffer; the overflow must be dropped,
	// not block the publisher.
	for i := 0; i < cap(ch)+1; i++ {
		b.Notify(Info, "n")
	}

	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer of %d, got %d", cap(ch), len(ch))
	}
}
