package pubsub

import (
	"testing"
	"time"
)

func TestTopicFanOut(t *testing.T) {
	topic := NewTopic[int](4)
	a, cancelA := topic.Subscribe()
	b, cancelB := topic.Subscribe()
	defer cancelA()
	defer cancelB()

	if n := topic.Publish(7); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, ch := range []<-chan int{a, b} {
		select {
		case v := <-ch:
			if v != 7 {
				t.Fatalf("expected 7, got %d", v)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for value")
		}
	}
}

func TestTopicDropsWhenFull(t *testing.T) {
	topic := NewTopic[string](1)
	ch, cancel := topic.Subscribe()
	defer cancel()

	topic.Publish("first")
	if n := topic.Publish("second"); n != 0 {
		t.Fatalf("expected full subscriber to be skipped, got %d deliveries", n)
	}
	if v := <-ch; v != "first" {
		t.Fatalf("expected first, got %q", v)
	}
}

func TestTopicCancelClosesChannel(t *testing.T) {
	topic := NewTopic[int](1)
	ch, cancel := topic.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	if topic.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", topic.Len())
	}
}

func TestTopicClose(t *testing.T) {
	topic := NewTopic[int](1)
	ch, _ := topic.Subscribe()
	topic.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	late, _ := topic.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected late subscriber to get a closed channel")
	}
}
