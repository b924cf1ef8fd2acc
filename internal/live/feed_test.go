package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskeer/internal/models"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	list  models.NotificationList
	err   error
}

func (f *fakeSource) Notifications(ctx context.Context) (*models.NotificationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	l := f.list
	return &l, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.Notification
	snap    []bool
}

func (f *fakeSink) Process(batch []models.Notification, snapshot bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	f.snap = append(f.snap, snapshot)
}

type fakeProber struct {
	connected, failed bool
	reconnects        int
}

func (f *fakeProber) Connected() bool { return f.connected }
func (f *fakeProber) Failed() bool    { return f.failed }
func (f *fakeProber) Reconnect()      { f.reconnects++ }

func TestPollHandsSnapshotToSink(t *testing.T) {
	src := &fakeSource{list: models.NotificationList{
		Notifications: []models.Notification{{ID: 1, Payload: models.OtherPayload{RawType: "otro"}}},
		Unread:        1,
	}}
	sink := &fakeSink{}
	f := NewFeed(FeedConfig{}, src, sink, nil, nil)

	if err := f.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(sink.batches) != 1 || !sink.snap[0] || sink.batches[0][0].ID != 1 {
		t.Fatalf("unexpected sink state %+v", sink.batches)
	}
	if last, err := f.LastPoll(); last.IsZero() || err != nil {
		t.Fatalf("last poll not recorded: %v %v", last, err)
	}
}

func TestPollErrorKeepsLastSuccess(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	f := NewFeed(FeedConfig{}, src, sink, nil, nil)
	f.Poll(context.Background())
	ok, _ := f.LastPoll()

	src.err = errors.New("boom")
	if err := f.Poll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	last, err := f.LastPoll()
	if !last.Equal(ok) || err == nil {
		t.Fatalf("unexpected last poll %v %v", last, err)
	}
	if len(sink.batches) != 1 {
		t.Fatal("failed poll must not reach the sink")
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name           string
		prober         fakeProber
		sinceLastPoll  time.Duration
		wantReconnects int
		wantPolls      int
	}{
		{"healthy", fakeProber{connected: true}, time.Second, 0, 0},
		{"socket down", fakeProber{}, time.Second, 1, 0},
		{"socket failed", fakeProber{failed: true}, time.Second, 0, 0},
		{"stale feed", fakeProber{connected: true}, 61 * time.Second, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			prober := tt.prober
			f := NewFeed(FeedConfig{}, src, &fakeSink{}, &prober, nil)
			base := time.Now()
			f.lastPoll = base
			f.now = func() time.Time { return base.Add(tt.sinceLastPoll) }

			f.probe(context.Background())
			if prober.reconnects != tt.wantReconnects {
				t.Errorf("reconnects = %d, want %d", prober.reconnects, tt.wantReconnects)
			}
			if src.Calls() != tt.wantPolls {
				t.Errorf("polls = %d, want %d", src.Calls(), tt.wantPolls)
			}
		})
	}
}

func TestRunPollsImmediatelyAndOnTrigger(t *testing.T) {
	src := &fakeSource{}
	f := NewFeed(FeedConfig{Interval: time.Hour, ProbeInterval: time.Hour}, src, &fakeSink{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	waitUntil(t, func() bool { return src.Calls() == 1 })
	f.Trigger()
	waitUntil(t, func() bool { return src.Calls() == 2 })
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
