package optimistic

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"taskeer/internal/alert"
)

type statusErr struct {
	status int
	retry  time.Duration
}

func (e statusErr) Error() string             { return http.StatusText(e.status) }
func (e statusErr) HTTPStatus() int           { return e.status }
func (e statusErr) RetryDelay() time.Duration { return e.retry }

type recorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recorder) Alert(a alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// cell is a tiny piece of local state to mutate.
type cell struct {
	value string
}

func (c *cell) set(v string) Mutation {
	return Mutation{
		Name: "cell.set",
		Key:  "cell:1",
		Apply: func() func() {
			prev := c.value
			c.value = v
			return func() { c.value = prev }
		},
	}
}

func TestRunSuccessKeepsState(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	c := &cell{value: "P"}

	m := c.set("C")
	m.Send = func(ctx context.Context) error { return nil }
	if err := e.Run(context.Background(), m); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.value != "C" || rec.count() != 0 {
		t.Fatalf("expected C and no alert, got %q and %d alerts", c.value, rec.count())
	}
}

func TestRunRevertsOnFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"forbidden", statusErr{status: 403}, KindForbidden, MsgForbidden},
		{"server", statusErr{status: 500}, KindFailed, MsgFailed},
		{"offline", statusErr{status: 0}, KindTransient, MsgTransient},
		{"timeout", context.DeadlineExceeded, KindTransient, MsgTransient},
		{"bad request", statusErr{status: 400}, KindValidation, MsgValidation},
		{"not found without reload", statusErr{status: 404}, KindNotFound, MsgNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			e := NewEngine(rec, nil)
			c := &cell{value: "P"}

			m := c.set("C")
			m.Send = func(ctx context.Context) error {
				if c.value != "C" {
					t.Errorf("state not applied before send: %q", c.value)
				}
				return tt.err
			}
			err := e.Run(context.Background(), m)
			if KindOf(err) != tt.kind {
				t.Fatalf("kind = %v, want %v (err %v)", KindOf(err), tt.kind, err)
			}
			if c.value != "P" {
				t.Fatalf("expected revert to P, got %q", c.value)
			}
			if rec.count() != 1 || rec.alerts[0].Message != tt.msg {
				t.Fatalf("unexpected alerts %+v", rec.alerts)
			}
		})
	}
}

func TestRunReloadsOnNotFound(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}
	reloads := 0

	m := c.set("C")
	m.Send = func(ctx context.Context) error { return statusErr{status: 404} }
	m.Reload = func(ctx context.Context) error {
		reloads++
		c.value = "server"
		return nil
	}
	if err := e.Run(context.Background(), m); KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if reloads != 1 || c.value != "server" {
		t.Fatalf("expected a reload to server state, got %d reloads and %q", reloads, c.value)
	}
}

func TestValidationStopsBeforeApply(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}
	sent := false

	m := c.set("C")
	m.Validate = func() error { return errors.New("email inválido") }
	m.Send = func(ctx context.Context) error { sent = true; return nil }

	err := e.Run(context.Background(), m)
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if sent || c.value != "P" {
		t.Fatal("validation failure must not apply or send")
	}
}

func TestRateLimitCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(nil, nil, WithClock(func() time.Time { return now }))
	c := &cell{value: "P"}
	sends := 0

	m := c.set("C")
	m.Send = func(ctx context.Context) error {
		sends++
		return statusErr{status: 429, retry: 10 * time.Second}
	}
	if err := e.Run(context.Background(), m); KindOf(err) != KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}

	now = now.Add(5 * time.Second)
	err := e.Run(context.Background(), m)
	if !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	if sends != 1 || c.value != "P" {
		t.Fatalf("cooldown must not send or apply: sends=%d value=%q", sends, c.value)
	}

	now = now.Add(6 * time.Second)
	m.Send = func(ctx context.Context) error { sends++; return nil }
	if err := e.Run(context.Background(), m); err != nil {
		t.Fatalf("expected success after cooldown, got %v", err)
	}
	if sends != 2 || c.value != "C" {
		t.Fatalf("unexpected state after cooldown: sends=%d value=%q", sends, c.value)
	}
}

func TestSupersededFailureDoesNotClobberNewerState(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}

	release := make(chan struct{})
	sending := make(chan struct{})
	done := make(chan error, 1)

	first := c.set("N")
	first.Send = func(ctx context.Context) error {
		close(sending)
		<-release
		return statusErr{status: 500}
	}
	go func() { done <- e.Run(context.Background(), first) }()
	<-sending

	second := c.set("C")
	second.Send = func(ctx context.Context) error { return nil }
	if err := e.Run(context.Background(), second); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	close(release)
	if err := <-done; KindOf(err) != KindFailed {
		t.Fatalf("expected first to fail, got %v", err)
	}
	if c.value != "C" {
		t.Fatalf("stale failure reverted newer state: %q", c.value)
	}
}

func TestRoleAffectingTriggersRecheck(t *testing.T) {
	rechecks := 0
	e := NewEngine(nil, nil, WithRoleRecheck(func(ctx context.Context) { rechecks++ }))
	c := &cell{}

	m := c.set("editor")
	m.RoleAffecting = true
	m.Send = func(ctx context.Context) error { return nil }
	if err := e.Run(context.Background(), m); err != nil {
		t.Fatalf("Run: %v", err)
	}

	m.Send = func(ctx context.Context) error { return statusErr{status: 403} }
	_ = e.Run(context.Background(), m)

	if rechecks != 1 {
		t.Fatalf("expected one recheck, got %d", rechecks)
	}
}

func TestReloadOfOtherScopeStillReverts(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "lector"}

	m := c.set("editor")
	m.Key = "member:1:2"
	m.Scope = "members:1"
	m.Send = func(ctx context.Context) error {
		if err := e.Reload(ctx, "board:1", func(ctx context.Context) error { return nil }); err != nil {
			t.Errorf("Reload: %v", err)
		}
		return statusErr{status: 403}
	}
	if err := e.Run(context.Background(), m); KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if c.value != "lector" {
		t.Fatalf("role after 403 = %q, want lector", c.value)
	}
}

func TestReloadOfSameScopeAfterApplySkipsRevert(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}

	m := c.set("C")
	m.Scope = "board:1"
	m.Send = func(ctx context.Context) error {
		err := e.Reload(ctx, "board:1", func(ctx context.Context) error {
			c.value = "server"
			return nil
		})
		if err != nil {
			t.Errorf("Reload: %v", err)
		}
		return statusErr{status: 403}
	}
	_ = e.Run(context.Background(), m)
	if c.value != "server" {
		t.Fatalf("revert clobbered reloaded state: %q", c.value)
	}
}

func TestFailedReloadDoesNotCoverMutation(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}

	m := c.set("C")
	m.Scope = "board:1"
	m.Send = func(ctx context.Context) error {
		_ = e.Reload(ctx, "board:1", func(ctx context.Context) error { return errors.New("offline") })
		return statusErr{status: 403}
	}
	_ = e.Run(context.Background(), m)
	if c.value != "P" {
		t.Fatalf("expected revert to P, got %q", c.value)
	}
}

func TestReloadStartedBeforeApplyDoesNotCoverMutation(t *testing.T) {
	e := NewEngine(nil, nil)
	c := &cell{value: "P"}

	fetching := make(chan struct{})
	finish := make(chan struct{})
	reloaded := make(chan error, 1)
	go func() {
		reloaded <- e.Reload(context.Background(), "board:1", func(ctx context.Context) error {
			close(fetching)
			<-finish
			return nil
		})
	}()
	<-fetching

	m := c.set("C")
	m.Scope = "board:1"
	m.Send = func(ctx context.Context) error {
		close(finish)
		if err := <-reloaded; err != nil {
			t.Errorf("Reload: %v", err)
		}
		return statusErr{status: 403}
	}
	_ = e.Run(context.Background(), m)
	if c.value != "P" {
		t.Fatalf("a reload that never saw the apply skipped the revert: %q", c.value)
	}
}
