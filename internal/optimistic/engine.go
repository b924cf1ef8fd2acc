// Package optimistic applies local state changes before the server confirms
// them and puts things back when it does not.
package optimistic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskeer/internal/alert"
)

const defaultCooldown = 30 * time.Second

// Mutation describes one optimistic change.
type Mutation struct {
	// Name identifies the kind of change, e.g. "task.state".
	Name string
	// Key identifies the entity, e.g. "task:42". Mutations sharing a key are
	// ordered by a per-key sequence number.
	Key string
	// Validate runs before anything else. A non-nil error stops the mutation
	// before the local apply and before any request.
	Validate func() error
	// Apply changes local state synchronously and returns the func that
	// restores exactly the captured pre-mutation value.
	Apply func() (revert func())
	// Send issues the network command.
	Send func(ctx context.Context) error
	// Reload refetches the whole collection. Used on 404 and when a failed
	// mutation was already superseded.
	Reload func(ctx context.Context) error
	// Scope names the collection Reload refetches, e.g. "board:4". A failed
	// mutation skips its revert only when a reload of the same scope started
	// after its apply and completed.
	Scope string
	// RoleAffecting mutations trigger the role recheck hook on success.
	RoleAffecting bool
}

type Option func(*Engine)

// WithRoleRecheck sets the hook run after a role-affecting mutation succeeds.
func WithRoleRecheck(fn func(ctx context.Context)) Option {
	return func(e *Engine) { e.onRoleAffecting = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	alerts          alert.Sink
	log             logrus.FieldLogger
	onRoleAffecting func(ctx context.Context)
	now             func() time.Time

	mu       sync.Mutex
	seq      map[string]uint64
	reloads  map[string]*reloadMark
	cooldown map[string]time.Time
}

// reloadMark counts reloads of one scope. started is bumped before the fetch
// runs; covered is the highest started value whose fetch succeeded.
type reloadMark struct {
	started uint64
	covered uint64
}

func NewEngine(alerts alert.Sink, log logrus.FieldLogger, opts ...Option) *Engine {
	if alerts == nil {
		alerts = alert.Discard
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		alerts:   alerts,
		log:      log,
		now:      time.Now,
		seq:      make(map[string]uint64),
		reloads:  make(map[string]*reloadMark),
		cooldown: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRoleRecheck replaces the role recheck hook.
func (e *Engine) SetRoleRecheck(fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRoleAffecting = fn
}

// Run applies m locally, sends it and confirms or reverts. The returned error
// is a *Failure for every failed mutation.
func (e *Engine) Run(ctx context.Context, m Mutation) error {
	if m.Apply == nil || m.Send == nil {
		return fmt.Errorf("%w: %s needs Apply and Send", ErrInvalid, m.Name)
	}
	log := e.log.WithFields(logrus.Fields{"mutation": m.Name, "key": m.Key})

	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			f := &Failure{Kind: KindValidation, Mutation: m.Name, Message: err.Error(), Err: err}
			e.raise(f, m)
			return f
		}
	}

	cdKey := m.Name + "|" + m.Key
	e.mu.Lock()
	if until, ok := e.cooldown[cdKey]; ok {
		if now := e.now(); now.Before(until) {
			e.mu.Unlock()
			wait := until.Sub(now)
			f := &Failure{
				Kind:       KindCoolingDown,
				Mutation:   m.Name,
				Message:    cooldownMessage(wait),
				RetryAfter: wait,
				Err:        ErrCoolingDown,
			}
			e.raise(f, m)
			return f
		}
		delete(e.cooldown, cdKey)
	}
	e.seq[m.Key]++
	mySeq := e.seq[m.Key]
	e.mu.Unlock()

	revert := m.Apply()

	e.mu.Lock()
	applied := e.markLocked(m.Scope).started
	e.mu.Unlock()

	err := m.Send(ctx)
	if err == nil {
		if m.RoleAffecting {
			e.mu.Lock()
			hook := e.onRoleAffecting
			e.mu.Unlock()
			if hook != nil {
				hook(ctx)
			}
		}
		return nil
	}

	f := classify(m.Name, err)

	e.mu.Lock()
	superseded := e.seq[m.Key] != mySeq
	reloaded := m.Scope != "" && e.markLocked(m.Scope).covered > applied
	if f.Kind == KindRateLimited {
		e.cooldown[cdKey] = e.now().Add(f.RetryAfter)
	}
	e.mu.Unlock()

	switch {
	case reloaded:
		log.Debug("collection reloaded since apply, skipping revert")
	case f.Kind == KindNotFound && m.Reload != nil:
		if rerr := e.reload(ctx, m.Scope, m.Reload); rerr != nil {
			log.WithError(rerr).Warn("reload after 404 failed, reverting locally")
			e.revert(revert)
		}
	case superseded:
		if m.Reload != nil {
			log.Debug("failed mutation was superseded, reloading")
			if rerr := e.reload(ctx, m.Scope, m.Reload); rerr != nil {
				log.WithError(rerr).Warn("reload after superseded failure failed")
			}
		} else {
			log.Debug("failed mutation was superseded, keeping newer local state")
		}
	default:
		e.revert(revert)
	}

	log.WithError(err).WithField("kind", f.Kind.String()).Info("optimistic mutation rejected")
	e.raise(f, m)
	return f
}

// Reload runs fn, the fetch for scope. When it succeeds, in-flight mutations
// of that scope applied before it started no longer revert on failure.
func (e *Engine) Reload(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	return e.reload(ctx, scope, fn)
}

func (e *Engine) reload(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	mark := e.markLocked(scope)
	mark.started++
	id := mark.started
	e.mu.Unlock()

	if err := fn(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	if id > mark.covered {
		mark.covered = id
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) markLocked(scope string) *reloadMark {
	mark, ok := e.reloads[scope]
	if !ok {
		mark = &reloadMark{}
		e.reloads[scope] = mark
	}
	return mark
}

func (e *Engine) revert(revert func()) {
	if revert != nil {
		revert()
	}
}

func (e *Engine) raise(f *Failure, m Mutation) {
	level := alert.LevelError
	if f.Kind == KindRateLimited || f.Kind == KindCoolingDown || f.Kind == KindValidation {
		level = alert.LevelWarning
	}
	e.alerts.Alert(alert.Alert{
		Level:   level,
		Title:   "Acción no completada",
		Message: f.Message,
		Source:  m.Name,
	})
}
