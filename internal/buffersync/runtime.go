package buffersync

import (
	"context"
	"sync"
	"time"

	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/pkg/logger"
)

// Persistence is the external REST collaborator used by the coordinator.
type Persistence interface {
	SaveCode(sessionCode, code, language string) error
	MyCode(sessionCode string) (api.CodeSnapshot, error)
	Heartbeat(sessionCode string) error
}

// Sender pushes the buffer over the session transport.
type Sender interface {
	SendCodeChange(code, language string, cursorPosition int) error
}

// Runtime interprets buffer sync effects: named timers, persistence writes,
// the reconciliation fetch, and transport sends.
type Runtime struct {
	sessionCode string
	rest        Persistence
	sender      Sender
	clock       actor.Clock

	mu     sync.Mutex
	timers map[string]actor.Timer
}

// NewRuntime creates a runtime for one session buffer.
func NewRuntime(sessionCode string, rest Persistence, sender Sender, clock actor.Clock) *Runtime {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		sessionCode: sessionCode,
		rest:        rest,
		sender:      sender,
		clock:       clock,
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e)
		case effPersistCode:
			r.persistCode(ctx, e, emit)
		case effHeartbeat:
			r.heartbeat(ctx)
		case effFetchRemote:
			r.fetchRemote(ctx, emit)
		case effSendCodeFrame:
			if r.sender != nil {
				if err := r.sender.SendCodeChange(e.Text, e.Language, 0); err != nil {
					logger.Debugf("buffersync: immediate sync send failed: %v", err)
				}
			}
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

// startTimer schedules a single named timer, superseding a previous one with
// the same name.
func (r *Runtime) startTimer(ctx context.Context, eff effStartTimer, emit func(actor.Input)) {
	if eff.Name == "" || eff.AfterMs <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		r.timers = make(map[string]actor.Timer)
	}
	if prev := r.timers[eff.Name]; prev != nil {
		prev.Stop()
	}
	after := time.Duration(eff.AfterMs) * time.Millisecond
	r.timers[eff.Name] = r.clock.AfterFunc(after, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if eff.Name == persistDebounceTimerName {
			emit(evPersistDue{})
		}
	})
}

func (r *Runtime) cancelTimer(eff effCancelTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timers[eff.Name]; t != nil {
		t.Stop()
		delete(r.timers, eff.Name)
	}
}

func (r *Runtime) persistCode(ctx context.Context, eff effPersistCode, emit func(actor.Input)) {
	if r.rest == nil {
		emit(evPersistResult{Text: eff.Text, SavedAt: r.clock.Now()})
		return
	}
	// Persist asynchronously so the actor loop never blocks on I/O.
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		err := r.rest.SaveCode(r.sessionCode, eff.Text, eff.Language)
		emit(evPersistResult{Text: eff.Text, SavedAt: r.clock.Now(), Err: err})
	}()
}

func (r *Runtime) heartbeat(ctx context.Context) {
	if r.rest == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := r.rest.Heartbeat(r.sessionCode); err != nil {
			logger.Debugf("buffersync: heartbeat failed: %v", err)
		}
	}()
}

func (r *Runtime) fetchRemote(ctx context.Context, emit func(actor.Input)) {
	if r.rest == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		snap, err := r.rest.MyCode(r.sessionCode)
		if err != nil {
			// Local state is preserved; the next cycle retries naturally.
			logger.Warnf("buffersync: poll fetch failed: %v", err)
			return
		}
		emit(evRemoteSnapshot{Code: snap.Code, Language: snap.Language, Now: r.clock.Now()})
	}()
}
