package buffersync

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// Coordinator owns the canonical local buffer for one student/session pair
// and wires the reducer to its transport, persistence, and timers.
type Coordinator struct {
	act     *actor.Actor[State]
	runtime *Runtime
	clock   actor.Clock
	link    *ws.Link

	mu      sync.Mutex
	unsub   func()
	stop    chan struct{}
	started bool
}

// New creates a coordinator. initialText/initialLanguage come from the
// session-detail and my-code loads. link may be nil when there is no live
// transport (poll-only operation).
func New(sessionCode, initialText, initialLanguage string, rest Persistence, link *ws.Link, clock actor.Clock) *Coordinator {
	if clock == nil {
		clock = actor.RealClock{}
	}
	var sender Sender
	if link != nil {
		sender = link
	}
	rt := NewRuntime(sessionCode, rest, sender, clock)
	initial := State{
		SessionCode: sessionCode,
		Text:        initialText,
		Language:    initialLanguage,
	}
	hooks := actor.Hooks[State]{
		OnTransition: func(prev, next State, input actor.Input) {
			if prev.Text != next.Text {
				logger.Tracef("buffersync: text changed (%d -> %d bytes)", len(prev.Text), len(next.Text))
			}
		},
	}
	return &Coordinator{
		act:     actor.New(initial, Reduce, rt, actor.WithHooks(hooks)),
		runtime: rt,
		clock:   clock,
		link:    link,
	}
}

// Start launches the actor loop, subscribes to push overrides, and begins
// the reconciliation poll (with an immediate first cycle).
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.act.Start()

	if c.link != nil {
		c.unsub = c.link.On(ws.TypeTeacherEditReceived, func(data map[string]any) {
			code, _ := data["code"].(string)
			language, _ := data["language"].(string)
			c.act.Enqueue(evPushOverride{Code: code, Language: language, Now: c.clock.Now()})
		})
	}

	c.stop = make(chan struct{})
	go c.pollLoop(c.stop)
}

func (c *Coordinator) pollLoop(stop chan struct{}) {
	c.act.Enqueue(evPollTick{Now: c.clock.Now()})
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.act.Enqueue(evPollTick{Now: c.clock.Now()})
		}
	}
}

// Stop cancels all timers and the poll loop and stops the actor. Required on
// surface unmount so no orphaned poll keeps running against a stale session.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.act.Stop()
}

// UserEdit records a local keystroke-driven buffer change.
func (c *Coordinator) UserEdit(text string) {
	c.act.Enqueue(cmdUserEdit{Text: text, Now: c.clock.Now()})
}

// SetLanguage switches languages, resetting the buffer to the starter
// template.
func (c *Coordinator) SetLanguage(language string) {
	c.act.Enqueue(cmdSetLanguage{Language: language})
}

// ImmediateSync pushes the current buffer over the transport right away,
// shrinking the divergence window. Persistence debouncing is unaffected.
func (c *Coordinator) ImmediateSync() {
	c.act.Enqueue(cmdImmediateSync{})
}

// Buffer returns a snapshot of the current buffer state.
func (c *Coordinator) Buffer() State {
	return c.act.State()
}

// Export writes the current buffer to dir and returns the file path. The
// handed-off content is exactly the buffer's text and language.
func (c *Coordinator) Export(dir string) (string, error) {
	s := c.act.State()
	path := filepath.Join(dir, types.ExportFilename(s.Language, c.clock.Now()))
	if err := os.WriteFile(path, []byte(s.Text), 0644); err != nil {
		return "", err
	}
	return path, nil
}
