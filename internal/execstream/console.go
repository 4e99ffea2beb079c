// Package execstream multiplexes a streaming run protocol over one transport
// link: a run request, stdin forwarding, and interleaved stdout/stderr
// chunks with status frames.
package execstream

import (
	"strconv"
	"sync"
	"time"

	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/internal/ws"
	"github.com/observerhq/observer/pkg/logger"
)

// RunStatus is the lifecycle state of the current (or most recent) run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusStarted   RunStatus = "started"
	StatusStreaming RunStatus = "streaming"
	StatusFinished  RunStatus = "finished"
	StatusStopped   RunStatus = "stopped"
	StatusError     RunStatus = "error"
)

// EntryKind classifies console entries for rendering.
type EntryKind string

const (
	KindOutput EntryKind = "output"
	KindError  EntryKind = "error"
	KindInfo   EntryKind = "info"
)

// Entry is one logical console record. Consecutive chunks on the same stream
// extend a single entry rather than creating new ones.
type Entry struct {
	Kind      EntryKind
	Text      string
	Timestamp time.Time

	// stream marks entries still eligible for chunk coalescing.
	stream bool
}

// Console owns the output buffer and run state for one execution connection.
// At most one run is active per link at a time; issuing a second run while
// one is active is a caller error this package does not police.
type Console struct {
	link  *ws.Link
	clock actor.Clock

	mu       sync.Mutex
	status   RunStatus
	active   bool
	entries  []Entry
	exitCode *int

	onUpdate func()
	unsubs   []func()
}

// NewConsole creates a console bound to an execution link. onUpdate
// (optional) fires after every buffer change.
func NewConsole(link *ws.Link, clock actor.Clock, onUpdate func()) *Console {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Console{
		link:     link,
		clock:    clock,
		status:   StatusIdle,
		onUpdate: onUpdate,
	}
}

// Attach subscribes to the protocol frames. Call once before Run.
func (c *Console) Attach() {
	c.unsubs = append(c.unsubs,
		c.link.On(ws.TypeStatus, c.handleStatus),
		c.link.On(ws.TypeOutput, c.handleOutput),
		c.link.On(ws.TypeError, c.handleError),
	)
}

// Detach unsubscribes from the protocol frames.
func (c *Console) Detach() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Run requests execution of code. The server answers with a `status:started`
// frame, which clears the previous output buffer.
func (c *Console) Run(code, language string) error {
	return c.link.Send(ws.TypeRun, map[string]any{
		"code":     code,
		"language": language,
	})
}

// SendInput forwards a line to the running process's stdin, echoing it to
// the console. Ignored when no run is active.
func (c *Console) SendInput(text string) error {
	c.mu.Lock()
	active := c.active
	if active {
		c.entries = append(c.entries, Entry{
			Kind:      KindOutput,
			Text:      text + "\n",
			Timestamp: c.clock.Now(),
		})
	}
	c.mu.Unlock()
	if !active {
		logger.Debugf("execstream: dropping input, no active run")
		return nil
	}
	c.notify()
	return c.link.Send(ws.TypeInput, map[string]any{"input": text + "\n"})
}

// StopRun asks the server to terminate the running process.
func (c *Console) StopRun() error {
	return c.link.Send(ws.TypeStop, nil)
}

// Status returns the current run status.
func (c *Console) Status() RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Running reports whether a run is active.
func (c *Console) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ExitCode returns the terminal exit code of the last finished run, if any.
func (c *Console) ExitCode() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitCode == nil {
		return 0, false
	}
	return *c.exitCode, true
}

// Entries returns a copy of the output buffer.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Clear empties the output buffer.
func (c *Console) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Console) handleStatus(data map[string]any) {
	status, _ := data["status"].(string)
	c.mu.Lock()
	switch status {
	case "started":
		c.active = true
		c.status = StatusStarted
		c.entries = nil
		c.exitCode = nil
	case "finished":
		c.active = false
		c.status = StatusFinished
		code := 0
		if v, ok := data["exit_code"].(float64); ok {
			code = int(v)
		}
		c.exitCode = &code
		c.entries = append(c.entries, Entry{
			Kind:      KindInfo,
			Text:      formatExit(code),
			Timestamp: c.clock.Now(),
		})
	case "stopped":
		c.active = false
		c.status = StatusStopped
	default:
		logger.Debugf("execstream: unknown status %q", status)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Console) handleOutput(data map[string]any) {
	stream, _ := data["stream"].(string)
	chunk, _ := data["data"].(string)
	kind := KindOutput
	if stream == "stderr" {
		kind = KindError
	}

	c.mu.Lock()
	if c.status == StatusStarted {
		c.status = StatusStreaming
	}
	// Coalesce: a chunk on the same stream as the most recent stream record
	// extends it; anything else starts a new entry.
	if n := len(c.entries); n > 0 && c.entries[n-1].stream && c.entries[n-1].Kind == kind {
		c.entries[n-1].Text += chunk
	} else {
		c.entries = append(c.entries, Entry{
			Kind:      kind,
			Text:      chunk,
			Timestamp: c.clock.Now(),
			stream:    true,
		})
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Console) handleError(data map[string]any) {
	message, _ := data["error"].(string)
	c.mu.Lock()
	c.active = false
	c.status = StatusError
	c.entries = append(c.entries, Entry{
		Kind:      KindError,
		Text:      message,
		Timestamp: c.clock.Now(),
	})
	c.mu.Unlock()
	c.notify()
}

func (c *Console) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

func formatExit(code int) string {
	return "\nProcess finished with exit code " + strconv.Itoa(code)
}
