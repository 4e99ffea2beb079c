// Package buffersync arbitrates writes to one student code buffer among four
// sources: local keystrokes, the debounced persistence write, the
// reconciliation poll, and teacher push overrides.
//
// The policy is recency-weighted single-writer-wins, not a merge: the
// dominant case is one human typing with an occasional supervisory override.
package buffersync

import (
	"time"

	"github.com/observerhq/observer/internal/actor"
)

const (
	persistDebounceTimerName = "persist-code"
	persistDebounceAfterMs   = 1000

	// pollInterval is the reconciliation poll cadence.
	pollInterval = 5 * time.Second
	// typingPollGuard suppresses the poll's remote-code fetch this soon after
	// a keystroke, to avoid racing an imminent local write.
	typingPollGuard = 3 * time.Second
	// pushOverrideGuard drops push overrides this soon after a keystroke;
	// overwriting mid-typing causes visible cursor/content thrash.
	pushOverrideGuard = 2 * time.Second
)

// WriterIntent tags the origin of a buffer write so precedence is explicit at
// each call site.
type WriterIntent int

const (
	IntentUser WriterIntent = iota
	IntentRemotePoll
	IntentRemotePush
)

func (i WriterIntent) String() string {
	switch i {
	case IntentUser:
		return "user"
	case IntentRemotePoll:
		return "remote-poll"
	case IntentRemotePush:
		return "remote-push"
	default:
		return "unknown"
	}
}

// State is the loop-owned local buffer state.
type State struct {
	SessionCode string

	Text     string
	Language string

	// LastKeystrokeAt is the timestamp of the most recent user edit. Override
	// application never advances it.
	LastKeystrokeAt time.Time

	// LastPersistedText is the baseline used to detect unsaved changes. Only
	// a successful persistence response updates it, never speculatively.
	LastPersistedText string
	// LastSavedAt is when the last successful persist completed.
	LastSavedAt time.Time
	// SavingInFlight is set while a persistence write is outstanding.
	SavingInFlight bool

	// lastPolledRemote is the last remote text the poll path itself observed,
	// used to de-duplicate poll results.
	lastPolledRemote string
}

// HasUnsavedChanges reports whether the buffer diverges from its persisted
// baseline. A never-yet-saved buffer has no baseline to protect and is not
// considered dirty.
func (s State) HasUnsavedChanges() bool {
	return s.Text != s.LastPersistedText && s.LastPersistedText != ""
}

// Inputs

// cmdUserEdit is a local keystroke. The only path that may set Text
// unconditionally.
type cmdUserEdit struct {
	actor.InputBase
	Text string
	Now  time.Time
}

// cmdSetLanguage switches languages and resets the buffer to the language's
// starter template.
type cmdSetLanguage struct {
	actor.InputBase
	Language string
}

// cmdImmediateSync pushes the buffer over the session transport right away
// (structural-key sync). It does not bypass the persistence debounce.
type cmdImmediateSync struct {
	actor.InputBase
}

// evPersistDue fires when the persistence debounce timer elapses.
type evPersistDue struct {
	actor.InputBase
}

// evPersistResult reports the outcome of a persistence write. Text is the
// exact text that was sent.
type evPersistResult struct {
	actor.InputBase
	Text    string
	SavedAt time.Time
	Err     error
}

// evPollTick is the 5s reconciliation tick.
type evPollTick struct {
	actor.InputBase
	Now time.Time
}

// evRemoteSnapshot is a fetched remote code snapshot (poll path).
type evRemoteSnapshot struct {
	actor.InputBase
	Code     string
	Language string
	Now      time.Time
}

// evPushOverride is an inbound supervisor edit pushed over the transport.
type evPushOverride struct {
	actor.InputBase
	Code     string
	Language string
	Now      time.Time
}

// Effects

type effStartTimer struct {
	actor.EffectBase
	Name    string
	AfterMs int64
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

// effPersistCode writes the buffer to the persistence endpoint.
type effPersistCode struct {
	actor.EffectBase
	Text     string
	Language string
}

// effHeartbeat sends the lightweight liveness signal. Sent on every poll
// cycle regardless of guard state.
type effHeartbeat struct {
	actor.EffectBase
}

// effFetchRemote fetches the remote code snapshot for comparison.
type effFetchRemote struct {
	actor.EffectBase
}

// effSendCodeFrame pushes the buffer over the session transport.
type effSendCodeFrame struct {
	actor.EffectBase
	Text     string
	Language string
}
