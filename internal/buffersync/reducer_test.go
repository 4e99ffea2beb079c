package buffersync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/pkg/types"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func baseState() State {
	return State{
		SessionCode: "ABC123",
		Text:        "print('hi')",
		Language:    types.LangPython,
	}
}

func TestUserEditRestartsDebounce(t *testing.T) {
	t.Parallel()

	state, effects := actor.Step(baseState(), cmdUserEdit{Text: "print('hello')", Now: t0}, Reduce)

	require.Equal(t, "print('hello')", state.Text)
	require.Equal(t, t0, state.LastKeystrokeAt)
	require.Len(t, effects, 2)
	require.Equal(t, effCancelTimer{Name: persistDebounceTimerName}, effects[0])
	require.Equal(t, effStartTimer{Name: persistDebounceTimerName, AfterMs: persistDebounceAfterMs}, effects[1])
}

func TestSetLanguageResetsToTemplate(t *testing.T) {
	t.Parallel()

	state, effects := actor.Step(baseState(), cmdSetLanguage{Language: types.LangJavaScript}, Reduce)

	require.Empty(t, effects)
	require.Equal(t, types.LangJavaScript, state.Language)
	require.Equal(t, types.Template(types.LangJavaScript), state.Text)
	require.True(t, state.LastKeystrokeAt.IsZero())
}

func TestImmediateSyncSendsBuffer(t *testing.T) {
	t.Parallel()

	state, effects := actor.Step(baseState(), cmdImmediateSync{}, Reduce)

	require.Len(t, effects, 1)
	require.Equal(t, effSendCodeFrame{Text: "print('hi')", Language: types.LangPython}, effects[0])
	require.Equal(t, baseState(), state)
}

func TestPersistLifecycle(t *testing.T) {
	t.Parallel()

	state := baseState()
	state, effects := actor.Step(state, evPersistDue{}, Reduce)
	require.True(t, state.SavingInFlight)
	require.Len(t, effects, 1)
	require.Equal(t, effPersistCode{Text: "print('hi')", Language: types.LangPython}, effects[0])

	state, effects = actor.Step(state, evPersistResult{Text: "print('hi')", SavedAt: t0}, Reduce)
	require.Empty(t, effects)
	require.False(t, state.SavingInFlight)
	require.Equal(t, "print('hi')", state.LastPersistedText)
	require.Equal(t, t0, state.LastSavedAt)
}

func TestPersistFailureKeepsBaseline(t *testing.T) {
	t.Parallel()

	state := baseState()
	state.LastPersistedText = "old baseline"
	state.SavingInFlight = true

	state, _ = actor.Step(state, evPersistResult{Text: "print('hi')", Err: errors.New("boom")}, Reduce)

	require.False(t, state.SavingInFlight)
	require.Equal(t, "old baseline", state.LastPersistedText)
	require.True(t, state.LastSavedAt.IsZero())
}

func TestPollTickGuards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*State)
		now       time.Time
		wantFetch bool
	}{
		{
			name:      "idle",
			mutate:    func(s *State) { s.LastKeystrokeAt = t0 },
			now:       t0.Add(5 * time.Second),
			wantFetch: true,
		},
		{
			name:      "typingRecently",
			mutate:    func(s *State) { s.LastKeystrokeAt = t0 },
			now:       t0.Add(2 * time.Second),
			wantFetch: false,
		},
		{
			name:      "exactlyAtGuardBoundary",
			mutate:    func(s *State) { s.LastKeystrokeAt = t0 },
			now:       t0.Add(typingPollGuard),
			wantFetch: true,
		},
		{
			name: "saveInFlight",
			mutate: func(s *State) {
				s.LastKeystrokeAt = t0
				s.SavingInFlight = true
			},
			now:       t0.Add(time.Minute),
			wantFetch: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			state := baseState()
			tt.mutate(&state)

			_, effects := actor.Step(state, evPollTick{Now: tt.now}, Reduce)

			require.Equal(t, effHeartbeat{}, effects[0], "heartbeat goes out on every cycle")
			if tt.wantFetch {
				require.Len(t, effects, 2)
				require.Equal(t, effFetchRemote{}, effects[1])
			} else {
				require.Len(t, effects, 1)
			}
		})
	}
}

func TestRemoteSnapshotDeDup(t *testing.T) {
	t.Parallel()

	state := baseState()
	state.LastPersistedText = state.Text

	state, _ = actor.Step(state, evRemoteSnapshot{Code: "remote v1", Now: t0}, Reduce)
	require.Equal(t, "remote v1", state.Text)

	// Same remote text observed again: no re-application even though the
	// local buffer moved on in between.
	state, _ = actor.Step(state, cmdUserEdit{Text: "local edit", Now: t0}, Reduce)
	state, _ = actor.Step(state, evPersistResult{Text: "local edit", SavedAt: t0}, Reduce)
	state, _ = actor.Step(state, evRemoteSnapshot{Code: "remote v1", Now: t0.Add(5 * time.Second)}, Reduce)
	require.Equal(t, "local edit", state.Text)
}

func TestRemoteSnapshotIgnoresEmpty(t *testing.T) {
	t.Parallel()

	state, effects := actor.Step(baseState(), evRemoteSnapshot{Code: "", Now: t0}, Reduce)
	require.Empty(t, effects)
	require.Equal(t, baseState(), state)
}

func TestPushOverrideTypingGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		delay    time.Duration
		wantText string
	}{
		{name: "insideGuard", delay: 1500 * time.Millisecond, wantText: "print('hi')"},
		{name: "atGuardBoundary", delay: pushOverrideGuard, wantText: "print('hi')"},
		{name: "pastGuard", delay: 2500 * time.Millisecond, wantText: "teacher text"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			state := baseState()
			state.LastKeystrokeAt = t0
			state.LastPersistedText = state.Text

			state, _ = actor.Step(state, evPushOverride{Code: "teacher text", Now: t0.Add(tt.delay)}, Reduce)
			require.Equal(t, tt.wantText, state.Text)
		})
	}
}

func TestOverrideBlockedByUnsavedChanges(t *testing.T) {
	t.Parallel()

	state := baseState()
	state.LastPersistedText = "persisted baseline"
	state.Text = "unsaved local work"

	state, _ = actor.Step(state, evPushOverride{Code: "teacher text", Now: t0.Add(time.Minute)}, Reduce)
	require.Equal(t, "unsaved local work", state.Text)

	state, _ = actor.Step(state, evRemoteSnapshot{Code: "remote text", Now: t0.Add(time.Minute)}, Reduce)
	require.Equal(t, "unsaved local work", state.Text)
}

func TestOverrideAppliesToNeverSavedBuffer(t *testing.T) {
	t.Parallel()

	// No baseline yet: the buffer is not dirty, the override wins.
	state := baseState()
	state, _ = actor.Step(state, evPushOverride{Code: "teacher text", Language: types.LangJavaScript, Now: t0.Add(time.Minute)}, Reduce)

	require.Equal(t, "teacher text", state.Text)
	require.Equal(t, types.LangJavaScript, state.Language)
}

func TestOverrideDoesNotAdvanceKeystroke(t *testing.T) {
	t.Parallel()

	state := baseState()
	state.LastKeystrokeAt = t0
	state.LastPersistedText = state.Text

	state, _ = actor.Step(state, evPushOverride{Code: "push one", Now: t0.Add(10 * time.Second)}, Reduce)
	require.Equal(t, "push one", state.Text)
	require.Equal(t, t0, state.LastKeystrokeAt)

	// Because the first override did not count as typing, an immediate
	// second override is still admitted.
	state, _ = actor.Step(state, evPushOverride{Code: "push two", Now: t0.Add(10*time.Second + time.Millisecond)}, Reduce)
	require.Equal(t, "push two", state.Text)
}

func TestSavedAndIdlePollReplacesBuffer(t *testing.T) {
	t.Parallel()

	// Full cycle: type, debounce fires, save lands, then a poll after the
	// typing guard picks up a newer remote revision.
	state := baseState()
	state, _ = actor.Step(state, cmdUserEdit{Text: "student work", Now: t0}, Reduce)
	state, _ = actor.Step(state, evPersistDue{}, Reduce)
	state, _ = actor.Step(state, evPersistResult{Text: "student work", SavedAt: t0.Add(time.Second)}, Reduce)

	now := t0.Add(5 * time.Second)
	_, effects := actor.Step(state, evPollTick{Now: now}, Reduce)
	require.Len(t, effects, 2)

	state, _ = actor.Step(state, evRemoteSnapshot{Code: "teacher revision", Now: now}, Reduce)
	require.Equal(t, "teacher revision", state.Text)
	require.Equal(t, "teacher revision", state.lastPolledRemote)
}

func TestHasUnsavedChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		persisted string
		want      bool
	}{
		{name: "neverSaved", text: "x", persisted: "", want: false},
		{name: "clean", text: "x", persisted: "x", want: false},
		{name: "dirty", text: "y", persisted: "x", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := State{Text: tt.text, LastPersistedText: tt.persisted}
			require.Equal(t, tt.want, s.HasUnsavedChanges())
		})
	}
}
