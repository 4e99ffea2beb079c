package buffersync

import (
	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

// Reduce is the buffer sync reducer. Ordering between the pending debounce
// timer and incoming overrides is enforced entirely by the guard conditions
// here; there is no other mutual exclusion.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdUserEdit:
		return reduceUserEdit(state, in)
	case cmdSetLanguage:
		return reduceSetLanguage(state, in)
	case cmdImmediateSync:
		return state, []actor.Effect{effSendCodeFrame{Text: state.Text, Language: state.Language}}
	case evPersistDue:
		return reducePersistDue(state)
	case evPersistResult:
		return reducePersistResult(state, in)
	case evPollTick:
		return reducePollTick(state, in)
	case evRemoteSnapshot:
		return reduceRemoteSnapshot(state, in)
	case evPushOverride:
		return reducePushOverride(state, in)
	default:
		return state, nil
	}
}

func reduceUserEdit(state State, in cmdUserEdit) (State, []actor.Effect) {
	state.Text = in.Text
	state.LastKeystrokeAt = in.Now
	// Supersede any pending persistence timer with a fresh quiet period.
	return state, []actor.Effect{
		effCancelTimer{Name: persistDebounceTimerName},
		effStartTimer{Name: persistDebounceTimerName, AfterMs: persistDebounceAfterMs},
	}
}

func reduceSetLanguage(state State, in cmdSetLanguage) (State, []actor.Effect) {
	state.Language = in.Language
	state.Text = types.Template(in.Language)
	return state, nil
}

func reducePersistDue(state State) (State, []actor.Effect) {
	state.SavingInFlight = true
	return state, []actor.Effect{effPersistCode{Text: state.Text, Language: state.Language}}
}

func reducePersistResult(state State, in evPersistResult) (State, []actor.Effect) {
	state.SavingInFlight = false
	if in.Err != nil {
		// Leave the baseline untouched; the next debounce cycle resends.
		logger.Warnf("buffersync: save failed: %v", in.Err)
		return state, nil
	}
	state.LastPersistedText = in.Text
	state.LastSavedAt = in.SavedAt
	return state, nil
}

func reducePollTick(state State, in evPollTick) (State, []actor.Effect) {
	effects := []actor.Effect{effHeartbeat{}}
	if state.SavingInFlight || in.Now.Sub(state.LastKeystrokeAt) < typingPollGuard {
		// A local write is imminent or outstanding; comparing against a
		// possibly stale remote view now would race it.
		return state, effects
	}
	return state, append(effects, effFetchRemote{})
}

func reduceRemoteSnapshot(state State, in evRemoteSnapshot) (State, []actor.Effect) {
	if in.Code == "" || in.Code == state.lastPolledRemote {
		return state, nil
	}
	state.lastPolledRemote = in.Code
	return applyOverride(state, IntentRemotePoll, in.Code, in.Language), nil
}

func reducePushOverride(state State, in evPushOverride) (State, []actor.Effect) {
	if in.Now.Sub(state.LastKeystrokeAt) <= pushOverrideGuard {
		logger.Debugf("buffersync: dropping push override inside typing guard")
		return state, nil
	}
	return applyOverride(state, IntentRemotePush, in.Code, in.Language), nil
}

// applyOverride is the shared admission path for poll and push overrides.
// An override never advances LastKeystrokeAt: it was not user activity, so a
// subsequent override stays eligible.
func applyOverride(state State, intent WriterIntent, code, language string) State {
	if state.HasUnsavedChanges() {
		// Preserved behavior: any unsaved local change blocks the override,
		// even a single un-debounced keystroke.
		logger.Debugf("buffersync: dropping %s override, buffer has unsaved changes", intent)
		return state
	}
	state.Text = code
	if language != "" {
		state.Language = language
	}
	return state
}
