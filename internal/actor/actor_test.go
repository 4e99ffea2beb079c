package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counterState struct {
	n int
}

type cmdAdd struct {
	InputBase
	delta int
}

type cmdBoom struct {
	InputBase
}

type effEcho struct {
	EffectBase
	delta int
}

func counterReduce(state counterState, input Input) (counterState, []Effect) {
	switch in := input.(type) {
	case cmdAdd:
		state.n += in.delta
		if in.delta > 1 {
			// Follow-up input through the runtime.
			return state, []Effect{effEcho{delta: 1}}
		}
		return state, nil
	case cmdBoom:
		panic("boom")
	default:
		return state, nil
	}
}

type echoRuntime struct {
	mu      sync.Mutex
	handled int
}

func (r *echoRuntime) HandleEffects(ctx context.Context, effects []Effect, emit func(Input)) {
	r.mu.Lock()
	r.handled += len(effects)
	r.mu.Unlock()
	for _, eff := range effects {
		if e, ok := eff.(effEcho); ok {
			emit(cmdAdd{delta: e.delta})
		}
	}
}

func (r *echoRuntime) Stop() {}

func waitForState(t *testing.T, a *Actor[counterState], want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.State().n == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestActorReducesInputsInOrder(t *testing.T) {
	t.Parallel()

	a := New(counterState{}, counterReduce, &echoRuntime{})
	a.Start()
	defer a.Stop()

	for i := 0; i < 10; i++ {
		require.True(t, a.Enqueue(cmdAdd{delta: 1}))
	}
	waitForState(t, a, 10)
}

func TestActorEffectsEmitFollowUpInputs(t *testing.T) {
	t.Parallel()

	rt := &echoRuntime{}
	a := New(counterState{}, counterReduce, rt)
	a.Start()
	defer a.Stop()

	// delta 5 reduces to +5 and echoes one more +1.
	a.Enqueue(cmdAdd{delta: 5})
	waitForState(t, a, 6)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	require.Equal(t, 1, rt.handled)
}

func TestActorTransitionHook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions [][2]int
	hooks := Hooks[counterState]{
		OnTransition: func(prev, next counterState, input Input) {
			mu.Lock()
			transitions = append(transitions, [2]int{prev.n, next.n})
			mu.Unlock()
		},
	}
	a := New(counterState{}, counterReduce, &echoRuntime{}, WithHooks(hooks))
	a.Start()
	defer a.Stop()

	a.Enqueue(cmdAdd{delta: 1})
	waitForState(t, a, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][2]int{{0, 1}}, transitions)
}

func TestActorPanicHook(t *testing.T) {
	t.Parallel()

	recovered := make(chan any, 1)
	hooks := Hooks[counterState]{
		OnPanic: func(r any) { recovered <- r },
	}
	a := New(counterState{}, counterReduce, &echoRuntime{}, WithHooks(hooks))
	a.Start()

	a.Enqueue(cmdBoom{})

	select {
	case r := <-recovered:
		require.Equal(t, "boom", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic hook never fired")
	}

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor loop did not exit after panic")
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	a := New(counterState{}, counterReduce, &echoRuntime{})
	a.Start()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor loop did not exit")
	}
	require.False(t, a.Enqueue(cmdAdd{delta: 1}))
	require.False(t, a.Enqueue(nil))
}

func TestStepAppliesReducerWithoutRunning(t *testing.T) {
	t.Parallel()

	next, effects := Step(counterState{n: 3}, cmdAdd{delta: 2}, counterReduce)
	require.Equal(t, 5, next.n)
	require.Len(t, effects, 1)
}
