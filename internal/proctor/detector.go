// Package proctor turns continuous presence signals (visibility, focus,
// viewport geometry) into discrete edge-triggered proctoring events.
package proctor

import (
	"sync"
	"time"

	"github.com/observerhq/observer/internal/actor"
	"github.com/observerhq/observer/pkg/logger"
	"github.com/observerhq/observer/pkg/types"
)

const (
	// splitThreshold classifies the viewport as split when either dimension
	// uses less than this fraction of the screen.
	splitThreshold = 0.75
	// resizeDebounce is the quiet period applied to resize bursts.
	resizeDebounce = 400 * time.Millisecond
)

// Viewport reports window and screen geometry. Injectable so detection is
// testable without a real display.
type Viewport interface {
	WindowSize() (width, height int)
	ScreenSize() (width, height int)
}

// Reporter receives each emitted proctoring event.
type Reporter func(types.ActivityType)

// splitState tracks the last *emitted* classification; hysteresis keys off
// it, not the last observed ratio.
type splitState int

const (
	splitUnknown splitState = iota
	splitYes
	splitNo
)

// Detector emits one event per state transition and nothing while a state
// persists.
type Detector struct {
	clock    actor.Clock
	viewport Viewport
	report   Reporter

	mu          sync.Mutex
	hidden      bool
	split       splitState
	resizeTimer actor.Timer
	stopped     bool
}

// New creates a detector. report must be non-nil.
func New(viewport Viewport, clock actor.Clock, report Reporter) *Detector {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Detector{
		clock:    clock,
		viewport: viewport,
		report:   report,
	}
}

// Start performs the initial split check. Visibility starts as visible.
func (d *Detector) Start() {
	d.checkSplit()
}

// Stop cancels any pending debounce; no further events are emitted.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.resizeTimer != nil {
		d.resizeTimer.Stop()
		d.resizeTimer = nil
	}
}

// OnVisibilityChange reports a document visibility transition. Repeated
// observations of the same state emit nothing.
func (d *Detector) OnVisibilityChange(hidden bool) {
	d.mu.Lock()
	if d.stopped || hidden == d.hidden {
		d.mu.Unlock()
		return
	}
	d.hidden = hidden
	d.mu.Unlock()

	if hidden {
		d.emit(types.ActivityTabHidden)
	} else {
		d.emit(types.ActivityTabVisible)
	}
}

// OnBlur reports a window focus loss. Suppressed while the document is
// hidden, which would otherwise double-report the same departure.
func (d *Detector) OnBlur() {
	d.mu.Lock()
	suppress := d.stopped || d.hidden
	d.mu.Unlock()
	if suppress {
		return
	}
	d.emit(types.ActivityWindowBlur)
}

// OnResize notes a viewport geometry change. The split check runs after the
// debounce quiet period; bursts collapse into one check.
func (d *Detector) OnResize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.resizeTimer != nil {
		d.resizeTimer.Stop()
	}
	d.resizeTimer = d.clock.AfterFunc(resizeDebounce, d.checkSplit)
}

// checkSplit classifies the current geometry and emits only on transitions.
func (d *Detector) checkSplit() {
	winW, winH := d.viewport.WindowSize()
	screenW, screenH := d.viewport.ScreenSize()
	if screenW <= 0 || screenH <= 0 {
		return
	}
	widthRatio := float64(winW) / float64(screenW)
	heightRatio := float64(winH) / float64(screenH)
	isSplit := widthRatio < splitThreshold || heightRatio < splitThreshold

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	var ev types.ActivityType
	switch {
	case isSplit && d.split != splitYes:
		d.split = splitYes
		ev = types.ActivitySplitScreen
	case !isSplit && d.split == splitYes:
		d.split = splitNo
		ev = types.ActivityFullscreenRestored
	default:
		// Steady state, including the initial non-split observation.
		if d.split == splitUnknown {
			d.split = splitNo
		}
	}
	d.mu.Unlock()

	if ev != "" {
		d.emit(ev)
	}
}

func (d *Detector) emit(ev types.ActivityType) {
	logger.Debugf("proctor: %s", ev)
	d.report(ev)
}
