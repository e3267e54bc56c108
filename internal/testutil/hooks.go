package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/lpsuspend/internal/clocktree"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/platform"
	"github.com/roach88/lpsuspend/internal/wakeup"
)

// RecordingHooks wraps platform hooks and logs every call, so tests can
// assert the Begin/PreEnter/PostEnter pairing. BeginErr and PreEnterErr
// inject failures without reaching Inner.
type RecordingHooks struct {
	Inner       platform.Hooks
	BeginErr    error
	PreEnterErr error

	mu    sync.Mutex
	calls []string
}

func (h *RecordingHooks) inner() platform.Hooks {
	if h.Inner == nil {
		return platform.NopHooks{}
	}
	return h.Inner
}

func (h *RecordingHooks) log(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

// Begin implements platform.Hooks.
func (h *RecordingHooks) Begin(depth ir.SleepDepth) (wakeup.Set, error) {
	h.log("begin %s", depth)
	if h.BeginErr != nil {
		return 0, h.BeginErr
	}
	return h.inner().Begin(depth)
}

// PreEnter implements platform.Hooks.
func (h *RecordingHooks) PreEnter(depth ir.SleepDepth, wake wakeup.Set) (*clocktree.Snapshot, error) {
	h.log("pre_enter %s", wake)
	if h.PreEnterErr != nil {
		return nil, h.PreEnterErr
	}
	return h.inner().PreEnter(depth, wake)
}

// PostEnter implements platform.Hooks.
func (h *RecordingHooks) PostEnter(depth ir.SleepDepth, snap *clocktree.Snapshot) error {
	if snap == nil {
		h.log("post_enter nil")
	} else {
		h.log("post_enter snapshot")
	}
	return h.inner().PostEnter(depth, snap)
}

// TranslateWakeEvent implements platform.Hooks.
func (h *RecordingHooks) TranslateWakeEvent(raw uint32) uint32 {
	return h.inner().TranslateWakeEvent(raw)
}

// Calls returns the call log.
func (h *RecordingHooks) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Count returns how many logged calls start with prefix.
func (h *RecordingHooks) Count(prefix string) int {
	n := 0
	for _, c := range h.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
