// Package progress carries task progress out of long-running simulation
// steps. Components report into a Sink handed to them explicitly; nothing
// here is global.
package progress

import (
	"encoding/json"
	"sync"
)

// Task names used by the simulator.
const (
	TaskSignal = "signal"
	TaskBuild  = "build"
)

// Sink receives progress reports. Implementations must be safe for
// concurrent use: the export and connectivity tasks report in parallel.
type Sink interface {
	// Report sets the completed fraction of task. An empty step keeps the
	// previous step description.
	Report(task string, value float64, step string)
	// Tick records that tick of total ticks has been reached.
	Tick(tick, total int)
}

// Noop drops every report.
type Noop struct{}

func (Noop) Report(string, float64, string) {}
func (Noop) Tick(int, int)                  {}

// Func adapts plain functions to a Sink. Nil fields are skipped.
type Func struct {
	ReportFunc func(task string, value float64, step string)
	TickFunc   func(tick, total int)
}

func (f Func) Report(task string, value float64, step string) {
	if f.ReportFunc != nil {
		f.ReportFunc(task, value, step)
	}
}

func (f Func) Tick(tick, total int) {
	if f.TickFunc != nil {
		f.TickFunc(tick, total)
	}
}

// Multi fans reports out to every sink in order.
type Multi []Sink

func (m Multi) Report(task string, value float64, step string) {
	for _, s := range m {
		s.Report(task, value, step)
	}
}

func (m Multi) Tick(tick, total int) {
	for _, s := range m {
		s.Tick(tick, total)
	}
}

// Scaled maps a sub-task's [0,1] progress onto [Offset, Offset+Span] of
// Task on Sink.
type Scaled struct {
	Sink   Sink
	Task   string
	Offset float64
	Span   float64
}

// ReportFunc returns a callback for a sub-task.
func (s Scaled) ReportFunc() func(value float64, step string) {
	return func(value float64, step string) {
		s.Sink.Report(s.Task, s.Offset+value*s.Span, step)
	}
}

// TaskState is the last report of one task.
type TaskState struct {
	Value float64 `json:"value"`
	Step  string  `json:"step"`
}

// Lifetime tracks how far the tick loop has progressed.
type Lifetime struct {
	Tick int `json:"tick"`
	End  int `json:"end"`
}

// View is the serialisable state of a Tracker.
type View struct {
	Signal   TaskState `json:"signal"`
	Build    TaskState `json:"build"`
	Lifetime Lifetime  `json:"lifetime"`
}

// Tracker remembers the latest report per task. Reports never move a
// task's value backwards except to reset it to zero.
type Tracker struct {
	mu   sync.RWMutex
	view View
}

// NewTracker returns a tracker in its initial waiting state.
func NewTracker(ticks int) *Tracker {
	return &Tracker{view: View{
		Signal:   TaskState{Step: "Waiting for nodes"},
		Build:    TaskState{Step: "Initializing"},
		Lifetime: Lifetime{End: ticks},
	}}
}

func (t *Tracker) Report(task string, value float64, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var st *TaskState
	switch task {
	case TaskSignal:
		st = &t.view.Signal
	case TaskBuild:
		st = &t.view.Build
	default:
		return
	}
	if value != 0 && value < st.Value {
		return
	}
	st.Value = clamp01(value)
	if step != "" {
		st.Step = step
	}
}

func (t *Tracker) Tick(tick, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view.Lifetime = Lifetime{Tick: tick, End: total}
}

// View returns a copy of the current state.
func (t *Tracker) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// MarshalJSON renders the current view.
func (t *Tracker) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.View())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
