package progress

import "sync"

// Emitter enforces the stream contract on top of a Sink: percentages never go down,
// exactly one terminal event is sent, and nothing is sent after it.
type Emitter struct {
	mu   sync.Mutex
	sink Sink
	last int
	done bool
}

// NewEmitter wraps sink. A nil sink discards events.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink}
}

// Progress emits a non-terminal event. pct is clamped to [last emitted, 100].
func (e *Emitter) Progress(step Step, pct int, message string) {
	if step.Terminal() {
		return
	}
	e.emit(Event{Step: step, Progress: pct, Message: message})
}

// Complete emits the success event carrying the transcript and artifact paths.
func (e *Emitter) Complete(message, text string, files Files) {
	e.emit(Event{Step: StepComplete, Progress: 100, Message: message, Text: &text, Files: &files})
}

// Fail emits the failure event. Progress stays at the last emitted value.
func (e *Emitter) Fail(errMessage string) {
	e.emit(Event{Step: StepError, Progress: -1, Message: errMessage, Error: errMessage})
}

// Done reports whether a terminal event was emitted.
func (e *Emitter) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Last returns the last emitted percentage.
func (e *Emitter) Last() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	if ev.Progress < e.last {
		ev.Progress = e.last
	}
	if ev.Progress > 100 {
		ev.Progress = 100
	}
	e.last = ev.Progress
	e.done = ev.Step.Terminal()
	e.sink.Emit(ev)
}
