// Package progress carries ordered job progress from the orchestrator to clients.
package progress

// Step tags a progress event. The string values are the wire tags the browser client switches on.
type Step string

const (
	StepConnect    Step = "connect"
	StepDownload   Step = "download"
	StepProcess    Step = "process"
	StepModel      Step = "model"
	StepTranscribe Step = "transcribe"
	StepSave       Step = "save"
	StepComplete   Step = "complete"
	StepError      Step = "error"
)

// Terminal reports whether the step ends a stream.
func (s Step) Terminal() bool {
	return s == StepComplete || s == StepError
}

// Files locates the durable artifacts of a completed job.
type Files struct {
	Text string `json:"txt"`
	JSON string `json:"json"`
}

// Event is one immutable progress update.
type Event struct {
	Step     Step    `json:"step"`
	Progress int     `json:"progress"`
	Message  string  `json:"message"`
	Text     *string `json:"text,omitempty"`
	Files    *Files  `json:"files,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Sink receives events in emission order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Multi fans each event out to every non-nil sink, in argument order.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multiSink(out)
}

type multiSink []Sink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
