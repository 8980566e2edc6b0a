// Package notice carries short user-facing messages (the client's toasts)
// from the engine to whatever renders them.
package notice

import (
	"fmt"
	"sync"
)

type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Notice struct {
	Level Level
	Text  string
}

type Sink interface {
	Notify(n Notice)
}

// Func adapts a plain function to Sink.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = Func(func(Notice) {})

func Infof(s Sink, format string, args ...any) {
	s.Notify(Notice{Level: Info, Text: fmt.Sprintf(format, args...)})
}

func Successf(s Sink, format string, args ...any) {
	s.Notify(Notice{Level: Success, Text: fmt.Sprintf(format, args...)})
}

func Errorf(s Sink, format string, args ...any) {
	s.Notify(Notice{Level: Error, Text: fmt.Sprintf(format, args...)})
}

// Recorder keeps every notice it receives. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
