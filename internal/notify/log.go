// Package notify implements the notification surfaces a session can post
// its persistent heading notification to.
package notify

import (
	"fmt"
	"log"
	"sync"

	"locaty/internal/session"
)

// Log writes notifications to the process log. Repeated identical bodies
// are suppressed so a backgrounded session does not log at sample rate.
type Log struct {
	mu     sync.Mutex
	logger *log.Logger
	last   map[int]string
}

func NewLog(logger *log.Logger) *Log {
	return &Log{logger: logger, last: make(map[int]string)}
}

func (l *Log) Show(n session.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last[n.ID] == n.Body {
		return nil
	}
	l.last[n.ID] = n.Body
	l.printf("notify: [%d] %s: %s", n.ID, n.Title, n.Body)
	return nil
}

func (l *Log) Cancel(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.last[id]; !ok {
		return nil
	}
	delete(l.last, id)
	l.printf("notify: [%d] cancelled", id)
	return nil
}

func (l *Log) printf(format string, args ...any) {
	if l.logger != nil {
		_ = l.logger.Output(2, fmt.Sprintf(format, args...))
		return
	}
	log.Printf(format, args...)
}

// Multi posts to every notifier and returns the first error.
type Multi []session.Notifier

func (m Multi) Show(n session.Notification) error {
	var first error
	for _, nt := range m {
		if err := nt.Show(n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Cancel(id int) error {
	var first error
	for _, nt := range m {
		if err := nt.Cancel(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}
