package sensors

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Loop adapts a blocking run function into a restartable Source.
//
// Run should deliver events through emit until ctx is done. A non-nil error
// other than ctx.Err() is logged; the loop is not restarted.
type Loop struct {
	Name string
	Run  func(ctx context.Context, emit Sink) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *Loop) Start(ctx context.Context, sink Sink) error {
	if l == nil || l.Run == nil {
		return fmt.Errorf("sensors: loop has no run function")
	}
	if sink == nil {
		return fmt.Errorf("sensors: sink is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return fmt.Errorf("sensors: %s already started", l.name())
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	emit := func(ev Event) {
		if runCtx.Err() != nil {
			return
		}
		sink(ev)
	}
	go func() {
		defer close(done)
		if err := l.Run(runCtx, emit); err != nil && runCtx.Err() == nil {
			log.Printf("%s: stopped: %v", l.name(), err)
		}
	}()
	return nil
}

func (l *Loop) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (l *Loop) name() string {
	if l.Name == "" {
		return "source"
	}
	return l.Name
}
