package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"locaty/internal/heading"
	"locaty/internal/sensors"
)

// ErrNoSource is returned by Start when the controller has no sensor source.
var ErrNoSource = errors.New("session: no sensor source")

type State int

const (
	Stopped State = iota
	ActiveForeground
	ActiveBackground
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case ActiveForeground:
		return "foreground"
	case ActiveBackground:
		return "background"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Active() bool { return s == ActiveForeground || s == ActiveBackground }

type Config struct {
	// NotificationID identifies the persistent notification. Defaults to 1.
	NotificationID int
	// Title is the notification title. Defaults to "Locaty".
	Title string
}

type Snapshot struct {
	State       string         `json:"state"`
	SessionID   string         `json:"session_id,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	Heading     heading.Result `json:"-"`
	Subscribers int            `json:"subscribers"`

	SamplesTotal       uint64 `json:"samples_total"`
	PublishedTotal     uint64 `json:"published_total"`
	NotificationShown  bool   `json:"notification_shown"`
	NotificationErrors uint64 `json:"notification_errors"`
	LastError          string `json:"last_error,omitempty"`
}

// Controller owns one heading session: the sensor subscription, the latest
// reading, result fanout and notification visibility.
//
// All methods are safe for concurrent use. The sensor reading is written only
// from HandleEvent, background state only from SetBackgrounded. Notifier
// calls run on a separate goroutine so a slow notification surface never
// holds up the sensor path.
type Controller struct {
	cfg      Config
	source   sensors.Source
	notifier Notifier
	bc       *Broadcaster

	// life serializes Start and Stop so the source is never started and
	// closed concurrently.
	life sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	startedAt time.Time
	reading   heading.Reading
	latest    heading.Result
	shown     bool
	stopReq   chan struct{}
	started   chan struct{}

	notes     []notifyOp
	notifying bool
	notesIdle chan struct{}

	samples    uint64
	published  uint64
	notifyErrs uint64
	lastErr    string
}

func New(cfg Config, source sensors.Source, notifier Notifier) *Controller {
	if cfg.NotificationID <= 0 {
		cfg.NotificationID = 1
	}
	if cfg.Title == "" {
		cfg.Title = "Locaty"
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Controller{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		bc:       NewBroadcaster(),
		stopReq:  make(chan struct{}),
		started:  make(chan struct{}),
	}
}

func (c *Controller) NotificationID() int { return c.cfg.NotificationID }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latest returns the most recent result (unavailable before the first
// usable sample pair).
func (c *Controller) Latest() heading.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:              c.state.String(),
		SessionID:          c.sessionID,
		StartedAt:          c.startedAt,
		Heading:            c.latest,
		Subscribers:        c.bc.Len(),
		SamplesTotal:       c.samples,
		PublishedTotal:     c.published,
		NotificationShown:  c.shown,
		NotificationErrors: c.notifyErrs,
		LastError:          c.lastErr,
	}
}

// Start moves Stopped -> ActiveForeground and registers with the sensor
// source. Starting an active session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	if c.source == nil {
		return ErrNoSource
	}
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return nil
	}
	c.state = ActiveForeground
	c.sessionID = uuid.NewString()
	c.startedAt = time.Now().UTC()
	c.reading.Reset()
	c.latest = heading.Result{}
	c.bc.Reset()
	select {
	case <-c.stopReq:
		c.stopReq = make(chan struct{})
	default:
	}
	id := c.sessionID
	c.mu.Unlock()

	if err := c.source.Start(ctx, c.HandleEvent); err != nil {
		c.mu.Lock()
		c.state = Stopped
		c.sessionID = ""
		c.mu.Unlock()
		return fmt.Errorf("session: start source: %w", err)
	}
	c.mu.Lock()
	close(c.started)
	c.mu.Unlock()
	log.Printf("session: started id=%s", id)
	return nil
}

// Started is closed once a session is running. Stop arms a fresh channel.
func (c *Controller) Started() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Stop ends the session: no publishes happen after it returns. Safe to call
// when already stopped.
func (c *Controller) Stop() error {
	return c.stop(false, c.cfg.NotificationID)
}

func (c *Controller) stop(external bool, cancelID int) error {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return nil
	}
	id := c.sessionID
	c.state = Stopped
	c.sessionID = ""
	c.shown = false
	if external {
		close(c.stopReq)
	}
	select {
	case <-c.started:
		c.started = make(chan struct{})
	default:
	}
	var cancelled chan error
	if cancelID != NoNotificationID {
		cancelled = make(chan error, 1)
		c.enqueueNoteLocked(notifyOp{cancelID: cancelID, done: cancelled})
	}
	c.mu.Unlock()

	// The source may be blocked delivering to HandleEvent, which drops events
	// once the state is Stopped; close it outside the lock.
	var errs []error
	if err := c.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session: close source: %w", err))
	}
	if cancelled != nil {
		if err := <-cancelled; err != nil {
			errs = append(errs, fmt.Errorf("session: cancel notification %d: %w", cancelID, err))
		}
	}
	log.Printf("session: stopped id=%s external=%t", id, external)
	return errors.Join(errs...)
}

// StopRequested is closed when an external stop action ends the session.
// A later Start arms a fresh channel.
func (c *Controller) StopRequested() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopReq
}

// HandleAction processes an out-of-band action. Anything but a stop action
// is ignored, as is a stop for a session that is not running. A stop with
// NoNotificationID skips cancelling the notification.
func (c *Controller) HandleAction(a Action) error {
	if a.Name != ActionStop {
		return nil
	}
	id := a.NotificationID
	if id < 0 {
		id = NoNotificationID
	}
	return c.stop(true, id)
}

// SetBackgrounded switches between foreground and background. In the
// background the notification mirrors the latest result; in the foreground
// it is hidden. Ignored while stopped.
func (c *Controller) SetBackgrounded(background bool) {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return
	}
	if background {
		c.state = ActiveBackground
	} else {
		c.state = ActiveForeground
	}
	c.syncNotificationLocked()
	c.mu.Unlock()
}

// Subscribe registers a listener for results. The latest result, if any, is
// delivered immediately.
func (c *Controller) Subscribe(buffer int) (int, <-chan heading.Result) {
	return c.bc.Subscribe(buffer)
}

func (c *Controller) Unsubscribe(id int) {
	c.bc.Unsubscribe(id)
}

// HandleEvent is the sensor sink.
func (c *Controller) HandleEvent(ev sensors.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Active() {
		return
	}
	switch ev.Kind {
	case sensors.KindAccelerometer:
		c.reading.SetAccel(ev.Values)
	case sensors.KindMagnetometer:
		c.reading.SetMag(ev.Values)
	default:
		return
	}
	c.samples++

	res, err := heading.Explain(c.reading)
	if err != nil && !errors.Is(err, heading.ErrNoData) {
		c.lastErr = err.Error()
	} else if err == nil {
		c.lastErr = ""
	}
	c.latest = res
	c.bc.Publish(res)
	c.published++
	c.syncNotificationLocked()
}

func (c *Controller) syncNotificationLocked() {
	if c.state == ActiveBackground {
		n := Notification{
			ID:      c.cfg.NotificationID,
			Title:   c.cfg.Title,
			Body:    NotificationBody(c.latest),
			Angle:   c.latest.Angle,
			Dir:     string(c.latest.Direction),
			Stop:    StopAction(c.cfg.NotificationID),
			Session: c.sessionID,
		}
		c.enqueueNoteLocked(notifyOp{show: &n})
		c.shown = true
		return
	}
	if !c.shown {
		return
	}
	c.enqueueNoteLocked(notifyOp{cancelID: c.cfg.NotificationID})
	c.shown = false
}

// notifyOp is one queued notifier call: a Show when show is set, otherwise
// a Cancel of cancelID. done, if set, receives the call's error.
type notifyOp struct {
	show     *Notification
	cancelID int
	done     chan error
}

// enqueueNoteLocked queues op for the notifier goroutine, starting it when
// idle. A queued Show that has not run yet is replaced by a newer one, so a
// slow notifier only ever sees the latest heading.
func (c *Controller) enqueueNoteLocked(op notifyOp) {
	if n := len(c.notes); op.show != nil && n > 0 && c.notes[n-1].show != nil {
		c.notes[n-1] = op
	} else {
		c.notes = append(c.notes, op)
	}
	if !c.notifying {
		c.notifying = true
		c.notesIdle = make(chan struct{})
		go c.runNotes(c.notesIdle)
	}
}

func (c *Controller) runNotes(idle chan struct{}) {
	for {
		c.mu.Lock()
		if len(c.notes) == 0 {
			c.notifying = false
			c.mu.Unlock()
			close(idle)
			return
		}
		op := c.notes[0]
		c.notes = c.notes[1:]
		c.mu.Unlock()

		var err error
		if op.show != nil {
			err = c.notifier.Show(*op.show)
		} else {
			err = c.notifier.Cancel(op.cancelID)
		}

		c.mu.Lock()
		if err != nil {
			c.noteNotifyErrLocked(err)
			if op.show != nil && len(c.notes) == 0 {
				c.shown = false
			}
		}
		c.mu.Unlock()
		if op.done != nil {
			op.done <- err
		}
	}
}

func (c *Controller) noteNotifyErrLocked(err error) {
	c.notifyErrs++
	c.lastErr = "notify: " + err.Error()
	// Notification failures repeat at sample rate; log the first few only.
	if c.notifyErrs <= 3 {
		log.Printf("session: notify: %v", err)
	}
}
