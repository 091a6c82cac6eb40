package web

import (
	"sync"

	"github.com/google/uuid"

	"locaty/internal/heading"
)

type backgrounder interface {
	SetBackgrounded(background bool)
}

type subscriber interface {
	Subscribe(buffer int) (int, <-chan heading.Result)
	Unsubscribe(id int)
}

// Presence tracks which viewers currently show the heading. The session is
// foregrounded while at least one surface is visible and backgrounded when
// the last one hides or goes away.
type Presence struct {
	bg   backgrounder
	subs subscriber

	mu       sync.Mutex
	visible  int
	surfaces map[string]*Surface
}

func NewPresence(bg backgrounder, subs subscriber) *Presence {
	return &Presence{bg: bg, subs: subs, surfaces: make(map[string]*Surface)}
}

// Visible returns the number of visible surfaces.
func (p *Presence) Visible() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Len returns the number of open surfaces.
func (p *Presence) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.surfaces)
}

// Sync pushes the current visibility to the session. Call it after a
// session starts.
func (p *Presence) Sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bg.SetBackgrounded(p.visible == 0)
}

func (p *Presence) Lookup(id string) (*Surface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.surfaces[id]
	return s, ok
}

// Open registers a surface and subscribes it to results.
func (p *Presence) Open(visible bool) *Surface {
	subID, ch := p.subs.Subscribe(16)
	s := &Surface{id: uuid.NewString(), p: p, subID: subID, ch: ch}
	p.mu.Lock()
	p.surfaces[s.id] = s
	p.mu.Unlock()
	if visible {
		s.Show()
	}
	return s
}

func (p *Presence) setVisible(s *Surface, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.closed || s.visible == visible {
		return
	}
	s.visible = visible
	if visible {
		p.visible++
		if p.visible == 1 {
			p.bg.SetBackgrounded(false)
		}
		return
	}
	p.visible--
	if p.visible == 0 {
		p.bg.SetBackgrounded(true)
	}
}

func (p *Presence) close(s *Surface) {
	p.setVisible(s, false)
	p.mu.Lock()
	if s.closed {
		p.mu.Unlock()
		return
	}
	s.closed = true
	delete(p.surfaces, s.id)
	p.mu.Unlock()
	p.subs.Unsubscribe(s.subID)
}

// Surface is one viewer of the heading, such as an open stream.
// Fields are guarded by the owning Presence.
type Surface struct {
	id    string
	p     *Presence
	subID int
	ch    <-chan heading.Result

	visible bool
	closed  bool
}

func (s *Surface) ID() string { return s.id }

// Results delivers published results. It is closed by Close.
func (s *Surface) Results() <-chan heading.Result { return s.ch }

func (s *Surface) Show() { s.p.setVisible(s, true) }
func (s *Surface) Hide() { s.p.setVisible(s, false) }

// Close hides the surface and drops its subscription. Safe to call twice.
func (s *Surface) Close() { s.p.close(s) }

func (s *Surface) Visible() bool {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.visible
}
