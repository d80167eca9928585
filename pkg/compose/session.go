package compose

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pinwise/pinwise-go/pkg/alloc"
	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// Session owns one project and serializes every change to it. Writers work
// on a private copy and publish it when done, so Snapshot never observes a
// partially placed instance.
//
// Session is safe for concurrent use.
type Session struct {
	id       string
	composer *Composer
	events   log.Logger

	// writeMu serializes writers for the whole of a change.
	writeMu sync.Mutex

	mu       sync.RWMutex
	current  *project.Project
	rejected map[string]rejectedEntry
	seq      uint64
}

// rejectedEntry remembers when an instance was first rejected.
type rejectedEntry struct {
	inst *project.Instance
	seq  uint64
}

// NewSession creates a session over p (nil means an empty project). The
// session id is taken from the composer's WithSessionID, or generated.
func NewSession(c *Composer, p *project.Project) *Session {
	if p == nil {
		p = project.New("")
	} else {
		p = p.Clone()
	}
	id := c.sessionID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:       id,
		composer: c,
		events:   c.events,
		current:  p,
		rejected: make(map[string]rejectedEntry),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Snapshot returns a deep copy of the current project.
func (s *Session) Snapshot() *project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Rejected returns copies of the instances that could not be placed and
// have not been retried successfully, oldest first.
func (s *Session) Rejected() []*project.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]rejectedEntry, 0, len(s.rejected))
	for _, e := range s.rejected {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*project.Instance, len(entries))
	for i, e := range entries {
		out[i] = e.inst.Clone()
	}
	return out
}

// Compose places candidates into the session's project and publishes the
// result. Rejected candidates are kept for WhatIf and Retry.
func (s *Session) Compose(candidates []Candidate) (*project.Project, []Suggestion) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, suggestions := s.composer.Compose(candidates, s.read())
	var rejected []*project.Instance
	for _, sg := range suggestions {
		if sg.Kind == KindRejected && sg.Instance != nil {
			rejected = append(rejected, sg.Instance)
		}
	}
	s.publish(p, rejected, nil)
	return p.Clone(), suggestions
}

// Remove detaches an accepted instance and frees its claims.
func (s *Session) Remove(id string) (*project.Instance, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p := s.read()
	inst, err := s.composer.alloc.Remove(p, id)
	if err != nil {
		return nil, err
	}
	s.publish(p, nil, nil)
	return inst.Clone(), nil
}

// WhatIf reports whether the rejected instance could be placed if removeID
// were removed. Nothing changes.
func (s *Session) WhatIf(rejectedID, removeID string) (alloc.Result, error) {
	s.mu.RLock()
	e, ok := s.rejected[rejectedID]
	p := s.current
	s.mu.RUnlock()
	if !ok {
		return alloc.Result{}, fmt.Errorf("%w: no rejected instance %s", project.ErrUnknownInstance, rejectedID)
	}
	return s.composer.alloc.WhatIf(p, e.inst, removeID)
}

// Retry attempts to place a rejected instance again, typically after a
// Remove freed the resources it needed.
func (s *Session) Retry(rejectedID string) (alloc.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	e, ok := s.rejected[rejectedID]
	s.mu.RUnlock()
	if !ok {
		return alloc.Result{}, fmt.Errorf("%w: no rejected instance %s", project.ErrUnknownInstance, rejectedID)
	}

	p := s.read()
	candidate := e.inst.Clone()
	res := s.composer.alloc.Allocate(p, candidate)
	if res.Accepted() {
		s.publish(p, nil, []string{rejectedID})
	} else {
		s.publish(p, []*project.Instance{candidate}, nil)
	}
	return res, nil
}

// read returns a private copy of the current project for a writer.
func (s *Session) read() *project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// publish installs p as the current project. Rejected instances keep the
// position of their first rejection.
func (s *Session) publish(p *project.Project, rejected []*project.Instance, resolved []string) {
	s.mu.Lock()
	old := s.current
	s.current = p
	for _, inst := range rejected {
		e, ok := s.rejected[inst.ID]
		if !ok {
			s.seq++
			e.seq = s.seq
		}
		e.inst = inst
		s.rejected[inst.ID] = e
	}
	for _, id := range resolved {
		delete(s.rejected, id)
	}
	s.mu.Unlock()

	if old.Valid != p.Valid {
		s.events.Log(log.Event{
			SessionID: s.id,
			ProjectID: p.ID,
			Stage:     log.StageComposer,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityProject,
				OldState: validity(old.Valid),
				NewState: validity(p.Valid),
			},
		})
	}
}

func validity(v bool) string {
	if v {
		return "valid"
	}
	return "invalid"
}
