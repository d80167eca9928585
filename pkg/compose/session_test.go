package compose

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pinwise/pinwise-go/pkg/log"
	"github.com/pinwise/pinwise-go/pkg/project"
)

// recorder collects events for assertions on ordering.
type recorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recorder) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) states(entity log.StateEntity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.StateChange != nil && e.StateChange.Entity == entity {
			out = append(out, e.StateChange.OldState+"->"+e.StateChange.NewState)
		}
	}
	return out
}

func TestSessionRemoveAndRetry(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.composer(), nil)

	p, ss := s.Compose([]Candidate{
		{Type: "TemperatureSensor_I2C", Confidence: 0.9},
		{Type: "PressureSensor_I2C", Confidence: 0.5},
	})
	require.Len(t, p.Instances, 1)
	temp := p.Instances[0]

	rejected := s.Rejected()
	require.Len(t, rejected, 1)
	press := rejected[0]
	assert.Equal(t, "PressureSensor_I2C", press.SpecID)
	assert.Equal(t, ss[0].Instance.ID, press.ID)

	res, err := s.WhatIf(press.ID, temp.ID)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Len(t, s.Snapshot().Instances, 1, "what-if changes nothing")

	res, err = s.Retry(press.ID)
	require.NoError(t, err)
	assert.False(t, res.Accepted())
	assert.Len(t, s.Rejected(), 1, "still rejected")

	removed, err := s.Remove(temp.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StateProposed, removed.State)
	assert.Empty(t, removed.Claims)

	res, err = s.Retry(press.ID)
	require.NoError(t, err)
	require.True(t, res.Accepted())
	assert.Equal(t, "i2c1/0x48", res.Instance.Claims[2].Unit.ID)
	assert.Empty(t, s.Rejected())

	snap := s.Snapshot()
	require.Len(t, snap.Instances, 1)
	assert.Equal(t, "PressureSensor_I2C", snap.Instances[0].SpecID)
	assert.True(t, snap.Valid)
}

func TestSessionRejectedOldestFirst(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.composer(), nil)
	s.Compose([]Candidate{{Type: "TemperatureSensor_I2C", Confidence: 1}})

	var want []string
	for i := 0; i < 6; i++ {
		_, ss := s.Compose([]Candidate{{Type: "PressureSensor_I2C", Confidence: 1}})
		var rejected []string
		for _, sg := range ss {
			if sg.Kind == KindRejected {
				rejected = append(rejected, sg.Instance.ID)
			}
		}
		require.Len(t, rejected, 1)
		want = append(want, rejected[0])
	}

	ids := func() []string {
		var out []string
		for _, inst := range s.Rejected() {
			out = append(out, inst.ID)
		}
		return out
	}
	assert.Equal(t, want, ids())

	// A failed retry keeps the instance's place.
	res, err := s.Retry(want[0])
	require.NoError(t, err)
	require.False(t, res.Accepted())
	assert.Equal(t, want, ids())
}

func TestSessionUnknownIDs(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.composer(), nil)

	_, err := s.Remove("nope")
	assert.ErrorIs(t, err, project.ErrUnknownInstance)
	_, err = s.Retry("nope")
	assert.ErrorIs(t, err, project.ErrUnknownInstance)
	_, err = s.WhatIf("nope", "")
	assert.ErrorIs(t, err, project.ErrUnknownInstance)
}

func TestSessionSnapshotIsolated(t *testing.T) {
	f := newFixture(t)
	s := NewSession(f.composer(), nil)
	s.Compose([]Candidate{{Type: "LED", Confidence: 1}})

	snap := s.Snapshot()
	snap.Instances[0].Claims = nil
	snap.Instances = append(snap.Instances, &project.Instance{ID: "x"})

	again := s.Snapshot()
	require.Len(t, again.Instances, 1)
	assert.NotEmpty(t, again.Instances[0].Claims)
}

func TestSessionIDs(t *testing.T) {
	f := newFixture(t)

	s := NewSession(f.composer(WithSessionID("fixed")), nil)
	assert.Equal(t, "fixed", s.ID())

	a := NewSession(f.composer(), nil)
	b := NewSession(f.composer(), nil)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSessionEmitsValidityChanges(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	c := f.composer(WithEventLogger(rec))

	// A project loaded with a double claim is invalid until the offender
	// goes away.
	base, _ := c.Compose([]Candidate{{Type: "LED", Confidence: 1}}, nil)
	dup := base.Instances[0].Clone()
	dup.ID = "dup"
	base.Instances = append(base.Instances, dup)
	base.Valid = false

	s := NewSession(c, base)
	_, err := s.Remove("dup")
	require.NoError(t, err)

	assert.Equal(t, []string{"invalid->valid"}, rec.states(log.StateEntityProject))
	assert.True(t, s.Snapshot().Valid)
}

func TestSessionConcurrentUse(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	s := NewSession(f.composer(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Compose([]Candidate{{Type: "LED", Confidence: 1, Count: i + 1}})
		}()
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			seen := make(map[string]bool)
			for _, inst := range snap.Instances {
				for _, c := range inst.Claims {
					if c.Mode == project.Exclusive {
						assert.False(t, seen[c.Unit.ID], fmt.Sprintf("%s claimed twice", c.Unit.ID))
						seen[c.Unit.ID] = true
					}
				}
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 8, snap.CountAccepted("LED"))
	assert.True(t, snap.Valid)
}
