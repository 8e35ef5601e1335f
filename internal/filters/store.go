package filters

import (
	"reflect"
	"sync"

	"flynance/internal/core"
	"flynance/internal/period"
)

// Snapshot is the full store state at one version.
type Snapshot struct {
	Draft   State  `json:"draft"`
	Applied State  `json:"applied"`
	Version uint64 `json:"version"`
}

// HasPendingChanges reports whether the draft differs from what is applied.
// It is always derived, never stored.
func (s Snapshot) HasPendingChanges() bool {
	return !s.Draft.Equal(s.Applied)
}

func (s Snapshot) clone() Snapshot {
	s.Draft = s.Draft.clone()
	s.Applied = s.Applied.clone()
	return s
}

// Store is a two-snapshot state machine. Draft setters touch Draft only;
// SetApplied* setters change Applied and mirror the same field into Draft;
// Apply commits the whole Draft in one transition; Clear resets both.
//
// Every transition happens under one lock and bumps Version once, so readers
// never observe a half-applied state. Transitions that change nothing are
// dropped without a version bump or notification.
//
// Listeners receive snapshots in version order, each in subscription order.
// Delivery is serialized: whichever goroutine finds the queue idle drains it,
// so a transition made from inside a listener is delivered after that
// listener returns.
type Store struct {
	mu        sync.RWMutex
	snap      Snapshot
	resolver  *period.Resolver
	listeners []listener
	nextID    int

	pending    []Snapshot
	delivering bool
}

type listener struct {
	id int
	fn func(Snapshot)
}

type Option func(*Store)

// WithResolver sets the resolver used for defaults and Period.
func WithResolver(r *period.Resolver) Option {
	return func(s *Store) {
		if r != nil {
			s.resolver = r
		}
	}
}

// NewStore returns a store holding the default filters in both snapshots.
func NewStore(opts ...Option) *Store {
	s := &Store{resolver: &period.Resolver{}}
	for _, opt := range opts {
		opt(s)
	}
	d := s.defaults()
	s.snap = Snapshot{Draft: d, Applied: d.clone()}
	return s
}

func (s *Store) defaults() State {
	res := s.resolver.Resolve(period.Input{Mode: period.ModeDays, Days: period.DefaultDays})
	return DefaultState(res.Period)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

func (s *Store) Draft() State   { return s.Snapshot().Draft }
func (s *Store) Applied() State { return s.Snapshot().Applied }

// HasPendingChanges reports whether Apply would change the applied filters.
func (s *Store) HasPendingChanges() bool {
	return s.Snapshot().HasPendingChanges()
}

// Period resolves the applied filters into a concrete window.
func (s *Store) Period() period.Result {
	return s.resolver.Resolve(s.Applied().Input())
}

// Subscribe registers fn to receive the snapshot after every transition.
// fn runs outside the store lock. The returned func unregisters it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Apply copies every draft field into applied.
func (s *Store) Apply() {
	s.transition(func(sn Snapshot) Snapshot {
		sn.Applied = sn.Draft.clone()
		return sn
	})
}

// Clear resets draft and applied to the defaults.
func (s *Store) Clear() {
	d := s.defaults()
	s.transition(func(sn Snapshot) Snapshot {
		sn.Draft = d.clone()
		sn.Applied = d.clone()
		return sn
	})
}

// UpdateDraft applies every set field of p to the draft in one transition.
func (s *Store) UpdateDraft(p Patch) {
	s.editDraft(p.Apply)
}

// UpdateApplied applies every set field of p to applied and mirrors them into
// the draft in one transition.
func (s *Store) UpdateApplied(p Patch) {
	s.editApplied(p.Apply)
}

func (s *Store) SetCategories(c []core.CategoryRef) { s.UpdateDraft(Patch{Categories: &c}) }
func (s *Store) SetDateRange(days int)              { s.UpdateDraft(Patch{DateRange: &days}) }
func (s *Store) SetSearchTerm(term string)          { s.UpdateDraft(Patch{SearchTerm: &term}) }
func (s *Store) SetMode(m period.Mode)              { s.UpdateDraft(Patch{Mode: &m}) }
func (s *Store) SetMonth(month string)              { s.UpdateDraft(Patch{Month: &month}) }
func (s *Store) SetYear(year string)                { s.UpdateDraft(Patch{Year: &year}) }
func (s *Store) SetRangeStart(date string)          { s.UpdateDraft(Patch{RangeStart: &date}) }
func (s *Store) SetRangeEnd(date string)            { s.UpdateDraft(Patch{RangeEnd: &date}) }
func (s *Store) SetType(t core.TypeFilter)          { s.UpdateDraft(Patch{Type: &t}) }

func (s *Store) SetAppliedCategories(c []core.CategoryRef) { s.UpdateApplied(Patch{Categories: &c}) }
func (s *Store) SetAppliedDateRange(days int)              { s.UpdateApplied(Patch{DateRange: &days}) }
func (s *Store) SetAppliedSearchTerm(term string)          { s.UpdateApplied(Patch{SearchTerm: &term}) }
func (s *Store) SetAppliedMode(m period.Mode)              { s.UpdateApplied(Patch{Mode: &m}) }
func (s *Store) SetAppliedMonth(month string)              { s.UpdateApplied(Patch{Month: &month}) }
func (s *Store) SetAppliedYear(year string)                { s.UpdateApplied(Patch{Year: &year}) }
func (s *Store) SetAppliedRangeStart(date string)          { s.UpdateApplied(Patch{RangeStart: &date}) }
func (s *Store) SetAppliedRangeEnd(date string)            { s.UpdateApplied(Patch{RangeEnd: &date}) }
func (s *Store) SetAppliedType(t core.TypeFilter)          { s.UpdateApplied(Patch{Type: &t}) }

func (s *Store) editDraft(fn func(State) State) {
	s.transition(func(sn Snapshot) Snapshot {
		sn.Draft = fn(sn.Draft.clone())
		return sn
	})
}

func (s *Store) editApplied(fn func(State) State) {
	s.transition(func(sn Snapshot) Snapshot {
		sn.Applied = fn(sn.Applied.clone())
		sn.Draft = fn(sn.Draft.clone())
		return sn
	})
}

func (s *Store) transition(fn func(Snapshot) Snapshot) {
	s.mu.Lock()
	next := fn(s.snap.clone())
	if reflect.DeepEqual(next.Draft, s.snap.Draft) && reflect.DeepEqual(next.Applied, s.snap.Applied) {
		s.mu.Unlock()
		return
	}
	next.Version = s.snap.Version + 1
	s.snap = next
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, next.clone())
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	s.deliver()
}

// deliver drains pending snapshots in order. Only one goroutine delivers at
// a time; the lock is released while listeners run.
func (s *Store) deliver() {
	drained := false
	defer func() {
		// a panicking listener must not wedge later deliveries
		if !drained {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			drained = true
			s.mu.Unlock()
			return
		}
		snap := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]listener(nil), s.listeners...)
		s.mu.Unlock()

		for _, l := range listeners {
			l.fn(snap.clone())
		}
	}
}
