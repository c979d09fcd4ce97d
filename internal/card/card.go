// Package card holds the per-device state record shared by the poll loop,
// user input handlers and the command sender.
//
// Field ownership is disjoint: authoritative readings are written only by
// reconciliation, the local setpoint only by user actions (plus the one-shot
// initialization), and the pending value by the sender (set, rollback) and
// reconciliation (confirm). All access goes through the card's mutex.
package card

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
	"github.com/adarcie/CustomSmartThermostat/internal/presets"
)

type Direction int

const (
	Decrement Direction = -1
	Increment Direction = 1
)

// State is the mutable record behind a Card. It is only reachable through
// Card.Mutate, which holds the card lock.
type State struct {
	Local            float64
	LocalInitialized bool

	Pending      float64
	HasPending   bool
	PendingToken uint64

	Temperature  model.OptionalFloat
	Setpoint     model.OptionalFloat
	Heating      bool
	Buttons      []presets.Button
	ReconciledAt time.Time

	tokenSeq uint64
}

// InitializeOnce seeds the local setpoint from an authoritative value. It
// only has effect while the local value is uninitialized and v is known.
func (s *State) InitializeOnce(v model.OptionalFloat) bool {
	if s.LocalInitialized {
		return false
	}
	value, ok := v.Get()
	if !ok || !numeric.Valid(value) {
		return false
	}
	s.Local = value
	s.LocalInitialized = true
	return true
}

// SetLocal stores v rounded to step. Invalid numbers are ignored.
func (s *State) SetLocal(v, step float64) bool {
	if !numeric.Valid(v) {
		return false
	}
	s.Local = numeric.RoundToStep(v, step)
	// A user edit counts as initialization: polling must not replace it.
	s.LocalInitialized = true
	return true
}

func (s *State) ReadLocal() (float64, bool) {
	if !s.LocalInitialized || !numeric.Valid(s.Local) {
		return 0, false
	}
	return s.Local, true
}

// MarkPending records an optimistic send and returns a token identifying it.
// Any earlier pending value is replaced.
func (s *State) MarkPending(v float64) uint64 {
	s.tokenSeq++
	s.Pending = v
	s.HasPending = true
	s.PendingToken = s.tokenSeq
	return s.tokenSeq
}

// RollbackPending clears the pending value set by the send identified by
// token. A newer send's pending value is left alone.
func (s *State) RollbackPending(token uint64) bool {
	if !s.HasPending || s.PendingToken != token {
		return false
	}
	s.ClearPending()
	return true
}

func (s *State) ClearPending() {
	s.Pending = 0
	s.HasPending = false
	s.PendingToken = 0
}

// ConfirmPending clears the pending value when setpoint reports it within eps.
func (s *State) ConfirmPending(setpoint model.OptionalFloat, eps float64) bool {
	if !s.HasPending {
		return false
	}
	sp, ok := setpoint.Get()
	if !ok || !numeric.ApproxEqual(s.Pending, sp, eps) {
		return false
	}
	s.ClearPending()
	return true
}

// Status derives the status label. Pending wins over everything; Waiting
// means no temperature and no setpoint are known.
func (s *State) Status() model.Status {
	switch {
	case s.HasPending:
		return model.StatusPending
	case !s.Temperature.Valid && !s.Setpoint.Valid:
		return model.StatusWaiting
	default:
		return model.StatusLive
	}
}

// Card is one controlled thermostat as shown on the panel.
type Card struct {
	id          string
	label       string
	step        float64
	presetNames []string

	mu    sync.Mutex
	state State
}

// New creates a card. An empty presetNames falls back to presets.DefaultNames
// and a non-positive step to numeric.DefaultStep.
func New(id, label string, presetNames []string, step float64) *Card {
	if len(presetNames) == 0 {
		presetNames = presets.DefaultNames
	}
	if step <= 0 || !numeric.Valid(step) {
		step = numeric.DefaultStep
	}
	if label == "" {
		label = id
	}
	names := append([]string(nil), presetNames...)

	return &Card{
		id:          id,
		label:       label,
		step:        step,
		presetNames: names,
		state: State{
			Buttons: presets.Resolve(names, nil),
		},
	}
}

func (c *Card) ID() string    { return c.id }
func (c *Card) Label() string { return c.label }

func (c *Card) Step() float64 { return c.step }

func (c *Card) PresetNames() []string {
	return append([]string(nil), c.presetNames...)
}

// Mutate runs fn with the card lock held.
func (c *Card) Mutate(fn func(s *State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
}

func (c *Card) InitializeOnce(v model.OptionalFloat) (applied bool) {
	c.Mutate(func(s *State) { applied = s.InitializeOnce(v) })
	return applied
}

func (c *Card) SetLocal(v float64) (applied bool) {
	c.Mutate(func(s *State) { applied = s.SetLocal(v, c.step) })
	return applied
}

// SetLocalText applies typed input. Text that is not a number is ignored.
func (c *Card) SetLocalText(text string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return false
	}
	return c.SetLocal(v)
}

func (c *Card) ReadLocal() (v float64, ok bool) {
	c.Mutate(func(s *State) { v, ok = s.ReadLocal() })
	return v, ok
}

// Nudge moves the local setpoint one step in dir, starting from 0 when the
// local value is still empty.
func (c *Card) Nudge(dir Direction) {
	c.Mutate(func(s *State) {
		current, ok := s.ReadLocal()
		if !ok {
			current = 0
		}
		s.SetLocal(current+float64(dir)*c.step, c.step)
	})
}

// SelectPreset copies an enabled preset's value into the local setpoint.
// It never sends anything.
func (c *Card) SelectPreset(name string) (applied bool) {
	c.Mutate(func(s *State) {
		v, ok := presets.Lookup(s.Buttons, name)
		if !ok {
			return
		}
		applied = s.SetLocal(v, c.step)
	})
	return applied
}

func (c *Card) Status() (st model.Status) {
	c.Mutate(func(s *State) { st = s.Status() })
	return st
}

func (c *Card) View() (v View) {
	c.Mutate(func(s *State) { v = c.viewLocked(s) })
	return v
}

func (c *Card) viewLocked(s *State) View {
	v := View{
		ID:               c.id,
		Label:            c.label,
		Temperature:      s.Temperature.Format(),
		Setpoint:         s.Setpoint.Format(),
		Heating:          s.Heating,
		HeatingLabel:     heatingLabel(s.Heating),
		Status:           s.Status(),
		LocalInitialized: s.LocalInitialized,
		Presets:          append([]presets.Button(nil), s.Buttons...),
		ReconciledAt:     s.ReconciledAt,
	}
	if local, ok := s.ReadLocal(); ok {
		v.Local = model.Some(local).Format()
	}
	if s.HasPending {
		v.Pending = model.Some(s.Pending).Format()
	}
	return v
}

// ViewLocked builds a view from a State already held through Mutate.
func (c *Card) ViewLocked(s *State) View {
	return c.viewLocked(s)
}

func heatingLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
