// Package reconciler merges a polled device snapshot into a card.
package reconciler

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
	"github.com/adarcie/CustomSmartThermostat/internal/presets"
)

// Reconciler applies snapshots to cards. Epsilon is the tolerance used to
// decide that a reported setpoint confirms a pending send.
type Reconciler struct {
	Epsilon float64
	now     func() time.Time
}

func New(epsilon float64) *Reconciler {
	if epsilon <= 0 || !numeric.Valid(epsilon) {
		epsilon = numeric.DefaultEpsilon
	}
	return &Reconciler{Epsilon: epsilon, now: time.Now}
}

// Reconcile runs the full update for one card under its lock and returns
// the resulting view. The order of the steps matters: pending is resolved
// only after the readings are in place, and status is derived last.
func (r *Reconciler) Reconcile(c *card.Card, snap model.DeviceSnapshot) card.View {
	var (
		view        card.View
		initialized bool
		confirmed   bool
		pending     float64
	)

	c.Mutate(func(s *card.State) {
		// 1. authoritative readings
		s.Temperature = snap.Temperature
		s.Setpoint = snap.Setpoint

		// 2. heating indicator
		s.Heating = bool(snap.Heating)

		// 3. preset buttons
		s.Buttons = presets.Resolve(c.PresetNames(), snap.Settings.Presets)

		// 4. the only place polling may touch the local setpoint
		initialized = s.InitializeOnce(snap.Setpoint)

		// 5. pending resolution
		pending = s.Pending
		confirmed = s.ConfirmPending(snap.Setpoint, r.Epsilon)

		s.ReconciledAt = r.now()

		// 6. status is derived from the state above
		view = c.ViewLocked(s)
	})

	if initialized {
		log.Debug().
			Str("device", c.ID()).
			Str("local", view.Local).
			Msg("Local setpoint initialized from device")
	}
	if confirmed {
		log.Info().
			Str("device", c.ID()).
			Float64("pending", pending).
			Str("reported", view.Setpoint).
			Msg("Setpoint confirmed by device")
	}

	return view
}
