package card

import (
	"time"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/presets"
)

// View is a read-only copy of a card for renderers. Numeric fields are
// preformatted; unknown readings carry model.Placeholder.
type View struct {
	ID               string           `json:"id"`
	Label            string           `json:"label"`
	Temperature      string           `json:"temperature"`
	Setpoint         string           `json:"setpoint"`
	Heating          bool             `json:"heating"`
	HeatingLabel     string           `json:"heating_label"`
	Status           model.Status     `json:"status"`
	Local            string           `json:"local"`
	LocalInitialized bool             `json:"local_initialized"`
	Pending          string           `json:"pending,omitempty"`
	Presets          []presets.Button `json:"presets"`
	ReconciledAt     time.Time        `json:"reconciled_at"`
}
