package presets

import (
	"fmt"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

// DefaultNames are the preset buttons shown when a card has none configured.
var DefaultNames = []string{"Home", "Sleep", "Away"}

// Button is the display state of one named preset control.
type Button struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
}

// Resolve builds one button per configured name, in order. A name without a
// numeric value is disabled and labelled with its name only.
func Resolve(names []string, values map[string]model.OptionalFloat) []Button {
	buttons := make([]Button, 0, len(names))
	for _, name := range names {
		v, ok := values[name].Get()
		if !ok {
			buttons = append(buttons, Button{Name: name, Label: name})
			continue
		}
		buttons = append(buttons, Button{
			Name:    name,
			Enabled: true,
			Label:   fmt.Sprintf("%s (%s°)", name, model.Some(v).Format()),
			Value:   v,
		})
	}
	return buttons
}

// Lookup returns the selectable value for name, if that button is enabled.
func Lookup(buttons []Button, name string) (float64, bool) {
	for _, b := range buttons {
		if b.Name == name {
			return b.Value, b.Enabled
		}
	}
	return 0, false
}
