package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusWaiting Status = "Waiting"
	StatusLive    Status = "Live"
)

// Placeholder is rendered wherever an authoritative reading is unknown.
const Placeholder = "--.-"

// OptionalFloat is a reading that may be unknown. Decoding never fails:
// null, missing, or non-numeric values decode as unknown.
type OptionalFloat struct {
	Value float64
	Valid bool
}

func Some(v float64) OptionalFloat {
	if !numeric.Valid(v) {
		return OptionalFloat{}
	}
	return OptionalFloat{Value: v, Valid: true}
}

func (o OptionalFloat) Get() (float64, bool) {
	return o.Value, o.Valid
}

// Format renders the value to one decimal, or Placeholder when unknown.
func (o OptionalFloat) Format() string {
	if !o.Valid {
		return Placeholder
	}
	return numeric.FormatTenths(o.Value)
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	*o = ParseOptionalFloat(data)
	return nil
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// ParseOptionalFloat accepts a JSON number or a numeric JSON string. Anything
// else is unknown.
func ParseOptionalFloat(data []byte) OptionalFloat {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return OptionalFloat{}
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return Some(f)
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return Some(f)
		}
	}
	return OptionalFloat{}
}

// Truthy decodes any JSON value into a boolean the way a loosely typed
// client would: false, null, 0 and "" are false, everything else is true.
type Truthy bool

func (t *Truthy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte(`""`)):
		*t = false
	case bytes.Equal(data, []byte("true")):
		*t = true
	case data[0] == '"', data[0] == '{', data[0] == '[':
		*t = true
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			*t = false
			return nil
		}
		*t = f != 0
	}
	return nil
}

// Settings is the per-device configuration published alongside readings.
// Only presets drive the panel; the rest is carried for display.
type Settings struct {
	Presets    map[string]OptionalFloat `json:"presets"`
	Hysteresis OptionalFloat            `json:"hysteresis"`
	StepsOn    OptionalFloat            `json:"steps_on"`
	StepsOff   OptionalFloat            `json:"steps_off"`
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	*s = Settings{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object: treat as no settings.
		return nil
	}

	s.Hysteresis = ParseOptionalFloat(raw["hysteresis"])
	s.StepsOn = ParseOptionalFloat(raw["steps_on"])
	s.StepsOff = ParseOptionalFloat(raw["steps_off"])

	var presets map[string]json.RawMessage
	if err := json.Unmarshal(raw["presets"], &presets); err == nil && presets != nil {
		s.Presets = make(map[string]OptionalFloat, len(presets))
		for name, v := range presets {
			s.Presets[name] = ParseOptionalFloat(v)
		}
	}
	return nil
}

// Clone returns a deep copy so cached settings can be handed out safely.
func (s Settings) Clone() Settings {
	out := s
	if s.Presets != nil {
		out.Presets = make(map[string]OptionalFloat, len(s.Presets))
		for k, v := range s.Presets {
			out.Presets[k] = v
		}
	}
	return out
}

// ErrIncompleteSettings is returned when a settings update carries nothing
// usable, or lacks a value the receiving side requires.
var ErrIncompleteSettings = errors.New("incomplete settings")

// Empty reports whether s carries no known value at all.
func (s Settings) Empty() bool {
	if s.Hysteresis.Valid || s.StepsOn.Valid || s.StepsOff.Valid {
		return false
	}
	for _, v := range s.Presets {
		if v.Valid {
			return false
		}
	}
	return true
}

// Merge returns s with every known value of update laid over it. Presets
// merge by name; unknown values in update leave s untouched.
func (s Settings) Merge(update Settings) Settings {
	out := s.Clone()
	if update.Hysteresis.Valid {
		out.Hysteresis = update.Hysteresis
	}
	if update.StepsOn.Valid {
		out.StepsOn = update.StepsOn
	}
	if update.StepsOff.Valid {
		out.StepsOff = update.StepsOff
	}
	for name, v := range update.Presets {
		if !v.Valid {
			continue
		}
		if out.Presets == nil {
			out.Presets = make(map[string]OptionalFloat, len(update.Presets))
		}
		out.Presets[name] = v
	}
	return out
}

// DeviceSnapshot is one device's entry in a state fetch.
type DeviceSnapshot struct {
	Temperature OptionalFloat `json:"temperature"`
	Setpoint    OptionalFloat `json:"setpoint"`
	Heating     Truthy        `json:"heating"`
	Settings    Settings      `json:"settings"`
}

// Snapshot maps device identifiers to their latest reported state.
type Snapshot map[string]DeviceSnapshot

// DecodeSnapshot parses a full state response. The top level must be an
// object; individual entries that are null or malformed are left out and
// their ids returned in skipped.
func DecodeSnapshot(data []byte) (snap Snapshot, skipped []string, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode state: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("decode state: response is not an object")
	}

	snap = make(Snapshot, len(raw))
	for id, entry := range raw {
		trimmed := bytes.TrimSpace(entry)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			skipped = append(skipped, id)
			continue
		}
		var ds DeviceSnapshot
		if err := json.Unmarshal(trimmed, &ds); err != nil {
			skipped = append(skipped, id)
			continue
		}
		snap[id] = ds
	}
	return snap, skipped, nil
}

// CardDefinition describes one card shown on the panel: which device it
// controls and which preset buttons it carries, in display order.
type CardDefinition struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label" yaml:"label"`
	Presets  []string `json:"presets" yaml:"presets"`
	Position int      `json:"-" yaml:"-"`
}
