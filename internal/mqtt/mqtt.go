// Package mqtt reads thermostat readings straight off the broker and
// publishes setpoint commands, as an alternative to the dashboard server.
//
// Topic layout, per device id:
//
//	thermostat/<id>/temperature  {"temperature": 20.5}
//	thermostat/<id>/state        {"setpoint": 21, "heating": true}
//	thermostat/<id>/settings     {"presets": {...}, "hysteresis": 0.5, ...} (retained)
//	thermostat/<id>/setpoint     "21.0" (published, QoS 1, retained)
//
// Settings are also published back to thermostat/<id>/settings, retained.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
)

const (
	topicRoot   = "thermostat"
	setpointQoS = 1
	settingsQoS = 1
)

var subscriptions = []string{
	"thermostat/+/temperature",
	"thermostat/+/state",
	"thermostat/+/settings",
}

// DefaultSettings are assumed for a device until it publishes its own.
func DefaultSettings() model.Settings {
	return model.Settings{
		Presets: map[string]model.OptionalFloat{
			"Home":  model.Some(21),
			"Sleep": model.Some(18),
			"Away":  model.Some(16),
		},
		Hysteresis: model.Some(0.5),
		StepsOn:    model.Some(10),
		StepsOff:   model.Some(10),
	}
}

type device struct {
	temperature model.OptionalFloat
	setpoint    model.OptionalFloat
	heating     bool
	settings    model.Settings
}

// Source caches the latest message of each kind per device and serves it as
// a state snapshot.
type Source struct {
	mu      sync.RWMutex
	conn    Conn
	devices map[string]*device
}

// NewSource returns a source that already lists deviceIDs, with unknown
// readings, so their cards render before the first message arrives.
func NewSource(conn Conn, deviceIDs []string) *Source {
	s := &Source{
		conn:    conn,
		devices: make(map[string]*device),
	}
	for _, id := range deviceIDs {
		s.deviceLocked(id)
	}
	return s
}

// Connect dials the broker and subscribes, re-subscribing after every
// reconnect.
func Connect(opts ConnOptions, deviceIDs []string) (*Source, error) {
	s := NewSource(nil, deviceIDs)
	opts.OnConnect = func() {
		if err := s.Subscribe(); err != nil && err != ErrNotConnected {
			log.Error().Err(err).Msg("Failed to restore MQTT subscriptions")
		}
	}

	conn, err := Dial(opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.Subscribe(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) connection() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Source) Subscribe() error {
	conn := s.connection()
	if conn == nil {
		return ErrNotConnected
	}
	for _, topic := range subscriptions {
		if err := conn.Subscribe(topic, 0, s.HandleMessage); err != nil {
			return err
		}
	}
	log.Debug().Strs("topics", subscriptions).Msg("Subscribed to thermostat topics")
	return nil
}

func (s *Source) Close() {
	if conn := s.connection(); conn != nil {
		conn.Close()
	}
}

// HandleMessage updates the cache from one broker message. Payloads that do
// not parse as a JSON object are ignored.
func (s *Source) HandleMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != topicRoot || parts[1] == "" {
		return
	}
	id, leaf := parts[1], parts[len(parts)-1]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		log.Debug().Str("topic", topic).Msg("Ignoring non-object MQTT payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch leaf {
	case "temperature":
		s.deviceLocked(id).temperature = model.ParseOptionalFloat(fields["temperature"])
	case "state":
		d := s.deviceLocked(id)
		d.setpoint = model.ParseOptionalFloat(fields["setpoint"])
		var heating model.Truthy
		if raw, ok := fields["heating"]; ok {
			_ = json.Unmarshal(raw, &heating)
		}
		d.heating = bool(heating)
	case "settings":
		var incoming model.Settings
		_ = json.Unmarshal(payload, &incoming)
		s.deviceLocked(id).settings = MergeSettings(incoming, fields)
	}
}

// MergeSettings layers incoming settings over the defaults. Presets merge by
// name so a device that publishes only some presets keeps the rest. present
// lists which top-level keys the payload carried.
func MergeSettings(incoming model.Settings, present map[string]json.RawMessage) model.Settings {
	merged := DefaultSettings()
	if _, ok := present["hysteresis"]; ok {
		merged.Hysteresis = incoming.Hysteresis
	}
	if _, ok := present["steps_on"]; ok {
		merged.StepsOn = incoming.StepsOn
	}
	if _, ok := present["steps_off"]; ok {
		merged.StepsOff = incoming.StepsOff
	}
	for name, v := range incoming.Presets {
		merged.Presets[name] = v
	}
	return merged
}

func (s *Source) deviceLocked(id string) *device {
	d, ok := s.devices[id]
	if !ok {
		d = &device{settings: DefaultSettings()}
		s.devices[id] = d
	}
	return d
}

// FetchState returns a copy of the cached state. It fails while the broker
// is unreachable so stale readings are not reported as current.
func (s *Source) FetchState(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := s.connection()
	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(model.Snapshot, len(s.devices))
	for id, d := range s.devices {
		snap[id] = model.DeviceSnapshot{
			Temperature: d.temperature,
			Setpoint:    d.setpoint,
			Heating:     model.Truthy(d.heating),
			Settings:    d.settings.Clone(),
		}
	}
	return snap, nil
}

// SendSetpoint publishes the setpoint, retained, so the device picks it up
// even if it reconnects later.
func (s *Source) SendSetpoint(ctx context.Context, deviceID string, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := s.connection()
	if conn == nil {
		return ErrNotConnected
	}

	topic := fmt.Sprintf("%s/%s/setpoint", topicRoot, deviceID)
	if err := conn.Publish(topic, setpointQoS, true, []byte(numeric.FormatTenths(value))); err != nil {
		return err
	}

	log.Debug().Str("topic", topic).Float64("setpoint", value).Msg("Published setpoint")
	return nil
}

// PublishSettings lays s over the device's cached settings and publishes the
// result, retained. The cache is updated first so the next FetchState shows
// the new values without waiting for the broker to echo them; a failed
// publish puts the previous settings back.
func (s *Source) PublishSettings(ctx context.Context, deviceID string, update model.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if update.Empty() {
		return fmt.Errorf("settings for %s: %w", deviceID, model.ErrIncompleteSettings)
	}
	conn := s.connection()
	if conn == nil {
		return ErrNotConnected
	}

	s.mu.Lock()
	d := s.deviceLocked(deviceID)
	previous := d.settings
	merged := previous.Merge(update)
	d.settings = merged
	s.mu.Unlock()

	payload, err := json.Marshal(settingsPayload(merged))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/settings", topicRoot, deviceID)
	if err := conn.Publish(topic, settingsQoS, true, payload); err != nil {
		s.mu.Lock()
		if reflect.DeepEqual(d.settings, merged) {
			d.settings = previous
		}
		s.mu.Unlock()
		return err
	}

	log.Info().Str("topic", topic).RawJSON("settings", payload).Msg("Published settings")
	return nil
}

// settingsPayload keeps only known values. Step counts go out as integers,
// which is what the device firmware reads.
func settingsPayload(st model.Settings) map[string]interface{} {
	out := make(map[string]interface{})
	if v, ok := st.Hysteresis.Get(); ok {
		out["hysteresis"] = v
	}
	if v, ok := st.StepsOn.Get(); ok {
		out["steps_on"] = int(math.Round(v))
	}
	if v, ok := st.StepsOff.Get(); ok {
		out["steps_off"] = int(math.Round(v))
	}
	presets := make(map[string]float64, len(st.Presets))
	for name, v := range st.Presets {
		if f, ok := v.Get(); ok {
			presets[name] = f
		}
	}
	out["presets"] = presets
	return out
}
