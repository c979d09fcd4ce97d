package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

func newTestSource(t *testing.T) (*Source, *FakeConn) {
	t.Helper()
	conn := NewFakeConn()
	s := NewSource(conn, []string{"livingroom"})
	require.NoError(t, s.Subscribe())
	return s, conn
}

func TestSubscribe_AllTopics(t *testing.T) {
	_, conn := newTestSource(t)

	assert.Len(t, conn.Subscriptions, 3)
	assert.Contains(t, conn.Subscriptions, "thermostat/+/temperature")
	assert.Contains(t, conn.Subscriptions, "thermostat/+/state")
	assert.Contains(t, conn.Subscriptions, "thermostat/+/settings")
}

func TestFetchState_ConfiguredDeviceBeforeMessages(t *testing.T) {
	s, _ := newTestSource(t)

	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)

	d, ok := snap["livingroom"]
	require.True(t, ok)
	assert.False(t, d.Temperature.Valid)
	assert.False(t, d.Setpoint.Valid)
	assert.False(t, bool(d.Heating))
	assert.Equal(t, model.Some(21), d.Settings.Presets["Home"])
}

func TestHandleMessage_Readings(t *testing.T) {
	s, conn := newTestSource(t)

	conn.Deliver("thermostat/livingroom/temperature", []byte(`{"temperature": 20.25}`))
	conn.Deliver("thermostat/livingroom/state", []byte(`{"setpoint": 21, "heating": 1}`))
	conn.Deliver("thermostat/bedroom/state", []byte(`{"setpoint": "18.5", "heating": false}`))

	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.Some(20.25), snap["livingroom"].Temperature)
	assert.Equal(t, model.Some(21), snap["livingroom"].Setpoint)
	assert.True(t, bool(snap["livingroom"].Heating))

	require.Contains(t, snap, "bedroom")
	assert.Equal(t, model.Some(18.5), snap["bedroom"].Setpoint)
	assert.False(t, bool(snap["bedroom"].Heating))
}

func TestHandleMessage_IgnoresGarbage(t *testing.T) {
	s, _ := newTestSource(t)
	s.HandleMessage("thermostat/livingroom/state", []byte(`{"setpoint": 21}`))

	s.HandleMessage("thermostat/livingroom/state", []byte(`not json`))
	s.HandleMessage("thermostat/livingroom/state", []byte(`null`))
	s.HandleMessage("thermostat/livingroom/state", []byte(`[1,2]`))
	s.HandleMessage("other/livingroom/state", []byte(`{"setpoint": 5}`))
	s.HandleMessage("thermostat", []byte(`{"setpoint": 5}`))

	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap, 1)
	assert.Equal(t, model.Some(21), snap["livingroom"].Setpoint)
}

func TestHandleMessage_SettingsMergeOverDefaults(t *testing.T) {
	s, _ := newTestSource(t)

	s.HandleMessage("thermostat/livingroom/settings", []byte(`{"presets": {"Home": 22, "Eco": 15}, "hysteresis": 0.3}`))

	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)
	settings := snap["livingroom"].Settings

	assert.Equal(t, model.Some(22), settings.Presets["Home"])
	assert.Equal(t, model.Some(18), settings.Presets["Sleep"])
	assert.Equal(t, model.Some(16), settings.Presets["Away"])
	assert.Equal(t, model.Some(15), settings.Presets["Eco"])
	assert.Equal(t, model.Some(0.3), settings.Hysteresis)
	assert.Equal(t, model.Some(10), settings.StepsOn)
}

func TestFetchState_ReturnsCopy(t *testing.T) {
	s, _ := newTestSource(t)

	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)
	snap["livingroom"].Settings.Presets["Home"] = model.Some(99)

	again, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Some(21), again["livingroom"].Settings.Presets["Home"])
}

func TestFetchState_Disconnected(t *testing.T) {
	s, conn := newTestSource(t)
	conn.SetConnected(false)

	_, err := s.FetchState(context.Background())
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestSendSetpoint(t *testing.T) {
	s, conn := newTestSource(t)

	require.NoError(t, s.SendSetpoint(context.Background(), "livingroom", 21.5))

	require.Len(t, conn.Published, 1)
	p := conn.Published[0]
	assert.Equal(t, "thermostat/livingroom/setpoint", p.Topic)
	assert.Equal(t, byte(1), p.QoS)
	assert.True(t, p.Retained)
	assert.Equal(t, "21.5", string(p.Payload))
}

func TestSendSetpoint_Errors(t *testing.T) {
	s, conn := newTestSource(t)

	conn.PublishError = ErrPublishTimeout
	err := s.SendSetpoint(context.Background(), "livingroom", 21)
	assert.True(t, errors.Is(err, ErrPublishTimeout))

	conn.PublishError = nil
	conn.SetConnected(false)
	err = s.SendSetpoint(context.Background(), "livingroom", 21)
	assert.True(t, errors.Is(err, ErrNotConnected))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.SendSetpoint(ctx, "livingroom", 21)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSubscribe_WithoutConnection(t *testing.T) {
	s := NewSource(nil, nil)
	assert.Equal(t, ErrNotConnected, s.Subscribe())
	_, err := s.FetchState(context.Background())
	assert.Equal(t, ErrNotConnected, err)
}

func TestTopicMatches(t *testing.T) {
	assert.True(t, topicMatches("thermostat/+/state", "thermostat/a/state"))
	assert.False(t, topicMatches("thermostat/+/state", "thermostat/a/settings"))
	assert.False(t, topicMatches("thermostat/+/state", "thermostat/a/b/state"))
	assert.True(t, topicMatches("thermostat/#", "thermostat/a/b/state"))
}

func TestPublishSettings(t *testing.T) {
	s, conn := newTestSource(t)

	update := model.Settings{
		Presets: map[string]model.OptionalFloat{"Home": model.Some(22.5)},
		StepsOn: model.Some(12),
	}
	require.NoError(t, s.PublishSettings(context.Background(), "livingroom", update))

	require.Len(t, conn.Published, 1)
	p := conn.Published[0]
	assert.Equal(t, "thermostat/livingroom/settings", p.Topic)
	assert.Equal(t, byte(1), p.QoS)
	assert.True(t, p.Retained)
	assert.JSONEq(t, `{
		"hysteresis": 0.5,
		"steps_on": 12,
		"steps_off": 10,
		"presets": {"Home": 22.5, "Sleep": 18, "Away": 16}
	}`, string(p.Payload))

	// Visible before the broker echoes the retained message back.
	snap, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Some(22.5), snap["livingroom"].Settings.Presets["Home"])
	assert.Equal(t, model.Some(18), snap["livingroom"].Settings.Presets["Sleep"])

	// The echo leaves the same settings in place.
	conn.Deliver(p.Topic, p.Payload)
	again, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap["livingroom"].Settings, again["livingroom"].Settings)
}

func TestPublishSettings_Errors(t *testing.T) {
	t.Run("nothing to publish", func(t *testing.T) {
		s, conn := newTestSource(t)
		err := s.PublishSettings(context.Background(), "livingroom", model.Settings{})
		assert.ErrorIs(t, err, model.ErrIncompleteSettings)
		assert.Empty(t, conn.Published)
	})

	t.Run("publish failure restores cache", func(t *testing.T) {
		s, conn := newTestSource(t)
		conn.PublishError = errors.New("broker gone")

		err := s.PublishSettings(context.Background(), "livingroom", model.Settings{
			Presets: map[string]model.OptionalFloat{"Home": model.Some(25)},
		})
		require.Error(t, err)

		snap, err := s.FetchState(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.Some(21), snap["livingroom"].Settings.Presets["Home"])
	})

	t.Run("no connection", func(t *testing.T) {
		s := NewSource(nil, []string{"livingroom"})
		err := s.PublishSettings(context.Background(), "livingroom", model.Settings{StepsOn: model.Some(5)})
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}
