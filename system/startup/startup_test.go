package startup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarcie/CustomSmartThermostat/db"
	"github.com/adarcie/CustomSmartThermostat/internal/client"
	"github.com/adarcie/CustomSmartThermostat/internal/config"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

func TestOpenTransport_HTTP(t *testing.T) {
	cfg := config.Config{
		Transport:      config.TransportHTTP,
		ServerURL:      "http://127.0.0.1:5000",
		RequestTimeout: config.Duration(time.Second),
	}

	tr, closeFn, err := OpenTransport(cfg, nil)
	require.NoError(t, err)
	defer closeFn()

	_, ok := tr.(*client.Client)
	assert.True(t, ok)
}

func TestOpenTransport_Unknown(t *testing.T) {
	_, _, err := OpenTransport(config.Config{Transport: "serial"}, nil)
	assert.ErrorContains(t, err, "unknown transport")
}

func TestLoadCards(t *testing.T) {
	cfg := config.Config{
		DBPath: filepath.Join(t.TempDir(), "data", "panel.db"),
		Devices: []model.CardDefinition{
			{ID: "livingroom", Label: "Living Room", Presets: []string{"Home"}},
			{ID: "bedroom", Label: "Bedroom"},
		},
	}

	conn, cards, err := LoadCards(cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.Len(t, cards, 2)
	assert.Equal(t, "livingroom", cards[0].ID)
	assert.Equal(t, []string{"Home"}, cards[0].Presets)
	assert.Equal(t, "bedroom", cards[1].ID)
}

func TestLoadCards_RegistryEditsWinOverConfig(t *testing.T) {
	cfg := config.Config{
		DBPath:  filepath.Join(t.TempDir(), "panel.db"),
		Devices: []model.CardDefinition{{ID: "livingroom", Label: "Living Room"}},
	}

	conn, _, err := LoadCards(cfg)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, db.SetCardLabelCLI(cfg.DBPath, "livingroom", "Lounge"))

	cfg.Devices = append(cfg.Devices, model.CardDefinition{ID: "bedroom", Label: "Bedroom"})
	conn, cards, err := LoadCards(cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.Len(t, cards, 2)
	assert.Equal(t, "Lounge", cards[0].Label)
	assert.Equal(t, "bedroom", cards[1].ID)
}
