package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

func TestSeedDatabase_AndGetAllCards(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	defs := []model.CardDefinition{
		{ID: "livingroom", Label: "Living Room", Presets: []string{"Home", "Away"}},
		{ID: "bedroom", Label: "Bedroom"},
	}
	added, err := SeedDatabase(conn, defs)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	cards, err := GetAllCards(conn)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	assert.Equal(t, "livingroom", cards[0].ID)
	assert.Equal(t, "Living Room", cards[0].Label)
	assert.Equal(t, []string{"Home", "Away"}, cards[0].Presets)
	assert.Equal(t, 0, cards[0].Position)

	assert.Equal(t, "bedroom", cards[1].ID)
	assert.Nil(t, cards[1].Presets)
	assert.Equal(t, 1, cards[1].Position)
}

func TestSeedDatabase_KeepsStoredCards(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = SeedDatabase(conn, []model.CardDefinition{
		{ID: "livingroom", Label: "Living Room", Presets: []string{"Home"}},
		{ID: "garage", Label: "Garage"},
	})
	require.NoError(t, err)

	// The config changed label and presets of livingroom and added bedroom.
	added, err := SeedDatabase(conn, []model.CardDefinition{
		{ID: "bedroom", Label: "Bedroom", Presets: []string{"Sleep"}},
		{ID: "livingroom", Label: "Lounge"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	cards, err := GetAllCards(conn)
	require.NoError(t, err)
	require.Len(t, cards, 3)

	assert.Equal(t, "livingroom", cards[0].ID)
	assert.Equal(t, "Living Room", cards[0].Label)
	assert.Equal(t, []string{"Home"}, cards[0].Presets)
	assert.Equal(t, "garage", cards[1].ID)
	assert.Equal(t, "bedroom", cards[2].ID)
	assert.Equal(t, 2, cards[2].Position)
	assert.Equal(t, []string{"Sleep"}, cards[2].Presets)
}

func TestRegistryEditsSurviveReseed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.db")
	defs := []model.CardDefinition{
		{ID: "livingroom", Label: "Living Room", Presets: []string{"Home", "Away"}},
		{ID: "bedroom", Label: "Bedroom"},
		{ID: "office", Label: "Office"},
	}

	conn, err := Open(path)
	require.NoError(t, err)
	_, err = SeedDatabase(conn, defs)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, SetCardLabelCLI(path, "bedroom", "Master Bedroom"))
	require.NoError(t, SetCardPresetsCLI(path, "livingroom", []string{"Away", "Sleep"}))
	require.NoError(t, MoveCardCLI(path, "office", 0))

	// Restart: same config seeds again.
	conn, err = Open(path)
	require.NoError(t, err)
	defer conn.Close()
	added, err := SeedDatabase(conn, defs)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	cards, err := GetAllCards(conn)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, []string{"office", "livingroom", "bedroom"}, []string{cards[0].ID, cards[1].ID, cards[2].ID})
	assert.Equal(t, []string{"Away", "Sleep"}, cards[1].Presets)
	assert.Equal(t, "Master Bedroom", cards[2].Label)
}

func TestRegistryUpdates_UnknownCard(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	assert.ErrorIs(t, UpdateCardLabel(conn, "garage", "Garage"), ErrCardNotFound)
	assert.ErrorIs(t, UpdateCardPresets(conn, "garage", []string{"Home"}), ErrCardNotFound)
	assert.ErrorIs(t, MoveCard(conn, "garage", 0), ErrCardNotFound)
}

func TestMoveCard_ClampsPosition(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = SeedDatabase(conn, []model.CardDefinition{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)

	require.NoError(t, MoveCard(conn, "a", 99))
	require.NoError(t, MoveCard(conn, "c", -4))

	cards, err := GetAllCards(conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, []string{cards[0].ID, cards[1].ID, cards[2].ID})
	assert.Equal(t, []int{0, 1, 2}, []int{cards[0].Position, cards[1].Position, cards[2].Position})
}

func TestPrintCardsCLI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "panel.db")

	conn, err := Open(path)
	require.NoError(t, err)
	_, err = SeedDatabase(conn, []model.CardDefinition{{ID: "livingroom", Label: "Living Room"}})
	require.NoError(t, err)
	conn.Close()

	var buf bytes.Buffer
	require.NoError(t, PrintCardsCLI(path, &buf))
	assert.Contains(t, buf.String(), "Living Room")
}
