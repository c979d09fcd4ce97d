package db

import (
	"database/sql"
	"fmt"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

// GetAllCards returns the registry in display order, each card with its
// preset button names in order.
func GetAllCards(db *sql.DB) ([]model.CardDefinition, error) {
	rows, err := db.Query(`SELECT id, label, position FROM cards ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}

	var cards []model.CardDefinition
	for rows.Next() {
		var c model.CardDefinition
		if err := rows.Scan(&c.ID, &c.Label, &c.Position); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	rows.Close()

	for i := range cards {
		names, err := GetCardPresets(db, cards[i].ID)
		if err != nil {
			return nil, err
		}
		cards[i].Presets = names
	}
	return cards, nil
}

func GetCardPresets(db *sql.DB, cardID string) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM card_presets WHERE card_id = ? ORDER BY position`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presets for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
