package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction. A no-op after commit.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// ErrCardNotFound is returned by updates naming a card the registry does not hold.
var ErrCardNotFound = errors.New("card not found")

func UpdateCardLabel(db *sql.DB, id, label string) error {
	res, err := db.Exec(`UPDATE cards SET label = ? WHERE id = ?`, label, id)
	if err != nil {
		return fmt.Errorf("update card label: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update card label %s: %w", id, ErrCardNotFound)
	}
	return nil
}

// UpdateCardPresets replaces the preset buttons of a card, in order.
func UpdateCardPresets(db *sql.DB, id string, names []string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	if err := requireCard(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM card_presets WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("clear presets for card %s: %w", id, err)
	}
	if err := insertPresets(tx, id, names); err != nil {
		return err
	}
	return CommitTransaction(tx)
}

// MoveCard puts a card at index position of the display order, clamped to
// the ends, and renumbers the rest.
func MoveCard(db *sql.DB, id string, position int) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	if err := requireCard(tx, id); err != nil {
		return err
	}

	rows, err := tx.Query(`SELECT id FROM cards WHERE id != ? ORDER BY position, id`, id)
	if err != nil {
		return fmt.Errorf("query card order: %w", err)
	}
	var order []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			rows.Close()
			return fmt.Errorf("scan card order: %w", err)
		}
		order = append(order, other)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read card order: %w", err)
	}

	if position < 0 {
		position = 0
	}
	if position > len(order) {
		position = len(order)
	}
	order = append(order[:position], append([]string{id}, order[position:]...)...)

	for i, cardID := range order {
		if _, err := tx.Exec(`UPDATE cards SET position = ? WHERE id = ?`, i, cardID); err != nil {
			return fmt.Errorf("update position of card %s: %w", cardID, err)
		}
	}
	return CommitTransaction(tx)
}

func requireCard(tx *sql.Tx, id string) error {
	var exists int
	err := tx.QueryRow(`SELECT 1 FROM cards WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("card %s: %w", id, ErrCardNotFound)
	}
	if err != nil {
		return fmt.Errorf("look up card %s: %w", id, err)
	}
	return nil
}
