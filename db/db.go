package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Open opens (creating if needed) the sqlite database at dbPath and applies
// the schema. ":memory:" is accepted for tests.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases intact and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

// SeedDatabase adds every card in defs that the registry does not hold yet,
// after the existing ones. Cards already stored keep their label, position
// and presets, so edits made through the registry survive a restart.
func SeedDatabase(db *sql.DB, defs []model.CardDefinition) (added int, err error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	defer RollbackTransaction(tx)

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM cards`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to read card positions: %w", err)
	}

	for _, d := range defs {
		res, err := tx.Exec(`INSERT OR IGNORE INTO cards (id, label, position) VALUES (?, ?, ?)`, d.ID, d.Label, next)
		if err != nil {
			return 0, fmt.Errorf("failed to insert card %s: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if err := insertPresets(tx, d.ID, d.Presets); err != nil {
			return 0, err
		}
		next++
		added++
	}

	if err := CommitTransaction(tx); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	log.Info().Int("added", added).Int("configured", len(defs)).Msg("Card registry synced with config")
	return added, nil
}

func insertPresets(tx *sql.Tx, cardID string, names []string) error {
	for i, name := range names {
		_, err := tx.Exec(`INSERT OR IGNORE INTO card_presets (card_id, name, position) VALUES (?, ?, ?)`, cardID, name, i)
		if err != nil {
			return fmt.Errorf("failed to insert preset %s for card %s: %w", name, cardID, err)
		}
	}
	return nil
}
