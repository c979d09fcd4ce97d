package db

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintCardsCLI writes the card registry as a table.
func PrintCardsCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	cards, err := GetAllCards(conn)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tID\tLABEL\tPRESETS")
	for _, c := range cards {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", c.Position, c.ID, c.Label, c.Presets)
	}
	return tw.Flush()
}

func SetCardLabelCLI(dbPath, id, label string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return UpdateCardLabel(conn, id, label)
}

func SetCardPresetsCLI(dbPath, id string, names []string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return UpdateCardPresets(conn, id, names)
}

func MoveCardCLI(dbPath, id string, position int) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return MoveCard(conn, id, position)
}
