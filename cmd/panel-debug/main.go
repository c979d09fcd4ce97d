package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/adarcie/CustomSmartThermostat/db"
	"github.com/adarcie/CustomSmartThermostat/internal/config"
	"github.com/adarcie/CustomSmartThermostat/internal/logging"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/panel"
	"github.com/adarcie/CustomSmartThermostat/internal/poller"
	"github.com/adarcie/CustomSmartThermostat/internal/reconciler"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
	"github.com/adarcie/CustomSmartThermostat/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var configFile, command, deviceID, label, presetList string
	var setpoint float64
	var position int
	var wait time.Duration
	var verbose bool
	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to panel config file")
	flag.StringVar(&command, "cmd", "", "Command to run: state, set, cards, label, presets, move")
	flag.StringVar(&deviceID, "device", "", "Device ID for set, label, presets and move")
	flag.Float64Var(&setpoint, "setpoint", 0, "Setpoint value for set")
	flag.StringVar(&label, "label", "", "New card label for label")
	flag.StringVar(&presetList, "presets", "", "Comma-separated preset buttons for presets")
	flag.IntVar(&position, "position", 0, "Display position for move, starting at 0")
	flag.DurationVar(&wait, "wait", 15*time.Second, "How long set waits for the device to confirm")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of panel-debug:")
		fmt.Println("  -config-file string\tPath to panel config file (default 'config.yaml')")
		fmt.Println("  -cmd string\tCommand to run: state, set, cards, label, presets, move")
		fmt.Println("  -device string\tDevice ID for set, label, presets and move")
		fmt.Println("  -setpoint float\tSetpoint value for set")
		fmt.Println("  -label string\tNew card label for label")
		fmt.Println("  -presets string\tComma-separated preset buttons for presets")
		fmt.Println("  -position int\tDisplay position for move, starting at 0")
		fmt.Println("  -wait duration\tHow long set waits for confirmation (default 15s)")
		fmt.Println("  -v\tVerbose logging")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logging.Init(level, "", false)

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "state", "cards":
	default:
		if deviceID == "" {
			fmt.Println("Error: device ID is required")
			os.Exit(1)
		}
	}

	switch command {
	case "state":
		err = printState(cfg)
	case "set":
		err = setAndConfirm(cfg, deviceID, setpoint, wait)
	case "cards":
		err = db.PrintCardsCLI(cfg.DBPath, os.Stdout)
	case "label":
		err = db.SetCardLabelCLI(cfg.DBPath, deviceID, label)
	case "presets":
		err = db.SetCardPresetsCLI(cfg.DBPath, deviceID, splitList(presetList))
	case "move":
		err = db.MoveCardCLI(cfg.DBPath, deviceID, position)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	switch command {
	case "label", "presets", "move":
		fmt.Printf("Command %s completed successfully\n", command)
	}
}

func printState(cfg config.Config) error {
	transport, closeFn, err := startup.OpenTransport(cfg, cfg.Devices)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout.Duration())
	defer cancel()

	snap, err := transport.FetchState(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tTEMPERATURE\tSETPOINT\tHEATING\tPRESETS")
	for _, id := range ids {
		d := snap[id]
		heating := "OFF"
		if d.Heating {
			heating = "ON"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, d.Temperature.Format(), d.Setpoint.Format(), heating, formatPresets(d.Settings))
	}
	return tw.Flush()
}

// setAndConfirm drives one card through the same path the panel uses and
// polls until the device reports the new setpoint or wait runs out.
func setAndConfirm(cfg config.Config, deviceID string, setpoint float64, wait time.Duration) error {
	cards := []model.CardDefinition{{ID: deviceID}}
	transport, closeFn, err := startup.OpenTransport(cfg, cards)
	if err != nil {
		return err
	}
	defer closeFn()

	pnl := panel.New(cards, cfg.Step, reconciler.New(cfg.Epsilon), sender.New(transport, nil))
	poll := poller.New(transport, pnl, cfg.PollInterval.Duration(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if _, err := poll.PollOnce(ctx); err != nil {
		return err
	}
	if _, err := pnl.SetLocal(deviceID, setpoint); err != nil {
		return err
	}

	v, done, err := pnl.Submit(ctx, deviceID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: sending %s (currently %s)\n", deviceID, v.Pending, v.Setpoint)

	o := <-done
	if o.Err != nil {
		return fmt.Errorf("send failed: %w", o.Err)
	}
	fmt.Printf("%s: accepted after %v, waiting for confirmation\n", deviceID, o.Duration.Round(time.Millisecond))

	ticker := time.NewTicker(cfg.PollInterval.Duration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			v, _ := pnl.View(deviceID)
			return fmt.Errorf("device still reports %s after %v", v.Setpoint, wait)
		case <-ticker.C:
		}

		if _, err := poll.PollOnce(ctx); err != nil {
			continue
		}
		v, _ := pnl.View(deviceID)
		if v.Status == model.StatusLive {
			fmt.Printf("%s: confirmed at %s\n", deviceID, v.Setpoint)
			return nil
		}
	}
}

func formatPresets(s model.Settings) string {
	names := make([]string, 0, len(s.Presets))
	for name := range s.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		out += name + "=" + s.Presets[name].Format()
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
