package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/api"
	"github.com/adarcie/CustomSmartThermostat/internal/config"
	"github.com/adarcie/CustomSmartThermostat/internal/datadog"
	"github.com/adarcie/CustomSmartThermostat/internal/logging"
	"github.com/adarcie/CustomSmartThermostat/internal/metrics"
	"github.com/adarcie/CustomSmartThermostat/internal/panel"
	"github.com/adarcie/CustomSmartThermostat/internal/poller"
	"github.com/adarcie/CustomSmartThermostat/internal/reconciler"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
	"github.com/adarcie/CustomSmartThermostat/system/shutdown"
	"github.com/adarcie/CustomSmartThermostat/system/startup"
)

func main() {
	cfg := config.Load()
	logFile := logging.Init(cfg.LogLevel, cfg.LogFile, cfg.LogJSON)
	defer logFile.Close()

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("transport", cfg.Transport).
		Int("devices", len(cfg.Devices)).
		Dur("poll_interval", cfg.PollInterval.Duration()).
		Msg("Starting thermostat panel")

	if cfg.Datadog.Enabled {
		datadog.InitMetrics(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		defer datadog.Close()
	}

	conn, cards, err := startup.LoadCards(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("Failed to load card registry")
	}
	defer conn.Close()

	transport, closeTransport, err := startup.OpenTransport(cfg, cards)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transport")
	}

	recorder := metrics.NewRecorder()
	snd := sender.New(transport, recorder)
	pnl := panel.New(cards, cfg.Step, reconciler.New(cfg.Epsilon), snd).WithSettings(transport)
	recorder.TrackPending(pnl.PendingCount)
	poll := poller.New(transport, pnl, cfg.PollInterval.Duration(), recorder)

	ctx := shutdown.SignalContext()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poll.Run(ctx)
	}()

	server := api.NewServer(pnl, recorder.Handler())
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			shutdown.ShutdownWithError(err, "Panel API server failed")
		}
	}()

	<-ctx.Done()

	shutdown.Graceful(5*time.Second,
		shutdown.Step{Name: "api server", Fn: server.Shutdown},
		shutdown.Step{Name: "poller", Fn: func(ctx context.Context) error {
			select {
			case <-pollDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		shutdown.Step{Name: "transport", Fn: func(context.Context) error {
			closeTransport()
			return nil
		}},
	)
}
