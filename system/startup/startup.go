package startup

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/db"
	"github.com/adarcie/CustomSmartThermostat/internal/client"
	"github.com/adarcie/CustomSmartThermostat/internal/config"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/mqtt"
	"github.com/adarcie/CustomSmartThermostat/internal/panel"
	"github.com/adarcie/CustomSmartThermostat/internal/poller"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
)

// Transport reports device state and accepts setpoint and settings
// commands.
type Transport interface {
	poller.StateFetcher
	sender.CommandSender
	panel.SettingsPublisher
}

// OpenTransport connects the configured transport for the given cards. The
// returned func releases it.
func OpenTransport(cfg config.Config, cards []model.CardDefinition) (Transport, func(), error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		ids := make([]string, 0, len(cards))
		for _, d := range cards {
			ids = append(ids, d.ID)
		}
		src, err := mqtt.Connect(mqtt.ConnOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: cfg.RequestTimeout.Duration(),
			PublishTimeout: cfg.RequestTimeout.Duration(),
		}, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("open mqtt transport: %w", err)
		}
		log.Info().Str("broker", cfg.MQTT.Broker).Msg("Using MQTT transport")
		return src, src.Close, nil

	case config.TransportHTTP:
		c := client.New(cfg.ServerURL, client.Options{
			Timeout:       cfg.RequestTimeout.Duration(),
			SendRateLimit: cfg.SendRateLimit,
		})
		log.Info().Str("server", cfg.ServerURL).Msg("Using HTTP transport")
		return c, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// LoadCards adds configured cards missing from the registry and returns the
// registry in display order. The registry, not the config, decides labels,
// order and preset buttons of cards it already holds.
func LoadCards(cfg config.Config) (*sql.DB, []model.CardDefinition, error) {
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.SeedDatabase(conn, cfg.Devices); err != nil {
		conn.Close()
		return nil, nil, err
	}
	cards, err := db.GetAllCards(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, cards, nil
}
