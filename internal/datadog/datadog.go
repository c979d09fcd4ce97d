package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

var dogstatsd *statsd.Client

// InitMetrics connects to the DogStatsD agent. Until it succeeds, Gauge and
// Incr are no-ops.
func InitMetrics(addr, namespace string, tags []string) {
	client, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	client.Namespace = namespace
	client.Tags = tags
	dogstatsd = client

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")
}

func Enabled() bool {
	return dogstatsd != nil
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd != nil {
		if err := dogstatsd.Incr(name, tags, 1); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

func Close() {
	if dogstatsd != nil {
		_ = dogstatsd.Close()
		dogstatsd = nil
	}
}
