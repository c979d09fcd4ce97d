package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Step is one part of an orderly stop.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// Graceful runs steps in order under a shared deadline. A failing step is
// logged and the rest still run.
func Graceful(timeout time.Duration, steps ...Step) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, s := range steps {
		if err := s.Fn(ctx); err != nil {
			log.Error().Err(err).Str("step", s.Name).Msg("Shutdown step failed")
			continue
		}
		log.Debug().Str("step", s.Name).Msg("Shutdown step complete")
	}
	log.Info().Msg("Shutdown complete")
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}
