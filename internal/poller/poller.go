package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

const DefaultInterval = 750 * time.Millisecond

// StateFetcher returns the latest reported state of every known device.
type StateFetcher interface {
	FetchState(ctx context.Context) (model.Snapshot, error)
}

// Applier reconciles a snapshot into the displayed cards.
type Applier interface {
	Apply(snap model.Snapshot) []card.View
}

// Result describes one poll. Snapshot holds the raw readings behind Views.
type Result struct {
	Snapshot model.Snapshot
	Views    []card.View
	Err      error
	Duration time.Duration
}

type Observer interface {
	ObservePoll(r Result)
}

type Poller struct {
	fetcher  StateFetcher
	applier  Applier
	interval time.Duration
	observer Observer
}

func New(fetcher StateFetcher, applier Applier, interval time.Duration, observer Observer) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		applier:  applier,
		interval: interval,
		observer: observer,
	}
}

// Run polls until ctx is cancelled. The next poll is scheduled a fixed
// interval after the previous one finishes, whatever its outcome, so
// iterations never overlap.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Starting state poller")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("State poller stopping")
			return
		case <-timer.C:
		}

		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Msg("Poll failed, retrying next tick")
		}

		timer.Reset(p.interval)
	}
}

// PollOnce runs a single fetch and reconcile. Errors and panics are returned
// rather than propagated so the loop keeps going.
func (p *Poller) PollOnce(ctx context.Context) (views []card.View, err error) {
	start := time.Now()
	var snap model.Snapshot

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
			log.Error().Err(err).Msg("Recovered from panic in poll")
		}
		if p.observer != nil {
			p.observer.ObservePoll(Result{Snapshot: snap, Views: views, Err: err, Duration: time.Since(start)})
		}
	}()

	snap, err = p.fetcher.FetchState(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}

	views = p.applier.Apply(snap)

	log.Debug().
		Int("devices", len(snap)).
		Int("reconciled", len(views)).
		Dur("took", time.Since(start)).
		Msg("Poll complete")

	return views, nil
}
