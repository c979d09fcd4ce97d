package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
)

// CommandSender delivers a setpoint to a device. A nil error means the
// transport accepted the command, not that the device applied it.
type CommandSender interface {
	SendSetpoint(ctx context.Context, deviceID string, value float64) error
}

type Result string

const (
	ResultSent    Result = "sent"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

type Outcome struct {
	DeviceID string
	Value    float64
	Result   Result
	Err      error
	Duration time.Duration
}

// Observer is told about every finished send. Used for metrics.
type Observer interface {
	ObserveSend(o Outcome)
}

type Sender struct {
	transport CommandSender
	observer  Observer
}

func New(transport CommandSender, observer Observer) *Sender {
	return &Sender{transport: transport, observer: observer}
}

// Dispatch marks the card pending before returning, then sends in the
// background. A failed send rolls back its own pending value; a successful
// one leaves it for reconciliation to confirm. The returned channel receives
// exactly one Outcome.
func (s *Sender) Dispatch(ctx context.Context, c *card.Card, deviceID string, value float64) <-chan Outcome {
	out := make(chan Outcome, 1)

	if !numeric.Valid(value) {
		out <- Outcome{DeviceID: deviceID, Value: value, Result: ResultSkipped}
		close(out)
		return out
	}

	// Round once; the pending value and the sent value are the same number.
	value = numeric.RoundToStep(value, c.Step())

	var token uint64
	c.Mutate(func(st *card.State) { token = st.MarkPending(value) })

	log.Info().
		Str("device", deviceID).
		Float64("setpoint", value).
		Msg("Sending setpoint")

	go func() {
		defer close(out)
		o := s.send(ctx, c, deviceID, value, token)
		if s.observer != nil {
			s.observer.ObserveSend(o)
		}
		out <- o
	}()

	return out
}

// SendSetpoint is the blocking form of Dispatch.
func (s *Sender) SendSetpoint(ctx context.Context, c *card.Card, deviceID string, value float64) Outcome {
	return <-s.Dispatch(ctx, c, deviceID, value)
}

// Submit sends the card's current local setpoint. Nothing is sent when the
// local value is empty.
func (s *Sender) Submit(ctx context.Context, c *card.Card) <-chan Outcome {
	v, ok := c.ReadLocal()
	if !ok {
		out := make(chan Outcome, 1)
		out <- Outcome{DeviceID: c.ID(), Result: ResultSkipped}
		close(out)
		return out
	}
	return s.Dispatch(ctx, c, c.ID(), v)
}

func (s *Sender) send(ctx context.Context, c *card.Card, deviceID string, value float64, token uint64) (o Outcome) {
	start := time.Now()
	o = Outcome{DeviceID: deviceID, Value: value}

	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("send panicked: %v", r)
		}
		if o.Err != nil {
			o.Result = ResultFailed
			var rolledBack bool
			c.Mutate(func(st *card.State) { rolledBack = st.RollbackPending(token) })
			log.Warn().
				Err(o.Err).
				Str("device", deviceID).
				Float64("setpoint", value).
				Bool("rolled_back", rolledBack).
				Msg("Setpoint send failed")
		} else {
			o.Result = ResultSent
		}
		o.Duration = time.Since(start)
	}()

	o.Err = s.transport.SendSetpoint(ctx, deviceID, value)
	return o
}
