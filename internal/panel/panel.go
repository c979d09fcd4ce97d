// Package panel owns the set of cards on the control panel and routes
// snapshots and user actions to them.
package panel

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/reconciler"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
)

var (
	ErrUnknownCard         = errors.New("unknown card")
	ErrSettingsUnsupported = errors.New("settings cannot be changed from this panel")
)

// SettingsPublisher pushes per-device settings, presets included, to the
// device.
type SettingsPublisher interface {
	PublishSettings(ctx context.Context, deviceID string, s model.Settings) error
}

type Panel struct {
	cards      map[string]*card.Card
	order      []string
	reconciler *reconciler.Reconciler
	sender     *sender.Sender
	settings   SettingsPublisher
}

// New builds a panel with one card per definition. The set of cards is fixed
// for the panel's lifetime; duplicate ids keep the first definition.
func New(defs []model.CardDefinition, step float64, rec *reconciler.Reconciler, snd *sender.Sender) *Panel {
	p := &Panel{
		cards:      make(map[string]*card.Card, len(defs)),
		reconciler: rec,
		sender:     snd,
	}
	for _, d := range defs {
		if _, exists := p.cards[d.ID]; exists || d.ID == "" {
			log.Warn().Str("device", d.ID).Msg("Skipping duplicate or empty card id")
			continue
		}
		p.cards[d.ID] = card.New(d.ID, d.Label, d.Presets, step)
		p.order = append(p.order, d.ID)
	}
	return p
}

// WithSettings enables UpdateSettings through pub.
func (p *Panel) WithSettings(pub SettingsPublisher) *Panel {
	p.settings = pub
	return p
}

func (p *Panel) Card(id string) (*card.Card, bool) {
	c, ok := p.cards[id]
	return c, ok
}

func (p *Panel) IDs() []string {
	return append([]string(nil), p.order...)
}

func (p *Panel) Views() []card.View {
	views := make([]card.View, 0, len(p.order))
	for _, id := range p.order {
		views = append(views, p.cards[id].View())
	}
	return views
}

func (p *Panel) View(id string) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	return c.View(), nil
}

// PendingCount is the number of cards with a send awaiting confirmation.
func (p *Panel) PendingCount() int {
	n := 0
	for _, id := range p.order {
		if p.cards[id].Status() == model.StatusPending {
			n++
		}
	}
	return n
}

// Apply reconciles every displayed card that appears in snap. Cards missing
// from the snapshot are left untouched. It returns the reconciled views.
func (p *Panel) Apply(snap model.Snapshot) []card.View {
	views := make([]card.View, 0, len(snap))
	for _, id := range p.order {
		ds, ok := snap[id]
		if !ok {
			continue
		}
		views = append(views, p.reconciler.Reconcile(p.cards[id], ds))
	}
	return views
}

// TypeLocal applies typed input to the card's local setpoint. Non-numeric
// text is ignored; the current view is returned either way.
func (p *Panel) TypeLocal(id, text string) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	if !c.SetLocalText(text) {
		log.Debug().Str("device", id).Str("input", text).Msg("Ignoring non-numeric setpoint input")
	}
	return c.View(), nil
}

func (p *Panel) SetLocal(id string, v float64) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	c.SetLocal(v)
	return c.View(), nil
}

func (p *Panel) Nudge(id string, dir card.Direction) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	c.Nudge(dir)
	return c.View(), nil
}

func (p *Panel) SelectPreset(id, name string) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	c.SelectPreset(name)
	return c.View(), nil
}

// Submit sends the card's local setpoint. The returned view already shows
// Pending when a send was started. The send outlives ctx cancellation so a
// finished HTTP request does not abort it.
func (p *Panel) Submit(ctx context.Context, id string) (card.View, <-chan sender.Outcome, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, nil, err
	}
	done := p.sender.Submit(context.WithoutCancel(ctx), c)
	return c.View(), done, nil
}

// UpdateSettings publishes a settings change for the card's device. The card
// itself is not touched: new preset values reach its buttons through the
// next reconcile, like any other authoritative field.
func (p *Panel) UpdateSettings(ctx context.Context, id string, s model.Settings) (card.View, error) {
	c, err := p.lookup(id)
	if err != nil {
		return card.View{}, err
	}
	if p.settings == nil {
		return c.View(), ErrSettingsUnsupported
	}
	if s.Empty() {
		return c.View(), fmt.Errorf("settings for %s: %w", id, model.ErrIncompleteSettings)
	}

	if err := p.settings.PublishSettings(ctx, id, s); err != nil {
		log.Warn().Err(err).Str("device", id).Msg("Settings update failed")
		return c.View(), err
	}
	return c.View(), nil
}

func (p *Panel) lookup(id string) (*card.Card, error) {
	c, ok := p.cards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCard, id)
	}
	return c, nil
}
