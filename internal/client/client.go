// Package client talks to the thermostat dashboard server over HTTP: it
// fetches the state of every device and posts setpoint and settings
// commands.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
)

const (
	statePath     = "/api/state"
	maxStateBytes = 1 << 20
)

// ErrStatus matches any HTTPStatusError with errors.Is.
var ErrStatus = errors.New("unexpected http status")

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("thermostat server returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (e HTTPStatusError) Is(target error) bool {
	return target == ErrStatus
}

type Options struct {
	Timeout time.Duration
	// SendRateLimit caps outgoing setpoint commands per second. Zero disables it.
	SendRateLimit float64
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	requestID  func() string
}

func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if opts.SendRateLimit > 0 {
		burst := int(opts.SendRateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.SendRateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		requestID:  uuid.NewString,
	}
}

// FetchState returns the reported state of all devices. Entries that cannot
// be decoded are dropped; a body that is not a JSON object is an error.
func (c *Client) FetchState(ctx context.Context) (model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStateBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	snap, skipped, err := model.DecodeSnapshot(body)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		log.Debug().Strs("devices", skipped).Msg("Skipping malformed device entries")
	}
	return snap, nil
}

// settingsPresets are the preset form fields the server requires, by name.
var settingsPresets = map[string]string{
	"Home":  "preset_home",
	"Sleep": "preset_sleep",
	"Away":  "preset_away",
}

// SendSetpoint posts the setpoint as a form value with one decimal. Any
// non-2xx response is a failure; the body is not interpreted.
func (c *Client) SendSetpoint(ctx context.Context, deviceID string, value float64) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	form := url.Values{}
	form.Set("setpoint", numeric.FormatTenths(value))

	endpoint := fmt.Sprintf("%s/thermostat/%s/setpoint", c.baseURL, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	reqID := c.requestID()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send setpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	log.Debug().
		Str("device", deviceID).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Msg("Setpoint accepted by server")

	return nil
}

// PublishSettings lays update over the settings the server currently reports
// for the device and posts the complete form. The server only accepts a
// full set of values, so anything still unknown after the merge is an
// ErrIncompleteSettings.
func (c *Client) PublishSettings(ctx context.Context, deviceID string, update model.Settings) error {
	if update.Empty() {
		return fmt.Errorf("settings for %s: %w", deviceID, model.ErrIncompleteSettings)
	}

	snap, err := c.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("read current settings: %w", err)
	}
	merged := snap[deviceID].Settings.Merge(update)

	form, err := settingsForm(merged)
	if err != nil {
		return fmt.Errorf("settings for %s: %w", deviceID, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/thermostat/%s/settings", c.baseURL, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	reqID := c.requestID()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	log.Info().
		Str("device", deviceID).
		Str("request_id", reqID).
		Msg("Settings accepted by server")

	return nil
}

func settingsForm(st model.Settings) (url.Values, error) {
	var missing []string
	form := url.Values{}

	if v, ok := st.Hysteresis.Get(); ok {
		form.Set("hysteresis", strconv.FormatFloat(v, 'f', -1, 64))
	} else {
		missing = append(missing, "hysteresis")
	}
	if v, ok := st.StepsOn.Get(); ok {
		form.Set("steps_on", strconv.Itoa(int(math.Round(v))))
	} else {
		missing = append(missing, "steps_on")
	}
	if v, ok := st.StepsOff.Get(); ok {
		form.Set("steps_off", strconv.Itoa(int(math.Round(v))))
	} else {
		missing = append(missing, "steps_off")
	}
	for _, name := range []string{"Home", "Sleep", "Away"} {
		if v, ok := st.Presets[name].Get(); ok {
			form.Set(settingsPresets[name], strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			missing = append(missing, "preset "+name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", model.ErrIncompleteSettings, strings.Join(missing, ", "))
	}
	return form, nil
}
