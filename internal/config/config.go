package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/numeric"
)

const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Duration accepts "750ms"-style strings in both JSON and YAML. A bare JSON
// number is read as milliseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type MQTT struct {
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type Datadog struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`

	LogLevelName string `json:"log_level" yaml:"log_level"`
	LogFile      string `json:"log_file" yaml:"log_file"`
	LogJSON      bool   `json:"log_json" yaml:"log_json"`

	// Transport selects where state comes from: the dashboard server over
	// HTTP, or the broker directly.
	Transport      string   `json:"transport" yaml:"transport"`
	ServerURL      string   `json:"server_url" yaml:"server_url"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	SendRateLimit  float64  `json:"send_rate_limit" yaml:"send_rate_limit"`
	MQTT           MQTT     `json:"mqtt" yaml:"mqtt"`

	PollInterval Duration `json:"poll_interval" yaml:"poll_interval"`
	Step         float64  `json:"step" yaml:"step"`
	Epsilon      float64  `json:"epsilon" yaml:"epsilon"`

	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	DBPath     string `json:"db_path" yaml:"db_path"`

	Datadog Datadog `json:"datadog" yaml:"datadog"`

	Devices []model.CardDefinition `json:"devices" yaml:"devices"`
}

// Load reads flags and the config file. Any problem is fatal.
func Load() Config {
	var configFile, logLevel, listenAddr string

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to panel config file (.json, .yaml or .yml)")
	flag.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flag.StringVar(&listenAddr, "listen", "", "Listen address override, e.g. :8080")
	flag.Parse()

	cfg, err := LoadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	if logLevel != "" {
		cfg.LogLevelName = logLevel
		cfg.LogLevel = parseLogLevel(logLevel)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	return cfg
}

// LoadFile parses path as YAML or JSON depending on its extension, expands
// ${VAR} and ${VAR:default} references, fills defaults and validates.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	expanded := []byte(expandEnvVars(string(raw)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(expanded))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	}

	cfg.ConfigFile = path
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.LogLevelName == "" {
		cfg.LogLevelName = "info"
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if cfg.Transport == "" {
		cfg.Transport = TransportHTTP
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(10 * time.Second)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(750 * time.Millisecond)
	}
	if cfg.Step == 0 {
		cfg.Step = numeric.DefaultStep
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = numeric.DefaultEpsilon
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/panel.db"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "thermostat-panel"
	}
	if cfg.Datadog.AgentAddr == "" {
		cfg.Datadog.AgentAddr = "127.0.0.1:8125"
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "thermostat_panel."
	}
	for i := range cfg.Devices {
		cfg.Devices[i].Position = i
		if cfg.Devices[i].Label == "" {
			cfg.Devices[i].Label = cfg.Devices[i].ID
		}
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	var problems []string

	switch cfg.Transport {
	case TransportHTTP:
		if cfg.ServerURL == "" {
			problems = append(problems, "server_url is required for the http transport")
		}
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			problems = append(problems, "mqtt.broker is required for the mqtt transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", cfg.Transport))
	}

	if cfg.Step < 0 {
		problems = append(problems, "step must be positive")
	}
	if cfg.Epsilon < 0 {
		problems = append(problems, "epsilon must not be negative")
	}
	if cfg.PollInterval < 0 {
		problems = append(problems, "poll_interval must not be negative")
	}
	if cfg.SendRateLimit < 0 {
		problems = append(problems, "send_rate_limit must not be negative")
	}

	if len(cfg.Devices) == 0 {
		problems = append(problems, "at least one device is required")
	}
	seen := map[string]int{}
	for i, d := range cfg.Devices {
		if strings.TrimSpace(d.ID) == "" {
			problems = append(problems, fmt.Sprintf("devices[%d] has no id", i))
			continue
		}
		if strings.Contains(d.ID, "/") {
			problems = append(problems, fmt.Sprintf("device id %q must not contain '/'", d.ID))
		}
		if other, exists := seen[d.ID]; exists {
			problems = append(problems, fmt.Sprintf("devices[%d] and devices[%d] both use id %q", other, i, d.ID))
			continue
		}
		seen[d.ID] = i
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:default}. An unset or empty
// variable falls back to the default, or to "".
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
