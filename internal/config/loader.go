package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pitchdrill/pitchdrill/pkg/types"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Channel
	if cfg.Channel.Mode != "" && !cfg.Channel.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("channel.mode %q is invalid; valid values: websocket, sim", cfg.Channel.Mode))
	}
	if cfg.Channel.Mode == ChannelWebsocket && cfg.Channel.URL == "" {
		errs = append(errs, errors.New("channel.url is required when channel.mode is websocket"))
	}
	if cfg.Channel.HandshakeTimeoutS < 0 {
		errs = append(errs, fmt.Errorf("channel.handshake_timeout_s %d must not be negative", cfg.Channel.HandshakeTimeoutS))
	}

	// Coach
	if cfg.Coach.FeedbackCapacity < 0 {
		errs = append(errs, fmt.Errorf("coach.feedback_capacity %d must not be negative", cfg.Coach.FeedbackCapacity))
	}
	if cfg.Coach.CooldownS < 0 {
		errs = append(errs, fmt.Errorf("coach.cooldown_s %d must not be negative", cfg.Coach.CooldownS))
	}
	if cfg.Coach.TalkTimeLow < 0 || cfg.Coach.TalkTimeLow > 100 {
		errs = append(errs, fmt.Errorf("coach.talk_time_low %d is out of range [0, 100]", cfg.Coach.TalkTimeLow))
	}
	if cfg.Coach.TalkTimeHigh < 0 || cfg.Coach.TalkTimeHigh > 100 {
		errs = append(errs, fmt.Errorf("coach.talk_time_high %d is out of range [0, 100]", cfg.Coach.TalkTimeHigh))
	}
	if cfg.Coach.TalkTimeLow > 0 && cfg.Coach.TalkTimeHigh > 0 && cfg.Coach.TalkTimeLow >= cfg.Coach.TalkTimeHigh {
		errs = append(errs, fmt.Errorf("coach.talk_time_low %d must be below coach.talk_time_high %d", cfg.Coach.TalkTimeLow, cfg.Coach.TalkTimeHigh))
	}

	// Capture
	if cfg.Capture.Enabled && cfg.Capture.Dir == "" {
		errs = append(errs, errors.New("capture.dir is required when capture.enabled is true"))
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; finished sessions will not be persisted")
	}

	// Simulator
	if cfg.Channel.Mode == ChannelSim && len(cfg.Simulator.Script) == 0 {
		errs = append(errs, errors.New("simulator.script is required when channel.mode is sim"))
	}
	if cfg.Simulator.IntervalMS < 0 {
		errs = append(errs, fmt.Errorf("simulator.interval_ms %d must not be negative", cfg.Simulator.IntervalMS))
	}
	for i, line := range cfg.Simulator.Script {
		prefix := fmt.Sprintf("simulator.script[%d]", i)
		if !line.Speaker.IsValid() {
			errs = append(errs, fmt.Errorf("%s.speaker %q is invalid; valid values: trainee, prospect", prefix, line.Speaker))
		}
		if line.Text == "" && line.Speaker == types.SpeakerTrainee {
			errs = append(errs, fmt.Errorf("%s.text is required for trainee lines", prefix))
		}
		if line.Text == "" && line.Speaker == types.SpeakerProspect && cfg.Simulator.Model == "" {
			errs = append(errs, fmt.Errorf("%s.text is empty but simulator.model is not configured", prefix))
		}
		if line.DelayMS < 0 {
			errs = append(errs, fmt.Errorf("%s.delay_ms %d must not be negative", prefix, line.DelayMS))
		}
	}
	if cfg.Simulator.Model != "" && cfg.Simulator.APIKey == "" {
		slog.Warn("simulator.model is configured without simulator.api_key; generation will rely on ambient credentials")
	}

	return errors.Join(errs...)
}
