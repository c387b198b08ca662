// Package config assembles the bridge's process configuration from flags,
// environment variables and the optional YAML session file.
//
// Precedence is flags, then environment, then the file. Validate resolves
// the textual options (domain id, allow expression, mode, log level) and
// every failure wraps one of the package's sentinel errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

var (
	// ErrInvalidDomain is returned for a domain id that is not a uint32
	ErrInvalidDomain = errors.New("invalid domain id")
	// ErrInvalidAllow is returned for an allow expression that does not compile
	ErrInvalidAllow = errors.New("invalid allow expression")
	// ErrInvalidMode is returned for a mode other than peer or client
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidLogLevel is returned for an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrConfigFile is returned when a config file cannot be read or parsed
	ErrConfigFile = errors.New("invalid config file")
)

// Options holds every option of the bridge process
type Options struct {
	Peers               []string
	Listeners           []string
	ConfigFile          string
	Scope               string
	JoinPublications    []string
	JoinSubscriptions   []string
	Mode                string
	NoMulticastScouting bool
	Domain              string
	Allow               string
	CodersFile          string
	AdminListen         string
	AdminSecret         string
	LogLevel            string

	// Set by Validate.
	DomainID uint32
	AllowRE  *regexp.Regexp
	Level    slog.Level
}

// NewOptions returns options with every value unset
func NewOptions() *Options {
	return &Options{}
}

type envOptions struct {
	Domain      string `env:"ROS_DOMAIN_ID"`
	AdminSecret string `env:"BRIDGE_ADMIN_SECRET"`
	LogLevel    string `env:"BRIDGE_LOG_LEVEL"`
}

// ParseEnv fills options left unset by flags from the environment
func (o *Options) ParseEnv() error {
	var e envOptions
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Domain == "" {
		o.Domain = e.Domain
	}
	if o.AdminSecret == "" {
		o.AdminSecret = e.AdminSecret
	}
	if o.LogLevel == "" {
		o.LogLevel = e.LogLevel
	}
	return nil
}

// Validate resolves DomainID, AllowRE and Level
func (o *Options) Validate() error {
	o.DomainID = bus.DomainDefault
	if d := strings.TrimSpace(o.Domain); d != "" {
		id, err := strconv.ParseUint(d, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDomain, o.Domain)
		}
		o.DomainID = uint32(id)
	}

	o.AllowRE = nil
	if o.Allow != "" {
		re, err := regexp.Compile(o.Allow)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAllow, err)
		}
		o.AllowRE = re
	}

	if o.Mode != "" {
		if _, err := overlay.ParseMode(o.Mode); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMode, o.Mode)
		}
	}

	level, err := ParseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	o.Level = level
	return nil
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

// LoadFile reads a YAML session config. Fields the file leaves out keep the
// overlay defaults.
func LoadFile(path string) (*overlay.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}
	cfg := overlay.NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigFile, path, err)
	}
	return cfg, nil
}

// Overlay builds the session config: the config file if any, then the
// locators, join lists, mode and scouting flag from the options. Local
// routing is always disabled so the bridge never receives its own writes.
func (o *Options) Overlay() (*overlay.Config, error) {
	cfg := overlay.NewConfig()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = LoadFile(o.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.Peers = append(cfg.Peers, o.Peers...)
	cfg.Listeners = append(cfg.Listeners, o.Listeners...)
	cfg.JoinPublications = append(cfg.JoinPublications, o.JoinPublications...)
	cfg.JoinSubscriptions = append(cfg.JoinSubscriptions, o.JoinSubscriptions...)
	if o.Mode != "" {
		mode, err := overlay.ParseMode(o.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, o.Mode)
		}
		cfg.Mode = mode
	}
	if o.NoMulticastScouting {
		cfg.MulticastScouting = false
	}
	cfg.LocalRouting = false

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, overlay.ErrInvalidMode) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMode, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
	}
	return cfg, nil
}

// SplitList splits comma-separated flag values and drops empty entries
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
