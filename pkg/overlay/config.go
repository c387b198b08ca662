package overlay

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the session role on the overlay
type Mode string

const (
	ModePeer   Mode = "peer"
	ModeClient Mode = "client"
)

// ParseMode parses "peer" or "client"
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePeer:
		return ModePeer, nil
	case ModeClient:
		return ModeClient, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

var (
	// ErrInvalidMode is returned for a mode other than peer or client
	ErrInvalidMode = errors.New("invalid session mode")
	// ErrInvalidLocator is returned for a locator that is not proto/address
	ErrInvalidLocator = errors.New("invalid locator")
)

// Config holds the options used to open a session
type Config struct {
	Mode              Mode     `yaml:"mode"`
	Peers             []string `yaml:"peers"`
	Listeners         []string `yaml:"listeners"`
	MulticastScouting bool     `yaml:"multicast_scouting"`
	JoinSubscriptions []string `yaml:"join_subscriptions"`
	JoinPublications  []string `yaml:"join_publications"`
	LocalRouting      bool     `yaml:"local_routing"`
}

// NewConfig returns a peer-mode config with multicast scouting enabled
func NewConfig() *Config {
	return &Config{
		Mode:              ModePeer,
		MulticastScouting: true,
	}
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModePeer
	}
}

// Validate checks the mode, locators and join expressions
func (c *Config) Validate() error {
	if c.Mode != ModePeer && c.Mode != ModeClient {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	for _, l := range append(append([]string{}, c.Peers...), c.Listeners...) {
		if _, _, err := SplitLocator(l); err != nil {
			return err
		}
	}
	for _, j := range append(append([]string{}, c.JoinSubscriptions...), c.JoinPublications...) {
		if err := ValidateKeyExpr(j); err != nil {
			return err
		}
	}
	return nil
}

// SplitLocator splits "tcp/host:port" into its protocol and address. A
// locator without a protocol is taken as tcp.
func SplitLocator(locator string) (proto, addr string, err error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidLocator)
	}
	proto, addr, found := strings.Cut(locator, "/")
	if !found {
		return "tcp", locator, nil
	}
	if proto != "tcp" || addr == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return proto, addr, nil
}
