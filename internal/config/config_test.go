package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateDefaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Validate())
	assert.Equal(t, bus.DomainDefault, o.DomainID)
	assert.Nil(t, o.AllowRE)
	assert.Equal(t, slog.LevelInfo, o.Level)
}

func TestValidateResolvesOptions(t *testing.T) {
	o := &Options{Domain: "42", Allow: `^robot1/.*`, Mode: "client", LogLevel: "debug"}
	require.NoError(t, o.Validate())
	assert.Equal(t, uint32(42), o.DomainID)
	require.NotNil(t, o.AllowRE)
	assert.True(t, o.AllowRE.MatchString("robot1/Chatter"))
	assert.Equal(t, slog.LevelDebug, o.Level)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"non numeric domain", Options{Domain: "abc"}, ErrInvalidDomain},
		{"negative domain", Options{Domain: "-1"}, ErrInvalidDomain},
		{"domain overflow", Options{Domain: "4294967296"}, ErrInvalidDomain},
		{"bad regex", Options{Allow: "("}, ErrInvalidAllow},
		{"bad mode", Options{Mode: "router"}, ErrInvalidMode},
		{"bad level", Options{LogLevel: "loud"}, ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("ROS_DOMAIN_ID", "7")
	t.Setenv("BRIDGE_ADMIN_SECRET", "s3cret")
	t.Setenv("BRIDGE_LOG_LEVEL", "warn")

	o := NewOptions()
	require.NoError(t, o.ParseEnv())
	require.NoError(t, o.Validate())
	assert.Equal(t, uint32(7), o.DomainID)
	assert.Equal(t, "s3cret", o.AdminSecret)
	assert.Equal(t, slog.LevelWarn, o.Level)
}

func TestParseEnvKeepsFlags(t *testing.T) {
	t.Setenv("ROS_DOMAIN_ID", "7")

	o := &Options{Domain: "3"}
	require.NoError(t, o.ParseEnv())
	assert.Equal(t, "3", o.Domain)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
mode: client
peers:
  - tcp/10.0.0.1:7447
join_subscriptions:
  - "/robot1/**"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, overlay.ModeClient, cfg.Mode)
	assert.Equal(t, []string{"tcp/10.0.0.1:7447"}, cfg.Peers)
	assert.Equal(t, []string{"/robot1/**"}, cfg.JoinSubscriptions)
	assert.True(t, cfg.MulticastScouting, "unset fields keep defaults")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFile)

	_, err = LoadFile(writeFile(t, "mode: [unterminated"))
	assert.ErrorIs(t, err, ErrConfigFile)
}

func TestOverlayMergesFlags(t *testing.T) {
	path := writeFile(t, `
peers: ["tcp/10.0.0.1:7447"]
local_routing: true
`)
	o := &Options{
		ConfigFile:          path,
		Peers:               []string{"tcp/10.0.0.2:7447"},
		Listeners:           []string{"tcp/0.0.0.0:7447"},
		JoinPublications:    []string{"/robot1/**"},
		Mode:                "client",
		NoMulticastScouting: true,
	}
	cfg, err := o.Overlay()
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp/10.0.0.1:7447", "tcp/10.0.0.2:7447"}, cfg.Peers)
	assert.Equal(t, []string{"tcp/0.0.0.0:7447"}, cfg.Listeners)
	assert.Equal(t, []string{"/robot1/**"}, cfg.JoinPublications)
	assert.Equal(t, overlay.ModeClient, cfg.Mode)
	assert.False(t, cfg.MulticastScouting)
	assert.False(t, cfg.LocalRouting, "local routing is always disabled")
}

func TestOverlayRejectsBadValues(t *testing.T) {
	_, err := (&Options{Peers: []string{"udp/1.2.3.4:5"}}).Overlay()
	assert.ErrorIs(t, err, ErrConfigFile)

	_, err = (&Options{ConfigFile: writeFile(t, "mode: router")}).Overlay()
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSplitList(t *testing.T) {
	got := SplitList([]string{"a,b", " c ", "", "d,,"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
