package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndApplyDefaults(t *testing.T) {
	data := []byte(`
http:
  port: 9090
kcp:
  port: 7000
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	cfg.ApplyDefaults()

	require.Equal(t, "0.0.0.0", cfg.HTTP.Address)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, 7000, cfg.KCP.Port)
	require.True(t, cfg.KCP.Interval == 10)
	require.Equal(t, 10000, cfg.KCP.TimeoutMs)
	require.Equal(t, 4096, cfg.KCP.ReceiveWindowSize)
	require.Equal(t, 4096, cfg.KCP.SendWindowSize)
	require.Equal(t, 2, cfg.KCP.FastResend)
	require.Equal(t, 40, cfg.KCP.MaxRetransmit)
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		KCP: KCPConfig{
			Port:      1234,
			NoDelay:   false,
			Interval:  20,
			FastResend: 5,
		},
	}
	cfg.ApplyDefaults()

	require.Equal(t, 1234, cfg.KCP.Port)
	require.Equal(t, 20, cfg.KCP.Interval)
	require.Equal(t, 5, cfg.KCP.FastResend)
}

func TestValidateRejectsBadPorts(t *testing.T) {
	cfg := &Config{KCP: KCPConfig{Port: 0}}
	cfg.ApplyDefaults()
	cfg.KCP.Port = 0
	require.Error(t, cfg.Validate())

	cfg2 := &Config{}
	cfg2.ApplyDefaults()
	cfg2.HTTP.Port = 70000
	require.Error(t, cfg2.Validate())
}

func TestValidateRejectsNonPositiveIntervalAndTimeout(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.KCP.Interval = 0
	require.Error(t, cfg.Validate())

	cfg2 := &Config{}
	cfg2.ApplyDefaults()
	cfg2.KCP.TimeoutMs = -1
	require.Error(t, cfg2.Validate())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/relayd.yaml")
	require.Error(t, err)
}
