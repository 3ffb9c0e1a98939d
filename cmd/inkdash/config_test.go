package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/inkdash/internal/eink"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
gateway: gw.tail
name: kitchen
gateway_tls: true
idle_timeout: 10m
touch:
  device: /dev/input/event1
  swap_xy: true
  mirror_x: true
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gw.tail", cfg.Gateway)
	assert.Equal(t, "kitchen", cfg.Name)
	assert.True(t, cfg.GatewayTLS)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "/dev/input/event1", cfg.Touch.Device)
	assert.Equal(t, eink.TouchTransform{SwapXY: true, MirrorX: true, Width: 1072, Height: 1448}, cfg.Touch.Transform(1072, 1448))
}

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, FileConfig{}, cfg)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, FileConfig{}, cfg)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "gateway: gw\nrefresh_rate: 60\n"))
	assert.Error(t, err)
}

func TestApplyOverridesAndFinalize(t *testing.T) {
	cfg := FileConfig{Gateway: "from-file", Name: "file-name", Touch: TouchConfig{SwapXY: true}}
	applyOverrides(&cfg, overrides{
		gateway:     "from-flag",
		touchDevice: "/dev/input/event2",
		idleTimeout: time.Minute,
		gatewayTLS:  true,
	})
	require.NoError(t, finalize(&cfg, "/etc/inkdash/config.yaml"))

	assert.Equal(t, "from-flag", cfg.Gateway)
	assert.Equal(t, "file-name", cfg.Name)
	assert.Equal(t, "/dev/input/event2", cfg.Touch.Device)
	assert.True(t, cfg.Touch.SwapXY)
	assert.Equal(t, time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 443, cfg.GatewayPort)
	assert.Equal(t, "/ws", cfg.GatewayPath)
	assert.Equal(t, "/dev/fb0", cfg.Framebuffer)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/etc/inkdash/tsnet-state", cfg.StateDir)
	assert.Equal(t, "wss://from-flag:443/ws", gatewayURL(cfg.GatewayTLS, cfg.Gateway, cfg.GatewayPort, cfg.GatewayPath))
}

func TestFinalizeRequiresNameAndGateway(t *testing.T) {
	assert.Error(t, finalize(&FileConfig{Gateway: "gw"}, "config.yaml"))
	assert.Error(t, finalize(&FileConfig{Name: "n"}, "config.yaml"))
	assert.Error(t, finalize(&FileConfig{Name: "n", Gateway: "gw", IdleTimeout: -time.Second}, "config.yaml"))

	cfg := FileConfig{Name: "n", Gateway: "gw"}
	require.NoError(t, finalize(&cfg, "config.yaml"))
	assert.Equal(t, 80, cfg.GatewayPort)
	assert.Equal(t, "inkdash/0.1", userAgent(cfg))
}
