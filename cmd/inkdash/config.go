package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/inkdash/internal/eink"
)

type FileConfig struct {
	Gateway       string        `yaml:"gateway"`
	GatewayPort   int           `yaml:"gateway_port,omitempty"`
	GatewayTLS    bool          `yaml:"gateway_tls,omitempty"`
	GatewayPath   string        `yaml:"gateway_path,omitempty"`
	Name          string        `yaml:"name"`
	StateDir      string        `yaml:"state_dir,omitempty"`
	AuthKey       string        `yaml:"auth_key,omitempty"`
	Ephemeral     bool          `yaml:"ephemeral,omitempty"`
	Framebuffer   string        `yaml:"framebuffer,omitempty"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	HTTPUserAgent string        `yaml:"http_user_agent,omitempty"`
	IdleTimeout   time.Duration `yaml:"idle_timeout,omitempty"`
	Touch         TouchConfig   `yaml:"touch,omitempty"`
}

type TouchConfig struct {
	Device  string `yaml:"device,omitempty"`
	SwapXY  bool   `yaml:"swap_xy,omitempty"`
	MirrorX bool   `yaml:"mirror_x,omitempty"`
	MirrorY bool   `yaml:"mirror_y,omitempty"`
}

// Transform builds the digitizer mapping for a panel of the given size.
func (t TouchConfig) Transform(width, height int) eink.TouchTransform {
	return eink.TouchTransform{
		SwapXY:  t.SwapXY,
		MirrorX: t.MirrorX,
		MirrorY: t.MirrorY,
		Width:   width,
		Height:  height,
	}
}

type overrides struct {
	gateway     string
	gatewayPort int
	gatewayTLS  bool
	gatewayPath string
	name        string
	stateDir    string
	touchDevice string
	framebuffer string
	logLevel    string
	idleTimeout time.Duration
}

// loadConfig reads path. A missing file yields an empty config so the
// node can run from flags alone.
func loadConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return FileConfig{}, errors.Wrapf(err, "%s: parse yaml", path)
	}
	return cfg, nil
}

func applyOverrides(cfg *FileConfig, o overrides) {
	if o.gateway != "" {
		cfg.Gateway = o.gateway
	}
	if o.gatewayPort != 0 {
		cfg.GatewayPort = o.gatewayPort
	}
	if o.gatewayPath != "" {
		cfg.GatewayPath = o.gatewayPath
	}
	if o.name != "" {
		cfg.Name = o.name
	}
	if o.stateDir != "" {
		cfg.StateDir = o.stateDir
	}
	if o.touchDevice != "" {
		cfg.Touch.Device = o.touchDevice
	}
	if o.framebuffer != "" {
		cfg.Framebuffer = o.framebuffer
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.idleTimeout != 0 {
		cfg.IdleTimeout = o.idleTimeout
	}
	cfg.GatewayTLS = o.gatewayTLS || cfg.GatewayTLS
}

// finalize fills defaults and checks required fields.
func finalize(cfg *FileConfig, configPath string) error {
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(filepath.Dir(configPath), "tsnet-state")
	}
	if cfg.GatewayPath == "" {
		cfg.GatewayPath = "/ws"
	}
	if cfg.GatewayPort == 0 {
		cfg.GatewayPort = 80
		if cfg.GatewayTLS {
			cfg.GatewayPort = 443
		}
	}
	if cfg.Framebuffer == "" {
		cfg.Framebuffer = "/dev/fb0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IdleTimeout < 0 {
		return errors.New("idle_timeout must not be negative")
	}
	if cfg.Name == "" {
		return errors.New("config requires name")
	}
	if cfg.Gateway == "" {
		return errors.New("config requires gateway")
	}
	return nil
}

func gatewayURL(tls bool, host string, port int, path string) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, path)
}

func userAgent(cfg FileConfig) string {
	if cfg.HTTPUserAgent != "" {
		return cfg.HTTPUserAgent
	}
	return "inkdash/0.1"
}
