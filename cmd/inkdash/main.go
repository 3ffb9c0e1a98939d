package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/inkdash/internal/canvas"
	"github.com/openclaw/inkdash/internal/eink"
	"github.com/openclaw/inkdash/internal/gateway"
	"github.com/openclaw/inkdash/internal/power"
	"github.com/openclaw/inkdash/internal/tailnet"
)

const (
	longPress        = 3 * time.Second
	tailnetUpTimeout = 30 * time.Second
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	var o overrides
	flag.StringVar(&o.gateway, "gateway", "", "gateway hostname")
	flag.IntVar(&o.gatewayPort, "gateway-port", 0, "gateway port")
	flag.BoolVar(&o.gatewayTLS, "gateway-tls", false, "use TLS for gateway")
	flag.StringVar(&o.gatewayPath, "gateway-path", "", "gateway websocket path")
	flag.StringVar(&o.name, "name", "", "node name")
	flag.StringVar(&o.stateDir, "state-dir", "", "tsnet state directory")
	flag.StringVar(&o.touchDevice, "touch-device", "", "touch input device path")
	flag.StringVar(&o.framebuffer, "framebuffer", "", "framebuffer device path")
	flag.StringVar(&o.logLevel, "log-level", "", "log level")
	flag.DurationVar(&o.idleTimeout, "idle-timeout", 0, "suspend after this long without activity (0 disables)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, o)
	if err := finalize(&cfg, *cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fb, err := eink.Open(cfg.Framebuffer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open framebuffer")
	}
	defer func() {
		_ = fb.Close()
	}()
	log.Info().Str("id", fb.ID).Int("width", fb.Width).Int("height", fb.Height).Msg("framebuffer ready")

	refresher := eink.NewRefresher(fb, fb.Width, fb.Height, log.Logger)
	renderer := canvas.NewRenderer(fb.Gray(), refresher)

	tail := tailnet.New(tailnet.Config{
		Hostname:  cfg.Name,
		StateDir:  cfg.StateDir,
		AuthKey:   cfg.AuthKey,
		Ephemeral: cfg.Ephemeral,
		Logger:    log.Logger,
	})
	defer func() {
		_ = tail.Close()
	}()
	upCtx, upCancel := context.WithTimeout(ctx, tailnetUpTimeout)
	if err := tail.Up(upCtx); err != nil {
		log.Warn().Err(err).Msg("tailnet not up yet, gateway dial will retry")
	}
	upCancel()

	pm := &power.Manager{
		IdleTimeout: cfg.IdleTimeout,
		Enabled:     true,
		Logger:      log.Logger.With().Str("component", "power").Logger(),
	}
	// The banner waits for its refresh so the suspend cannot cut the
	// waveform short.
	banner := canvas.NewBanner(renderer, "sleeping")
	pm.BeforeSuspend = func() { banner.Show() }
	pm.AfterResume = banner.Hide

	var handler *canvas.Handler
	client := gateway.New(gateway.Config{
		URL:    gatewayURL(cfg.GatewayTLS, cfg.Gateway, cfg.GatewayPort, cfg.GatewayPath),
		Header: http.Header{"User-Agent": {userAgent(cfg)}},
		Dialer: tail.DialContext,
		Logger: log.Logger.With().Str("component", "gateway").Logger(),
		Register: gateway.DefaultRegistration(cfg.Name, &gateway.PanelInfo{
			Width:  fb.Width,
			Height: fb.Height,
			ID:     fb.ID,
		}),
		OnInvoke: func(ctx context.Context, req gateway.InvokeRequestParams) (interface{}, error) {
			release := pm.Hold()
			defer release()
			defer pm.ResetIdle()
			return handler.HandleInvokeRequest(ctx, canvas.InvokeRequest{Command: req.Command, Args: req.Args})
		},
	})
	handler = canvas.NewHandler(renderer, client, log.Logger)
	handler.Clear()

	if cfg.Touch.Device != "" {
		go startTouchLoop(ctx, cfg.Touch, fb, handler, pm, log.Logger, cancel)
	}
	go func() {
		if err := pm.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("power manager stopped")
		}
	}()

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("gateway client exited")
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		log.Logger = log.Level(parsed)
	}
}

func startTouchLoop(ctx context.Context, tc TouchConfig, fb *eink.Framebuffer, handler *canvas.Handler, pm *power.Manager, logger zerolog.Logger, cancel context.CancelFunc) {
	input, err := eink.OpenInputDevice(tc.Device, tc.Transform(fb.Width, fb.Height))
	if err != nil {
		logger.Warn().Err(err).Str("device", tc.Device).Msg("failed to open touch device")
		return
	}
	defer func() {
		_ = input.Close()
	}()
	touchCh, powerCh, errCh := input.ReadEvents()

	var powerDownAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case touch, ok := <-touchCh:
			if !ok {
				return
			}
			pm.ResetIdle()
			if touch.Down {
				handler.HandleTouch(ctx, touch.X, touch.Y)
			}
		case press, ok := <-powerCh:
			if !ok {
				return
			}
			if press.Pressed {
				powerDownAt = press.At
				continue
			}
			if powerDownAt.IsZero() {
				continue
			}
			held := press.At.Sub(powerDownAt)
			powerDownAt = time.Time{}
			if held >= longPress {
				logger.Info().Msg("power long press: exiting")
				cancel()
				return
			}
			if err := pm.Suspend(); err != nil {
				logger.Warn().Err(err).Msg("failed to suspend")
			}
		case err, ok := <-errCh:
			if ok {
				logger.Warn().Err(err).Msg("input error")
			}
			return
		}
	}
}
