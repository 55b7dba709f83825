package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/assets"
	"github.com/pscheid92/tilecast/internal/capture"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/platform/config"
	"github.com/pscheid92/tilecast/internal/platform/logging"
	"github.com/pscheid92/tilecast/internal/platform/version"
	"github.com/pscheid92/tilecast/internal/viewer"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

const help = "commands: p = toggle picture-in-picture, r = reconnect now, q = quit"

func setupConfig() *config.Viewer {
	cfg, err := config.LoadViewer()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSettings(cfg *config.Viewer) viewer.Settings {
	path := cfg.SettingsPath
	if path == "" {
		var err error
		if path, err = viewer.DefaultSettingsPath(); err != nil {
			slog.Error("Failed to resolve settings path", "error", err)
			os.Exit(1)
		}
	}

	settings, err := viewer.LoadSettings(path)
	if err != nil {
		slog.Error("Failed to load settings", "path", path, "error", err)
		os.Exit(1)
	}
	settings.Override(cfg.Protocol, cfg.Backend, cfg.Theme)
	if err := settings.Validate(); err != nil {
		slog.Error("Invalid viewer settings", "error", err)
		os.Exit(1)
	}
	if err := settings.Save(path); err != nil {
		slog.Warn("Failed to persist settings", "path", path, "error", err)
	}
	return settings
}

// readLines feeds stdin into lines until EOF, then closes it.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	settings := setupSettings(cfg)
	systemTheme := domain.ParseTheme(cfg.SystemTheme)
	slog.Info("Viewer starting",
		"protocol", settings.Protocol,
		"backend", settings.BackendAddress,
		"client_id", settings.ClientID,
		"version", version.Get().Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	captureMetrics := metrics.NewCaptureMetrics(registry)

	guard := capture.NewGuard()
	defer guard.Close()

	probe := capture.NewMemoryProbe(cfg.MemoryLimit)
	tiles := assets.NewLoader(cfg.AssetsDir, assets.WithMetrics(metrics.NewAssetCacheMetrics(registry)))

	bridge := capture.NewBridge(capture.NewPainter(tiles), capture.BridgeOptions{
		Guard:      guard,
		Probe:      probe,
		MemoryWarn: cfg.MemoryWarn,
		Metrics:    captureMetrics,
		Clock:      clock,
		OnHealth: func(h capture.Health) {
			switch {
			case h.RenderWarning:
				fmt.Fprintln(os.Stderr, color.YellowString("⚠ rendering keeps failing, showing the last good frame"))
			case h.MemoryWarning:
				fmt.Fprintln(os.Stderr, color.YellowString("⚠ memory usage at %.0f%%", h.MemoryRatio*100))
			}
		},
	})
	guard.Own("bridge", bridge.Close)
	bridge.Update(capture.NewSurface(nil, settings.Theme, systemTheme))

	sink := capture.NewSink(captureMetrics)
	sinkServer := capture.NewSinkServer(cfg.SinkAddr, sink)
	sinkServer.HandleMetrics(metrics.Handler(registry))
	if err := sinkServer.Listen(); err != nil {
		slog.Error("Failed to bind video sink", "error", err)
		os.Exit(1)
	}
	guard.Own("sink-server", func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sinkServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Video sink shutdown error", "error", err)
		}
	})

	track := capture.NewTrack(bridge, sink, clock, cfg.FPS)
	track.Start()
	guard.Own("track", track.Stop)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	presenter := capture.NewPresenter(sink, track, capture.PresenterOptions{
		Command:      cfg.PiPCommand,
		StreamURL:    sinkServer.StreamURL(),
		Probe:        probe,
		ConfirmAbove: cfg.MemoryConfirm,
		Confirmer:    capture.NewLineConfirmer(lines, os.Stdout),
	})
	guard.Own("presenter", presenter.Stop)

	statusLine := viewer.NewStatusLine(os.Stdout)
	dialer := viewer.NewDialer(settings, viewer.DialerOptions{PollInterval: cfg.PollInterval, Clock: clock})
	manager := viewer.NewManager(viewer.Options{
		ClientID:       settings.ClientID,
		Dialer:         dialer,
		Clock:          clock,
		BackoffFloor:   cfg.BackoffFloor,
		BackoffCeiling: cfg.BackoffCeiling,
		Metrics:        metrics.NewViewerMetrics(registry),
		OnStatus:       statusLine.Show,
		OnPayload: func(p domain.Payload) {
			bridge.Update(capture.NewSurface(&p, settings.Theme, systemTheme))
		},
	})
	guard.Own("manager", manager.Close)

	fmt.Println(help)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(sinkServer.Serve)

	g.Go(func() error {
		manager.Start()
		select {
		case <-gctx.Done():
		case <-manager.Done():
		}
		return nil
	})

	g.Go(func() error {
		return runCommands(gctx, lines, presenter, manager)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down viewer...")
		guard.Close()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, errQuit) {
		slog.Error("Viewer stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Viewer stopped")
}

var errQuit = errors.New("quit requested")

func runCommands(ctx context.Context, lines <-chan string, presenter *capture.Presenter, manager *viewer.Manager) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep running until a signal arrives
				lines = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "p":
				togglePresenter(ctx, presenter)
			case "r":
				manager.Reconnect()
			case "q":
				return errQuit
			case "":
			default:
				fmt.Println(help)
			}
		}
	}
}

func togglePresenter(ctx context.Context, presenter *capture.Presenter) {
	showing, err := presenter.Toggle(ctx)
	var pe *capture.PresentationError
	switch {
	case errors.As(err, &pe):
		fmt.Fprintln(os.Stderr, color.RedString("%s", pe.Message()))
		slog.Warn("Picture-in-picture unavailable", "reason", pe.Reason, "error", pe.Err)
	case errors.Is(err, capture.ErrDeclined):
		fmt.Println("Picture-in-picture cancelled.")
	case err != nil:
		slog.Error("Picture-in-picture failed", "error", err)
	case showing:
		fmt.Println(color.GreenString("Picture-in-picture on."))
	default:
		fmt.Println("Picture-in-picture off.")
	}
}
