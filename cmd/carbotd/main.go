// Command carbotd is the in-vehicle voice front end daemon: it monitors for
// the wake phrase, synthesizes assistant speech through tiered providers,
// and ducks competing audio while speaking.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/bus"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/duck"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/health"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/natsserver"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/observe"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/orchestrator"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/synth"
	"github.com/bluehawana/carbot-js-ai-sub001/internal/wake"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/audio/alsa"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts/elevenlabs"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/tts/piper"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine"
	"github.com/bluehawana/carbot-js-ai-sub001/pkg/provider/wakeengine/spotter"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "carbotd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "carbotd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("carbotd starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "carbot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Event bus ─────────────────────────────────────────────────────────────
	busCfg := cfg.Bus
	var embedded *natsserver.EmbeddedServer
	if busCfg.Embedded {
		embedded, err = natsserver.Start(logger)
		if err != nil {
			slog.Error("failed to start embedded NATS server", "err", err)
			return 1
		}
		busCfg.URL = embedded.ClientURL()
	}
	busClient, err := bus.Connect(busCfg, logger)
	if err != nil {
		slog.Error("failed to connect to NATS", "err", err)
		embedded.Shutdown()
		return 1
	}

	// ── Synthesis providers ───────────────────────────────────────────────────
	primary, local, err := buildTTSProviders(cfg)
	if err != nil {
		slog.Error("failed to build TTS providers", "err", err)
		return 1
	}
	synthSvc := synth.New(cfg.Synth, primary, local, metrics, logger)
	synthSvc.Pregenerate(ctx, cfg.Synth.PregeneratedPhrases, "greeting")

	// ── Audio output + ducking ────────────────────────────────────────────────
	outputBus := alsa.New()
	coordinator := duck.NewCoordinator(cfg.Ducking, outputBus, outputBus, nil, busClient, metrics, logger)

	// ── Wake monitor ──────────────────────────────────────────────────────────
	engine, frames, err := buildWakeEngine(ctx, cfg, busClient)
	if err != nil {
		slog.Error("failed to build wake engine", "err", err)
		return 1
	}
	monitor := wake.NewMonitor(cfg.Wake, engine, frames, busClient, metrics, logger)

	// ── Orchestrator ──────────────────────────────────────────────────────────
	responder := orchestrator.NewBusResponder(busClient)
	orch := orchestrator.New(monitor, synthSvc, coordinator, responder, busClient, logger)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, primary, local, engine)

	if err := orch.Start(ctx); err != nil {
		slog.Error("failed to start orchestrator", "err", err)
		return 1
	}

	// ── Diagnostics HTTP server ───────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "bus", Check: func(context.Context) error {
			if !busClient.Healthy() {
				return errors.New("NATS connection down")
			}
			return nil
		}},
		health.Checker{Name: "synth", Check: func(context.Context) error {
			if primary == nil && local == nil {
				return errors.New("no synthesis providers configured")
			}
			return nil
		}},
	).WithStatus(func() any {
		return orch.StatusSnapshot()
	}).Register(mux)

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	slog.Info("carbotd ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		slog.Error("diagnostics server error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	orch.Stop()
	coordinator.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("diagnostics server shutdown error", "err", err)
	}
	busClient.Close()
	embedded.Shutdown()
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTTSProviders constructs the primary and local synthesis backends from
// the configured provider entries. Either may be absent; the synthesis
// service degrades to the tiers that remain.
func buildTTSProviders(cfg *config.Config) (primary, local tts.Provider, err error) {
	primary, err = buildTTSProvider(cfg.Synth.Primary)
	if err != nil {
		return nil, nil, fmt.Errorf("primary: %w", err)
	}
	local, err = buildTTSProvider(cfg.Synth.Local)
	if err != nil {
		return nil, nil, fmt.Errorf("local: %w", err)
	}
	if primary == nil && local == nil {
		return nil, nil, errors.New("no synthesis providers configured")
	}
	return primary, local, nil
}

func buildTTSProvider(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "":
		return nil, nil
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	case "piper":
		return piper.New(entry.Model)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", entry.Name)
	}
}

// buildWakeEngine constructs the keyword-spotting engine and its microphone
// capture stream. In simulated mode both are nil. In auto mode a capture
// failure (no microphone, no alsa-utils) logs a warning and leaves the
// engine unset so the monitor falls back to simulated triggering; in engine
// mode it is fatal.
//
// Candidate utterances are decoded by the speech-to-text collaborator over
// the bus: the spotter's acoustic-only scoring tops out below the default
// detection threshold, so without a transcriber the engine path can never
// produce a confident detection.
func buildWakeEngine(ctx context.Context, cfg *config.Config, busClient *bus.Client) (wakeengine.Engine, <-chan audio.Frame, error) {
	if cfg.Wake.Mode == config.TriggerSimulated {
		return nil, nil, nil
	}

	frames, err := alsa.NewCapture("", cfg.Wake.SampleRate).Start(ctx)
	if err != nil {
		if cfg.Wake.Mode == config.TriggerEngine {
			return nil, nil, fmt.Errorf("microphone capture: %w", err)
		}
		slog.Warn("microphone capture unavailable, falling back to simulated triggers", "err", err)
		return nil, nil, nil
	}
	return spotter.New(wake.NewBusTranscriber(busClient)), frames, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, primary, local tts.Provider, engine wakeengine.Engine) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          carbot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wake mode", string(cfg.Wake.Mode))
	printRow("Wake phrase", cfg.Wake.Phrase)
	if engine != nil {
		printRow("Wake engine", "keyword spotter")
	} else {
		printRow("Wake engine", "(simulated)")
	}
	printRow("Primary TTS", providerName(primary, cfg.Synth.Primary.Model))
	printRow("Local TTS", providerName(local, cfg.Synth.Local.Model))
	if cfg.Bus.Embedded {
		printRow("Bus", "embedded NATS")
	} else {
		printRow("Bus", cfg.Bus.URL)
	}
	printRow("Pregen phrases", fmt.Sprintf("%d", len(cfg.Synth.PregeneratedPhrases)))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerName(p tts.Provider, model string) string {
	if p == nil {
		return "(not configured)"
	}
	if model != "" {
		return p.Name() + " / " + model
	}
	return p.Name()
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
