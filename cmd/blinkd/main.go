package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yuyu-tech02/Blink-counter/internal/config"
	"github.com/yuyu-tech02/Blink-counter/internal/logger"
	"github.com/yuyu-tech02/Blink-counter/internal/metrics"
	"github.com/yuyu-tech02/Blink-counter/internal/recorder"
	"github.com/yuyu-tech02/Blink-counter/internal/session"
	"github.com/yuyu-tech02/Blink-counter/internal/source"
	"github.com/yuyu-tech02/Blink-counter/internal/webmonitor"
	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

var (
	// Command-line flags. Values given here override the config file and
	// the environment.
	configPath = flag.String("config", "blinkd.toml", "TOML config file (optional)")
	envPath    = flag.String("env-file", ".env", "dotenv file with BLINK_* overrides (optional)")
	httpAddr   = flag.String("http", "", "HTTP server address")
	pprofAddr  = flag.String("pprof", "", "pprof server address (disabled when empty)")
	sourceKind = flag.String("source", "", "Frame source: push, synthetic or replay")
	replayPath = flag.String("replay", "", "Score trace for the replay source (JSON lines)")
	autostart  = flag.Bool("autostart", false, "Start a session immediately")
	recordPath = flag.String("record-path", "", "Directory for recorded score traces")
	duration   = flag.Int("duration", 0, "Session duration in seconds (0 = unlimited)")
	window     = flag.Int("window", 0, "Smoothing window in frames")
	threshold  = flag.Float64("threshold", 0, "Blink threshold on the smoothed score")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.Bool("log-color", true, "Enable colored log output")
	logFile    = flag.String("log-file", "", "Also write logs to this file (rotated)")
)

// Daemon wires a frame source, the session controller and the web monitor.
type Daemon struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	cfg        config.Config
	metrics    *metrics.Metrics
	push       *source.Push
	recorder   *recorder.Recorder
	session    *session.Session
	web        *webmonitor.Server
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	var output io.Writer = os.Stderr
	var logCloser io.Closer
	if cfg.LogFile != "" {
		file := logger.RotatingFile(cfg.LogFile)
		output = io.MultiWriter(os.Stderr, file)
		logCloser = file
	}
	logger.Init(level, output, *logColor && cfg.LogFile == "")

	logger.Info("Main", "Blink counter starting...")
	logger.Info("Main", "Log level: %s", level)

	d, err := NewDaemon(cfg)
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Main", "Shutting down...")
	case <-d.ctx.Done():
		logger.Error("Main", "HTTP server failed, shutting down")
	}

	if err := d.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Daemon stopped")
	if logCloser != nil {
		_ = logCloser.Close()
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags that were set explicitly.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return config.Config{}, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Web.Addr = *httpAddr
		case "source":
			cfg.Source = *sourceKind
		case "replay":
			cfg.ReplayPath = *replayPath
			if !isSet("source") {
				cfg.Source = config.SourceReplay
			}
		case "autostart":
			cfg.Autostart = *autostart
		case "record-path":
			cfg.RecordDir = *recordPath
		case "duration":
			cfg.Session.Duration = time.Duration(*duration) * time.Second
		case "window":
			cfg.Detector.SmoothingWindow = *window
		case "threshold":
			cfg.Detector.BlinkThreshold = *threshold
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// NewDaemon creates the daemon components.
func NewDaemon(cfg config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		metrics:  metrics.New(),
		recorder: recorder.NewRecorder(cfg.RecordDir),
	}

	var src source.Source
	switch cfg.Source {
	case config.SourcePush:
		d.push = source.NewPush()
		src = d.push
	case config.SourceSynthetic:
		src = source.NewSynthetic(cfg.Synthetic)
	case config.SourceReplay:
		src = source.NewReplay(cfg.ReplayPath)
	default:
		cancel()
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	sess, err := session.New(cfg.Session, cfg.Detector, src, d.metrics,
		session.WithBlinkHandler(d.onBlink),
		session.WithStatsHandler(d.onStats),
		session.WithFrameHandler(d.onFrame),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	d.session = sess

	// The push source doubles as the ingest publisher; other sources leave
	// the ingest endpoints disabled.
	var publisher webmonitor.Publisher
	if d.push != nil {
		publisher = d.push
	}
	d.web = webmonitor.NewServer(ctx, cfg.Web, sess, publisher, d.metrics,
		webmonitor.WithRecorder(d.recorder),
	)

	d.httpServer = &http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           d.web.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d, nil
}

func (d *Daemon) onBlink(e session.Event) {
	logger.Info("Blink", "Blink #%d (%.0fms)", e.Count, e.DurationMs)
	d.web.OnBlink(e)
}

func (d *Daemon) onFrame(f types.Frame) {
	d.recorder.SendFrame(f)
}

func (d *Daemon) onStats(st session.Status) {
	if !st.Running {
		logger.Info("Session", "Session %s summary: %d blinks, %d/min over %ds (%s)",
			st.ID, st.Stats.BlinkCount, st.Stats.BlinksPerMinute, st.Stats.ElapsedSeconds, st.EndReason)
	}
}

// Start starts the HTTP servers and, if configured, the first session.
func (d *Daemon) Start() error {
	logger.Info("Main", "Starting blink counter...")
	logger.Info("Main", "  Source: %s", d.cfg.Source)
	logger.Info("Main", "  HTTP server: %s", d.cfg.Web.Addr)
	logger.Info("Main", "  Detector: window=%d threshold=%.2f", d.cfg.Detector.SmoothingWindow, d.cfg.Detector.BlinkThreshold)
	logger.Info("Main", "  Session: duration=%v frame interval=%v", d.cfg.Session.Duration, d.cfg.Session.FrameInterval)
	logger.Info("Main", "  Recording path: %s", d.cfg.RecordDir)

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logger.Info("Main", "Starting HTTP server on %s", d.cfg.Web.Addr)
		if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
			d.cancel()
		}
	}()

	if d.cfg.Autostart {
		status, err := d.session.Start(d.ctx, session.StartOptions{})
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		logger.Info("Main", "Session %s started (duration=%ds)", status.ID, status.DurationSeconds)
	}

	logger.Info("Main", "Daemon started successfully")
	return nil
}

// Shutdown gracefully shuts down the daemon.
func (d *Daemon) Shutdown() error {
	// Stop the session first so its final status is logged.
	d.session.Stop()
	if err := d.recorder.Close(); err != nil {
		logger.Warn("Main", "Failed to finish recording: %v", err)
	}
	d.web.Close()
	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.httpServer.Shutdown(ctx)
	d.wg.Wait()
	return err
}
