package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yourusername/quantstream/pkg/api"
	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/config"
	"github.com/yourusername/quantstream/pkg/model"
	"github.com/yourusername/quantstream/pkg/series"
	"github.com/yourusername/quantstream/pkg/session"
)

const (
	appName    = "PairStream"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/pairstream.yaml", "Configuration file path")
	envFile    = flag.String("env-file", ".env", "Optional .env file with QS_* overrides")
	logFile    = flag.String("log-file", "", "Log file path (overrides config)")
	baseSymbol = flag.String("base", "", "Base (y) symbol to activate at startup (overrides config)")
	hedgeSym   = flag.String("hedge", "", "Hedge (x) symbol to activate at startup (overrides config)")
	timeframe  = flag.String("timeframe", "", "Timeframe: 1s, 1m, 5m (overrides config)")
	window     = flag.Int("window", 0, "Correlation window size, clamped to [10,200] (overrides config)")
	version    = flag.Bool("version", false, "Print version and exit")
	help       = flag.Bool("help", false, "Print help and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}
	if *help {
		printHelp()
		os.Exit(0)
	}

	printBanner()

	log.Printf("[Main] Loading configuration from: %s", *configFile)
	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}
	if err := applyCommandLineOverrides(cfg); err != nil {
		log.Fatalf("[Main] Invalid command line: %v", err)
	}
	log.Println("[Main] ✓ Configuration loaded successfully")

	if cfg.Logging.File != "" {
		setupFileLogging(cfg.Logging.File)
	}

	var presets []model.Selection
	if cfg.System.PairsFile != "" {
		presets, err = config.ParsePairsFile(cfg.System.PairsFile)
		if err != nil {
			log.Fatalf("[Main] Failed to load pairs file: %v", err)
		}
		log.Printf("[Main] ✓ Loaded %d preset pairs from %s", len(presets), cfg.System.PairsFile)
	}
	symbols := config.SymbolsOf(presets, append(cfg.Symbols, cfg.Pair.BaseSymbol, cfg.Pair.HedgeSymbol)...)

	printConfigSummary(cfg, len(presets))

	// Live channel
	codec, _ := client.ParseCodec(cfg.Live.Codec)
	live, err := client.NewNATSLiveSource(cfg.Live.NATSURL, cfg.Live.SubjectPrefix, codec)
	if err != nil {
		log.Fatalf("[Main] Failed to connect live channel: %v", err)
	}
	defer live.Close()
	log.Printf("[Main] ✓ Live channel connected: %s (%s)", cfg.Live.NATSURL, codec)

	// Historical snapshots
	snapshots := client.NewSnapshotClient(cfg.Snapshot.BaseURL, cfg.Snapshot.Timeout)
	if cfg.Snapshot.RetryCount > 0 {
		snapshots.SetRetry(cfg.Snapshot.RetryCount, cfg.Snapshot.RetryWait)
	}

	// Series fan-out: the hub keeps the store current and pushes to clients.
	store := series.NewStore(cfg.Series.MaxPoints)
	hub := api.NewHub(store)
	hub.Start()

	mgr := session.NewManager(live, snapshots, hub, session.Config{
		PendingLimit: cfg.Live.PendingLimit,
		QueueSize:    cfg.Live.QueueSize,
		FetchTimeout: cfg.Snapshot.Timeout,
	})
	mgr.Start()

	var health *api.HealthServer
	if cfg.GRPC.Enabled {
		health = api.NewHealthServer(fmt.Sprintf("%s:%d", cfg.API.Host, cfg.GRPC.Port))
		mgr.OnStateChange(health.SetState)
		if err := health.Start(); err != nil {
			log.Fatalf("[Main] Failed to start gRPC health service: %v", err)
		}
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(mgr, store, hub, api.Options{
			Host:    cfg.API.Host,
			Port:    cfg.API.Port,
			Symbols: symbols,
			Pairs:   presets,
		})
		if err := server.Start(); err != nil {
			log.Fatalf("[Main] Failed to start API server: %v", err)
		}
	}

	if cfg.Snapshot.RefreshCron != "" {
		if err := mgr.ScheduleReload(cfg.Snapshot.RefreshCron); err != nil {
			log.Fatalf("[Main] Invalid snapshot.refresh_cron: %v", err)
		}
		log.Printf("[Main] ✓ Snapshot refresh scheduled: %s", cfg.Snapshot.RefreshCron)
	}

	if cfg.System.AutoActivate {
		log.Printf("[Main] Activating %s...", cfg.Pair)
		if err := mgr.Activate(context.Background(), cfg.Pair); err != nil {
			// The session stays failed and can be retried over the API.
			log.Printf("[Main] Activation failed: %v", err)
		} else {
			log.Println("[Main] ✓ Session live")
		}
	}

	stopStatus := make(chan struct{})
	go printStatusPeriodically(mgr, live, hub, 30*time.Second, stopStatus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[Main] ════════════════════════════════════════════════════════════")
	log.Println("[Main] PairStream is running. Press Ctrl+C to stop...")
	log.Println("[Main] ════════════════════════════════════════════════════════════")

	sig := <-sigChan
	log.Printf("[Main] Received signal: %v", sig)
	close(stopStatus)

	log.Println("[Main] Shutting down...")
	if server != nil {
		if err := server.Stop(); err != nil {
			log.Printf("[Main] Error stopping API server: %v", err)
		}
	}
	if health != nil {
		health.Stop()
	}
	mgr.Stop()
	hub.Stop()

	log.Println("[Main] ════════════════════════════════════════════════════════════")
	log.Println("[Main] Final Status")
	log.Println("[Main] ════════════════════════════════════════════════════════════")
	printStatus(mgr, live, hub)

	log.Println("[Main] Goodbye!")
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %s v%-47s║\n", appName, appVersion)
	fmt.Println("║  Live Pair Analytics Stream                               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func printHelp() {
	fmt.Printf("Usage: %s [OPTIONS]\n\n", appName)
	fmt.Println("Serves live pair-trading analytics merged onto a historical snapshot.")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Printf("  # Run with default config\n")
	fmt.Printf("  %s --config ./config/pairstream.yaml\n\n", appName)
	fmt.Printf("  # Activate a pair at startup\n")
	fmt.Printf("  %s --base BTCUSDT --hedge ETHUSDT --timeframe 1m --window 50\n\n", appName)
}

func printConfigSummary(cfg *config.Config, presets int) {
	log.Println("[Main] ────────────────────────────────────────────────────────────")
	log.Println("[Main] Configuration Summary")
	log.Println("[Main] ────────────────────────────────────────────────────────────")
	if cfg.Pair.BaseSymbol != "" {
		log.Printf("[Main] Pair:              %s", cfg.Pair)
		log.Printf("[Main] Auto Activate:     %v", cfg.System.AutoActivate)
	}
	log.Printf("[Main] Snapshot URL:      %s (timeout %s)", cfg.Snapshot.BaseURL, cfg.Snapshot.Timeout)
	log.Printf("[Main] Live Channel:      %s %s.* (%s)", cfg.Live.NATSURL, cfg.Live.SubjectPrefix, cfg.Live.Codec)
	log.Printf("[Main] Preset Pairs:      %d", presets)
	if cfg.API.Enabled {
		log.Printf("[Main] API:               %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.GRPC.Enabled {
		log.Printf("[Main] gRPC Health:       :%d", cfg.GRPC.Port)
	}
	log.Println("[Main] ────────────────────────────────────────────────────────────")
}

func setupFileLogging(logFilePath string) {
	logDir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("[Main] Warning: Failed to create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[Main] Warning: Failed to open log file: %v", err)
		return
	}

	log.SetOutput(f)
	log.Printf("[Main] ✓ Logging to file: %s", logFilePath)
}

func printStatus(mgr *session.Manager, live *client.NATSLiveSource, hub *api.Hub) {
	st := mgr.Status()

	log.Printf("[Main] State:          %s", st.State)
	if st.Selection.BaseSymbol != "" {
		log.Printf("[Main] Selection:      %s", st.Selection)
	}
	if st.LastError != "" {
		log.Printf("[Main] Last Error:     %s", st.LastError)
	}
	log.Printf("[Main] Ticks:          %d (stale %d, malformed %d)",
		st.Reconciler.Ticks, st.Reconciler.StaleRejected, st.Reconciler.MalformedSkipped)
	log.Printf("[Main] Points:         %d (correlation %d, degenerate %d)",
		st.Reconciler.Points, st.Reconciler.CorrelationPoints, st.Reconciler.Degenerate)
	log.Printf("[Main] Dropped:        pre-seed %d, leaked %d, undecodable %d",
		st.DroppedPreSeed, st.LeakedTicks, live.DecodeErrors())
	log.Printf("[Main] WS Clients:     %d (dropped slow %d)", hub.Clients(), hub.Dropped())
}

func printStatusPeriodically(mgr *session.Manager, live *client.NATSLiveSource, hub *api.Hub, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if mgr.State() == session.StateIdle {
				continue
			}
			log.Println("[Main] ════════════════════════════════════════════════════════════")
			log.Printf("[Main] Periodic Status Update - %s", time.Now().Format("15:04:05"))
			log.Println("[Main] ────────────────────────────────────────────────────────────")
			printStatus(mgr, live, hub)
			log.Println("[Main] ════════════════════════════════════════════════════════════")
		}
	}
}

// applyCommandLineOverrides applies flag overrides and revalidates.
func applyCommandLineOverrides(cfg *config.Config) error {
	changed := false
	if *baseSymbol != "" {
		cfg.Pair.BaseSymbol = *baseSymbol
		changed = true
	}
	if *hedgeSym != "" {
		cfg.Pair.HedgeSymbol = *hedgeSym
		changed = true
	}
	if *timeframe != "" {
		cfg.Pair.Timeframe = model.Timeframe(*timeframe)
		changed = true
	}
	if *window != 0 {
		cfg.Pair.WindowSize = *window
		changed = true
	}
	if *baseSymbol != "" && *hedgeSym != "" {
		cfg.System.AutoActivate = true
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
		log.Printf("[Main] Log file overridden: %s", *logFile)
	}

	if !changed {
		return nil
	}
	log.Printf("[Main] Pair overridden: %s", cfg.Pair)
	return cfg.Validate()
}
