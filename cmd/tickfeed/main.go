package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/quantstream/pkg/client"
	"github.com/yourusername/quantstream/pkg/config"
	"github.com/yourusername/quantstream/pkg/feed"
	"github.com/yourusername/quantstream/pkg/model"
)

var (
	configFile = flag.String("config", "./config/pairstream.yaml", "Configuration file path")
	envFile    = flag.String("env-file", ".env", "Optional .env file with QS_* overrides")
	baseSymbol = flag.String("base", "", "Base (y) symbol (overrides config pair)")
	hedgeSym   = flag.String("hedge", "", "Hedge (x) symbol (overrides config pair)")
	interval   = flag.Duration("interval", 0, "Publish interval (overrides feed.interval)")
	count      = flag.Int("count", 0, "Stop after this many ticks (0 = run until interrupted)")
	seed       = flag.Int64("seed", 0, "Random seed (overrides feed.seed)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("[TickFeed] Failed to load config: %v", err)
	}

	sel := cfg.Pair
	if *baseSymbol != "" {
		sel.BaseSymbol = *baseSymbol
	}
	if *hedgeSym != "" {
		sel.HedgeSymbol = *hedgeSym
	}
	sel = sel.Normalize()
	if err := sel.Validate(); err != nil {
		log.Fatalf("[TickFeed] %v (set pair in config or use --base/--hedge)", err)
	}

	every := cfg.Feed.Interval
	if *interval > 0 {
		every = *interval
	}
	feedCfg := feed.Config{
		BasePrice:  cfg.Feed.BasePrice,
		HedgePrice: cfg.Feed.HedgePrice,
		Volatility: cfg.Feed.Volatility,
		Warmup:     cfg.Feed.Warmup,
		Seed:       cfg.Feed.Seed,
	}
	if *seed != 0 {
		feedCfg.Seed = *seed
	}

	codec, _ := client.ParseCodec(cfg.Live.Codec)
	pub, err := client.NewNATSPublisher(cfg.Live.NATSURL, cfg.Live.SubjectPrefix, codec)
	if err != nil {
		log.Fatalf("[TickFeed] Failed to connect: %v", err)
	}
	defer pub.Close()

	gen := feed.NewGenerator(feedCfg)
	fit := gen.Fit()
	log.Printf("[TickFeed] %s -> %s every %s (%s)", sel.Pair(), client.Subject(cfg.Live.SubjectPrefix, sel), every, codec)
	log.Printf("[TickFeed] Fit over %d samples: y = %.4f + %.6f·x, spread mean %.4f std %.4f",
		feedCfg.Warmup, fit.Intercept, fit.Slope, fit.SpreadMean, fit.SpreadStd)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.Printf("[TickFeed] Received signal: %v", sig)
			report(pub)
			return
		case now := <-ticker.C:
			if err := publish(pub, sel, gen.Next(now)); err != nil {
				log.Printf("[TickFeed] Publish failed: %v", err)
				continue
			}
			if *count > 0 && gen.Issued() >= int64(*count) {
				report(pub)
				return
			}
		}
	}
}

func publish(pub *client.NATSPublisher, sel model.Selection, tick model.LiveTick) error {
	if err := pub.Publish(sel, tick); err != nil {
		return fmt.Errorf("tick at %s: %w", tick.Time.Format(time.RFC3339Nano), err)
	}
	return nil
}

func report(pub *client.NATSPublisher) {
	log.Printf("[TickFeed] Published %d ticks", pub.Published())
}
