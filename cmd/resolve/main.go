package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"quotedesk/internal/config"
	"quotedesk/internal/logging"
	"quotedesk/internal/market"
	"quotedesk/internal/resolve"
)

// One-shot resolver: prints the snapshot map for the configured (or
// selected) instruments as JSON and exits non-zero only on setup failure.
// Data-plane degradation lives inside the snapshots.
func main() {
	var cfgPath string
	var names string
	var timeout time.Duration
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml (optional)")
	flag.StringVar(&names, "instruments", "", "comma-separated instrument names (default: all configured)")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the batch")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	if names != "" {
		selected, err := filterInstruments(cfg.Instruments, names)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg.Instruments = selected
	}

	svc, err := resolve.NewService(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build resolver: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	quotes, rateLimited := svc.ResolveAll(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"rate_limited": rateLimited, "quotes": quotes}); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func filterInstruments(all []market.Instrument, csv string) ([]market.Instrument, error) {
	byName := make(map[string]market.Instrument, len(all))
	for _, inst := range all {
		byName[inst.Name] = inst
	}
	var out []market.Instrument
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		inst, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown instrument %q", name)
		}
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no instruments selected")
	}
	return out, nil
}
