package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"quotedesk/internal/market"
	"quotedesk/internal/session"
)

// Duration parses YAML durations in time.ParseDuration form ("90s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Server struct {
	Port            int      `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

type Retry struct {
	MaxRetries  int      `yaml:"max_retries" default:"2" validate:"min=0,max=10"`
	Backoff     Duration `yaml:"backoff"`
	MinInterval Duration `yaml:"min_interval"` // gap between upstream calls, 0 disables pacing
}

// Plan is the YAML shape of one tier plan.
type Plan struct {
	TTL   Duration      `yaml:"ttl"`
	Tiers []market.Tier `yaml:"tiers" validate:"min=1,dive"`
}

// TierPlan converts a Plan into the domain form used by the cache.
func (p Plan) TierPlan(class string) market.TierPlan {
	return market.TierPlan{Class: class, TTL: p.TTL.Std(), Tiers: p.Tiers}
}

// Fallback orders for the step after a failed intraday attempt.
const (
	FallbackDailyFirst = "daily-first"
	FallbackQuoteFirst = "quote-first"
)

type Resolver struct {
	ReferenceTimezone string `yaml:"reference_timezone" default:"Asia/Tokyo"`
	MaxConcurrency    int    `yaml:"max_concurrency" default:"4" validate:"min=1"`
	AbortOnRateLimit  *bool  `yaml:"abort_on_rate_limit"`
	Fallback          string `yaml:"fallback" default:"daily-first" validate:"oneof=daily-first quote-first"`
	Retry             Retry  `yaml:"retry"`
	Intraday          Plan   `yaml:"intraday"`
	Daily             Plan   `yaml:"daily"`
}

type Config struct {
	Server      Server                    `yaml:"server"`
	Log         Log                       `yaml:"log"`
	RefreshCron string                    `yaml:"refresh_cron"`
	Resolver    Resolver                  `yaml:"resolver"`
	Sessions    map[string]session.Config `yaml:"sessions" validate:"dive"`
	Instruments []market.Instrument       `yaml:"instruments" validate:"min=1,dive"`
}

var validate = validator.New()

// Load reads YAML config from path. An empty path or a missing file yields
// the built-in defaults (the original dashboard's target set). Environment
// variables override select fields afterwards.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	applyFallbacks(cfg)
	applyEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyFallbacks fills the values the defaults library cannot express:
// durations, tier lists, session windows and the instrument set.
func applyFallbacks(cfg *Config) {
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(5 * time.Second)
	}
	if cfg.RefreshCron == "" {
		cfg.RefreshCron = "@every 2m"
	}
	if cfg.Resolver.Retry.Backoff == 0 {
		cfg.Resolver.Retry.Backoff = Duration(time.Second)
	}
	if cfg.Resolver.AbortOnRateLimit == nil {
		t := true
		cfg.Resolver.AbortOnRateLimit = &t
	}
	if cfg.Resolver.Intraday.TTL == 0 {
		cfg.Resolver.Intraday.TTL = Duration(60 * time.Second)
	}
	if len(cfg.Resolver.Intraday.Tiers) == 0 {
		cfg.Resolver.Intraday.Tiers = []market.Tier{
			{Range: "1d", Interval: "1m", MinPoints: 10},
			{Range: "1d", Interval: "2m", MinPoints: 10},
			{Range: "1d", Interval: "5m", MinPoints: 10},
			{Range: "5d", Interval: "15m", MinPoints: 10},
		}
	}
	if cfg.Resolver.Daily.TTL == 0 {
		cfg.Resolver.Daily.TTL = Duration(300 * time.Second)
	}
	if len(cfg.Resolver.Daily.Tiers) == 0 {
		cfg.Resolver.Daily.Tiers = []market.Tier{
			{Range: "1mo", Interval: "1d", MinPoints: 2},
		}
	}
	if len(cfg.Sessions) == 0 {
		cfg.Sessions = map[string]session.Config{
			"JP": {
				Timezone: "Asia/Tokyo",
				Windows: []session.Window{
					{Open: "09:00", Close: "11:30"},
					{Open: "12:30", Close: "15:30"},
				},
			},
		}
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = defaultInstruments()
	}
	for i := range cfg.Instruments {
		if cfg.Instruments[i].Basis == "" {
			cfg.Instruments[i].Basis = market.PolicyPrevClose
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// defaultInstruments is the dashboards' classic watch list: regional equity
// indices plus dollar-yen.
func defaultInstruments() []market.Instrument {
	return []market.Instrument{
		{Name: "Nikkei 225", Region: "JP", Candidates: []string{"^N225"}, Basis: market.PolicySessionOpen},
		{Name: "Nikkei 225 CFD", Region: "JP", Candidates: []string{"JPN225", "JP225", "^JP225"}, Basis: market.PolicySessionOpen},
		{Name: "Nikkei 225 Futures", Region: "JP", Candidates: []string{"MNI=F", "NIY=F", "NKD=F"}, Basis: market.PolicySessionOpen},
		{Name: "TOPIX", Region: "JP", Candidates: []string{"998405.T"}, Basis: market.PolicySessionOpen},
		{Name: "TSE Growth 250 (ETF)", Region: "JP", Candidates: []string{"2516.T"}, Basis: market.PolicySessionOpen},
		{Name: "Dow Jones", Region: "US", Candidates: []string{"^DJI"}},
		{Name: "NASDAQ Composite", Region: "US", Candidates: []string{"^IXIC"}},
		{Name: "S&P 500", Region: "US", Candidates: []string{"^GSPC"}},
		{Name: "PHLX Semiconductor", Region: "US", Candidates: []string{"^SOX"}},
		{Name: "NYSE FANG+", Region: "US", Candidates: []string{"^NYFANG"}},
		{Name: "FTSE 100", Region: "EU", Candidates: []string{"^FTSE"}},
		{Name: "DAX", Region: "EU", Candidates: []string{"^GDAXI"}},
		{Name: "CAC 40", Region: "EU", Candidates: []string{"^FCHI"}},
		{Name: "Hang Seng", Region: "ASIA", Candidates: []string{"^HSI"}},
		{Name: "Shanghai Composite", Region: "ASIA", Candidates: []string{"000001.SS"}},
		{Name: "NIFTY 50", Region: "ASIA", Candidates: []string{"^NSEI"}},
		{Name: "USD/JPY", Region: "FX", Candidates: []string{"USDJPY=X"}},
	}
}
