// Package config handles flag-based configuration loading for the proxy
// server, with an optional YAML overlay file for checked-in ops defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func parseCronForValidation(schedule string) (cron.Schedule, error) {
	return cronParser.Parse(schedule)
}

// Config holds the proxy server's startup settings.
type Config struct {
	ListenAddress string `yaml:"listen_address"`
	CacheDir      string `yaml:"cache_dir"`

	JanitorEnabled  bool     `yaml:"janitor_enabled"`
	JanitorSchedule string   `yaml:"janitor_schedule"`
	JanitorMaxAge   Duration `yaml:"janitor_max_age"`

	StoreEnabled bool `yaml:"store_enabled"`
}

func defaults() Config {
	return Config{
		ListenAddress:   "127.0.0.1:8080",
		CacheDir:        "./bodycache",
		JanitorEnabled:  false,
		JanitorSchedule: "0 3 * * *",
		JanitorMaxAge:   Duration(7 * 24 * time.Hour),
		StoreEnabled:    false,
	}
}

// Load parses args (typically os.Args[1:]) into a validated Config. A
// -config flag names an optional YAML file whose values are applied before
// flag overrides: collect defaults, overlay the file, apply explicit flags,
// validate, and return one aggregate error.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	fs := flag.NewFlagSet("proxyserver", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file overlaying the defaults below")
	fs.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "ip:port to bind")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for req-<uuid>/resp-<uuid> body cache files")
	fs.BoolVar(&cfg.JanitorEnabled, "janitor", cfg.JanitorEnabled, "enable the body cache cleanup janitor")
	fs.StringVar(&cfg.JanitorSchedule, "janitor-schedule", cfg.JanitorSchedule, "cron schedule for the body cache janitor")
	janitorMaxAge := fs.Duration("janitor-max-age", cfg.JanitorMaxAge.Std(), "delete body cache files older than this")
	fs.BoolVar(&cfg.StoreEnabled, "store", cfg.StoreEnabled, "index completed exchange records into a queryable SQLite database")

	// Parse once to discover -config, if any, before applying its overlay;
	// flag values explicitly passed on the command line still win below.
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.JanitorMaxAge = Duration(*janitorMaxAge)

	if *configPath != "" {
		overlay, err := loadYAMLOverlay(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", *configPath, err)
		}
		applyOverlay(&cfg, overlay)
		// Re-parse so explicit flags still take precedence over the file.
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "janitor-max-age" {
				cfg.JanitorMaxAge = Duration(*janitorMaxAge)
			}
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAMLOverlay(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return overlay, nil
}

func applyOverlay(cfg *Config, overlay Config) {
	if overlay.ListenAddress != "" {
		cfg.ListenAddress = overlay.ListenAddress
	}
	if overlay.CacheDir != "" {
		cfg.CacheDir = overlay.CacheDir
	}
	if overlay.JanitorSchedule != "" {
		cfg.JanitorSchedule = overlay.JanitorSchedule
	}
	if overlay.JanitorMaxAge != 0 {
		cfg.JanitorMaxAge = overlay.JanitorMaxAge
	}
	cfg.JanitorEnabled = cfg.JanitorEnabled || overlay.JanitorEnabled
	cfg.StoreEnabled = cfg.StoreEnabled || overlay.StoreEnabled
}

func validate(cfg Config) error {
	var errs []string
	if cfg.ListenAddress == "" {
		errs = append(errs, "listen address must not be empty")
	}
	if cfg.CacheDir == "" {
		errs = append(errs, "cache dir must not be empty")
	}
	if cfg.JanitorEnabled {
		if _, err := parseCronForValidation(cfg.JanitorSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("janitor schedule %q invalid: %v", cfg.JanitorSchedule, err))
		}
		if cfg.JanitorMaxAge.Std() <= 0 {
			errs = append(errs, "janitor max age must be positive when the janitor is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", joinLines(errs))
	}
	return nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n  "
		}
		out += l
	}
	return out
}
