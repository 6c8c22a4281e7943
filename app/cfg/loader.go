package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./aggregator.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://planet.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for feed updates"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Ingestion policy
	Encoding       string   `long:"encoding" env:"AGGREGATOR_ENCODING" description:"Fixed storage encoding for entry text (default: encoding detected per feed)"`
	RejectedImages []string `long:"reject-image" env:"REJECT_IMAGES" env-delim:"," description:"Additional URL substrings that disqualify an entry image"`
	FetchRate      float64  `long:"fetch-rate" env:"FETCH_RATE" default:"0" description:"Maximum outbound requests per second (0 disables the limit)"`
	FeedCacheTTL   int      `long:"feed-cache-ttl" env:"FEED_CACHE_TTL" default:"60" description:"Seconds a rendered feed is served from memory (0 disables caching)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed Aggregator/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command-line arguments and environment variables. A nil config
// with a nil error means help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs is Load with explicit arguments; nil args reads os.Args.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		Encoding:          raw.Encoding,
		RejectedImages:    nonEmpty(raw.RejectedImages),
		FetchRate:         raw.FetchRate,
		FeedCacheTTL:      raw.FeedCacheTTL,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %d", cfg.SchedulerInterval)
	}

	if cfg.FetchRate < 0 {
		return nil, fmt.Errorf("fetch rate must not be negative, got %v", cfg.FetchRate)
	}
	if cfg.FeedCacheTTL < 0 {
		return nil, fmt.Errorf("feed cache TTL must not be negative, got %d", cfg.FeedCacheTTL)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) GetSchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) GetFeedCacheTTL() time.Duration {
	return time.Duration(c.FeedCacheTTL) * time.Second
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
