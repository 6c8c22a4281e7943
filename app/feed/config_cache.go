package feed

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrConfigNotFound = errors.New("feed config not found")

const (
	minRefreshInterval = 60
	maxItemsLimit      = 500
	// extracting feeds fetch one article per new entry within a single update
	maxExtractTimeout = 60
)

var configExtensions = []string{".yml", ".yaml"}

func defaultSettings() ConfigSettings {
	return ConfigSettings{
		RefreshInterval: 3600,
		MaxItems:        50,
		Timeout:         30,
	}
}

// ConfigCache holds the per-feed YAML configurations, keyed by file name.
type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

// Run loads every config in the feeds directory and replaces the cached set,
// so feeds whose files were removed drop out. A missing directory yields no
// feeds.
func (cc *ConfigCache) Run() error {
	dirEntries, err := os.ReadDir(cc.feedsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read feeds directory: %w", err)
	}

	loaded := make(map[string]*Config)
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		ext := filepath.Ext(dirEntry.Name())
		if !slices.Contains(configExtensions, ext) {
			continue
		}
		feedName := strings.TrimSuffix(dirEntry.Name(), ext)
		if _, dup := loaded[feedName]; dup {
			return fmt.Errorf("feed %q is defined by more than one file", feedName)
		}

		feedConfig, err := cc.readConfig(feedName, filepath.Join(cc.feedsDir, dirEntry.Name()))
		if err != nil {
			return err
		}
		loaded[feedName] = feedConfig

		slog.Debug("Configuration loaded", "feed", feedName, "url", feedConfig.URL,
			"enabled", feedConfig.Settings.Enabled, "extract_content", feedConfig.Settings.ExtractContent)
	}

	cc.mu.Lock()
	cc.cache = loaded
	cc.mu.Unlock()

	return nil
}

// LoadConfig re-reads a single feed's file and updates the cache.
func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	configFile, err := cc.findConfigFile(feedName)
	if err != nil {
		return nil, err
	}

	feedConfig, err := cc.readConfig(feedName, configFile)
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedName] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", feedName, ErrConfigNotFound)
	}
	return feedConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return maps.Clone(cc.cache)
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	enabled := cc.GetConfigs()
	maps.DeleteFunc(enabled, func(_ string, c *Config) bool {
		return !c.Settings.Enabled
	})
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) findConfigFile(feedName string) (string, error) {
	for _, ext := range configExtensions {
		path := filepath.Join(cc.feedsDir, feedName+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", feedName, ErrConfigNotFound)
}

// readConfig decodes a file over the default settings, so omitted keys keep
// their defaults, then validates the result.
func (cc *ConfigCache) readConfig(feedName, configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
	}

	feedConfig := &Config{Settings: defaultSettings()}
	if err := yaml.Unmarshal(data, feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
	}

	feedConfig.Name = feedName
	feedConfig.Title = cmp.Or(feedConfig.Title, feedName)

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	return feedConfig, nil
}

// validateConfig reports every problem with a config at once.
func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return errors.New("config is nil")
	}

	var errs []error

	if feedConfig.Name == "" {
		errs = append(errs, errors.New("feed name is required"))
	}

	if feedConfig.URL == "" {
		errs = append(errs, errors.New("feed URL is required"))
	} else if parsed, err := url.Parse(feedConfig.URL); err != nil ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("feed URL must be an absolute http(s) URL: %s", feedConfig.URL))
	}

	if feedConfig.PublicURL != "" {
		if _, err := url.Parse(feedConfig.PublicURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid public URL: %w", err))
		}
	}

	settings := feedConfig.Settings
	if settings.RefreshInterval < minRefreshInterval {
		errs = append(errs, fmt.Errorf("refresh interval must be at least %ds, got %d", minRefreshInterval, settings.RefreshInterval))
	}
	if settings.MaxItems <= 0 || settings.MaxItems > maxItemsLimit {
		errs = append(errs, fmt.Errorf("max items must be between 1 and %d, got %d", maxItemsLimit, settings.MaxItems))
	}
	if settings.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %d", settings.Timeout))
	} else if settings.ExtractContent && settings.Timeout > maxExtractTimeout {
		errs = append(errs, fmt.Errorf("timeout must be at most %ds when extract_content is set, got %d", maxExtractTimeout, settings.Timeout))
	}

	return errors.Join(errs...)
}
